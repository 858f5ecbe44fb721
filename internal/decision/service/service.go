// Package service orchestrates compliance decisions: resolve facts, evaluate
// rules, freeze the record, append it to the chain, then announce it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fundledger/internal/chain/sealer"
	"fundledger/internal/chain/verifier"
	"fundledger/internal/decision/builder"
	"fundledger/internal/decision/models"
	"fundledger/internal/decision/store"
	eventmodels "fundledger/internal/events/models"
	eventstore "fundledger/internal/events/store"
	"fundledger/internal/facts"
	"fundledger/internal/platform/metrics"
	"fundledger/internal/rules/engine"
	rulemodels "fundledger/internal/rules/models"
	rulestore "fundledger/internal/rules/store"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
	"fundledger/pkg/platform/sentinel"
	"fundledger/pkg/requestcontext"
)

// appendRetries bounds how often a decision retries after losing the chain
// tail to a concurrent writer.
const appendRetries = 3

// ChainVerifier is the verification surface the service needs.
type ChainVerifier interface {
	Verify(ctx context.Context, tenantID id.TenantID, limit int64) (*verifier.Report, error)
	VerifyIncremental(ctx context.Context, tenantID id.TenantID, limit int64) (*verifier.Report, error)
}

// Sealer drains staged records for one tenant.
type Sealer interface {
	SealTenant(ctx context.Context, tenantID id.TenantID) (int, error)
}

type Service struct {
	records  store.Store
	rulesets rulestore.RuleSetStore
	rules    rulestore.CompositeRuleStore
	verifier ChainVerifier
	sealer   Sealer
	outbox   eventstore.Outbox
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOutbox(outbox eventstore.Outbox) Option {
	return func(s *Service) { s.outbox = outbox }
}

func WithVerifier(v ChainVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

func WithSealer(sl Sealer) Option {
	return func(s *Service) { s.sealer = sl }
}

func New(records store.Store, rulesets rulestore.RuleSetStore, rules rulestore.CompositeRuleStore, opts ...Option) *Service {
	s := &Service{
		records:  records,
		rulesets: rulesets,
		rules:    rules,
		logger:   slog.Default(),
		tracer:   otel.Tracer("fundledger/decision"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verifier == nil {
		s.verifier = verifier.New(records)
	}
	if s.sealer == nil {
		s.sealer = sealer.New(records)
	}
	return s
}

// TransferRequest is a proposed transfer with the entity state it should be
// judged against. Entity state rides the request: this service decides, it
// does not own the investor registry.
type TransferRequest struct {
	Sender    facts.Investor
	Recipient facts.Investor
	Asset     facts.Asset
	Holding   facts.Holding
	Transfer  facts.Transfer
	DryRun    bool
}

func (r *TransferRequest) validate() error {
	if r.Transfer.Units <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer units must be positive")
	}
	if r.Sender.ID == r.Recipient.ID {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot transfer to self")
	}
	if r.Holding.Units < r.Transfer.Units {
		return dErrors.New(dErrors.CodeInvalidInput, "sender holds insufficient units")
	}
	if r.Transfer.AssetID != r.Asset.ID {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer asset does not match asset")
	}
	if r.Transfer.FromInvestorID != r.Sender.ID || r.Transfer.ToInvestorID != r.Recipient.ID {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer parties do not match investors")
	}
	return nil
}

// ValidateTransfer evaluates a proposed transfer and records the verdict.
// Dry runs are recorded too, as scenario analyses carrying no authorization.
func (s *Service) ValidateTransfer(ctx context.Context, req TransferRequest) (*models.DecisionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	fc := facts.NewResolver().
		AddSender(req.Sender).
		AddRecipient(req.Recipient).
		AddAsset(req.Asset).
		AddHolding(req.Holding).
		AddTransfer(req.Transfer).
		Set("decision.effective_date", facts.String(requestcontext.Now(ctx).UTC().Format(time.RFC3339))).
		Resolve()

	decisionType := models.TypeTransferValidation
	if req.DryRun {
		decisionType = models.TypeScenarioAnalysis
	}
	assetID := req.Asset.ID
	return s.record(ctx, builderInput{
		decisionType: decisionType,
		assetID:      &assetID,
		subjectID:    req.Recipient.ID,
		facts:        fc,
		simulated:    req.DryRun,
	})
}

// EligibilityRequest asks whether an investor could invest a given amount.
type EligibilityRequest struct {
	Investor    facts.Investor
	Asset       facts.Asset
	AmountCents int64
}

// CheckEligibility evaluates investor eligibility for an asset and records
// the verdict.
func (s *Service) CheckEligibility(ctx context.Context, req EligibilityRequest) (*models.DecisionRecord, error) {
	if req.AmountCents < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount must not be negative")
	}

	resolver := facts.NewResolver().
		AddRecipient(req.Investor).
		AddAsset(req.Asset).
		Set("decision.effective_date", facts.String(requestcontext.Now(ctx).UTC().Format(time.RFC3339)))
	if req.AmountCents > 0 {
		resolver.Set("transfer.amount_cents", facts.Number(float64(req.AmountCents)))
	}

	assetID := req.Asset.ID
	return s.record(ctx, builderInput{
		decisionType: models.TypeEligibilityCheck,
		assetID:      &assetID,
		subjectID:    req.Investor.ID,
		facts:        resolver.Resolve(),
	})
}

// OnboardingRequest asks whether an investor may be onboarded to an asset.
type OnboardingRequest struct {
	Investor facts.Investor
	Asset    facts.Asset
}

// ApproveOnboarding evaluates onboarding and records the verdict.
func (s *Service) ApproveOnboarding(ctx context.Context, req OnboardingRequest) (*models.DecisionRecord, error) {
	fc := facts.NewResolver().
		AddRecipient(req.Investor).
		AddAsset(req.Asset).
		Set("decision.effective_date", facts.String(requestcontext.Now(ctx).UTC().Format(time.RFC3339))).
		Resolve()

	assetID := req.Asset.ID
	return s.record(ctx, builderInput{
		decisionType: models.TypeOnboardingApproval,
		assetID:      &assetID,
		subjectID:    req.Investor.ID,
		facts:        fc,
	})
}

type builderInput struct {
	decisionType models.DecisionType
	assetID      *id.AssetID
	subjectID    id.InvestorID
	facts        facts.Context
	simulated    bool
}

// record is the shared pipeline: load rules, evaluate, freeze, append, emit.
func (s *Service) record(ctx context.Context, in builderInput) (*models.DecisionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "decision.record",
		trace.WithAttributes(attribute.String("decision.type", string(in.decisionType))))
	defer span.End()

	start := time.Now()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no tenant in request")
	}

	ruleset, composites, err := s.loadRules(ctx, tenantID, in.assetID)
	if err != nil {
		return nil, err
	}

	outcome := engine.Evaluate(*ruleset, composites, in.facts)
	record := builder.Build(ctx, builder.Input{
		DecisionType: in.decisionType,
		AssetID:      in.assetID,
		SubjectID:    in.subjectID,
		Facts:        in.facts,
		RuleSet:      *ruleset,
		Composites:   composites,
		Outcome:      outcome,
		Simulated:    in.simulated,
	})

	sealed, err := s.append(ctx, record)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("decision.result", string(sealed.Result)),
		attribute.Int64("decision.sequence", *sealed.SequenceNumber),
	)
	s.logger.InfoContext(ctx, "decision recorded",
		"tenant_id", tenantID,
		"record_id", sealed.ID,
		"decision_type", sealed.DecisionType,
		"result", sealed.Result,
		"violations", sealed.ResultDetails.ViolationCount,
		"sequence", *sealed.SequenceNumber)
	s.metrics.ObserveDecision(string(sealed.DecisionType), string(sealed.Result), time.Since(start).Seconds())
	s.emitDecisionRecorded(ctx, sealed)
	return sealed, nil
}

func (s *Service) loadRules(ctx context.Context, tenantID id.TenantID, assetID *id.AssetID) (*rulemodels.RuleSet, []rulemodels.CompositeRule, error) {
	if assetID == nil {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "asset is required")
	}
	ruleset, err := s.rulesets.FindActive(ctx, tenantID, *assetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "asset has no ruleset")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ruleset")
	}
	rules, err := s.rules.ListByAsset(ctx, tenantID, *assetID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load composite rules")
	}
	composites := make([]rulemodels.CompositeRule, 0, len(rules))
	for _, r := range rules {
		composites = append(composites, *r)
	}
	return ruleset, composites, nil
}

// append seals the record into the chain, retrying when the critical section
// loses to a concurrent writer.
func (s *Service) append(ctx context.Context, record *models.DecisionRecord) (*models.DecisionRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= appendRetries; attempt++ {
		sealed, err := s.records.Append(ctx, record)
		if err == nil {
			return sealed, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append decision record")
		}
		lastErr = err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeUnavailable, "chain contention, retry the request")
}

// GetDecision returns one record.
func (s *Service) GetDecision(ctx context.Context, recordID id.RecordID) (*models.DecisionRecord, error) {
	tenantID := requestcontext.TenantID(ctx)
	record, err := s.records.FindByID(ctx, tenantID, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decision record")
	}
	return record, nil
}

// ListDecisions returns records newest first, optionally filtered.
func (s *Service) ListDecisions(ctx context.Context, filter store.ListFilter) ([]*models.DecisionRecord, error) {
	tenantID := requestcontext.TenantID(ctx)
	records, err := s.records.List(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list decision records")
	}
	return records, nil
}

// VerifyChain walks the tenant's chain and reports the first divergence, if
// any. A limit of n checks at most n records; 0 walks to the tail. A failed
// verification is announced on the event stream.
func (s *Service) VerifyChain(ctx context.Context, full bool, limit int64) (*verifier.Report, error) {
	ctx, span := s.tracer.Start(ctx, "decision.verify_chain")
	defer span.End()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no tenant in request")
	}

	var report *verifier.Report
	var err error
	if full {
		report, err = s.verifier.Verify(ctx, tenantID, limit)
	} else {
		report, err = s.verifier.VerifyIncremental(ctx, tenantID, limit)
	}
	if err != nil {
		s.metrics.IncChainVerification("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "chain verification failed to run")
	}

	if report.Valid {
		s.metrics.IncChainVerification("valid")
		return report, nil
	}

	s.metrics.IncChainVerification("invalid")
	s.logger.ErrorContext(ctx, "chain verification failed",
		"tenant_id", tenantID,
		"first_invalid_sequence", *report.FirstInvalidSequence,
		"reason", report.Reason)
	s.emit(ctx, tenantID, eventmodels.TypeChainVerificationFailed, eventmodels.EntityChain,
		uuid.UUID(tenantID), eventmodels.ChainVerificationFailedPayload{
			FirstInvalidSequence: *report.FirstInvalidSequence,
			Reason:               report.Reason,
			Message:              report.Message,
		})
	return report, nil
}

// SealPending drains the tenant's staged records into the chain.
func (s *Service) SealPending(ctx context.Context) (int, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "no tenant in request")
	}
	n, err := s.sealer.SealTenant(ctx, tenantID)
	if err != nil {
		return n, dErrors.Wrap(err, dErrors.CodeInternal, "sealing failed")
	}
	s.metrics.AddRecordsSealed(n)
	return n, nil
}

func (s *Service) emitDecisionRecorded(ctx context.Context, record *models.DecisionRecord) {
	payload := eventmodels.DecisionRecordedPayload{
		RecordID:       record.ID.String(),
		DecisionType:   string(record.DecisionType),
		SubjectID:      record.SubjectID.String(),
		Result:         string(record.Result),
		ViolationCount: record.ResultDetails.ViolationCount,
		SequenceNumber: *record.SequenceNumber,
		IntegrityHash:  *record.IntegrityHash,
	}
	if record.AssetID != nil {
		payload.AssetID = record.AssetID.String()
	}
	s.emit(ctx, record.TenantID, eventmodels.TypeDecisionRecorded, eventmodels.EntityDecisionRecord,
		uuid.UUID(record.ID), payload)
}

// emit is fail-open: the record is already durable in the chain, a lost event
// only delays downstream consumers.
func (s *Service) emit(ctx context.Context, tenantID id.TenantID, eventType eventmodels.EventType, entityType eventmodels.EntityType, entityID uuid.UUID, payload any) {
	if s.outbox == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event payload", "event_type", eventType, "error", err)
		return
	}
	event := &eventmodels.Event{
		TenantID:   tenantID,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    raw,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.outbox.Enqueue(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "enqueue event", "event_type", eventType, "error", err)
	}
}
