// Package service orchestrates rule management. Ruleset edits never mutate a
// version in place: each update writes a new version and archives the old one,
// so any historical decision can name the exact rules it ran under.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	eventmodels "fundledger/internal/events/models"
	eventstore "fundledger/internal/events/store"
	"fundledger/internal/platform/metrics"
	"fundledger/internal/rules/models"
	"fundledger/internal/rules/store"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
	"fundledger/pkg/platform/sentinel"
	"fundledger/pkg/requestcontext"
)

// Service manages rulesets and composite rules for one tenant per call; the
// tenant comes from the request context.
type Service struct {
	rulesets store.RuleSetStore
	rules    store.CompositeRuleStore
	outbox   eventstore.Outbox
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithOutbox(outbox eventstore.Outbox) Option {
	return func(s *Service) { s.outbox = outbox }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(rulesets store.RuleSetStore, rules store.CompositeRuleStore, opts ...Option) *Service {
	s := &Service{
		rulesets: rulesets,
		rules:    rules,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RuleSetParams are the editable fields of a ruleset version.
type RuleSetParams struct {
	QualificationRequired bool
	LockupDays            int
	JurisdictionWhitelist []string
	TransferWhitelist     []string
	InvestorTypeWhitelist []string
	MinimumInvestment     int64
	MaximumInvestors      int
	ConcentrationLimitPct float64
	KYCRequired           bool
}

func (p RuleSetParams) validate() error {
	if p.LockupDays < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "lockup_days must not be negative")
	}
	if p.MinimumInvestment < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "minimum_investment must not be negative")
	}
	if p.MaximumInvestors < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "maximum_investors must not be negative")
	}
	if p.ConcentrationLimitPct < 0 || p.ConcentrationLimitPct > 100 {
		return dErrors.New(dErrors.CodeInvalidInput, "concentration_limit_pct must be between 0 and 100")
	}
	return nil
}

// UpdateRuleSet writes the next ruleset version for the asset and archives the
// current one. The first update of an asset creates version 1.
func (s *Service) UpdateRuleSet(ctx context.Context, assetID id.AssetID, params RuleSetParams) (*models.RuleSet, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no tenant in request")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	version := 1
	if current, err := s.rulesets.FindActive(ctx, tenantID, assetID); err == nil {
		version = current.Version + 1
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active ruleset")
	}

	rs := &models.RuleSet{
		ID:                    id.NewRuleSetID(),
		AssetID:               assetID,
		Version:               version,
		QualificationRequired: params.QualificationRequired,
		LockupDays:            params.LockupDays,
		JurisdictionWhitelist: append([]string(nil), params.JurisdictionWhitelist...),
		TransferWhitelist:     cloneNullable(params.TransferWhitelist),
		InvestorTypeWhitelist: cloneNullable(params.InvestorTypeWhitelist),
		MinimumInvestment:     params.MinimumInvestment,
		MaximumInvestors:      params.MaximumInvestors,
		ConcentrationLimitPct: params.ConcentrationLimitPct,
		KYCRequired:           params.KYCRequired,
		Active:                true,
		CreatedAt:             requestcontext.Now(ctx),
	}

	if err := s.rulesets.Create(ctx, tenantID, rs); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "concurrent ruleset update, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ruleset version")
	}

	s.logger.InfoContext(ctx, "ruleset version created",
		"tenant_id", tenantID,
		"asset_id", assetID,
		"ruleset_id", rs.ID,
		"version", rs.Version)
	s.metrics.IncRuleChange("ruleset_updated")
	s.emit(ctx, tenantID, eventmodels.TypeRuleSetUpdated, eventmodels.EntityRuleSet,
		uuid.UUID(rs.ID), eventmodels.RuleSetUpdatedPayload{
			RuleSetID: rs.ID.String(),
			AssetID:   assetID.String(),
			Version:   rs.Version,
		})
	return rs, nil
}

// GetActiveRuleSet returns the asset's live ruleset.
func (s *Service) GetActiveRuleSet(ctx context.Context, assetID id.AssetID) (*models.RuleSet, error) {
	tenantID := requestcontext.TenantID(ctx)
	rs, err := s.rulesets.FindActive(ctx, tenantID, assetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "asset has no ruleset")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ruleset")
	}
	return rs, nil
}

// ListRuleSetVersions returns the asset's full version history, newest first.
func (s *Service) ListRuleSetVersions(ctx context.Context, assetID id.AssetID) ([]*models.RuleSet, error) {
	tenantID := requestcontext.TenantID(ctx)
	versions, err := s.rulesets.ListVersions(ctx, tenantID, assetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ruleset versions")
	}
	return versions, nil
}

// CompositeRuleParams are the editable fields of a composite rule.
type CompositeRuleParams struct {
	Name        string
	Description string
	Operator    models.CompositeOperator
	Conditions  []models.Condition
	Enabled     bool
}

// CreateCompositeRule validates and stores a new rule.
func (s *Service) CreateCompositeRule(ctx context.Context, assetID id.AssetID, params CompositeRuleParams) (*models.CompositeRule, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no tenant in request")
	}

	now := requestcontext.Now(ctx)
	rule := &models.CompositeRule{
		ID:          id.NewRuleID(),
		AssetID:     assetID,
		Name:        params.Name,
		Description: params.Description,
		Operator:    params.Operator,
		Conditions:  append([]models.Condition(nil), params.Conditions...),
		Enabled:     params.Enabled,
		CreatedBy:   requestcontext.ActorID(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.rules.Create(ctx, tenantID, rule); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create composite rule")
	}

	s.logger.InfoContext(ctx, "composite rule created",
		"tenant_id", tenantID,
		"asset_id", assetID,
		"rule_id", rule.ID,
		"name", rule.Name)
	s.metrics.IncRuleChange("rule_created")
	s.emitRuleChange(ctx, tenantID, eventmodels.TypeCompositeRuleCreated, rule)
	return rule, nil
}

// UpdateCompositeRule replaces a rule's definition. The decision records that
// used the old definition keep their frozen copies.
func (s *Service) UpdateCompositeRule(ctx context.Context, assetID id.AssetID, ruleID id.RuleID, params CompositeRuleParams) (*models.CompositeRule, error) {
	tenantID := requestcontext.TenantID(ctx)

	existing, err := s.rules.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "composite rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load composite rule")
	}
	if existing.AssetID != assetID {
		return nil, dErrors.New(dErrors.CodeNotFound, "composite rule not found")
	}

	updated := &models.CompositeRule{
		ID:          ruleID,
		AssetID:     assetID,
		Name:        params.Name,
		Description: params.Description,
		Operator:    params.Operator,
		Conditions:  append([]models.Condition(nil), params.Conditions...),
		Enabled:     params.Enabled,
		CreatedBy:   existing.CreatedBy,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   requestcontext.Now(ctx),
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	if err := s.rules.Update(ctx, tenantID, updated); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "composite rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update composite rule")
	}

	s.logger.InfoContext(ctx, "composite rule updated",
		"tenant_id", tenantID,
		"rule_id", ruleID)
	s.metrics.IncRuleChange("rule_updated")
	s.emitRuleChange(ctx, tenantID, eventmodels.TypeCompositeRuleUpdated, updated)
	return updated, nil
}

// DeleteCompositeRule removes a rule from evaluation. Provenance is unharmed:
// records hold their own copies.
func (s *Service) DeleteCompositeRule(ctx context.Context, assetID id.AssetID, ruleID id.RuleID) error {
	tenantID := requestcontext.TenantID(ctx)

	existing, err := s.rules.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "composite rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load composite rule")
	}
	if existing.AssetID != assetID {
		return dErrors.New(dErrors.CodeNotFound, "composite rule not found")
	}

	if err := s.rules.Delete(ctx, tenantID, ruleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "composite rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete composite rule")
	}

	s.logger.InfoContext(ctx, "composite rule deleted",
		"tenant_id", tenantID,
		"rule_id", ruleID)
	s.metrics.IncRuleChange("rule_deleted")
	s.emitRuleChange(ctx, tenantID, eventmodels.TypeCompositeRuleDeleted, existing)
	return nil
}

// GetCompositeRule returns one rule.
func (s *Service) GetCompositeRule(ctx context.Context, assetID id.AssetID, ruleID id.RuleID) (*models.CompositeRule, error) {
	tenantID := requestcontext.TenantID(ctx)
	rule, err := s.rules.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "composite rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load composite rule")
	}
	if rule.AssetID != assetID {
		return nil, dErrors.New(dErrors.CodeNotFound, "composite rule not found")
	}
	return rule, nil
}

// ListCompositeRules returns the asset's rules in evaluation order.
func (s *Service) ListCompositeRules(ctx context.Context, assetID id.AssetID) ([]*models.CompositeRule, error) {
	tenantID := requestcontext.TenantID(ctx)
	rules, err := s.rules.ListByAsset(ctx, tenantID, assetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list composite rules")
	}
	return rules, nil
}

func (s *Service) emitRuleChange(ctx context.Context, tenantID id.TenantID, eventType eventmodels.EventType, rule *models.CompositeRule) {
	s.emit(ctx, tenantID, eventType, eventmodels.EntityCompositeRule,
		uuid.UUID(rule.ID), eventmodels.CompositeRuleChangedPayload{
			RuleID:  rule.ID.String(),
			AssetID: rule.AssetID.String(),
			Name:    rule.Name,
			Enabled: rule.Enabled,
		})
}

// emit is fail-open: the rule change is already durable, a lost event only
// delays downstream consumers.
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

func cloneNullable(list []string) []string {
	if list == nil {
		return nil
	}
	return append([]string(nil), list...)
}
