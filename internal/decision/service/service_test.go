package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"fundledger/internal/decision/models"
	"fundledger/internal/decision/store"
	eventmodels "fundledger/internal/events/models"
	"fundledger/internal/events/store/mocks"
	"fundledger/internal/facts"
	rulemodels "fundledger/internal/rules/models"
	rulestore "fundledger/internal/rules/store"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
	"fundledger/pkg/platform/sentinel"
	"fundledger/pkg/requestcontext"
)

type fixture struct {
	service  *Service
	records  *store.InMemoryStore
	rulesets *rulestore.InMemoryRuleSetStore
	rules    *rulestore.InMemoryCompositeRuleStore
	tenantID id.TenantID
	assetID  id.AssetID
	ctx      context.Context
}

func newFixture(t *testing.T, ruleset rulemodels.RuleSet, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		records:  store.NewInMemory(),
		rulesets: rulestore.NewInMemoryRuleSets(),
		rules:    rulestore.NewInMemoryCompositeRules(),
		tenantID: id.NewTenantID(),
	}
	if ruleset.ID.IsNil() {
		ruleset.ID = id.NewRuleSetID()
	}
	if ruleset.AssetID.IsNil() {
		ruleset.AssetID = id.NewAssetID()
	}
	if ruleset.Version == 0 {
		ruleset.Version = 1
	}
	f.assetID = ruleset.AssetID
	require.NoError(t, f.rulesets.Create(context.Background(), f.tenantID, &ruleset))

	f.service = New(f.records, f.rulesets, f.rules, opts...)

	ctx := requestcontext.WithTenantID(context.Background(), f.tenantID)
	ctx = requestcontext.WithActorID(ctx, "compliance@fund.example")
	ctx = requestcontext.WithTime(ctx, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC))
	f.ctx = ctx
	return f
}

func (f *fixture) transferRequest() TransferRequest {
	sender := facts.Investor{
		ID: id.NewInvestorID(), Name: "Alice Fund LP", Jurisdiction: "DE",
		InvestorType: "institutional", Accredited: true, KYCStatus: "verified",
	}
	recipient := facts.Investor{
		ID: id.NewInvestorID(), Name: "Bob Capital", Jurisdiction: "DE",
		InvestorType: "institutional", Accredited: true, KYCStatus: "verified",
	}
	asset := facts.Asset{ID: f.assetID, Name: "Fund I", Status: "active", TotalUnits: 10000}
	return TransferRequest{
		Sender:    sender,
		Recipient: recipient,
		Asset:     asset,
		Holding: facts.Holding{
			InvestorID: sender.ID, AssetID: f.assetID, Units: 500,
			AcquiredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Transfer: facts.Transfer{
			AssetID: f.assetID, FromInvestorID: sender.ID, ToInvestorID: recipient.ID,
			Units: 100, AmountCents: 50_000_00,
			ExecutionDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestValidateTransfer_Approved(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	req := f.transferRequest()

	record, err := f.service.ValidateTransfer(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, models.TypeTransferValidation, record.DecisionType)
	assert.Equal(t, models.ResultApproved, record.Result)
	assert.Zero(t, record.ResultDetails.ViolationCount)
	require.True(t, record.Sealed())
	assert.EqualValues(t, 1, *record.SequenceNumber)
	require.NotNil(t, record.DecidedBy)
	assert.Equal(t, "compliance@fund.example", *record.DecidedBy)
	assert.Equal(t, req.Recipient.ID, record.SubjectID)

	// The frozen snapshot carries the facts the verdict was derived from.
	assert.Equal(t, facts.Number(100), record.InputSnapshot["transfer.units"])
	assert.Equal(t, facts.String("DE"), record.InputSnapshot["to.jurisdiction"])
	assert.Equal(t, 1, record.RuleVersionSnapshot.RuleSet.Version)
}

func TestValidateTransfer_RejectedIsStillRecorded(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{JurisdictionWhitelist: []string{"NL"}})

	record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err, "a rejection is a successful decision, not an error")

	assert.Equal(t, models.ResultRejected, record.Result)
	assert.Equal(t, 1, record.ResultDetails.ViolationCount)
	assert.True(t, record.Sealed())

	stored, err := f.records.FindByID(f.ctx, f.tenantID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultRejected, stored.Result)
}

func TestValidateTransfer_DryRun(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	req := f.transferRequest()
	req.DryRun = true

	record, err := f.service.ValidateTransfer(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, models.TypeScenarioAnalysis, record.DecisionType)
	assert.Equal(t, models.ResultSimulated, record.Result)
	assert.True(t, record.Sealed(), "dry runs are chain members like any decision")
}

func TestValidateTransfer_RequestSanity(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})

	tests := []struct {
		name    string
		mutate  func(*TransferRequest)
		message string
	}{
		{"zero units", func(r *TransferRequest) { r.Transfer.Units = 0 }, "transfer units must be positive"},
		{"negative units", func(r *TransferRequest) { r.Transfer.Units = -5 }, "transfer units must be positive"},
		{"self transfer", func(r *TransferRequest) {
			r.Recipient.ID = r.Sender.ID
			r.Transfer.ToInvestorID = r.Sender.ID
		}, "cannot transfer to self"},
		{"insufficient holding", func(r *TransferRequest) { r.Holding.Units = 50 }, "sender holds insufficient units"},
		{"asset mismatch", func(r *TransferRequest) { r.Transfer.AssetID = id.NewAssetID() }, "transfer asset does not match asset"},
		{"party mismatch", func(r *TransferRequest) { r.Transfer.ToInvestorID = id.NewInvestorID() }, "transfer parties do not match investors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.transferRequest()
			tt.mutate(&req)
			_, err := f.service.ValidateTransfer(f.ctx, req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			assert.Equal(t, tt.message, dErrors.MessageOf(err))
		})
	}
}

func TestValidateTransfer_NoActiveRuleSet(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	req := f.transferRequest()
	other := id.NewAssetID()
	req.Asset.ID = other
	req.Transfer.AssetID = other
	req.Holding.AssetID = other

	_, err := f.service.ValidateTransfer(f.ctx, req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.Equal(t, "asset has no ruleset", dErrors.MessageOf(err))
}

func TestValidateTransfer_RequiresTenant(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	_, err := f.service.ValidateTransfer(context.Background(), f.transferRequest())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTransfer_CompositeRulesApply(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	require.NoError(t, f.rules.Create(context.Background(), f.tenantID, &rulemodels.CompositeRule{
		ID:       id.NewRuleID(),
		AssetID:  f.assetID,
		Name:     "block-small-trades",
		Operator: rulemodels.CombineAnd,
		Conditions: []rulemodels.Condition{
			{Field: "transfer.units", Operator: rulemodels.OpGte, Value: facts.Number(1000)},
		},
		Enabled: true,
	}))

	record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ResultRejected, record.Result)
	require.Len(t, record.RuleVersionSnapshot.CompositeRules, 1)
	assert.Equal(t, "block-small-trades", record.RuleVersionSnapshot.CompositeRules[0].Name)
}

func TestCheckEligibility(t *testing.T) {
	t.Run("amount feeds the minimum investment check", func(t *testing.T) {
		f := newFixture(t, rulemodels.RuleSet{MinimumInvestment: 100_000_00})
		record, err := f.service.CheckEligibility(f.ctx, EligibilityRequest{
			Investor:    facts.Investor{ID: id.NewInvestorID(), Jurisdiction: "DE", KYCStatus: "verified"},
			Asset:       facts.Asset{ID: f.assetID, TotalUnits: 10000},
			AmountCents: 50_000_00,
		})
		require.NoError(t, err)
		assert.Equal(t, models.TypeEligibilityCheck, record.DecisionType)
		assert.Equal(t, models.ResultRejected, record.Result)
	})

	t.Run("no amount skips the minimum", func(t *testing.T) {
		f := newFixture(t, rulemodels.RuleSet{MinimumInvestment: 100_000_00})
		record, err := f.service.CheckEligibility(f.ctx, EligibilityRequest{
			Investor: facts.Investor{ID: id.NewInvestorID(), Jurisdiction: "DE", KYCStatus: "verified"},
			Asset:    facts.Asset{ID: f.assetID, TotalUnits: 10000},
		})
		require.NoError(t, err)
		// Without an amount the minimum check cannot bind, and it fails closed.
		assert.Equal(t, models.ResultRejected, record.Result)
	})

	t.Run("negative amount rejected up front", func(t *testing.T) {
		f := newFixture(t, rulemodels.RuleSet{})
		_, err := f.service.CheckEligibility(f.ctx, EligibilityRequest{
			Investor:    facts.Investor{ID: id.NewInvestorID()},
			Asset:       facts.Asset{ID: f.assetID},
			AmountCents: -1,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestApproveOnboarding(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{KYCRequired: true, QualificationRequired: true})

	record, err := f.service.ApproveOnboarding(f.ctx, OnboardingRequest{
		Investor: facts.Investor{
			ID: id.NewInvestorID(), Jurisdiction: "DE",
			Accredited: true, KYCStatus: "verified",
		},
		Asset: facts.Asset{ID: f.assetID, TotalUnits: 10000},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TypeOnboardingApproval, record.DecisionType)
	assert.Equal(t, models.ResultApproved, record.Result)
}

func TestRecord_EmitsDecisionRecordedEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)

	var captured *eventmodels.Event
	outbox.EXPECT().
		Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *eventmodels.Event) error {
			captured = event
			return nil
		})

	f := newFixture(t, rulemodels.RuleSet{}, WithOutbox(outbox))
	record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, eventmodels.TypeDecisionRecorded, captured.EventType)
	assert.Equal(t, eventmodels.EntityDecisionRecord, captured.EntityType)
	assert.Equal(t, f.tenantID, captured.TenantID)
	assert.Contains(t, string(captured.Payload), record.ID.String())
	assert.Contains(t, string(captured.Payload), *record.IntegrityHash)
}

func TestRecord_EventFailureDoesNotFailTheDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)
	outbox.EXPECT().
		Enqueue(gomock.Any(), gomock.Any()).
		Return(errors.New("outbox unavailable"))

	f := newFixture(t, rulemodels.RuleSet{}, WithOutbox(outbox))
	record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err, "the decision is durable; losing the event must not undo it")
	assert.True(t, record.Sealed())
}

// conflictingStore fails Append with ErrConflict a fixed number of times
// before delegating to the real store.
type conflictingStore struct {
	store.Store
	remaining int
}

func (c *conflictingStore) Append(ctx context.Context, record *models.DecisionRecord) (*models.DecisionRecord, error) {
	if c.remaining > 0 {
		c.remaining--
		return nil, sentinel.ErrConflict
	}
	return c.Store.Append(ctx, record)
}

func TestRecord_RetriesChainContention(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	flaky := &conflictingStore{Store: f.records, remaining: appendRetries}
	svc := New(flaky, f.rulesets, f.rules)

	record, err := svc.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err)
	assert.True(t, record.Sealed())
}

func TestRecord_GivesUpAfterPersistentContention(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	flaky := &conflictingStore{Store: f.records, remaining: 100}
	svc := New(flaky, f.rulesets, f.rules)

	_, err := svc.ValidateTransfer(f.ctx, f.transferRequest())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestGetDecision(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		found, err := f.service.GetDecision(f.ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, found.ID)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := f.service.GetDecision(f.ctx, id.NewRecordID())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestListDecisions(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})
	for range 3 {
		_, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
		require.NoError(t, err)
	}

	records, err := f.service.ListDecisions(f.ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	limited, err := f.service.ListDecisions(f.ctx, store.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestVerifyChain(t *testing.T) {
	t.Run("intact chain", func(t *testing.T) {
		f := newFixture(t, rulemodels.RuleSet{})
		for range 3 {
			_, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
			require.NoError(t, err)
		}

		report, err := f.service.VerifyChain(f.ctx, true, 0)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.EqualValues(t, 3, report.RecordsChecked)
	})

	t.Run("limit bounds the walk", func(t *testing.T) {
		f := newFixture(t, rulemodels.RuleSet{})
		for range 3 {
			_, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
			require.NoError(t, err)
		}

		report, err := f.service.VerifyChain(f.ctx, true, 2)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.EqualValues(t, 2, report.RecordsChecked)
		assert.EqualValues(t, 2, report.LastSequence)
	})

	t.Run("tampered chain is reported and announced", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutbox(ctrl)
		var events []*eventmodels.Event
		outbox.EXPECT().
			Enqueue(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event *eventmodels.Event) error {
				events = append(events, event)
				return nil
			}).
			AnyTimes()

		f := newFixture(t, rulemodels.RuleSet{}, WithOutbox(outbox))
		record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
		require.NoError(t, err)

		ok := f.records.Tamper(f.tenantID, record.ID, func(r *models.DecisionRecord) {
			r.Result = models.ResultRejected
		})
		require.True(t, ok)

		report, err := f.service.VerifyChain(f.ctx, true, 0)
		require.NoError(t, err, "an invalid chain is a finding, not a failure")
		assert.False(t, report.Valid)
		require.NotNil(t, report.BrokenAtID)
		assert.Equal(t, record.ID, *report.BrokenAtID)
		assert.NotEmpty(t, report.ExpectedHash)
		assert.NotEmpty(t, report.ActualHash)
		assert.NotEmpty(t, report.Message)

		var failureEvent *eventmodels.Event
		for _, e := range events {
			if e.EventType == eventmodels.TypeChainVerificationFailed {
				failureEvent = e
			}
		}
		require.NotNil(t, failureEvent)
		assert.Equal(t, eventmodels.EntityChain, failureEvent.EntityType)
	})
}

func TestSealPending(t *testing.T) {
	f := newFixture(t, rulemodels.RuleSet{})

	record, err := f.service.ValidateTransfer(f.ctx, f.transferRequest())
	require.NoError(t, err)
	staged := *record
	staged.ID = id.NewRecordID()
	staged.SequenceNumber = nil
	staged.IntegrityHash = nil
	staged.PreviousHash = nil
	require.NoError(t, f.records.Stage(f.ctx, &staged))

	sealed, err := f.service.SealPending(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sealed)

	report, err := f.service.VerifyChain(f.ctx, true, 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.EqualValues(t, 2, report.RecordsChecked)
}
