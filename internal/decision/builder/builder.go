// Package builder assembles decision records. Everything a record needs to be
// replayed later is frozen here: the fact context is cloned, the rule versions
// are snapshotted, and the verdict is derived purely from the evaluation
// outcome.
package builder

import (
	"context"
	"time"

	"fundledger/internal/decision/models"
	"fundledger/internal/facts"
	"fundledger/internal/rules/engine"
	rulemodels "fundledger/internal/rules/models"
	id "fundledger/pkg/domain"
	"fundledger/pkg/requestcontext"
)

// Input carries everything one decision is made from.
type Input struct {
	DecisionType models.DecisionType
	AssetID      *id.AssetID
	SubjectID    id.InvestorID
	Facts        facts.Context
	RuleSet      rulemodels.RuleSet
	Composites   []rulemodels.CompositeRule
	Outcome      engine.Outcome

	// Simulated marks dry runs: the record enters the chain like any other
	// but its result carries no authorization.
	Simulated bool
}

// Build produces an unsealed record. Timestamps come from the request-scoped
// clock so a decision and its events agree on when it happened; decided_by is
// the authenticated actor, or null for automated callers.
func Build(ctx context.Context, in Input) *models.DecisionRecord {
	// decided_at feeds the integrity hash. TIMESTAMPTZ keeps microseconds, so
	// anything finer would not survive the storage round trip and the stored
	// hash would stop being reproducible.
	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)

	result := models.ResultRejected
	if in.Simulated {
		result = models.ResultSimulated
	} else if in.Outcome.Passed {
		result = models.ResultApproved
	}

	var decidedBy *string
	if actor := requestcontext.ActorID(ctx); actor != "" {
		decidedBy = &actor
	}

	var assetID *id.AssetID
	if in.AssetID != nil {
		a := *in.AssetID
		assetID = &a
	}

	return &models.DecisionRecord{
		ID:            id.NewRecordID(),
		TenantID:      requestcontext.TenantID(ctx),
		DecisionType:  in.DecisionType,
		AssetID:       assetID,
		SubjectID:     in.SubjectID,
		InputSnapshot: in.Facts.Clone(),
		RuleVersionSnapshot: models.RuleVersionSnapshot{
			RuleSet:        models.SnapshotRuleSet(in.RuleSet),
			CompositeRules: models.SnapshotCompositeRules(in.Composites),
		},
		Result: result,
		ResultDetails: models.ResultDetails{
			Checks:         append([]rulemodels.CheckResult(nil), in.Outcome.Checks...),
			Overall:        result,
			ViolationCount: in.Outcome.ViolationCount,
		},
		DecidedBy: decidedBy,
		DecidedAt: now,
		CreatedAt: now,
	}
}
