// Package models defines the decision record, the immutable and fully
// reproducible unit of provenance, and the frozen snapshots it embeds.
package models

import (
	"time"

	"fundledger/internal/facts"
	rulemodels "fundledger/internal/rules/models"
	id "fundledger/pkg/domain"
)

// DecisionType classifies what kind of evaluation produced a record.
type DecisionType string

const (
	TypeTransferValidation DecisionType = "transfer_validation"
	TypeEligibilityCheck   DecisionType = "eligibility_check"
	TypeOnboardingApproval DecisionType = "onboarding_approval"
	// TypeScenarioAnalysis records are first-class chain members but carry no
	// authorization: callers must never act on them.
	TypeScenarioAnalysis DecisionType = "scenario_analysis"
)

// Valid reports whether t is a known decision type.
func (t DecisionType) Valid() bool {
	switch t {
	case TypeTransferValidation, TypeEligibilityCheck, TypeOnboardingApproval, TypeScenarioAnalysis:
		return true
	}
	return false
}

// Result is the overall verdict of a decision.
type Result string

const (
	ResultApproved  Result = "approved"
	ResultRejected  Result = "rejected"
	ResultSimulated Result = "simulated"
)

// ResultDetails is the structured verdict document embedded in the record.
type ResultDetails struct {
	Checks         []rulemodels.CheckResult `json:"checks"`
	Overall        Result                   `json:"overall"`
	ViolationCount int                      `json:"violation_count"`
}

// RuleSetSnapshot is the frozen copy of the built-in ruleset version used for
// a decision. It is owned by the record, never a reference to the live row.
type RuleSetSnapshot struct {
	ID                    string   `json:"id"`
	AssetID               string   `json:"asset_id"`
	Version               int      `json:"version"`
	QualificationRequired bool     `json:"qualification_required"`
	LockupDays            int      `json:"lockup_days"`
	JurisdictionWhitelist []string `json:"jurisdiction_whitelist"`
	TransferWhitelist     []string `json:"transfer_whitelist"`
	InvestorTypeWhitelist []string `json:"investor_type_whitelist"`
	MinimumInvestment     int64    `json:"minimum_investment"`
	MaximumInvestors      int      `json:"maximum_investors"`
	ConcentrationLimitPct float64  `json:"concentration_limit_pct"`
	KYCRequired           bool     `json:"kyc_required"`
}

// CompositeRuleSnapshot freezes one composite rule version as used.
type CompositeRuleSnapshot struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Operator    string                  `json:"operator"`
	Conditions  []rulemodels.Condition  `json:"conditions"`
	UpdatedAt   string                  `json:"updated_at"`
}

// RuleVersionSnapshot captures the exact rule versions a decision used.
type RuleVersionSnapshot struct {
	RuleSet        RuleSetSnapshot         `json:"ruleset"`
	CompositeRules []CompositeRuleSnapshot `json:"composite_rules"`
}

// SnapshotRuleSet deep-copies a live ruleset into its frozen form.
func SnapshotRuleSet(rs rulemodels.RuleSet) RuleSetSnapshot {
	return RuleSetSnapshot{
		ID:                    rs.ID.String(),
		AssetID:               rs.AssetID.String(),
		Version:               rs.Version,
		QualificationRequired: rs.QualificationRequired,
		LockupDays:            rs.LockupDays,
		JurisdictionWhitelist: append([]string(nil), rs.JurisdictionWhitelist...),
		TransferWhitelist:     append([]string(nil), rs.TransferWhitelist...),
		InvestorTypeWhitelist: append([]string(nil), rs.InvestorTypeWhitelist...),
		MinimumInvestment:     rs.MinimumInvestment,
		MaximumInvestors:      rs.MaximumInvestors,
		ConcentrationLimitPct: rs.ConcentrationLimitPct,
		KYCRequired:           rs.KYCRequired,
	}
}

// SnapshotCompositeRules deep-copies the enabled composite rules as used.
func SnapshotCompositeRules(rules []rulemodels.CompositeRule) []CompositeRuleSnapshot {
	snaps := make([]CompositeRuleSnapshot, 0, len(rules))
	for _, r := range rules {
		conds := make([]rulemodels.Condition, len(r.Conditions))
		copy(conds, r.Conditions)
		snaps = append(snaps, CompositeRuleSnapshot{
			ID:          r.ID.String(),
			Name:        r.Name,
			Description: r.Description,
			Operator:    string(r.Operator),
			Conditions:  conds,
			UpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return snaps
}

// DecisionRecord is one compliance evaluation and its verdict. Created
// unsealed, appended, sealed (sequence number + hash assigned atomically),
// then immutable forever. Deletion is never permitted; superseding a decision
// means recording a new one.
type DecisionRecord struct {
	ID                  id.RecordID
	TenantID            id.TenantID
	DecisionType        DecisionType
	AssetID             *id.AssetID
	SubjectID           id.InvestorID
	InputSnapshot       facts.Context
	RuleVersionSnapshot RuleVersionSnapshot
	Result              Result
	ResultDetails       ResultDetails
	DecidedBy           *string // nil = automated
	DecidedAt           time.Time
	CreatedAt           time.Time

	// Chain position; nil until sealed.
	SequenceNumber *int64
	IntegrityHash  *string
	PreviousHash   *string
}

// Sealed reports whether the record has entered the chain.
func (r *DecisionRecord) Sealed() bool {
	return r.SequenceNumber != nil && r.IntegrityHash != nil
}
