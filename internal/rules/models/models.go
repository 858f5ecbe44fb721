// Package models defines the rule representation: field conditions,
// user-authored composite rules, and the built-in ruleset versions owned by an
// asset.
package models

import (
	"encoding/json"
	"time"

	"fundledger/internal/facts"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Valid reports whether op is a known operator. Unknown operators are kept in
// stored rules (they fail closed at evaluation) but rejected at create time.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition compares the fact at Field against Value. Immutable once part of
// a stored rule version.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    facts.Value `json:"value"`
}

// CompositeOperator combines a rule's condition results.
type CompositeOperator string

const (
	CombineAnd CompositeOperator = "AND"
	CombineOr  CompositeOperator = "OR"
	CombineNot CompositeOperator = "NOT"
)

// CompositeRule is a user-authored combination of conditions, evaluated as one
// named check. Mutations create a new logical version; decision records keep
// their own frozen copy, so editing a rule never rewrites history.
type CompositeRule struct {
	ID          id.RuleID
	AssetID     id.AssetID
	Name        string
	Description string
	Operator    CompositeOperator
	Conditions  []Condition
	Enabled     bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate enforces structural invariants at create/update time. NOT rules
// must carry exactly one condition: with several, "invert the AND" and
// "invert the OR" diverge and neither reading is obviously right.
func (r *CompositeRule) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "composite rule name is required")
	}
	switch r.Operator {
	case CombineAnd, CombineOr:
	case CombineNot:
		if len(r.Conditions) != 1 {
			return dErrors.New(dErrors.CodeInvalidInput, "NOT rules must have exactly one condition")
		}
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown composite operator %q", r.Operator)
	}
	if len(r.Conditions) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "composite rule needs at least one condition")
	}
	for _, c := range r.Conditions {
		if c.Field == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "condition field is required")
		}
		if !c.Operator.Valid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown condition operator %q", c.Operator)
		}
	}
	return nil
}

// MarshalConditions serializes conditions for storage and snapshots.
func MarshalConditions(conds []Condition) ([]byte, error) {
	return json.Marshal(conds)
}

// UnmarshalConditions restores stored conditions.
func UnmarshalConditions(data []byte) ([]Condition, error) {
	var conds []Condition
	if err := json.Unmarshal(data, &conds); err != nil {
		return nil, err
	}
	return conds, nil
}

// RuleSet is one version of an asset's built-in rules. Exactly one version per
// asset is active; superseding archives the predecessor, it is never deleted,
// so historical decisions can be replayed honestly.
type RuleSet struct {
	ID                    id.RuleSetID
	AssetID               id.AssetID
	Version               int
	QualificationRequired bool
	LockupDays            int
	JurisdictionWhitelist []string
	TransferWhitelist     []string // nil = unrestricted
	InvestorTypeWhitelist []string // nil = unrestricted
	MinimumInvestment     int64    // cents; 0 = none
	MaximumInvestors      int      // 0 = unlimited
	ConcentrationLimitPct float64  // 0 = no limit
	KYCRequired           bool
	Active                bool
	CreatedAt             time.Time
}
