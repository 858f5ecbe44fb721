// Package domain holds the typed identifiers shared across features.
//
// IDs are UUID-backed value types. Parsing enforces the invariant that an ID
// is a valid, non-nil UUID at trust boundaries (HTTP, store scans), so code
// past those boundaries never has to re-validate.
package domain

import (
	"github.com/google/uuid"

	dErrors "fundledger/pkg/domain-errors"
)

type (
	// TenantID scopes a provenance chain. Sequence numbers are dense per tenant.
	TenantID uuid.UUID
	// AssetID identifies a fund/asset owning rulesets and composite rules.
	AssetID uuid.UUID
	// InvestorID identifies an investor subject of a decision.
	InvestorID uuid.UUID
	// RecordID identifies a decision record.
	RecordID uuid.UUID
	// RuleID identifies a composite rule.
	RuleID uuid.UUID
	// RuleSetID identifies one version of an asset's built-in ruleset.
	RuleSetID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return u, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant", s)
	return TenantID(u), err
}

func ParseAssetID(s string) (AssetID, error) {
	u, err := parseUUID("asset", s)
	return AssetID(u), err
}

func ParseInvestorID(s string) (InvestorID, error) {
	u, err := parseUUID("investor", s)
	return InvestorID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID("record", s)
	return RecordID(u), err
}

func ParseRuleID(s string) (RuleID, error) {
	u, err := parseUUID("rule", s)
	return RuleID(u), err
}

func NewTenantID() TenantID     { return TenantID(uuid.New()) }
func NewAssetID() AssetID       { return AssetID(uuid.New()) }
func NewInvestorID() InvestorID { return InvestorID(uuid.New()) }
func NewRecordID() RecordID     { return RecordID(uuid.New()) }
func NewRuleID() RuleID         { return RuleID(uuid.New()) }
func NewRuleSetID() RuleSetID   { return RuleSetID(uuid.New()) }

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id AssetID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id InvestorID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RuleSetID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id AssetID) String() string    { return uuid.UUID(id).String() }
func (id InvestorID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string   { return uuid.UUID(id).String() }
func (id RuleID) String() string     { return uuid.UUID(id).String() }
func (id RuleSetID) String() string  { return uuid.UUID(id).String() }
