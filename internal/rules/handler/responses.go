package handler

import (
	"time"

	"fundledger/internal/rules/models"
)

type rulesetResponse struct {
	ID                    string   `json:"id"`
	AssetID               string   `json:"asset_id"`
	Version               int      `json:"version"`
	Active                bool     `json:"active"`
	QualificationRequired bool     `json:"qualification_required"`
	LockupDays            int      `json:"lockup_days"`
	JurisdictionWhitelist []string `json:"jurisdiction_whitelist"`
	TransferWhitelist     []string `json:"transfer_whitelist"`
	InvestorTypeWhitelist []string `json:"investor_type_whitelist"`
	MinimumInvestment     int64    `json:"minimum_investment"`
	MaximumInvestors      int      `json:"maximum_investors"`
	ConcentrationLimitPct float64  `json:"concentration_limit_pct"`
	KYCRequired           bool     `json:"kyc_required"`
	CreatedAt             string   `json:"created_at"`
}

func toRuleSetResponse(rs *models.RuleSet) rulesetResponse {
	return rulesetResponse{
		ID:                    rs.ID.String(),
		AssetID:               rs.AssetID.String(),
		Version:               rs.Version,
		Active:                rs.Active,
		QualificationRequired: rs.QualificationRequired,
		LockupDays:            rs.LockupDays,
		JurisdictionWhitelist: rs.JurisdictionWhitelist,
		TransferWhitelist:     rs.TransferWhitelist,
		InvestorTypeWhitelist: rs.InvestorTypeWhitelist,
		MinimumInvestment:     rs.MinimumInvestment,
		MaximumInvestors:      rs.MaximumInvestors,
		ConcentrationLimitPct: rs.ConcentrationLimitPct,
		KYCRequired:           rs.KYCRequired,
		CreatedAt:             rs.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type ruleResponse struct {
	ID          string             `json:"id"`
	AssetID     string             `json:"asset_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Operator    string             `json:"operator"`
	Conditions  []models.Condition `json:"conditions"`
	Enabled     bool               `json:"enabled"`
	CreatedBy   string             `json:"created_by,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
}

func toRuleResponse(rule *models.CompositeRule) ruleResponse {
	return ruleResponse{
		ID:          rule.ID.String(),
		AssetID:     rule.AssetID.String(),
		Name:        rule.Name,
		Description: rule.Description,
		Operator:    string(rule.Operator),
		Conditions:  rule.Conditions,
		Enabled:     rule.Enabled,
		CreatedBy:   rule.CreatedBy,
		CreatedAt:   rule.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   rule.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
