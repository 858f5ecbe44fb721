package handler

import (
	"fundledger/internal/rules/models"
	"fundledger/internal/rules/service"
)

type rulesetRequest struct {
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

func (r rulesetRequest) toParams() service.RuleSetParams {
	return service.RuleSetParams{
		QualificationRequired: r.QualificationRequired,
		LockupDays:            r.LockupDays,
		JurisdictionWhitelist: r.JurisdictionWhitelist,
		TransferWhitelist:     r.TransferWhitelist,
		InvestorTypeWhitelist: r.InvestorTypeWhitelist,
		MinimumInvestment:     r.MinimumInvestment,
		MaximumInvestors:      r.MaximumInvestors,
		ConcentrationLimitPct: r.ConcentrationLimitPct,
		KYCRequired:           r.KYCRequired,
	}
}

type ruleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Operator    string             `json:"operator"`
	Conditions  []models.Condition `json:"conditions"`
	Enabled     *bool              `json:"enabled"`
}

func (r ruleRequest) toParams() service.CompositeRuleParams {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return service.CompositeRuleParams{
		Name:        r.Name,
		Description: r.Description,
		Operator:    models.CompositeOperator(r.Operator),
		Conditions:  r.Conditions,
		Enabled:     enabled,
	}
}
