package engine

import (
	"fmt"
	"strings"
	"time"

	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

// Built-in check names, in evaluation order. The order is part of the
// contract: it is what operators read in the audit trail.
const (
	CheckJurisdiction       = "jurisdiction"
	CheckLockup             = "lockup"
	CheckKYC                = "kyc"
	CheckMinimumInvestment  = "minimum_investment"
	CheckConcentrationLimit = "concentration_limit"
	CheckInvestorType       = "investor_type"
	CheckTransferWhitelist  = "transfer_whitelist"
	CheckQualification      = "qualification"
)

// BuiltinCheckCount is the number of checks every ruleset evaluation emits.
const BuiltinCheckCount = 8

func pass(rule, msg string) models.CheckResult {
	return models.CheckResult{Rule: rule, Passed: true, Message: msg}
}

func fail(rule, msg string) models.CheckResult {
	return models.CheckResult{Rule: rule, Passed: false, Message: msg}
}

func stringFact(fc facts.Context, path string) (string, bool) {
	v, ok := fc.Lookup(path)
	if !ok || v.Kind() != facts.KindString {
		return "", false
	}
	return v.Str(), true
}

func numberFact(fc facts.Context, path string) (float64, bool) {
	v, ok := fc.Lookup(path)
	if !ok || v.Kind() != facts.KindNumber {
		return 0, false
	}
	return v.Num(), true
}

func timeFact(fc facts.Context, path string) (time.Time, bool) {
	s, ok := stringFact(fc, path)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// transferScoped reports whether the context describes a transfer. Lockup,
// concentration and transfer-whitelist checks only bind transfers.
func transferScoped(fc facts.Context) bool {
	_, ok := fc.Lookup("transfer.execution_date")
	return ok
}

// EvaluateBuiltins runs the built-in checks of the active ruleset against the
// fact context, always emitting exactly BuiltinCheckCount results in fixed
// order.
func EvaluateBuiltins(rs models.RuleSet, fc facts.Context) []models.CheckResult {
	checks := make([]models.CheckResult, 0, BuiltinCheckCount)
	checks = append(checks,
		checkJurisdiction(rs, fc),
		checkLockup(rs, fc),
		checkKYC(rs, fc),
		checkMinimumInvestment(rs, fc),
		checkConcentrationLimit(rs, fc),
		checkInvestorType(rs, fc),
		checkTransferWhitelist(rs, fc),
		checkQualification(rs, fc),
	)
	return checks
}

func checkJurisdiction(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if len(rs.JurisdictionWhitelist) == 0 {
		return pass(CheckJurisdiction, "no jurisdiction restrictions")
	}
	jur, ok := stringFact(fc, "to.jurisdiction")
	if !ok {
		return fail(CheckJurisdiction, "fact \"to.jurisdiction\" is not resolvable in this context")
	}
	for _, allowed := range rs.JurisdictionWhitelist {
		if jur == allowed {
			return pass(CheckJurisdiction, fmt.Sprintf("jurisdiction %q is whitelisted", jur))
		}
	}
	return fail(CheckJurisdiction, fmt.Sprintf("jurisdiction %q not in whitelist: [%s]",
		jur, strings.Join(rs.JurisdictionWhitelist, ", ")))
}

func checkLockup(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if rs.LockupDays == 0 {
		return pass(CheckLockup, "no lockup configured")
	}
	if !transferScoped(fc) {
		return pass(CheckLockup, "lockup applies to transfers only")
	}
	execution, ok := timeFact(fc, "transfer.execution_date")
	if !ok {
		return fail(CheckLockup, "fact \"transfer.execution_date\" is not resolvable in this context")
	}
	acquired, ok := timeFact(fc, "holding.acquired_at")
	if !ok {
		return fail(CheckLockup, "no holding found for sender")
	}
	elapsed := int(execution.Sub(acquired).Hours() / 24)
	if elapsed < rs.LockupDays {
		remaining := rs.LockupDays - elapsed
		return fail(CheckLockup, fmt.Sprintf("lockup period violation: %d day(s) remaining (%d day lockup)",
			remaining, rs.LockupDays))
	}
	return pass(CheckLockup, fmt.Sprintf("lockup of %d day(s) elapsed %d day(s) ago",
		rs.LockupDays, elapsed-rs.LockupDays))
}

func checkKYC(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if !rs.KYCRequired {
		return pass(CheckKYC, "KYC not required")
	}
	status, ok := stringFact(fc, "to.kyc_status")
	if !ok {
		return fail(CheckKYC, "fact \"to.kyc_status\" is not resolvable in this context")
	}
	if status != "verified" {
		return fail(CheckKYC, fmt.Sprintf("KYC status is %q, must be \"verified\"", status))
	}
	expiry, hasExpiry := timeFact(fc, "to.kyc_expiry")
	if !hasExpiry {
		return pass(CheckKYC, "KYC verified")
	}
	asOf, ok := timeFact(fc, "transfer.execution_date")
	if !ok {
		asOf, ok = timeFact(fc, "decision.effective_date")
		if !ok {
			return fail(CheckKYC, "fact \"decision.effective_date\" is not resolvable in this context")
		}
	}
	if !expiry.After(asOf) {
		return fail(CheckKYC, fmt.Sprintf("KYC expired on %s", expiry.Format("2006-01-02")))
	}
	return pass(CheckKYC, fmt.Sprintf("KYC verified, expires %s", expiry.Format("2006-01-02")))
}

func checkMinimumInvestment(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if rs.MinimumInvestment <= 0 {
		return pass(CheckMinimumInvestment, "no minimum investment required")
	}
	amount, ok := numberFact(fc, "transfer.amount_cents")
	if !ok {
		return fail(CheckMinimumInvestment, "fact \"transfer.amount_cents\" is not resolvable in this context")
	}
	minEuros := float64(rs.MinimumInvestment) / 100
	amountEuros := amount / 100
	if amount < float64(rs.MinimumInvestment) {
		return fail(CheckMinimumInvestment, fmt.Sprintf("investment €%.2f is below minimum €%.2f", amountEuros, minEuros))
	}
	return pass(CheckMinimumInvestment, fmt.Sprintf("investment €%.2f meets minimum €%.2f", amountEuros, minEuros))
}

func checkConcentrationLimit(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if rs.ConcentrationLimitPct <= 0 {
		return pass(CheckConcentrationLimit, "no concentration limit")
	}
	if !transferScoped(fc) {
		return pass(CheckConcentrationLimit, "concentration limit applies to transfers only")
	}
	units, ok := numberFact(fc, "transfer.units")
	if !ok {
		return fail(CheckConcentrationLimit, "fact \"transfer.units\" is not resolvable in this context")
	}
	total, ok := numberFact(fc, "asset.total_units")
	if !ok || total <= 0 {
		return fail(CheckConcentrationLimit, "fact \"asset.total_units\" is not resolvable in this context")
	}
	existing, _ := numberFact(fc, "to_holding.units")
	sharePct := (existing + units) / total * 100
	if sharePct > rs.ConcentrationLimitPct {
		return fail(CheckConcentrationLimit, fmt.Sprintf("post-transfer position %.2f%% exceeds concentration limit %.2f%%",
			sharePct, rs.ConcentrationLimitPct))
	}
	return pass(CheckConcentrationLimit, fmt.Sprintf("post-transfer position %.2f%% within concentration limit %.2f%%",
		sharePct, rs.ConcentrationLimitPct))
}

func checkInvestorType(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if rs.InvestorTypeWhitelist == nil {
		return pass(CheckInvestorType, "no investor type restrictions")
	}
	typ, ok := stringFact(fc, "to.investor_type")
	if !ok {
		return fail(CheckInvestorType, "fact \"to.investor_type\" is not resolvable in this context")
	}
	for _, allowed := range rs.InvestorTypeWhitelist {
		if typ == allowed {
			return pass(CheckInvestorType, fmt.Sprintf("investor type %q is eligible", typ))
		}
	}
	return fail(CheckInvestorType, fmt.Sprintf("investor type %q not in whitelist: [%s]",
		typ, strings.Join(rs.InvestorTypeWhitelist, ", ")))
}

func checkTransferWhitelist(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if rs.TransferWhitelist == nil {
		return pass(CheckTransferWhitelist, "transfers unrestricted")
	}
	if !transferScoped(fc) {
		return pass(CheckTransferWhitelist, "transfer whitelist applies to transfers only")
	}
	recipient, ok := stringFact(fc, "to.id")
	if !ok {
		return fail(CheckTransferWhitelist, "fact \"to.id\" is not resolvable in this context")
	}
	for _, allowed := range rs.TransferWhitelist {
		if recipient == allowed {
			return pass(CheckTransferWhitelist, "recipient is in transfer whitelist")
		}
	}
	return fail(CheckTransferWhitelist, "recipient not in transfer whitelist")
}

func checkQualification(rs models.RuleSet, fc facts.Context) models.CheckResult {
	if !rs.QualificationRequired {
		return pass(CheckQualification, "qualification not required")
	}
	v, ok := fc.Lookup("to.accredited")
	if !ok || v.Kind() != facts.KindBool {
		return fail(CheckQualification, "fact \"to.accredited\" is not resolvable in this context")
	}
	if !v.Bool() {
		return fail(CheckQualification, "recipient is not accredited; qualified investors only")
	}
	return pass(CheckQualification, "recipient is accredited")
}
