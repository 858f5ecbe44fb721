package engine

import (
	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

// Outcome aggregates one full evaluation: every check from both rule
// families, in order, built-ins first and then composite rules in creation
// order.
type Outcome struct {
	Checks         []models.CheckResult
	Passed         bool
	ViolationCount int
}

// Evaluate runs the active ruleset's built-in checks and every enabled
// composite rule against the fact context. Nothing short-circuits: a decision
// reports the complete picture of why it passed or failed. Disabled composite
// rules are skipped entirely.
func Evaluate(rs models.RuleSet, composites []models.CompositeRule, fc facts.Context) Outcome {
	checks := EvaluateBuiltins(rs, fc)
	for _, rule := range composites {
		if !rule.Enabled {
			continue
		}
		checks = append(checks, EvaluateComposite(rule, fc))
	}

	violations := 0
	for _, c := range checks {
		if !c.Passed {
			violations++
		}
	}
	return Outcome{
		Checks:         checks,
		Passed:         violations == 0,
		ViolationCount: violations,
	}
}
