package engine

import (
	"fmt"
	"strings"

	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

// EvaluateComposite evaluates one composite rule into a single check named
// after the rule. Every condition is evaluated, without short-circuiting, so
// the message can report the complete picture.
func EvaluateComposite(rule models.CompositeRule, fc facts.Context) models.CheckResult {
	if len(rule.Conditions) == 0 {
		return models.CheckResult{
			Rule:    rule.Name,
			Passed:  false,
			Message: "composite rule has no conditions",
		}
	}

	passes := make([]bool, len(rule.Conditions))
	msgs := make([]string, len(rule.Conditions))
	for i, cond := range rule.Conditions {
		passes[i], msgs[i] = EvaluateCondition(cond, fc)
	}

	var passed bool
	switch rule.Operator {
	case models.CombineAnd:
		passed = true
		for _, p := range passes {
			passed = passed && p
		}
	case models.CombineOr:
		for _, p := range passes {
			passed = passed || p
		}
	case models.CombineNot:
		// Creation-time validation enforces single-condition NOT rules; a
		// stored rule that violates it is unevaluable and fails closed.
		if len(rule.Conditions) != 1 {
			return models.CheckResult{
				Rule:    rule.Name,
				Passed:  false,
				Message: fmt.Sprintf("NOT rule has %d conditions, exactly one is required", len(rule.Conditions)),
			}
		}
		passed = !passes[0]
	default:
		return models.CheckResult{
			Rule:    rule.Name,
			Passed:  false,
			Message: fmt.Sprintf("unknown composite operator %q", rule.Operator),
		}
	}

	if passed {
		msg := rule.Description
		if msg == "" {
			msg = "all conditions satisfied"
		}
		return models.CheckResult{Rule: rule.Name, Passed: true, Message: msg}
	}

	var detail string
	if rule.Operator == models.CombineNot {
		detail = "condition held: " + msgs[0]
	} else {
		failing := make([]string, 0, len(msgs))
		for i, p := range passes {
			if !p {
				failing = append(failing, msgs[i])
			}
		}
		detail = strings.Join(failing, "; ")
	}
	if rule.Description != "" {
		detail = rule.Description + ": " + detail
	}
	return models.CheckResult{Rule: rule.Name, Passed: false, Message: "failed: " + detail}
}
