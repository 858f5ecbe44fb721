// Package engine evaluates conditions, composite rules, and the built-in
// ruleset checks against a fact context. Everything here is pure: no I/O, no
// clock, no randomness. Re-evaluating the same snapshot always yields the
// same results.
package engine

import (
	"fmt"

	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

func kindName(k facts.Kind) string {
	switch k {
	case facts.KindString:
		return "string"
	case facts.KindNumber:
		return "number"
	case facts.KindBool:
		return "bool"
	case facts.KindList:
		return "list"
	default:
		return "unknown"
	}
}

// EvaluateCondition evaluates one (field, operator, value) condition.
//
// Unevaluable conditions (missing fact path, unknown operator, operand type
// mismatch) fail closed with a diagnostic message. They are configuration
// errors the operator needs to see, never silent passes and never panics.
func EvaluateCondition(cond models.Condition, fc facts.Context) (bool, string) {
	fact, ok := fc.Lookup(cond.Field)
	if !ok {
		return false, fmt.Sprintf("fact %q is not resolvable in this context", cond.Field)
	}

	switch cond.Operator {
	case models.OpEq, models.OpNeq:
		return evalEquality(cond, fact)
	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		return evalOrdering(cond, fact)
	case models.OpIn, models.OpNotIn:
		return evalMembership(cond, fact)
	default:
		return false, fmt.Sprintf("unknown operator %q", cond.Operator)
	}
}

func evalEquality(cond models.Condition, fact facts.Value) (bool, string) {
	if !fact.IsScalar() || !cond.Value.IsScalar() {
		return false, fmt.Sprintf("%s %s: equality needs scalar operands, got %s and %s",
			cond.Field, cond.Operator, kindName(fact.Kind()), kindName(cond.Value.Kind()))
	}
	if fact.Kind() != cond.Value.Kind() {
		return false, fmt.Sprintf("%s %s: type mismatch, fact is %s but condition value is %s",
			cond.Field, cond.Operator, kindName(fact.Kind()), kindName(cond.Value.Kind()))
	}
	equal := fact.Equal(cond.Value)
	passed := equal
	if cond.Operator == models.OpNeq {
		passed = !equal
	}
	if passed {
		return true, fmt.Sprintf("%s is %s (%s %s)", cond.Field, fact.Describe(), cond.Operator, cond.Value.Describe())
	}
	return false, fmt.Sprintf("%s is %s, wanted %s %s", cond.Field, fact.Describe(), cond.Operator, cond.Value.Describe())
}

func evalOrdering(cond models.Condition, fact facts.Value) (bool, string) {
	if fact.Kind() != facts.KindNumber {
		return false, fmt.Sprintf("%s %s: fact is %s, ordering comparisons need a number",
			cond.Field, cond.Operator, kindName(fact.Kind()))
	}
	if cond.Value.Kind() != facts.KindNumber {
		return false, fmt.Sprintf("%s %s: condition value is %s, ordering comparisons need a number",
			cond.Field, cond.Operator, kindName(cond.Value.Kind()))
	}

	a, b := fact.Num(), cond.Value.Num()
	var passed bool
	switch cond.Operator {
	case models.OpGt:
		passed = a > b
	case models.OpGte:
		passed = a >= b
	case models.OpLt:
		passed = a < b
	case models.OpLte:
		passed = a <= b
	}
	if passed {
		return true, fmt.Sprintf("%s is %s (%s %s)", cond.Field, fact.Describe(), cond.Operator, cond.Value.Describe())
	}
	return false, fmt.Sprintf("%s is %s, wanted %s %s", cond.Field, fact.Describe(), cond.Operator, cond.Value.Describe())
}

func evalMembership(cond models.Condition, fact facts.Value) (bool, string) {
	if cond.Value.Kind() != facts.KindList {
		return false, fmt.Sprintf("%s %s: condition value must be a list, got %s",
			cond.Field, cond.Operator, kindName(cond.Value.Kind()))
	}
	if !fact.IsScalar() {
		return false, fmt.Sprintf("%s %s: fact must be a scalar, got %s",
			cond.Field, cond.Operator, kindName(fact.Kind()))
	}

	member := false
	for _, item := range cond.Value.Items() {
		if fact.Equal(item) {
			member = true
			break
		}
	}
	passed := member
	if cond.Operator == models.OpNotIn {
		passed = !member
	}
	if passed {
		return true, fmt.Sprintf("%s is %s (%s %s)", cond.Field, fact.Describe(), cond.Operator, cond.Value.Describe())
	}
	return false, fmt.Sprintf("%s is %s, wanted %s %s", cond.Field, fact.Describe(), cond.Operator, cond.Value.Describe())
}
