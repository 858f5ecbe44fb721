package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

func cond(field string, op models.Operator, value facts.Value) models.Condition {
	return models.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluateComposite_And(t *testing.T) {
	fc := facts.Context{
		"to.jurisdiction": facts.String("DE"),
		"transfer.units":  facts.Number(100),
	}

	rule := models.CompositeRule{
		Name:     "german-large-trades",
		Operator: models.CombineAnd,
		Conditions: []models.Condition{
			cond("to.jurisdiction", models.OpEq, facts.String("DE")),
			cond("transfer.units", models.OpGte, facts.Number(50)),
		},
	}

	t.Run("all conditions hold", func(t *testing.T) {
		result := EvaluateComposite(rule, fc)
		assert.Equal(t, "german-large-trades", result.Rule)
		assert.True(t, result.Passed)
		assert.Equal(t, "all conditions satisfied", result.Message)
	})

	t.Run("pass message prefers description", func(t *testing.T) {
		described := rule
		described.Description = "German investors above 50 units"
		result := EvaluateComposite(described, fc)
		assert.True(t, result.Passed)
		assert.Equal(t, "German investors above 50 units", result.Message)
	})

	t.Run("one failing condition fails the rule", func(t *testing.T) {
		small := facts.Context{
			"to.jurisdiction": facts.String("DE"),
			"transfer.units":  facts.Number(10),
		}
		result := EvaluateComposite(rule, small)
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "failed: ")
		assert.Contains(t, result.Message, "transfer.units is 10")
		assert.NotContains(t, result.Message, "to.jurisdiction")
	})

	t.Run("all failures are reported", func(t *testing.T) {
		wrong := facts.Context{
			"to.jurisdiction": facts.String("FR"),
			"transfer.units":  facts.Number(10),
		}
		result := EvaluateComposite(rule, wrong)
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "to.jurisdiction")
		assert.Contains(t, result.Message, "transfer.units")
	})
}

func TestEvaluateComposite_Or(t *testing.T) {
	rule := models.CompositeRule{
		Name:     "eu-or-accredited",
		Operator: models.CombineOr,
		Conditions: []models.Condition{
			cond("to.jurisdiction", models.OpIn, facts.StringList("DE", "FR")),
			cond("to.accredited", models.OpEq, facts.Bool(true)),
		},
	}

	t.Run("one holding condition suffices", func(t *testing.T) {
		fc := facts.Context{
			"to.jurisdiction": facts.String("US"),
			"to.accredited":   facts.Bool(true),
		}
		result := EvaluateComposite(rule, fc)
		assert.True(t, result.Passed)
	})

	t.Run("all failing conditions fail", func(t *testing.T) {
		fc := facts.Context{
			"to.jurisdiction": facts.String("US"),
			"to.accredited":   facts.Bool(false),
		}
		result := EvaluateComposite(rule, fc)
		assert.False(t, result.Passed)
	})

	t.Run("unresolvable condition does not satisfy OR", func(t *testing.T) {
		fc := facts.Context{"to.jurisdiction": facts.String("US")}
		result := EvaluateComposite(rule, fc)
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, `fact "to.accredited" is not resolvable`)
	})
}

func TestEvaluateComposite_Not(t *testing.T) {
	rule := models.CompositeRule{
		Name:     "no-us-investors",
		Operator: models.CombineNot,
		Conditions: []models.Condition{
			cond("to.jurisdiction", models.OpEq, facts.String("US")),
		},
	}

	t.Run("inverts a failing condition", func(t *testing.T) {
		fc := facts.Context{"to.jurisdiction": facts.String("DE")}
		result := EvaluateComposite(rule, fc)
		assert.True(t, result.Passed)
	})

	t.Run("inverts a holding condition", func(t *testing.T) {
		fc := facts.Context{"to.jurisdiction": facts.String("US")}
		result := EvaluateComposite(rule, fc)
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "condition held: ")
	})

	t.Run("missing fact passes under NOT", func(t *testing.T) {
		// The inner condition fails closed, and NOT inverts that. The rule
		// author asked for "not US", and an unknown jurisdiction is not US.
		result := EvaluateComposite(rule, facts.Context{})
		assert.True(t, result.Passed)
	})

	t.Run("multiple conditions fail closed", func(t *testing.T) {
		bad := rule
		bad.Conditions = []models.Condition{
			cond("to.jurisdiction", models.OpEq, facts.String("US")),
			cond("to.jurisdiction", models.OpEq, facts.String("IR")),
		}
		result := EvaluateComposite(bad, facts.Context{"to.jurisdiction": facts.String("DE")})
		assert.False(t, result.Passed)
		assert.Equal(t, "NOT rule has 2 conditions, exactly one is required", result.Message)
	})
}

func TestEvaluateComposite_Degenerate(t *testing.T) {
	t.Run("no conditions", func(t *testing.T) {
		result := EvaluateComposite(models.CompositeRule{Name: "empty", Operator: models.CombineAnd}, facts.Context{})
		assert.False(t, result.Passed)
		assert.Equal(t, "composite rule has no conditions", result.Message)
	})

	t.Run("unknown operator", func(t *testing.T) {
		rule := models.CompositeRule{
			Name:       "xor-rule",
			Operator:   "XOR",
			Conditions: []models.Condition{cond("transfer.units", models.OpGt, facts.Number(0))},
		}
		result := EvaluateComposite(rule, facts.Context{"transfer.units": facts.Number(1)})
		assert.False(t, result.Passed)
		assert.Equal(t, `unknown composite operator "XOR"`, result.Message)
	})

	t.Run("description prefixes failure detail", func(t *testing.T) {
		rule := models.CompositeRule{
			Name:        "min-size",
			Description: "minimum trade size",
			Operator:    models.CombineAnd,
			Conditions:  []models.Condition{cond("transfer.units", models.OpGte, facts.Number(100))},
		}
		result := EvaluateComposite(rule, facts.Context{"transfer.units": facts.Number(1)})
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "failed: minimum trade size: ")
	})
}
