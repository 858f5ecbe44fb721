package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

func TestEvaluateCondition_Equality(t *testing.T) {
	fc := facts.Context{
		"to.jurisdiction": facts.String("DE"),
		"transfer.units":  facts.Number(100),
		"to.accredited":   facts.Bool(true),
	}

	tests := []struct {
		name     string
		cond     models.Condition
		passed   bool
		contains string
	}{
		{
			name:     "eq string match",
			cond:     models.Condition{Field: "to.jurisdiction", Operator: models.OpEq, Value: facts.String("DE")},
			passed:   true,
			contains: `to.jurisdiction is "DE"`,
		},
		{
			name:     "eq string mismatch",
			cond:     models.Condition{Field: "to.jurisdiction", Operator: models.OpEq, Value: facts.String("FR")},
			passed:   false,
			contains: `wanted eq "FR"`,
		},
		{
			name:   "neq inverts",
			cond:   models.Condition{Field: "to.jurisdiction", Operator: models.OpNeq, Value: facts.String("FR")},
			passed: true,
		},
		{
			name:   "eq number",
			cond:   models.Condition{Field: "transfer.units", Operator: models.OpEq, Value: facts.Number(100)},
			passed: true,
		},
		{
			name:   "eq bool",
			cond:   models.Condition{Field: "to.accredited", Operator: models.OpEq, Value: facts.Bool(true)},
			passed: true,
		},
		{
			name:     "cross-type equality fails closed",
			cond:     models.Condition{Field: "transfer.units", Operator: models.OpEq, Value: facts.String("100")},
			passed:   false,
			contains: "type mismatch",
		},
		{
			name:     "cross-type neq fails closed, not inverted",
			cond:     models.Condition{Field: "transfer.units", Operator: models.OpNeq, Value: facts.String("100")},
			passed:   false,
			contains: "type mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, msg := EvaluateCondition(tt.cond, fc)
			assert.Equal(t, tt.passed, passed)
			if tt.contains != "" {
				assert.Contains(t, msg, tt.contains)
			}
		})
	}
}

func TestEvaluateCondition_Ordering(t *testing.T) {
	fc := facts.Context{
		"transfer.units": facts.Number(500),
		"asset.name":     facts.String("Fund I"),
	}

	tests := []struct {
		name   string
		op     models.Operator
		value  facts.Value
		passed bool
	}{
		{"gt pass", models.OpGt, facts.Number(499), true},
		{"gt fail on equal", models.OpGt, facts.Number(500), false},
		{"gte pass on equal", models.OpGte, facts.Number(500), true},
		{"lt pass", models.OpLt, facts.Number(501), true},
		{"lt fail", models.OpLt, facts.Number(500), false},
		{"lte pass on equal", models.OpLte, facts.Number(500), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, _ := EvaluateCondition(models.Condition{
				Field: "transfer.units", Operator: tt.op, Value: tt.value,
			}, fc)
			assert.Equal(t, tt.passed, passed)
		})
	}

	t.Run("non-numeric fact fails closed", func(t *testing.T) {
		passed, msg := EvaluateCondition(models.Condition{
			Field: "asset.name", Operator: models.OpGt, Value: facts.Number(1),
		}, fc)
		assert.False(t, passed)
		assert.Contains(t, msg, "ordering comparisons need a number")
	})

	t.Run("non-numeric condition value fails closed", func(t *testing.T) {
		passed, msg := EvaluateCondition(models.Condition{
			Field: "transfer.units", Operator: models.OpLt, Value: facts.String("10"),
		}, fc)
		assert.False(t, passed)
		assert.Contains(t, msg, "ordering comparisons need a number")
	})
}

func TestEvaluateCondition_Membership(t *testing.T) {
	fc := facts.Context{
		"to.jurisdiction": facts.String("NL"),
		"transfer.units":  facts.Number(10),
	}

	t.Run("in with member", func(t *testing.T) {
		passed, _ := EvaluateCondition(models.Condition{
			Field: "to.jurisdiction", Operator: models.OpIn, Value: facts.StringList("DE", "NL"),
		}, fc)
		assert.True(t, passed)
	})

	t.Run("in without member", func(t *testing.T) {
		passed, msg := EvaluateCondition(models.Condition{
			Field: "to.jurisdiction", Operator: models.OpIn, Value: facts.StringList("DE", "FR"),
		}, fc)
		assert.False(t, passed)
		assert.Contains(t, msg, `wanted in ["DE", "FR"]`)
	})

	t.Run("not_in inverts", func(t *testing.T) {
		passed, _ := EvaluateCondition(models.Condition{
			Field: "to.jurisdiction", Operator: models.OpNotIn, Value: facts.StringList("DE", "FR"),
		}, fc)
		assert.True(t, passed)
	})

	t.Run("membership respects types", func(t *testing.T) {
		// "10" as a string is not a member of a numeric list.
		passed, _ := EvaluateCondition(models.Condition{
			Field: "transfer.units", Operator: models.OpIn, Value: facts.StringList("10"),
		}, fc)
		assert.False(t, passed)
	})

	t.Run("scalar condition value fails closed", func(t *testing.T) {
		passed, msg := EvaluateCondition(models.Condition{
			Field: "to.jurisdiction", Operator: models.OpIn, Value: facts.String("NL"),
		}, fc)
		assert.False(t, passed)
		assert.Contains(t, msg, "condition value must be a list")
	})
}

func TestEvaluateCondition_FailsClosed(t *testing.T) {
	fc := facts.Context{"transfer.units": facts.Number(10)}

	t.Run("missing fact", func(t *testing.T) {
		passed, msg := EvaluateCondition(models.Condition{
			Field: "to.nonexistent", Operator: models.OpEq, Value: facts.String("x"),
		}, fc)
		assert.False(t, passed)
		assert.Equal(t, `fact "to.nonexistent" is not resolvable in this context`, msg)
	})

	t.Run("unknown operator", func(t *testing.T) {
		passed, msg := EvaluateCondition(models.Condition{
			Field: "transfer.units", Operator: "between", Value: facts.Number(1),
		}, fc)
		assert.False(t, passed)
		assert.Equal(t, `unknown operator "between"`, msg)
	})
}
