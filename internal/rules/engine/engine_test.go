package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundledger/internal/facts"
	"fundledger/internal/rules/models"
)

func TestEvaluate_BuiltinsThenComposites(t *testing.T) {
	rs := models.RuleSet{JurisdictionWhitelist: []string{"DE"}}
	composites := []models.CompositeRule{
		{
			Name:     "large-trades-only",
			Operator: models.CombineAnd,
			Enabled:  true,
			Conditions: []models.Condition{
				cond("transfer.units", models.OpGte, facts.Number(50)),
			},
		},
		{
			Name:     "no-us",
			Operator: models.CombineNot,
			Enabled:  true,
			Conditions: []models.Condition{
				cond("to.jurisdiction", models.OpEq, facts.String("US")),
			},
		},
	}
	fc := transferContext(nil)

	outcome := Evaluate(rs, composites, fc)
	require.Len(t, outcome.Checks, BuiltinCheckCount+2)
	assert.Equal(t, "large-trades-only", outcome.Checks[BuiltinCheckCount].Rule)
	assert.Equal(t, "no-us", outcome.Checks[BuiltinCheckCount+1].Rule)
	assert.True(t, outcome.Passed)
	assert.Zero(t, outcome.ViolationCount)
}

func TestEvaluate_CountsEveryViolation(t *testing.T) {
	rs := models.RuleSet{
		JurisdictionWhitelist: []string{"NL"},
		QualificationRequired: true,
	}
	composites := []models.CompositeRule{
		{
			Name:     "min-size",
			Operator: models.CombineAnd,
			Enabled:  true,
			Conditions: []models.Condition{
				cond("transfer.units", models.OpGte, facts.Number(1000)),
			},
		},
	}
	fc := transferContext(facts.Context{"to.accredited": facts.Bool(false)})

	outcome := Evaluate(rs, composites, fc)
	assert.False(t, outcome.Passed)
	assert.Equal(t, 3, outcome.ViolationCount)
	assert.False(t, checkByName(t, outcome.Checks, CheckJurisdiction).Passed)
	assert.False(t, checkByName(t, outcome.Checks, CheckQualification).Passed)
	assert.False(t, checkByName(t, outcome.Checks, "min-size").Passed)
}

func TestEvaluate_SkipsDisabledComposites(t *testing.T) {
	composites := []models.CompositeRule{
		{
			Name:     "dormant",
			Operator: models.CombineAnd,
			Enabled:  false,
			Conditions: []models.Condition{
				cond("transfer.units", models.OpGt, facts.Number(1e9)),
			},
		},
	}

	outcome := Evaluate(models.RuleSet{}, composites, transferContext(nil))
	assert.Len(t, outcome.Checks, BuiltinCheckCount)
	assert.True(t, outcome.Passed)
}

func TestEvaluate_NoShortCircuit(t *testing.T) {
	// A failing built-in never suppresses composite evaluation.
	rs := models.RuleSet{JurisdictionWhitelist: []string{"NL"}}
	composites := []models.CompositeRule{
		{
			Name:     "still-evaluated",
			Operator: models.CombineAnd,
			Enabled:  true,
			Conditions: []models.Condition{
				cond("transfer.units", models.OpGt, facts.Number(0)),
			},
		},
	}

	outcome := Evaluate(rs, composites, transferContext(nil))
	assert.False(t, outcome.Passed)
	assert.True(t, checkByName(t, outcome.Checks, "still-evaluated").Passed)
}
