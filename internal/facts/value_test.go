package facts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal strings", String("DE"), String("DE"), true},
		{"different strings", String("DE"), String("FR"), false},
		{"equal numbers", Number(42), Number(42), true},
		{"different numbers", Number(42), Number(43), false},
		{"equal bools", Bool(true), Bool(true), true},
		{"string never equals number", String("42"), Number(42), false},
		{"bool never equals string", Bool(true), String("true"), false},
		{"lists are never equal", StringList("a"), StringList("a"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestValue_Describe(t *testing.T) {
	assert.Equal(t, `"DE"`, String("DE").Describe())
	assert.Equal(t, "42", Number(42).Describe())
	assert.Equal(t, "0.5", Number(0.5).Describe())
	assert.Equal(t, "true", Bool(true).Describe())
	assert.Equal(t, `["DE", "FR"]`, StringList("DE", "FR").Describe())
	assert.Equal(t, "[]", List().Describe())
}

func TestValue_JSONRoundTrip(t *testing.T) {
	ctx := Context{
		"to.jurisdiction":       String("DE"),
		"transfer.units":        Number(500),
		"to.accredited":         Bool(true),
		"ruleset.jurisdictions": StringList("DE", "FR"),
	}

	raw, err := json.Marshal(ctx)
	require.NoError(t, err)

	var restored Context
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, ctx, restored)
}

func TestValue_MarshalsAsPlainJSON(t *testing.T) {
	raw, err := json.Marshal(Context{"transfer.units": Number(500)})
	require.NoError(t, err)
	// The typed wrapper must not leak into snapshots.
	assert.JSONEq(t, `{"transfer.units": 500}`, string(raw))
}

func TestFromAny(t *testing.T) {
	t.Run("scalars", func(t *testing.T) {
		v, err := FromAny("DE")
		require.NoError(t, err)
		assert.Equal(t, String("DE"), v)

		v, err = FromAny(42.5)
		require.NoError(t, err)
		assert.Equal(t, Number(42.5), v)

		v, err = FromAny(true)
		require.NoError(t, err)
		assert.Equal(t, Bool(true), v)
	})

	t.Run("list of scalars", func(t *testing.T) {
		v, err := FromAny([]any{"DE", "FR"})
		require.NoError(t, err)
		assert.Equal(t, StringList("DE", "FR"), v)
	})

	t.Run("nested list rejected", func(t *testing.T) {
		_, err := FromAny([]any{[]any{"DE"}})
		require.Error(t, err)
	})

	t.Run("object rejected", func(t *testing.T) {
		_, err := FromAny(map[string]any{"a": 1})
		require.Error(t, err)
	})
}

func TestContext_Clone(t *testing.T) {
	original := Context{
		"to.jurisdiction": String("DE"),
		"whitelist":       StringList("DE", "FR"),
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone["to.jurisdiction"] = String("US")
	clone["whitelist"].Items()[0] = String("US")

	assert.Equal(t, String("DE"), original["to.jurisdiction"])
	assert.Equal(t, String("DE"), original["whitelist"].Items()[0], "list storage is not shared")
}
