package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fundledger/pkg/domain-errors"
)

func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTenantID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAssetID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.NewString()
		recordID, err := ParseRecordID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, recordID.String())
	})

	t.Run("accepts uppercase UUID", func(t *testing.T) {
		raw := uuid.NewString()
		investorID, err := ParseInvestorID(strings.ToUpper(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, investorID.String())
	})
}

func TestNewIDs_NotNil(t *testing.T) {
	assert.False(t, NewTenantID().IsNil())
	assert.False(t, NewAssetID().IsNil())
	assert.False(t, NewInvestorID().IsNil())
	assert.False(t, NewRecordID().IsNil())
	assert.False(t, NewRuleID().IsNil())
	assert.False(t, NewRuleSetID().IsNil())
}

func TestIsNil_ZeroValue(t *testing.T) {
	var tenantID TenantID
	assert.True(t, tenantID.IsNil())
}
