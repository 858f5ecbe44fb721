package chain

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundledger/internal/decision/models"
	"fundledger/internal/facts"
	rulemodels "fundledger/internal/rules/models"
	id "fundledger/pkg/domain"
)

func sampleRecord() *models.DecisionRecord {
	assetID := id.NewAssetID()
	return &models.DecisionRecord{
		ID:           id.NewRecordID(),
		TenantID:     id.NewTenantID(),
		DecisionType: models.TypeTransferValidation,
		AssetID:      &assetID,
		SubjectID:    id.NewInvestorID(),
		InputSnapshot: facts.Context{
			"to.jurisdiction": facts.String("DE"),
			"transfer.units":  facts.Number(100),
			"to.accredited":   facts.Bool(true),
		},
		RuleVersionSnapshot: models.RuleVersionSnapshot{
			RuleSet: models.RuleSetSnapshot{
				ID:                    id.NewRuleSetID().String(),
				Version:               3,
				JurisdictionWhitelist: []string{"DE", "NL"},
			},
		},
		Result: models.ResultApproved,
		ResultDetails: models.ResultDetails{
			Checks:  []rulemodels.CheckResult{{Rule: "jurisdiction", Passed: true, Message: `jurisdiction "DE" is whitelisted`}},
			Overall: models.ResultApproved,
		},
		DecidedAt: time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC),
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC),
	}
}

func TestComputeRecordHash_Deterministic(t *testing.T) {
	record := sampleRecord()

	first, err := ComputeRecordHash(record, GenesisHash)
	require.NoError(t, err)

	raw, err := hex.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	for range 5 {
		again, err := ComputeRecordHash(record, GenesisHash)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeRecordHash_ChainsToPredecessor(t *testing.T) {
	record := sampleRecord()

	fromGenesis, err := ComputeRecordHash(record, GenesisHash)
	require.NoError(t, err)
	fromOther, err := ComputeRecordHash(record, fromGenesis)
	require.NoError(t, err)

	assert.NotEqual(t, fromGenesis, fromOther)
}

func TestComputeRecordHash_SensitiveToImmutableFields(t *testing.T) {
	base := sampleRecord()
	baseline, err := ComputeRecordHash(base, GenesisHash)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*models.DecisionRecord)
	}{
		{"result", func(r *models.DecisionRecord) { r.Result = models.ResultRejected }},
		{"decision type", func(r *models.DecisionRecord) { r.DecisionType = models.TypeScenarioAnalysis }},
		{"input snapshot", func(r *models.DecisionRecord) {
			r.InputSnapshot = r.InputSnapshot.Clone()
			r.InputSnapshot["transfer.units"] = facts.Number(999)
		}},
		{"decided at", func(r *models.DecisionRecord) { r.DecidedAt = r.DecidedAt.Add(time.Nanosecond) }},
		{"decided by", func(r *models.DecisionRecord) {
			actor := "ops@example.com"
			r.DecidedBy = &actor
		}},
		{"ruleset version", func(r *models.DecisionRecord) { r.RuleVersionSnapshot.RuleSet.Version = 4 }},
		{"check message", func(r *models.DecisionRecord) {
			r.ResultDetails.Checks = append([]rulemodels.CheckResult(nil), r.ResultDetails.Checks...)
			r.ResultDetails.Checks[0].Message = "tampered"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := *base
			tt.mutate(&mutated)
			hash, err := ComputeRecordHash(&mutated, GenesisHash)
			require.NoError(t, err)
			assert.NotEqual(t, baseline, hash)
		})
	}
}

func TestComputeRecordHash_IndifferentToChainFields(t *testing.T) {
	// Sequence number and chain hashes are assigned at seal time and must not
	// feed back into the digest, or sealing would invalidate itself.
	record := sampleRecord()
	baseline, err := ComputeRecordHash(record, GenesisHash)
	require.NoError(t, err)

	seq := int64(42)
	hash := "ab"
	record.SequenceNumber = &seq
	record.IntegrityHash = &hash
	record.PreviousHash = &hash
	record.CreatedAt = record.CreatedAt.Add(time.Hour)

	sealed, err := ComputeRecordHash(record, GenesisHash)
	require.NoError(t, err)
	assert.Equal(t, baseline, sealed)
}

func TestGenesisHash_Shape(t *testing.T) {
	require.Len(t, GenesisHash, 64)
	raw, err := hex.DecodeString(GenesisHash)
	require.NoError(t, err)
	for _, b := range raw {
		assert.Zero(t, b)
	}
}
