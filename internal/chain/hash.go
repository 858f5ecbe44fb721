// Package chain computes and verifies the hash chain over sealed decision
// records. The digest input is the RFC 8785 canonical JSON of the record's
// immutable fields plus the predecessor's hash, so the chain is reproducible
// across implementations regardless of map ordering or encoder quirks.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"fundledger/internal/decision/models"
)

// GenesisHash is the previous_hash of the first record in every tenant chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// hashPayload is the exact field set digested per record. Key order is
// irrelevant (canonicalization sorts), but the set itself is part of the
// contract: adding or removing a field invalidates every existing chain.
type hashPayload struct {
	ID                  string                     `json:"id"`
	DecisionType        string                     `json:"decision_type"`
	SubjectID           string                     `json:"subject_id"`
	AssetID             *string                    `json:"asset_id"`
	InputSnapshot       map[string]json.RawMessage `json:"input_snapshot"`
	RuleVersionSnapshot models.RuleVersionSnapshot `json:"rule_version_snapshot"`
	Result              string                     `json:"result"`
	ResultDetails       models.ResultDetails       `json:"result_details"`
	DecidedAt           string                     `json:"decided_at"`
	DecidedBy           *string                    `json:"decided_by"`
	PreviousHash        string                     `json:"previous_hash"`
}

// ComputeRecordHash returns the hex SHA-256 digest chaining record to
// previousHash. It reads only the record's immutable fields.
func ComputeRecordHash(record *models.DecisionRecord, previousHash string) (string, error) {
	snapshot := make(map[string]json.RawMessage, len(record.InputSnapshot))
	for path, v := range record.InputSnapshot {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal fact %q: %w", path, err)
		}
		snapshot[path] = raw
	}

	var assetID *string
	if record.AssetID != nil {
		s := record.AssetID.String()
		assetID = &s
	}

	payload := hashPayload{
		ID:                  record.ID.String(),
		DecisionType:        string(record.DecisionType),
		SubjectID:           record.SubjectID.String(),
		AssetID:             assetID,
		InputSnapshot:       snapshot,
		RuleVersionSnapshot: record.RuleVersionSnapshot,
		Result:              string(record.Result),
		ResultDetails:       record.ResultDetails,
		DecidedAt:           record.DecidedAt.UTC().Format(time.RFC3339Nano),
		DecidedBy:           record.DecidedBy,
		PreviousHash:        previousHash,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal hash payload: %w", err)
	}
	canonical, err := jcs.Transform(encoded)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash payload: %w", err)
	}

	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}
