// Package verifier walks a tenant's sealed chain and proves it intact: dense
// sequence numbers, unbroken hash linkage, and every stored hash reproducible
// from the record's own content.
package verifier

import (
	"context"
	"fmt"
	"log/slog"

	"fundledger/internal/chain"
	"fundledger/internal/decision/models"
	"fundledger/internal/decision/store"
	id "fundledger/pkg/domain"
)

const defaultBatchSize = 200

// Failure reasons reported to callers.
const (
	ReasonSequenceGap  = "sequence_gap"
	ReasonBrokenLink   = "broken_link"
	ReasonHashMismatch = "hash_mismatch"
)

// Report is the outcome of a chain walk. An empty chain is valid.
type Report struct {
	Valid          bool   `json:"valid"`
	RecordsChecked int64  `json:"records_checked"`
	LastSequence   int64  `json:"last_sequence"`
	LastHash       string `json:"last_hash,omitempty"`

	// Set on the first divergence; the walk stops there. ExpectedHash is the
	// value the chain demands (recomputed, or the predecessor's integrity
	// hash), ActualHash the value the record carries.
	FirstInvalidSequence *int64       `json:"first_invalid_sequence,omitempty"`
	BrokenAtID           *id.RecordID `json:"broken_at_id,omitempty"`
	Reason               string       `json:"reason,omitempty"`
	ExpectedHash         string       `json:"expected_hash,omitempty"`
	ActualHash           string       `json:"actual_hash,omitempty"`
	Message              string       `json:"message,omitempty"`
}

// Checkpoint caches the newest verified chain position so incremental runs
// skip the already-proven prefix. Implementations may lose state at any time;
// the verifier then falls back to a full walk.
type Checkpoint interface {
	Load(ctx context.Context, tenantID id.TenantID) (sequence int64, hash string, ok bool, err error)
	Store(ctx context.Context, tenantID id.TenantID, sequence int64, hash string) error
	Drop(ctx context.Context, tenantID id.TenantID) error
}

type Verifier struct {
	store      store.Store
	checkpoint Checkpoint
	batchSize  int
	logger     *slog.Logger
}

type Option func(*Verifier)

func WithCheckpoint(cp Checkpoint) Option {
	return func(v *Verifier) { v.checkpoint = cp }
}

func WithBatchSize(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.batchSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

func New(s store.Store, opts ...Option) *Verifier {
	v := &Verifier{
		store:     s,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify walks the chain from sequence 1, ignoring any checkpoint. A limit of
// n stops after n records with the prefix proven; 0 walks to the tail.
func (v *Verifier) Verify(ctx context.Context, tenantID id.TenantID, limit int64) (*Report, error) {
	return v.walk(ctx, tenantID, 1, chain.GenesisHash, limit)
}

// VerifyIncremental resumes from the cached checkpoint when one exists. A
// stale or missing checkpoint degrades to a full walk, never to a false pass.
func (v *Verifier) VerifyIncremental(ctx context.Context, tenantID id.TenantID, limit int64) (*Report, error) {
	fromSeq, prevHash := int64(1), chain.GenesisHash
	if v.checkpoint != nil {
		seq, hash, ok, err := v.checkpoint.Load(ctx, tenantID)
		if err != nil {
			v.logger.Warn("chain checkpoint load failed, full walk", "tenant_id", tenantID, "error", err)
		} else if ok {
			fromSeq, prevHash = seq+1, hash
		}
	}

	report, err := v.walk(ctx, tenantID, fromSeq, prevHash, limit)
	if err != nil {
		return nil, err
	}
	if !report.Valid && fromSeq > 1 {
		// The checkpointed prefix itself may be what was tampered with.
		if err := v.dropCheckpoint(ctx, tenantID); err != nil {
			v.logger.Warn("chain checkpoint drop failed", "tenant_id", tenantID, "error", err)
		}
		return v.walk(ctx, tenantID, 1, chain.GenesisHash, limit)
	}
	return report, nil
}

func (v *Verifier) walk(ctx context.Context, tenantID id.TenantID, fromSeq int64, prevHash string, limit int64) (*Report, error) {
	report := &Report{Valid: true, LastSequence: fromSeq - 1, LastHash: prevHash}

	expectedSeq := fromSeq
	for {
		batchSize := v.batchSize
		if limit > 0 {
			remaining := limit - report.RecordsChecked
			if remaining <= 0 {
				break
			}
			if remaining < int64(batchSize) {
				batchSize = int(remaining)
			}
		}
		batch, err := v.store.ListSealed(ctx, tenantID, expectedSeq, batchSize)
		if err != nil {
			return nil, fmt.Errorf("list sealed records: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, record := range batch {
			if fail := checkRecord(record, expectedSeq, prevHash); fail != nil {
				seq := *record.SequenceNumber
				brokenID := record.ID
				report.Valid = false
				report.FirstInvalidSequence = &seq
				report.BrokenAtID = &brokenID
				report.Reason = fail.reason
				report.ExpectedHash = fail.expectedHash
				report.ActualHash = fail.actualHash
				report.Message = fail.message
				return report, nil
			}
			prevHash = *record.IntegrityHash
			report.RecordsChecked++
			report.LastSequence = expectedSeq
			report.LastHash = prevHash
			expectedSeq++
		}
		if len(batch) < batchSize {
			break
		}
	}

	if v.checkpoint != nil && report.RecordsChecked > 0 {
		if err := v.checkpoint.Store(ctx, tenantID, report.LastSequence, report.LastHash); err != nil {
			v.logger.Warn("chain checkpoint store failed", "tenant_id", tenantID, "error", err)
		}
	}
	return report, nil
}

type failure struct {
	reason       string
	expectedHash string
	actualHash   string
	message      string
}

func checkRecord(record *models.DecisionRecord, expectedSeq int64, prevHash string) *failure {
	seq := *record.SequenceNumber
	if seq != expectedSeq {
		return &failure{
			reason:  ReasonSequenceGap,
			message: fmt.Sprintf("expected sequence %d, found %d", expectedSeq, seq),
		}
	}
	if record.PreviousHash == nil || *record.PreviousHash != prevHash {
		var actual string
		if record.PreviousHash != nil {
			actual = *record.PreviousHash
		}
		return &failure{
			reason:       ReasonBrokenLink,
			expectedHash: prevHash,
			actualHash:   actual,
			message:      fmt.Sprintf("record %s does not link to its predecessor", record.ID),
		}
	}
	computed, err := chain.ComputeRecordHash(record, prevHash)
	if err != nil {
		return &failure{
			reason:     ReasonHashMismatch,
			actualHash: *record.IntegrityHash,
			message:    fmt.Sprintf("record %s hash not reproducible: %v", record.ID, err),
		}
	}
	if computed != *record.IntegrityHash {
		return &failure{
			reason:       ReasonHashMismatch,
			expectedHash: computed,
			actualHash:   *record.IntegrityHash,
			message:      fmt.Sprintf("record %s content does not match its integrity hash", record.ID),
		}
	}
	return nil
}

func (v *Verifier) dropCheckpoint(ctx context.Context, tenantID id.TenantID) error {
	if v.checkpoint == nil {
		return nil
	}
	return v.checkpoint.Drop(ctx, tenantID)
}
