package store

import (
	"context"
	"sort"
	"sync"

	"fundledger/internal/chain"
	"fundledger/internal/decision/models"
	id "fundledger/pkg/domain"
	"fundledger/pkg/platform/sentinel"
)

// tenantChain is one tenant's slice of the log plus its tail. Guarded by its
// own mutex so tenants never contend with each other.
type tenantChain struct {
	mu           sync.Mutex
	lastSequence int64
	lastHash     string
	records      map[id.RecordID]*models.DecisionRecord
	sealed       []*models.DecisionRecord // ascending sequence
	staged       []*models.DecisionRecord // creation order
}

// InMemoryStore keeps chains in process memory. Used by unit tests and the
// dev server; the postgres store is the production implementation.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*tenantChain
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tenants: make(map[id.TenantID]*tenantChain)}
}

func (s *InMemoryStore) chainFor(tenantID id.TenantID) *tenantChain {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.tenants[tenantID]
	if !ok {
		tc = &tenantChain{
			lastHash: chain.GenesisHash,
			records:  make(map[id.RecordID]*models.DecisionRecord),
		}
		s.tenants[tenantID] = tc
	}
	return tc
}

func (s *InMemoryStore) Append(ctx context.Context, record *models.DecisionRecord) (*models.DecisionRecord, error) {
	if record.Sealed() {
		return nil, sentinel.ErrSealed
	}
	tc := s.chainFor(record.TenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()

	stored := copyRecord(record)
	if err := sealLocked(tc, stored); err != nil {
		return nil, err
	}
	tc.records[stored.ID] = stored
	tc.sealed = append(tc.sealed, stored)
	return copyRecord(stored), nil
}

func (s *InMemoryStore) Stage(ctx context.Context, record *models.DecisionRecord) error {
	if record.Sealed() {
		return sentinel.ErrSealed
	}
	tc := s.chainFor(record.TenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()

	stored := copyRecord(record)
	tc.records[stored.ID] = stored
	tc.staged = append(tc.staged, stored)
	return nil
}

func (s *InMemoryStore) SealNext(ctx context.Context, tenantID id.TenantID) (*models.DecisionRecord, error) {
	tc := s.chainFor(tenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()

	// Idempotence: skip anything that gained a hash since staging.
	for len(tc.staged) > 0 && tc.staged[0].Sealed() {
		tc.staged = tc.staged[1:]
	}
	if len(tc.staged) == 0 {
		return nil, sentinel.ErrNotFound
	}

	next := tc.staged[0]
	if err := sealLocked(tc, next); err != nil {
		return nil, err
	}
	tc.staged = tc.staged[1:]
	tc.sealed = append(tc.sealed, next)
	return copyRecord(next), nil
}

// sealLocked assigns the next chain position. Caller holds the tenant mutex;
// this is the in-memory equivalent of the tail-row transaction.
func sealLocked(tc *tenantChain, record *models.DecisionRecord) error {
	hash, err := chain.ComputeRecordHash(record, tc.lastHash)
	if err != nil {
		return err
	}
	seq := tc.lastSequence + 1
	prev := tc.lastHash
	record.SequenceNumber = &seq
	record.PreviousHash = &prev
	record.IntegrityHash = &hash
	tc.lastSequence = seq
	tc.lastHash = hash
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*models.DecisionRecord, error) {
	tc := s.chainFor(tenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	r, ok := tc.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(r), nil
}

func (s *InMemoryStore) List(ctx context.Context, tenantID id.TenantID, filter ListFilter) ([]*models.DecisionRecord, error) {
	tc := s.chainFor(tenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()

	var out []*models.DecisionRecord
	for _, r := range tc.records {
		if filter.AssetID != nil && (r.AssetID == nil || *r.AssetID != *filter.AssetID) {
			continue
		}
		if filter.InvestorID != nil && r.SubjectID != *filter.InvestorID {
			continue
		}
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DecidedAt.Equal(out[j].DecidedAt) {
			return out[i].DecidedAt.After(out[j].DecidedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListSealed(ctx context.Context, tenantID id.TenantID, fromSequence int64, limit int) ([]*models.DecisionRecord, error) {
	tc := s.chainFor(tenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()

	var out []*models.DecisionRecord
	for _, r := range tc.sealed {
		if *r.SequenceNumber < fromSequence {
			continue
		}
		out = append(out, copyRecord(r))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) TenantsWithUnsealed(ctx context.Context) ([]id.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.TenantID
	for tenantID, tc := range s.tenants {
		tc.mu.Lock()
		pending := false
		for _, r := range tc.staged {
			if !r.Sealed() {
				pending = true
				break
			}
		}
		tc.mu.Unlock()
		if pending {
			out = append(out, tenantID)
		}
	}
	return out, nil
}

// Tamper reaches into storage to mutate a sealed record in place, bypassing
// the immutability contract. Test hook for tamper-detection coverage only.
func (s *InMemoryStore) Tamper(tenantID id.TenantID, recordID id.RecordID, mutate func(*models.DecisionRecord)) bool {
	tc := s.chainFor(tenantID)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	r, ok := tc.records[recordID]
	if !ok {
		return false
	}
	mutate(r)
	return true
}

// copyRecord deep-copies a record so stored state and caller state never
// share snapshots or check slices.
func copyRecord(r *models.DecisionRecord) *models.DecisionRecord {
	out := *r
	out.InputSnapshot = r.InputSnapshot.Clone()

	details := r.ResultDetails
	details.Checks = append(details.Checks[:0:0], r.ResultDetails.Checks...)
	out.ResultDetails = details

	snap := r.RuleVersionSnapshot
	snap.RuleSet.JurisdictionWhitelist = append(snap.RuleSet.JurisdictionWhitelist[:0:0], r.RuleVersionSnapshot.RuleSet.JurisdictionWhitelist...)
	snap.RuleSet.TransferWhitelist = append(snap.RuleSet.TransferWhitelist[:0:0], r.RuleVersionSnapshot.RuleSet.TransferWhitelist...)
	snap.RuleSet.InvestorTypeWhitelist = append(snap.RuleSet.InvestorTypeWhitelist[:0:0], r.RuleVersionSnapshot.RuleSet.InvestorTypeWhitelist...)
	snap.CompositeRules = append(snap.CompositeRules[:0:0], r.RuleVersionSnapshot.CompositeRules...)
	out.RuleVersionSnapshot = snap

	if r.AssetID != nil {
		a := *r.AssetID
		out.AssetID = &a
	}
	if r.DecidedBy != nil {
		d := *r.DecidedBy
		out.DecidedBy = &d
	}
	if r.SequenceNumber != nil {
		s := *r.SequenceNumber
		out.SequenceNumber = &s
	}
	if r.IntegrityHash != nil {
		h := *r.IntegrityHash
		out.IntegrityHash = &h
	}
	if r.PreviousHash != nil {
		p := *r.PreviousHash
		out.PreviousHash = &p
	}
	return &out
}
