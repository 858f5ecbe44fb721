package store

import (
	"context"
	"sort"
	"sync"

	"fundledger/internal/rules/models"
	id "fundledger/pkg/domain"
	"fundledger/pkg/platform/sentinel"
)

type tenantKey struct {
	tenant id.TenantID
	asset  id.AssetID
}

// InMemoryRuleSetStore backs unit tests and the dev server.
type InMemoryRuleSetStore struct {
	mu      sync.RWMutex
	byID    map[id.RuleSetID]*storedRuleSet
	byAsset map[tenantKey][]id.RuleSetID
}

type storedRuleSet struct {
	tenantID id.TenantID
	ruleset  models.RuleSet
}

func NewInMemoryRuleSets() *InMemoryRuleSetStore {
	return &InMemoryRuleSetStore{
		byID:    make(map[id.RuleSetID]*storedRuleSet),
		byAsset: make(map[tenantKey][]id.RuleSetID),
	}
}

func (s *InMemoryRuleSetStore) Create(ctx context.Context, tenantID id.TenantID, rs *models.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantKey{tenantID, rs.AssetID}
	for _, existingID := range s.byAsset[key] {
		existing := s.byID[existingID]
		if existing.ruleset.Version == rs.Version {
			return sentinel.ErrConflict
		}
	}
	for _, existingID := range s.byAsset[key] {
		s.byID[existingID].ruleset.Active = false
	}

	stored := &storedRuleSet{tenantID: tenantID, ruleset: copyRuleSet(rs)}
	stored.ruleset.Active = true
	s.byID[rs.ID] = stored
	s.byAsset[key] = append(s.byAsset[key], rs.ID)
	return nil
}

func (s *InMemoryRuleSetStore) FindActive(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) (*models.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rsID := range s.byAsset[tenantKey{tenantID, assetID}] {
		stored := s.byID[rsID]
		if stored.ruleset.Active {
			out := copyRuleSet(&stored.ruleset)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryRuleSetStore) FindByID(ctx context.Context, tenantID id.TenantID, rulesetID id.RuleSetID) (*models.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[rulesetID]
	if !ok || stored.tenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	out := copyRuleSet(&stored.ruleset)
	return &out, nil
}

func (s *InMemoryRuleSetStore) ListVersions(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) ([]*models.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RuleSet
	for _, rsID := range s.byAsset[tenantKey{tenantID, assetID}] {
		rs := copyRuleSet(&s.byID[rsID].ruleset)
		out = append(out, &rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func copyRuleSet(rs *models.RuleSet) models.RuleSet {
	out := *rs
	out.JurisdictionWhitelist = append(rs.JurisdictionWhitelist[:0:0], rs.JurisdictionWhitelist...)
	out.TransferWhitelist = append(rs.TransferWhitelist[:0:0], rs.TransferWhitelist...)
	out.InvestorTypeWhitelist = append(rs.InvestorTypeWhitelist[:0:0], rs.InvestorTypeWhitelist...)
	return out
}

// InMemoryCompositeRuleStore backs unit tests and the dev server.
type InMemoryCompositeRuleStore struct {
	mu    sync.RWMutex
	rules map[id.RuleID]*storedRule
}

type storedRule struct {
	tenantID id.TenantID
	rule     models.CompositeRule
}

func NewInMemoryCompositeRules() *InMemoryCompositeRuleStore {
	return &InMemoryCompositeRuleStore{rules: make(map[id.RuleID]*storedRule)}
}

func (s *InMemoryCompositeRuleStore) Create(ctx context.Context, tenantID id.TenantID, rule *models.CompositeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; ok {
		return sentinel.ErrConflict
	}
	s.rules[rule.ID] = &storedRule{tenantID: tenantID, rule: copyRule(rule)}
	return nil
}

func (s *InMemoryCompositeRuleStore) Update(ctx context.Context, tenantID id.TenantID, rule *models.CompositeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rules[rule.ID]
	if !ok || stored.tenantID != tenantID {
		return sentinel.ErrNotFound
	}
	updated := copyRule(rule)
	updated.CreatedAt = stored.rule.CreatedAt
	updated.CreatedBy = stored.rule.CreatedBy
	stored.rule = updated
	return nil
}

func (s *InMemoryCompositeRuleStore) Delete(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rules[ruleID]
	if !ok || stored.tenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *InMemoryCompositeRuleStore) FindByID(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.CompositeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.rules[ruleID]
	if !ok || stored.tenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	out := copyRule(&stored.rule)
	return &out, nil
}

func (s *InMemoryCompositeRuleStore) ListByAsset(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) ([]*models.CompositeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.CompositeRule
	for _, stored := range s.rules {
		if stored.tenantID != tenantID || stored.rule.AssetID != assetID {
			continue
		}
		rule := copyRule(&stored.rule)
		out = append(out, &rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func copyRule(r *models.CompositeRule) models.CompositeRule {
	out := *r
	out.Conditions = append(r.Conditions[:0:0], r.Conditions...)
	return out
}
