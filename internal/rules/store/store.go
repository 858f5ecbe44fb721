// Package store persists ruleset versions and composite rules, scoped by
// tenant on every operation.
package store

import (
	"context"

	"fundledger/internal/rules/models"
	id "fundledger/pkg/domain"
)

// RuleSetStore holds built-in ruleset versions. Versions are append-only:
// superseding deactivates the predecessor but keeps the row so old decisions
// stay explainable.
type RuleSetStore interface {
	// Create persists a new version and deactivates the previous active one
	// atomically. Returns sentinel.ErrConflict when the version collides.
	Create(ctx context.Context, tenantID id.TenantID, rs *models.RuleSet) error

	// FindActive returns the asset's active ruleset. sentinel.ErrNotFound when
	// the asset has none.
	FindActive(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) (*models.RuleSet, error)

	// FindByID returns a specific version, active or archived.
	FindByID(ctx context.Context, tenantID id.TenantID, rulesetID id.RuleSetID) (*models.RuleSet, error)

	// ListVersions returns all versions of an asset's ruleset, newest first.
	ListVersions(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) ([]*models.RuleSet, error)
}

// CompositeRuleStore holds user-authored rules.
type CompositeRuleStore interface {
	Create(ctx context.Context, tenantID id.TenantID, rule *models.CompositeRule) error

	// Update replaces the rule's mutable fields. sentinel.ErrNotFound if absent.
	Update(ctx context.Context, tenantID id.TenantID, rule *models.CompositeRule) error

	// Delete removes the rule. Decision records keep their frozen copies, so
	// deletion never loses provenance.
	Delete(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) error

	FindByID(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.CompositeRule, error)

	// ListByAsset returns the asset's rules in creation order, which is also
	// their evaluation order.
	ListByAsset(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) ([]*models.CompositeRule, error)
}
