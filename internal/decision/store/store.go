// Package store persists decision records and owns the per-tenant chain tail.
//
// The tail (last sequence number and last integrity hash per tenant) is the
// only contested shared state in the engine. Both implementations serialize
// Append and SealNext on it per tenant; different tenants never block each
// other.
package store

import (
	"context"

	"fundledger/internal/decision/models"
	id "fundledger/pkg/domain"
)

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	AssetID    *id.AssetID
	InvestorID *id.InvestorID
	Limit      int
}

// Store is the provenance log persistence contract.
type Store interface {
	// Append seals the record inline: assigns the tenant's next sequence
	// number, chains the integrity hash to the current tail, persists, and
	// advances the tail, all atomically. Returns sentinel.ErrSealed when the
	// record already carries chain fields, sentinel.ErrConflict when the
	// critical section lost to a concurrent writer and should be retried.
	Append(ctx context.Context, record *models.DecisionRecord) (*models.DecisionRecord, error)

	// Stage persists an unsealed record without assigning chain position.
	// Used by batch imports; the sealing worker picks staged records up in
	// creation order.
	Stage(ctx context.Context, record *models.DecisionRecord) error

	// SealNext seals the oldest unsealed record of the tenant, re-reading the
	// tail so a crashed batch resumes correctly. Returns sentinel.ErrNotFound
	// when nothing is unsealed.
	SealNext(ctx context.Context, tenantID id.TenantID) (*models.DecisionRecord, error)

	// FindByID returns a record, sealed or not. sentinel.ErrNotFound if absent.
	FindByID(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*models.DecisionRecord, error)

	// List returns records newest first.
	List(ctx context.Context, tenantID id.TenantID, filter ListFilter) ([]*models.DecisionRecord, error)

	// ListSealed returns sealed records with sequence >= fromSequence in
	// ascending sequence order, at most limit (0 = no limit). Only fully
	// committed rows are visible: the verifier must never observe a record
	// mid-seal.
	ListSealed(ctx context.Context, tenantID id.TenantID, fromSequence int64, limit int) ([]*models.DecisionRecord, error)

	// TenantsWithUnsealed returns tenants that currently have staged records,
	// so the sealing worker knows where to work.
	TenantsWithUnsealed(ctx context.Context) ([]id.TenantID, error)
}
