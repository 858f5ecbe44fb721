// Package store persists outbox events. Enqueue joins the caller's
// transaction through context so an event is durable exactly when the state
// change it describes is.
package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Outbox

import (
	"context"

	"fundledger/internal/events/models"
)

// Outbox is the event persistence contract.
type Outbox interface {
	// Enqueue persists the event and assigns its ID. Joins the transaction in
	// ctx when present.
	Enqueue(ctx context.Context, event *models.Event) error

	// FetchUnpublished returns up to limit unpublished events in ID order.
	FetchUnpublished(ctx context.Context, limit int) ([]*models.Event, error)

	// MarkPublished stamps the events as delivered.
	MarkPublished(ctx context.Context, ids []int64) error
}
