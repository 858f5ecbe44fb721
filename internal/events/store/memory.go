package store

import (
	"context"
	"sync"
	"time"

	"fundledger/internal/events/models"
)

// InMemoryOutbox backs unit tests and the dev server.
type InMemoryOutbox struct {
	mu     sync.Mutex
	nextID int64
	events []*models.Event
}

func NewInMemory() *InMemoryOutbox {
	return &InMemoryOutbox{nextID: 1}
}

func (o *InMemoryOutbox) Enqueue(ctx context.Context, event *models.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	stored := *event
	stored.ID = o.nextID
	o.nextID++
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Payload = append([]byte(nil), event.Payload...)
	o.events = append(o.events, &stored)
	event.ID = stored.ID
	return nil
}

func (o *InMemoryOutbox) FetchUnpublished(ctx context.Context, limit int) ([]*models.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*models.Event
	for _, e := range o.events {
		if e.PublishedAt != nil {
			continue
		}
		copied := *e
		copied.Payload = append([]byte(nil), e.Payload...)
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *InMemoryOutbox) MarkPublished(ctx context.Context, ids []int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, e := range o.events {
		if _, ok := set[e.ID]; ok && e.PublishedAt == nil {
			ts := now
			e.PublishedAt = &ts
		}
	}
	return nil
}
