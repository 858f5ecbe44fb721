// Package relay drains the transactional outbox into Kafka. Delivery is
// at-least-once: an event is only stamped published after the broker acks it,
// so a crash between produce and stamp replays the event.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"fundledger/internal/events/store"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Producer is the broker surface the relay needs. *kgo.Client satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	outbox    store.Outbox
	producer  Producer
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

func New(outbox store.Outbox, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Drain publishes one batch of unpublished events. Returns how many were
// delivered and stamped.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	events, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		value, err := e.WireEncode()
		if err != nil {
			return 0, fmt.Errorf("encode event %d: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   e.PartitionKey(),
			Value: value,
		})
	}

	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce events: %w", err)
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		// Events were delivered but not stamped; the next pass re-sends them.
		// Consumers must tolerate duplicates.
		return 0, fmt.Errorf("mark events published: %w", err)
	}
	return len(events), nil
}

// Run drains on a fixed interval until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.Drain(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("outbox drain failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("outbox drained", "published", n)
			}
		}
	}
}
