// Package sealer drains staged decision records into the chain. Most records
// are sealed inline on append; the sealer exists for batch imports and for
// finishing whatever a crashed batch left behind.
package sealer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fundledger/internal/decision/store"
	id "fundledger/pkg/domain"
	"fundledger/pkg/platform/sentinel"
)

const (
	defaultInterval    = 5 * time.Second
	conflictRetryLimit = 5
)

type Sealer struct {
	store    store.Store
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Sealer)

func WithInterval(d time.Duration) Option {
	return func(s *Sealer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sealer) { s.logger = l }
}

func New(st store.Store, opts ...Option) *Sealer {
	s := &Sealer{
		store:    st,
		interval: defaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SealTenant seals the tenant's staged records in creation order until none
// remain. Returns how many records entered the chain.
func (s *Sealer) SealTenant(ctx context.Context, tenantID id.TenantID) (int, error) {
	sealed := 0
	conflicts := 0
	for {
		if err := ctx.Err(); err != nil {
			return sealed, err
		}
		record, err := s.store.SealNext(ctx, tenantID)
		switch {
		case err == nil:
			sealed++
			conflicts = 0
			s.logger.Debug("sealed staged record",
				"tenant_id", tenantID,
				"record_id", record.ID,
				"sequence", *record.SequenceNumber)
		case errors.Is(err, sentinel.ErrNotFound):
			return sealed, nil
		case errors.Is(err, sentinel.ErrConflict):
			// Lost the tail to a concurrent writer; back off and retry.
			conflicts++
			if conflicts > conflictRetryLimit {
				return sealed, err
			}
			time.Sleep(time.Duration(conflicts) * 10 * time.Millisecond)
		default:
			return sealed, err
		}
	}
}

// SealAll drains every tenant that has staged records.
func (s *Sealer) SealAll(ctx context.Context) (int, error) {
	tenants, err := s.store.TenantsWithUnsealed(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, tenantID := range tenants {
		n, err := s.SealTenant(ctx, tenantID)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Run drains on a fixed interval until the context is cancelled. Errors are
// logged, never fatal: staged records stay staged and the next tick retries.
func (s *Sealer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.SealAll(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sealing pass failed", "sealed", n, "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("sealing pass complete", "sealed", n)
			}
		}
	}
}
