package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fundledger/internal/events/models"
	id "fundledger/pkg/domain"
	txcontext "fundledger/pkg/platform/tx"
)

// PostgresOutbox writes events to the outbox_events table. The relay worker
// publishes them and stamps published_at.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (o *PostgresOutbox) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return o.db
}

func (o *PostgresOutbox) Enqueue(ctx context.Context, event *models.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	err := o.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO outbox_events (tenant_id, event_type, entity_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		uuid.UUID(event.TenantID), string(event.EventType), string(event.EntityType),
		event.EntityID, []byte(event.Payload), event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

func (o *PostgresOutbox) FetchUnpublished(ctx context.Context, limit int) ([]*models.Event, error) {
	query := `
		SELECT id, tenant_id, event_type, entity_type, entity_id, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $1"
	}

	rows, err := o.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var (
			e        models.Event
			tenantID uuid.UUID
			evType   string
			enType   string
		)
		if err := rows.Scan(&e.ID, &tenantID, &evType, &enType, &e.EntityID, (*[]byte)(&e.Payload), &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.TenantID = id.TenantID(tenantID)
		e.EventType = models.EventType(evType)
		e.EntityType = models.EntityType(enType)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return out, nil
}

func (o *PostgresOutbox) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := o.execer(ctx).ExecContext(ctx, `
		UPDATE outbox_events
		SET published_at = NOW()
		WHERE id = ANY($1) AND published_at IS NULL`,
		pq.Array(ids),
	); err != nil {
		return fmt.Errorf("mark outbox events published: %w", err)
	}
	return nil
}
