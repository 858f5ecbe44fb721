package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fundledger/internal/chain"
	"fundledger/internal/decision/models"
	"fundledger/internal/facts"
	id "fundledger/pkg/domain"
	"fundledger/pkg/platform/sentinel"
	txcontext "fundledger/pkg/platform/tx"
)

// PostgresStore is the production provenance log. The per-tenant critical
// section is a row lock on chain_tails: read the tail, compute next values,
// write the record, and advance the tail in one transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, tenant_id, decision_type, asset_id, subject_id,
	input_snapshot, rule_version_snapshot, result, result_details,
	decided_by, decided_at, created_at,
	sequence_number, integrity_hash, previous_hash`

func (s *PostgresStore) Append(ctx context.Context, record *models.DecisionRecord) (*models.DecisionRecord, error) {
	if record.Sealed() {
		return nil, sentinel.ErrSealed
	}

	sealed := copyRecord(record)
	err := s.inTx(ctx, func(ctx context.Context) error {
		tail, err := lockTail(ctx, record.TenantID)
		if err != nil {
			return err
		}
		if err := assignChainPosition(sealed, tail); err != nil {
			return err
		}
		if err := insertRecord(ctx, sealed); err != nil {
			return err
		}
		return advanceTail(ctx, record.TenantID, *sealed.SequenceNumber, *sealed.IntegrityHash)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return sealed, nil
}

func (s *PostgresStore) Stage(ctx context.Context, record *models.DecisionRecord) error {
	if record.Sealed() {
		return sentinel.ErrSealed
	}
	if err := s.inTx(ctx, func(ctx context.Context) error {
		return insertRecord(ctx, record)
	}); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *PostgresStore) SealNext(ctx context.Context, tenantID id.TenantID) (*models.DecisionRecord, error) {
	var sealed *models.DecisionRecord
	err := s.inTx(ctx, func(ctx context.Context) error {
		tail, err := lockTail(ctx, tenantID)
		if err != nil {
			return err
		}

		// Oldest unsealed in creation order. The tail lock serializes this
		// with Append; the row lock guards against a concurrent worker.
		row := queryerFrom(ctx).QueryRowContext(ctx, `
			SELECT `+recordColumns+`
			FROM decision_records
			WHERE tenant_id = $1 AND integrity_hash IS NULL
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE`, uuid.UUID(tenantID))

		record, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := assignChainPosition(record, tail); err != nil {
			return err
		}
		if _, err := queryerFrom(ctx).ExecContext(ctx, `
			UPDATE decision_records
			SET sequence_number = $1, integrity_hash = $2, previous_hash = $3
			WHERE id = $4`,
			*record.SequenceNumber, *record.IntegrityHash, *record.PreviousHash, uuid.UUID(record.ID),
		); err != nil {
			return fmt.Errorf("seal decision record: %w", err)
		}
		if err := advanceTail(ctx, tenantID, *record.SequenceNumber, *record.IntegrityHash); err != nil {
			return err
		}
		sealed = record
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return sealed, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*models.DecisionRecord, error) {
	row := s.queryer(ctx).QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM decision_records
		WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(recordID))

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID, filter ListFilter) ([]*models.DecisionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM decision_records
		WHERE tenant_id = $1`
	args := []any{uuid.UUID(tenantID)}

	if filter.AssetID != nil {
		args = append(args, uuid.UUID(*filter.AssetID))
		query += fmt.Sprintf(" AND asset_id = $%d", len(args))
	}
	if filter.InvestorID != nil {
		args = append(args, uuid.UUID(*filter.InvestorID))
		query += fmt.Sprintf(" AND subject_id = $%d", len(args))
	}
	query += " ORDER BY decided_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.queryer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decision records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) ListSealed(ctx context.Context, tenantID id.TenantID, fromSequence int64, limit int) ([]*models.DecisionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM decision_records
		WHERE tenant_id = $1 AND integrity_hash IS NOT NULL AND sequence_number >= $2
		ORDER BY sequence_number ASC`
	args := []any{uuid.UUID(tenantID), fromSequence}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.queryer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sealed records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) TenantsWithUnsealed(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.queryer(ctx).QueryContext(ctx, `
		SELECT DISTINCT tenant_id
		FROM decision_records
		WHERE integrity_hash IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query unsealed tenants: %w", err)
	}
	defer rows.Close()

	var out []id.TenantID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, id.TenantID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsealed tenants: %w", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// critical-section helpers
// -----------------------------------------------------------------------------

type tail struct {
	lastSequence int64
	lastHash     string
}

// lockTail takes the per-tenant row lock that serializes every chain write.
// The tail row is created lazily on a tenant's first append.
func lockTail(ctx context.Context, tenantID id.TenantID) (tail, error) {
	q := queryerFrom(ctx)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO chain_tails (tenant_id, last_sequence, last_hash)
		VALUES ($1, 0, $2)
		ON CONFLICT (tenant_id) DO NOTHING`,
		uuid.UUID(tenantID), chain.GenesisHash,
	); err != nil {
		return tail{}, fmt.Errorf("ensure chain tail: %w", err)
	}

	var t tail
	err := q.QueryRowContext(ctx, `
		SELECT last_sequence, last_hash
		FROM chain_tails
		WHERE tenant_id = $1
		FOR UPDATE`, uuid.UUID(tenantID),
	).Scan(&t.lastSequence, &t.lastHash)
	if err != nil {
		return tail{}, fmt.Errorf("lock chain tail: %w", err)
	}
	return t, nil
}

func assignChainPosition(record *models.DecisionRecord, t tail) error {
	hash, err := chain.ComputeRecordHash(record, t.lastHash)
	if err != nil {
		return err
	}
	seq := t.lastSequence + 1
	prev := t.lastHash
	record.SequenceNumber = &seq
	record.PreviousHash = &prev
	record.IntegrityHash = &hash
	return nil
}

func advanceTail(ctx context.Context, tenantID id.TenantID, sequence int64, hash string) error {
	if _, err := queryerFrom(ctx).ExecContext(ctx, `
		UPDATE chain_tails
		SET last_sequence = $2, last_hash = $3
		WHERE tenant_id = $1`,
		uuid.UUID(tenantID), sequence, hash,
	); err != nil {
		return fmt.Errorf("advance chain tail: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, r *models.DecisionRecord) error {
	inputJSON, err := json.Marshal(r.InputSnapshot)
	if err != nil {
		return fmt.Errorf("marshal input snapshot: %w", err)
	}
	rulesJSON, err := json.Marshal(r.RuleVersionSnapshot)
	if err != nil {
		return fmt.Errorf("marshal rule version snapshot: %w", err)
	}
	detailsJSON, err := json.Marshal(r.ResultDetails)
	if err != nil {
		return fmt.Errorf("marshal result details: %w", err)
	}

	var assetID any
	if r.AssetID != nil {
		assetID = uuid.UUID(*r.AssetID)
	}
	var decidedBy any
	if r.DecidedBy != nil {
		decidedBy = *r.DecidedBy
	}
	var seq, hash, prev any
	if r.SequenceNumber != nil {
		seq = *r.SequenceNumber
	}
	if r.IntegrityHash != nil {
		hash = *r.IntegrityHash
	}
	if r.PreviousHash != nil {
		prev = *r.PreviousHash
	}

	if _, err := queryerFrom(ctx).ExecContext(ctx, `
		INSERT INTO decision_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(r.ID), uuid.UUID(r.TenantID), string(r.DecisionType), assetID, uuid.UUID(r.SubjectID),
		inputJSON, rulesJSON, string(r.Result), detailsJSON,
		decidedBy, r.DecidedAt, r.CreatedAt,
		seq, hash, prev,
	); err != nil {
		return fmt.Errorf("insert decision record: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// scanning
// -----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DecisionRecord, error) {
	var (
		r           models.DecisionRecord
		recID       uuid.UUID
		tenantID    uuid.UUID
		subjectID   uuid.UUID
		assetID     *uuid.UUID
		inputJSON   []byte
		rulesJSON   []byte
		detailsJSON []byte
		decidedBy   sql.NullString
		seq         sql.NullInt64
		hash        sql.NullString
		prev        sql.NullString
		decType     string
		result      string
	)

	if err := row.Scan(
		&recID, &tenantID, &decType, &assetID, &subjectID,
		&inputJSON, &rulesJSON, &result, &detailsJSON,
		&decidedBy, &r.DecidedAt, &r.CreatedAt,
		&seq, &hash, &prev,
	); err != nil {
		return nil, err
	}

	r.ID = id.RecordID(recID)
	r.TenantID = id.TenantID(tenantID)
	r.DecisionType = models.DecisionType(decType)
	r.SubjectID = id.InvestorID(subjectID)
	r.Result = models.Result(result)
	if assetID != nil {
		a := id.AssetID(*assetID)
		r.AssetID = &a
	}
	if decidedBy.Valid {
		r.DecidedBy = &decidedBy.String
	}
	if seq.Valid {
		r.SequenceNumber = &seq.Int64
	}
	if hash.Valid {
		r.IntegrityHash = &hash.String
	}
	if prev.Valid {
		r.PreviousHash = &prev.String
	}

	r.InputSnapshot = make(facts.Context)
	if err := json.Unmarshal(inputJSON, &r.InputSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal input snapshot: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &r.RuleVersionSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal rule version snapshot: %w", err)
	}
	if err := json.Unmarshal(detailsJSON, &r.ResultDetails); err != nil {
		return nil, fmt.Errorf("unmarshal result details: %w", err)
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*models.DecisionRecord, error) {
	var out []*models.DecisionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision records: %w", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// transaction plumbing
// -----------------------------------------------------------------------------

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queryerKey struct{}

// inTx runs fn inside the context transaction if one exists, otherwise opens
// its own. fn's context always carries the transaction.
func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	return txcontext.Run(ctx, s.db, fn)
}

func (s *PostgresStore) queryer(ctx context.Context) queryer {
	return queryerFromDB(ctx, s.db)
}

func queryerFrom(ctx context.Context) queryer {
	if dbtx, ok := txcontext.From(ctx); ok {
		return dbtx
	}
	// Chain writes always run inside inTx, so this branch is unreachable for
	// them; reads tolerate running without a transaction.
	panic("decision store: chain write outside transaction")
}

func queryerFromDB(ctx context.Context, db *sql.DB) queryer {
	if dbtx, ok := txcontext.From(ctx); ok {
		return dbtx
	}
	return db
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if txcontext.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
	}
	return err
}
