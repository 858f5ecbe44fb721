package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fundledger/internal/rules/models"
	id "fundledger/pkg/domain"
	"fundledger/pkg/platform/sentinel"
	txcontext "fundledger/pkg/platform/tx"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// PostgresRuleSetStore persists ruleset versions. The partial unique index
// rulesets_one_active is the authority on "one active version per asset".
type PostgresRuleSetStore struct {
	db *sql.DB
}

func NewPostgresRuleSets(db *sql.DB) *PostgresRuleSetStore {
	return &PostgresRuleSetStore{db: db}
}

const rulesetColumns = `
	id, asset_id, version, active,
	qualification_required, lockup_days,
	jurisdiction_whitelist, transfer_whitelist, investor_type_whitelist,
	minimum_investment, maximum_investors, concentration_limit_pct,
	kyc_required, created_at`

func (s *PostgresRuleSetStore) Create(ctx context.Context, tenantID id.TenantID, rs *models.RuleSet) error {
	run := func(ctx context.Context) error {
		q := execer(ctx, s.db)
		if _, err := q.ExecContext(ctx, `
			UPDATE rulesets SET active = FALSE
			WHERE tenant_id = $1 AND asset_id = $2 AND active`,
			uuid.UUID(tenantID), uuid.UUID(rs.AssetID),
		); err != nil {
			return fmt.Errorf("archive previous ruleset: %w", err)
		}

		jurisdictions, err := json.Marshal(rs.JurisdictionWhitelist)
		if err != nil {
			return fmt.Errorf("marshal jurisdiction whitelist: %w", err)
		}
		transfers, err := marshalNullableList(rs.TransferWhitelist)
		if err != nil {
			return fmt.Errorf("marshal transfer whitelist: %w", err)
		}
		investorTypes, err := marshalNullableList(rs.InvestorTypeWhitelist)
		if err != nil {
			return fmt.Errorf("marshal investor type whitelist: %w", err)
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO rulesets (
				tenant_id, id, asset_id, version, active,
				qualification_required, lockup_days,
				jurisdiction_whitelist, transfer_whitelist, investor_type_whitelist,
				minimum_investment, maximum_investors, concentration_limit_pct,
				kyc_required, created_at
			) VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			uuid.UUID(tenantID), uuid.UUID(rs.ID), uuid.UUID(rs.AssetID), rs.Version,
			rs.QualificationRequired, rs.LockupDays,
			jurisdictions, transfers, investorTypes,
			rs.MinimumInvestment, rs.MaximumInvestors, rs.ConcentrationLimitPct,
			rs.KYCRequired, rs.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert ruleset: %w", err)
		}
		return nil
	}

	if _, ok := txcontext.From(ctx); ok {
		return run(ctx)
	}
	return txcontext.Run(ctx, s.db, run)
}

func (s *PostgresRuleSetStore) FindActive(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) (*models.RuleSet, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+rulesetColumns+`
		FROM rulesets
		WHERE tenant_id = $1 AND asset_id = $2 AND active`,
		uuid.UUID(tenantID), uuid.UUID(assetID))
	return scanRuleSet(row)
}

func (s *PostgresRuleSetStore) FindByID(ctx context.Context, tenantID id.TenantID, rulesetID id.RuleSetID) (*models.RuleSet, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+rulesetColumns+`
		FROM rulesets
		WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(rulesetID))
	return scanRuleSet(row)
}

func (s *PostgresRuleSetStore) ListVersions(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) ([]*models.RuleSet, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+rulesetColumns+`
		FROM rulesets
		WHERE tenant_id = $1 AND asset_id = $2
		ORDER BY version DESC`,
		uuid.UUID(tenantID), uuid.UUID(assetID))
	if err != nil {
		return nil, fmt.Errorf("query ruleset versions: %w", err)
	}
	defer rows.Close()

	var out []*models.RuleSet
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ruleset versions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleSet(row rowScanner) (*models.RuleSet, error) {
	var (
		rs            models.RuleSet
		rsID          uuid.UUID
		assetID       uuid.UUID
		jurisdictions []byte
		transfers     []byte
		investorTypes []byte
	)
	err := row.Scan(
		&rsID, &assetID, &rs.Version, &rs.Active,
		&rs.QualificationRequired, &rs.LockupDays,
		&jurisdictions, &transfers, &investorTypes,
		&rs.MinimumInvestment, &rs.MaximumInvestors, &rs.ConcentrationLimitPct,
		&rs.KYCRequired, &rs.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ruleset: %w", err)
	}

	rs.ID = id.RuleSetID(rsID)
	rs.AssetID = id.AssetID(assetID)
	if err := json.Unmarshal(jurisdictions, &rs.JurisdictionWhitelist); err != nil {
		return nil, fmt.Errorf("unmarshal jurisdiction whitelist: %w", err)
	}
	if rs.TransferWhitelist, err = unmarshalNullableList(transfers); err != nil {
		return nil, fmt.Errorf("unmarshal transfer whitelist: %w", err)
	}
	if rs.InvestorTypeWhitelist, err = unmarshalNullableList(investorTypes); err != nil {
		return nil, fmt.Errorf("unmarshal investor type whitelist: %w", err)
	}
	return &rs, nil
}

// marshalNullableList keeps "no restriction" (nil) distinct from "restricted
// to nobody" (empty) across the database round trip.
func marshalNullableList(list []string) (any, error) {
	if list == nil {
		return nil, nil
	}
	return json.Marshal(list)
}

func unmarshalNullableList(raw []byte) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list := []string{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PostgresCompositeRuleStore persists user-authored rules.
type PostgresCompositeRuleStore struct {
	db *sql.DB
}

func NewPostgresCompositeRules(db *sql.DB) *PostgresCompositeRuleStore {
	return &PostgresCompositeRuleStore{db: db}
}

const ruleColumns = `
	id, asset_id, name, description, operator, conditions, enabled,
	created_by, created_at, updated_at`

func (s *PostgresCompositeRuleStore) Create(ctx context.Context, tenantID id.TenantID, rule *models.CompositeRule) error {
	conditions, err := models.MarshalConditions(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	if _, err := execer(ctx, s.db).ExecContext(ctx, `
		INSERT INTO composite_rules (
			tenant_id, id, asset_id, name, description, operator, conditions,
			enabled, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(tenantID), uuid.UUID(rule.ID), uuid.UUID(rule.AssetID),
		rule.Name, rule.Description, string(rule.Operator), conditions,
		rule.Enabled, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert composite rule: %w", err)
	}
	return nil
}

func (s *PostgresCompositeRuleStore) Update(ctx context.Context, tenantID id.TenantID, rule *models.CompositeRule) error {
	conditions, err := models.MarshalConditions(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	res, err := execer(ctx, s.db).ExecContext(ctx, `
		UPDATE composite_rules
		SET name = $3, description = $4, operator = $5, conditions = $6,
		    enabled = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(rule.ID),
		rule.Name, rule.Description, string(rule.Operator), conditions,
		rule.Enabled, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update composite rule: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresCompositeRuleStore) Delete(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) error {
	res, err := execer(ctx, s.db).ExecContext(ctx, `
		DELETE FROM composite_rules
		WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(ruleID))
	if err != nil {
		return fmt.Errorf("delete composite rule: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresCompositeRuleStore) FindByID(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.CompositeRule, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM composite_rules
		WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(ruleID))
	return scanRule(row)
}

func (s *PostgresCompositeRuleStore) ListByAsset(ctx context.Context, tenantID id.TenantID, assetID id.AssetID) ([]*models.CompositeRule, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM composite_rules
		WHERE tenant_id = $1 AND asset_id = $2
		ORDER BY created_at ASC, id ASC`,
		uuid.UUID(tenantID), uuid.UUID(assetID))
	if err != nil {
		return nil, fmt.Errorf("query composite rules: %w", err)
	}
	defer rows.Close()

	var out []*models.CompositeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate composite rules: %w", err)
	}
	return out, nil
}

func scanRule(row rowScanner) (*models.CompositeRule, error) {
	var (
		rule       models.CompositeRule
		ruleID     uuid.UUID
		assetID    uuid.UUID
		operator   string
		conditions []byte
	)
	err := row.Scan(
		&ruleID, &assetID, &rule.Name, &rule.Description, &operator, &conditions,
		&rule.Enabled, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan composite rule: %w", err)
	}

	rule.ID = id.RuleID(ruleID)
	rule.AssetID = id.AssetID(assetID)
	rule.Operator = models.CompositeOperator(operator)
	if rule.Conditions, err = models.UnmarshalConditions(conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	return &rule, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
