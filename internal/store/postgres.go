// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"welfare-caseworker/internal/models"
)

//go:embed migrations/001_init.sql
var schemaSQL string

const (
	insertCaseQuery = `INSERT INTO welfare_cases (case_id, status, risk_level, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (case_id) DO NOTHING`

	getCaseQuery = `SELECT payload FROM welfare_cases WHERE case_id = $1`

	swapCaseQuery = `UPDATE welfare_cases SET status = $1, payload = $2
		WHERE case_id = $3 AND status = $4`

	caseStatusQuery = `SELECT status FROM welfare_cases WHERE case_id = $1`

	insertApprovalQuery = `INSERT INTO approval_records (approval_id, case_id, payload, decided_at)
		VALUES ($1, $2, $3, $4)`

	countsQuery = `SELECT
		(SELECT COUNT(*) FROM welfare_cases),
		(SELECT COUNT(*) FROM welfare_cases WHERE status = 'PENDING_APPROVAL'),
		(SELECT COUNT(*) FROM approval_records)`
)

// PostgresStore keeps each case as a JSONB payload next to the columns used for filtering.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, c *models.Case) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	res, err := s.db.ExecContext(ctx, insertCaseQuery,
		c.CaseID,
		string(c.Status),
		string(c.RiskLevel),
		payload,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.CaseID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, caseID string) (*models.Case, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, getCaseQuery, caseID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return decodeCase(payload)
}

func listCasesQuery(filter Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, string(filter.RiskLevel))
		where = append(where, fmt.Sprintf("risk_level = $%d", len(args)))
	}

	query := "SELECT payload FROM welfare_cases"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY seq", args
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Case, error) {
	query, args := listCasesQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		c, err := decodeCase(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, updated *models.Case, expected models.CaseStatus, rec *models.ApprovalRecord) error {
	payload, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, swapCaseQuery, string(updated.Status), payload, updated.CaseID, string(expected))
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, caseStatusQuery, updated.CaseID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, updated.CaseID)
		}
		if err != nil {
			return fmt.Errorf("read case status: %w", err)
		}
		return fmt.Errorf("%w: %s is %s", ErrConflict, updated.CaseID, status)
	}

	if rec != nil {
		recPayload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal approval: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertApprovalQuery, rec.ApprovalID, rec.CaseID, recPayload, rec.Timestamp); err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, caseID string) ([]*models.ApprovalRecord, error) {
	query := "SELECT payload FROM approval_records ORDER BY seq"
	var args []interface{}
	if caseID != "" {
		query = "SELECT payload FROM approval_records WHERE case_id = $1 ORDER BY seq"
		args = append(args, caseID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*models.ApprovalRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		var rec models.ApprovalRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode approval: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.QueryRowContext(ctx, countsQuery).Scan(&c.Cases, &c.Pending, &c.Approvals); err != nil {
		return Counts{}, fmt.Errorf("count cases: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func decodeCase(payload []byte) (*models.Case, error) {
	var c models.Case
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode case: %w", err)
	}
	return &c, nil
}
