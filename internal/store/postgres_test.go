package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"welfare-caseworker/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS welfare_cases`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresStore(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock := setupMockDB(t)
	c := newCase("CASE_001", models.RiskHigh)

	mock.ExpectExec(regexp.QuoteMeta(insertCaseQuery)).
		WithArgs("CASE_001", "PENDING_APPROVAL", "high", sqlmock.AnyArg(), c.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertCaseQuery)).
		WithArgs("CASE_001", "PENDING_APPROVAL", "high", sqlmock.AnyArg(), c.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewPostgresStore(db)
	require.NoError(t, s.Append(context.Background(), c))

	err := s.Append(context.Background(), c)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	payload, err := json.Marshal(newCase("CASE_001", models.RiskMedium))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(getCaseQuery)).
		WithArgs("CASE_001").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))
	mock.ExpectQuery(regexp.QuoteMeta(getCaseQuery)).
		WithArgs("CASE_404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(getCaseQuery)).
		WithArgs("CASE_ERR").
		WillReturnError(errors.New("connection reset"))

	s := NewPostgresStore(db)
	got, err := s.Get(context.Background(), "CASE_001")
	require.NoError(t, err)
	assert.Equal(t, models.RiskMedium, got.RiskLevel)

	_, err = s.Get(context.Background(), "CASE_404")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Get(context.Background(), "CASE_ERR")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCasesQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		query  string
		args   []interface{}
	}{
		{
			name:  "no filter",
			query: "SELECT payload FROM welfare_cases ORDER BY seq",
		},
		{
			name:   "status",
			filter: Filter{Status: models.StatusApproved},
			query:  "SELECT payload FROM welfare_cases WHERE status = $1 ORDER BY seq",
			args:   []interface{}{"APPROVED"},
		},
		{
			name:   "status and level",
			filter: Filter{Status: models.StatusPendingApproval, RiskLevel: models.RiskHigh},
			query:  "SELECT payload FROM welfare_cases WHERE status = $1 AND risk_level = $2 ORDER BY seq",
			args:   []interface{}{"PENDING_APPROVAL", "high"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := listCasesQuery(tt.filter)
			assert.Equal(t, tt.query, query)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestPostgresStore_List(t *testing.T) {
	db, mock := setupMockDB(t)
	first, _ := json.Marshal(newCase("CASE_001", models.RiskHigh))
	second, _ := json.Marshal(newCase("CASE_002", models.RiskHigh))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM welfare_cases WHERE risk_level = $1 ORDER BY seq")).
		WithArgs("high").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(first).AddRow(second))

	cases, err := NewPostgresStore(db).List(context.Background(), Filter{RiskLevel: models.RiskHigh})
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "CASE_001", cases[0].CaseID)
	assert.Equal(t, "CASE_002", cases[1].CaseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompareAndSwap(t *testing.T) {
	updated, rec := decide(newCase("CASE_001", models.RiskHigh), models.DecisionApprove)

	t.Run("success commits update and approval together", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(swapCaseQuery)).
			WithArgs("APPROVED", sqlmock.AnyArg(), "CASE_001", "PENDING_APPROVAL").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(insertApprovalQuery)).
			WithArgs(rec.ApprovalID, "CASE_001", sqlmock.AnyArg(), rec.Timestamp).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := NewPostgresStore(db).CompareAndSwap(context.Background(), updated, models.StatusPendingApproval, rec)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already decided", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(swapCaseQuery)).
			WithArgs("APPROVED", sqlmock.AnyArg(), "CASE_001", "PENDING_APPROVAL").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(caseStatusQuery)).
			WithArgs("CASE_001").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("REJECTED"))
		mock.ExpectRollback()

		err := NewPostgresStore(db).CompareAndSwap(context.Background(), updated, models.StatusPendingApproval, rec)
		assert.True(t, errors.Is(err, ErrConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown case", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(swapCaseQuery)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(caseStatusQuery)).
			WithArgs("CASE_001").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := NewPostgresStore(db).CompareAndSwap(context.Background(), updated, models.StatusPendingApproval, rec)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approval insert failure rolls back", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(swapCaseQuery)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(insertApprovalQuery)).
			WillReturnError(errors.New("unique violation"))
		mock.ExpectRollback()

		err := NewPostgresStore(db).CompareAndSwap(context.Background(), updated, models.StatusPendingApproval, rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert approval")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListApprovalsAndCounts(t *testing.T) {
	db, mock := setupMockDB(t)
	_, rec := decide(newCase("CASE_001", models.RiskHigh), models.DecisionReject)
	payload, _ := json.Marshal(rec)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM approval_records WHERE case_id = $1 ORDER BY seq")).
		WithArgs("CASE_001").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))
	mock.ExpectQuery(regexp.QuoteMeta(countsQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"cases", "pending", "approvals"}).AddRow(3, 2, 1))

	s := NewPostgresStore(db)
	history, err := s.ListApprovals(context.Background(), "CASE_001")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DecisionReject, history[0].Decision)

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Cases: 3, Pending: 2, Approvals: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
