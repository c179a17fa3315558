// internal/store/store.go
package store

import (
	"context"
	"errors"

	"welfare-caseworker/internal/models"
)

var (
	ErrNotFound  = errors.New("CASE_NOT_FOUND")
	ErrDuplicate = errors.New("DUPLICATE_CASE")
	ErrConflict  = errors.New("CASE_STATUS_CONFLICT")
)

// Filter narrows List. Zero-valued fields match everything.
type Filter struct {
	Status    models.CaseStatus
	RiskLevel models.RiskLevel
}

func (f Filter) matches(c *models.Case) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.RiskLevel != "" && c.RiskLevel != f.RiskLevel {
		return false
	}
	return true
}

type Counts struct {
	Cases     int `json:"cases"`
	Pending   int `json:"pending"`
	Approvals int `json:"approvals"`
}

// Store persists cases and their approval records. Cases are never deleted.
// Returned values are copies; mutating them does not affect the store.
type Store interface {
	// Append adds a new case. It returns ErrDuplicate when the id already exists.
	Append(ctx context.Context, c *models.Case) error

	Get(ctx context.Context, caseID string) (*models.Case, error)

	// List returns matching cases in insertion order.
	List(ctx context.Context, filter Filter) ([]*models.Case, error)

	// CompareAndSwap replaces the case with updated only if its stored status is still
	// expected, and appends rec in the same atomic step. It returns ErrNotFound or
	// ErrConflict without changing anything.
	CompareAndSwap(ctx context.Context, updated *models.Case, expected models.CaseStatus, rec *models.ApprovalRecord) error

	// ListApprovals returns approval records in insertion order. An empty caseID returns all.
	ListApprovals(ctx context.Context, caseID string) ([]*models.ApprovalRecord, error)

	Counts(ctx context.Context) (Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

func copyRecord(rec *models.ApprovalRecord) *models.ApprovalRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	return &out
}
