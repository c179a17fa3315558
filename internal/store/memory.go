// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"

	"welfare-caseworker/internal/models"
)

// MemoryStore keeps everything in process. It is the default driver.
type MemoryStore struct {
	mu        sync.RWMutex
	order     []string
	cases     map[string]*models.Case
	approvals []*models.ApprovalRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]*models.Case)}
}

func (s *MemoryStore) Append(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.CaseID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.CaseID)
	}
	s.cases[c.CaseID] = c.Clone()
	s.order = append(s.order, c.CaseID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, caseID string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, caseID)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Case, 0, len(s.order))
	for _, id := range s.order {
		c := s.cases[id]
		if filter.matches(c) {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, updated *models.Case, expected models.CaseStatus, rec *models.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.cases[updated.CaseID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, updated.CaseID)
	}
	if current.Status != expected {
		return fmt.Errorf("%w: %s is %s", ErrConflict, updated.CaseID, current.Status)
	}

	s.cases[updated.CaseID] = updated.Clone()
	if rec != nil {
		s.approvals = append(s.approvals, copyRecord(rec))
	}
	return nil
}

func (s *MemoryStore) ListApprovals(_ context.Context, caseID string) ([]*models.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ApprovalRecord, 0, len(s.approvals))
	for _, rec := range s.approvals {
		if caseID == "" || rec.CaseID == caseID {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := Counts{Cases: len(s.order), Approvals: len(s.approvals)}
	for _, c := range s.cases {
		if c.Status == models.StatusPendingApproval {
			counts.Pending++
		}
	}
	return counts, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
