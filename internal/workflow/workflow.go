// internal/workflow/workflow.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"welfare-caseworker/internal/audit"
	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/common/metrics"
	"welfare-caseworker/internal/models"
	"welfare-caseworker/internal/store"
)

var (
	ErrCaseNotFound     = errors.New("CASE_NOT_FOUND")
	ErrAlreadyProcessed = errors.New("CASE_ALREADY_PROCESSED")
	ErrInvalidDecision  = errors.New("INVALID_DECISION")
	ErrDuplicateCase    = errors.New("DUPLICATE_CASE")
	ErrMissingOfficer   = errors.New("OFFICER_ID_REQUIRED")
	ErrStoreUnavailable = errors.New("STORE_UNAVAILABLE")
)

func storeFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// CreateRequest opens a case for officer review.
type CreateRequest struct {
	CaseID            string
	Citizen           models.CitizenCase
	RiskLevel         models.RiskLevel
	Reasons           map[string]models.FeatureReason
	AIRecommendation  models.RecommendedAction
	AIRiskScore       float64
	AIExplanation     string
	ExplanationSource string
	ActionDescription string
}

type ApprovalInput struct {
	CaseID    string
	OfficerID string
	Decision  models.Decision
	Notes     string
}

// Workflow enforces PENDING_APPROVAL -> APPROVED | REJECTED, exactly once per case.
type Workflow struct {
	store  store.Store
	sink   audit.Sink
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// New builds a workflow. A nil sink disables audit fan-out.
func New(s store.Store, sink audit.Sink, log logger.Logger) *Workflow {
	return &Workflow{
		store:  s,
		sink:   sink,
		logger: log.WithFields(map[string]interface{}{"component": "approval-workflow"}),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
}

// DecisionAlignment is OVERRIDE only for (URGENT_REVIEW, APPROVE) and
// (ROUTINE_REVIEW, REJECT). STANDARD_REVIEW is ALIGNED for either decision.
func DecisionAlignment(rec models.RecommendedAction, decision models.Decision) models.DecisionAlignment {
	switch {
	case rec == models.ActionUrgentReview && decision == models.DecisionApprove:
		return models.AlignmentOverride
	case rec == models.ActionRoutineReview && decision == models.DecisionReject:
		return models.AlignmentOverride
	default:
		return models.AlignmentAligned
	}
}

// ParseDecision accepts the decision case-insensitively.
func ParseDecision(raw string) (models.Decision, error) {
	d := models.Decision(strings.ToUpper(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, raw)
	}
	return d, nil
}

func (w *Workflow) CreateApprovalRequest(ctx context.Context, req CreateRequest) (*models.Case, error) {
	c := &models.Case{
		CaseID:            req.CaseID,
		Citizen:           req.Citizen,
		RiskScore:         req.AIRiskScore,
		RiskLevel:         req.RiskLevel,
		Reasons:           req.Reasons,
		Explanation:       req.AIExplanation,
		ExplanationSource: req.ExplanationSource,
		RecommendedAction: req.AIRecommendation,
		ActionDescription: req.ActionDescription,
		Status:            models.StatusPendingApproval,
		CreatedAt:         w.now(),
	}

	if err := w.store.Append(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCase, req.CaseID)
		}
		return nil, storeFailure(err)
	}
	w.refreshPendingGauge(ctx)

	w.logger.Info("approval request created", map[string]interface{}{
		"caseId":           c.CaseID,
		"riskLevel":        string(c.RiskLevel),
		"riskScore":        c.RiskScore,
		"aiRecommendation": string(c.RecommendedAction),
	})
	return c, nil
}

// ProcessHumanApproval records an officer decision. The store swap is conditional on
// the case still being PENDING_APPROVAL, so concurrent calls produce one winner.
func (w *Workflow) ProcessHumanApproval(ctx context.Context, in ApprovalInput) (*models.Case, *models.ApprovalRecord, error) {
	if !in.Decision.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidDecision, in.Decision)
	}
	if strings.TrimSpace(in.OfficerID) == "" {
		return nil, nil, ErrMissingOfficer
	}

	current, err := w.store.Get(ctx, in.CaseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrCaseNotFound, in.CaseID)
		}
		return nil, nil, storeFailure(err)
	}
	if current.Status != models.StatusPendingApproval {
		metrics.WorkflowConflicts.WithLabelValues("already_processed").Inc()
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrAlreadyProcessed, in.CaseID, current.Status)
	}

	now := w.now()
	updated := current.Clone()
	updated.Status = in.Decision.Status()
	updated.OfficerID = in.OfficerID
	updated.OfficerNotes = in.Notes
	updated.DecidedAt = &now

	rec := &models.ApprovalRecord{
		ApprovalID:        w.newID(),
		CaseID:            current.CaseID,
		CitizenID:         current.Citizen.CitizenID,
		OfficerID:         in.OfficerID,
		Decision:          in.Decision,
		Notes:             in.Notes,
		Timestamp:         now,
		AIRecommendation:  current.RecommendedAction,
		AIRiskScore:       current.RiskScore,
		DecisionAlignment: DecisionAlignment(current.RecommendedAction, in.Decision),
	}

	if err := w.store.CompareAndSwap(ctx, updated, models.StatusPendingApproval, rec); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			metrics.WorkflowConflicts.WithLabelValues("concurrent_update").Inc()
			return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, in.CaseID)
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, fmt.Errorf("%w: %s", ErrCaseNotFound, in.CaseID)
		default:
			return nil, nil, storeFailure(err)
		}
	}

	metrics.ApprovalsTotal.WithLabelValues(string(rec.Decision), string(rec.DecisionAlignment)).Inc()
	w.refreshPendingGauge(ctx)
	w.logger.Info("human approval processed", map[string]interface{}{
		"caseId":            rec.CaseID,
		"approvalId":        rec.ApprovalID,
		"officerId":         rec.OfficerID,
		"decision":          string(rec.Decision),
		"decisionAlignment": string(rec.DecisionAlignment),
	})

	if w.sink != nil {
		if err := w.sink.Record(ctx, rec); err != nil {
			w.logger.Warn("approval committed but audit fan-out failed", map[string]interface{}{
				"caseId":     rec.CaseID,
				"approvalId": rec.ApprovalID,
				"error":      err.Error(),
			})
		}
	}

	return updated, rec, nil
}

// GetPendingApprovals returns PENDING_APPROVAL cases in insertion order.
func (w *Workflow) GetPendingApprovals(ctx context.Context) ([]*models.Case, error) {
	cases, err := w.store.List(ctx, store.Filter{Status: models.StatusPendingApproval})
	return cases, storeFailure(err)
}

// GetApprovalHistory returns one log entry per approval request in insertion order,
// pending requests included. An empty caseID returns the full log; an unknown one
// returns an empty log.
func (w *Workflow) GetApprovalHistory(ctx context.Context, caseID string) ([]*models.HistoryEntry, error) {
	var cases []*models.Case
	if caseID == "" {
		all, err := w.store.List(ctx, store.Filter{})
		if err != nil {
			return nil, storeFailure(err)
		}
		cases = all
	} else {
		c, err := w.store.Get(ctx, caseID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return []*models.HistoryEntry{}, nil
		case err != nil:
			return nil, storeFailure(err)
		}
		cases = []*models.Case{c}
	}

	records, err := w.store.ListApprovals(ctx, caseID)
	if err != nil {
		return nil, storeFailure(err)
	}
	decided := make(map[string]*models.ApprovalRecord, len(records))
	for _, rec := range records {
		decided[rec.CaseID] = rec
	}

	entries := make([]*models.HistoryEntry, 0, len(cases))
	for _, c := range cases {
		entries = append(entries, historyEntry(c, decided[c.CaseID]))
	}
	return entries, nil
}

func historyEntry(c *models.Case, rec *models.ApprovalRecord) *models.HistoryEntry {
	entry := &models.HistoryEntry{
		CaseID:           c.CaseID,
		CitizenID:        c.Citizen.CitizenID,
		AIRecommendation: c.RecommendedAction,
		AIRiskScore:      c.RiskScore,
		AIExplanation:    c.Explanation,
		Status:           c.Status,
		CreatedAt:        c.CreatedAt,
		OfficerID:        c.OfficerID,
		OfficerNotes:     c.OfficerNotes,
		DecidedAt:        c.DecidedAt,
	}
	switch c.Status {
	case models.StatusApproved:
		entry.Decision = models.DecisionApprove
	case models.StatusRejected:
		entry.Decision = models.DecisionReject
	}
	if rec != nil {
		entry.ApprovalID = rec.ApprovalID
		entry.DecisionAlignment = rec.DecisionAlignment
	}
	return entry
}

// ListDecisions returns the audit records written at decision time, in insertion order.
func (w *Workflow) ListDecisions(ctx context.Context, caseID string) ([]*models.ApprovalRecord, error) {
	records, err := w.store.ListApprovals(ctx, caseID)
	return records, storeFailure(err)
}

func (w *Workflow) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := w.store.Get(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	return c, storeFailure(err)
}

func (w *Workflow) ListCases(ctx context.Context, filter store.Filter) ([]*models.Case, error) {
	cases, err := w.store.List(ctx, filter)
	return cases, storeFailure(err)
}

// Counts reads the store totals. It is the only writer of the pending gauge.
func (w *Workflow) Counts(ctx context.Context) (store.Counts, error) {
	counts, err := w.store.Counts(ctx)
	if err != nil {
		return counts, storeFailure(err)
	}
	metrics.PendingApprovals.Set(float64(counts.Pending))
	return counts, nil
}

func (w *Workflow) refreshPendingGauge(ctx context.Context) {
	if _, err := w.Counts(ctx); err != nil {
		w.logger.Warn("pending gauge not refreshed", map[string]interface{}{"error": err.Error()})
	}
}

// Ping checks the backing store.
func (w *Workflow) Ping(ctx context.Context) error {
	return storeFailure(w.store.Ping(ctx))
}
