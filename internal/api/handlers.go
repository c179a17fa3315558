// internal/api/handlers.go
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "welfare-caseworker/internal/common/errors"
	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/common/validation"
	"welfare-caseworker/internal/models"
	"welfare-caseworker/internal/service"
	"welfare-caseworker/internal/store"
	"welfare-caseworker/internal/workflow"
	"welfare-caseworker/pkg/registry"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type ModelStatus interface {
	Loaded() bool
}

type GeneratorStatus interface {
	Configured() bool
	Provider() string
}

// Handler serves the caseworker HTTP API.
type Handler struct {
	analyzer  *service.Analyzer
	workflow  *workflow.Workflow
	model     ModelStatus
	generator GeneratorStatus
	registry  *registry.OperationRegistry
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
	opts      Options
}

type caseResponse struct {
	*models.Case
	CitizenID string `json:"citizen_id"`
}

func newCaseResponse(c *models.Case) caseResponse {
	return caseResponse{Case: c, CitizenID: c.Citizen.CitizenID}
}

func newCaseResponses(cases []*models.Case) []caseResponse {
	out := make([]caseResponse, len(cases))
	for i, c := range cases {
		out[i] = newCaseResponse(c)
	}
	return out
}

type approveRequest struct {
	CaseID       string  `json:"case_id"`
	OfficerID    string  `json:"officer_id"`
	Decision     string  `json:"decision"`
	OfficerNotes *string `json:"officer_notes"`
	Notes        *string `json:"notes"`
}

type approveResponse struct {
	Message           string                   `json:"message"`
	ApprovalID        string                   `json:"approval_id"`
	CaseID            string                   `json:"case_id"`
	Decision          models.Decision          `json:"decision"`
	OfficerID         string                   `json:"officer_id"`
	OfficerNotes      string                   `json:"officer_notes,omitempty"`
	DecisionAlignment models.DecisionAlignment `json:"decision_alignment"`
	Timestamp         time.Time                `json:"timestamp"`
	Case              caseResponse             `json:"case"`
}

func (h *Handler) fail(c *gin.Context, operation string, err error) {
	stdErr := h.errors.Handle(operation, err)
	c.AbortWithStatusJSON(stdErr.HTTPStatus(), errorBody(stdErr))
}

// Root describes the service and its operation catalog.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":    h.opts.AppName,
		"version":    h.opts.Version,
		"status":     "operational",
		"operations": h.registry.Operations,
	})
}

func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	modelsLoaded := h.model != nil && h.model.Loaded()

	body := gin.H{
		"models_loaded":              modelsLoaded,
		"text_generation_configured": h.generator.Configured(),
		"text_generation_provider":   h.generator.Provider(),
		"storage_driver":             h.opts.StorageDriver,
		"timestamp":                  time.Now().UTC().Format(time.RFC3339),
	}

	storeErr := h.workflow.Ping(ctx)
	if storeErr == nil {
		if counts, err := h.workflow.Counts(ctx); err == nil {
			body["cases_count"] = counts.Cases
			body["approvals_count"] = counts.Approvals
			body["pending_count"] = counts.Pending
		} else {
			storeErr = err
		}
	}
	if storeErr != nil {
		body["store_error"] = storeErr.Error()
	}

	status := "healthy"
	if !modelsLoaded || storeErr != nil {
		status = "unhealthy"
	}
	body["status"] = status
	c.JSON(http.StatusOK, body)
}

// unwrapCase accepts {"case": {...}} or a bare case object.
func unwrapCase(raw []byte) []byte {
	var wrapper struct {
		Case json.RawMessage `json:"case"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil {
		inner := bytes.TrimSpace(wrapper.Case)
		if len(inner) > 0 && inner[0] == '{' {
			return inner
		}
	}
	return raw
}

func (h *Handler) AnalyzeCase(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, "analyze_case", apperrors.NewValidationError([]string{"(root): unreadable request body"}))
		return
	}
	doc := unwrapCase(raw)

	res, err := validation.ValidateCaseInput(doc)
	if err != nil {
		h.fail(c, "analyze_case", apperrors.NewInternalError(err))
		return
	}
	if !res.Valid {
		h.fail(c, "analyze_case", apperrors.NewValidationError(res.Messages()))
		return
	}

	var citizen models.CitizenCase
	if err := json.Unmarshal(doc, &citizen); err != nil {
		h.fail(c, "analyze_case", apperrors.NewValidationError([]string{"(root): " + err.Error()}))
		return
	}

	created, err := h.analyzer.Analyze(c.Request.Context(), citizen)
	if err != nil {
		h.fail(c, "analyze_case", err)
		return
	}
	c.JSON(http.StatusOK, newCaseResponse(created))
}

func (h *Handler) GetCases(c *gin.Context) {
	var problems []string

	filter := store.Filter{}
	if raw := c.Query("status"); raw != "" {
		status, err := parseStatus(raw)
		if err != nil {
			problems = append(problems, err.Error())
		}
		filter.Status = status
	}
	if raw := c.Query("risk_level"); raw != "" {
		level := models.RiskLevel(strings.ToLower(strings.TrimSpace(raw)))
		if !level.Valid() {
			problems = append(problems, fmt.Sprintf("risk_level: must be one of low, medium, high, got %q", raw))
		}
		filter.RiskLevel = level
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		h.fail(c, "get_cases", apperrors.NewValidationError(problems))
		return
	}

	cases, err := h.workflow.ListCases(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "get_cases", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cases":       newCaseResponses(newestFirst(cases, limit)),
		"total_count": len(cases),
	})
}

func (h *Handler) GetCase(c *gin.Context) {
	caseID := c.Param("case_id")
	found, err := h.workflow.GetCase(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, workflow.ErrCaseNotFound) {
			err = apperrors.NewCaseNotFoundError(caseID)
		}
		h.fail(c, "get_case", err)
		return
	}
	c.JSON(http.StatusOK, newCaseResponse(found))
}

func (h *Handler) ApproveCase(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, "approve_case", apperrors.NewValidationError([]string{"(root): unreadable request body"}))
		return
	}

	res, err := validation.ValidateApprovalRequest(raw)
	if err != nil {
		h.fail(c, "approve_case", apperrors.NewInternalError(err))
		return
	}
	if !res.Valid {
		var body map[string]interface{}
		decision := ""
		if json.Unmarshal(raw, &body) == nil {
			decision, _ = body["decision"].(string)
		}
		h.fail(c, "approve_case", validationFailure(res, decision))
		return
	}

	var req approveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.fail(c, "approve_case", apperrors.NewValidationError([]string{"(root): " + err.Error()}))
		return
	}

	notes := ""
	switch {
	case req.OfficerNotes != nil:
		notes = *req.OfficerNotes
	case req.Notes != nil:
		notes = *req.Notes
	}

	updated, rec, err := h.workflow.ProcessHumanApproval(c.Request.Context(), workflow.ApprovalInput{
		CaseID:    req.CaseID,
		OfficerID: req.OfficerID,
		Decision:  models.Decision(req.Decision),
		Notes:     notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrCaseNotFound):
			err = apperrors.NewCaseNotFoundError(req.CaseID)
		case errors.Is(err, workflow.ErrAlreadyProcessed):
			status := ""
			if current, getErr := h.workflow.GetCase(c.Request.Context(), req.CaseID); getErr == nil {
				status = string(current.Status)
			}
			err = apperrors.NewCaseAlreadyProcessedError(req.CaseID, status)
		}
		h.fail(c, "approve_case", err)
		return
	}

	verb := "approved"
	if rec.Decision == models.DecisionReject {
		verb = "rejected"
	}
	c.JSON(http.StatusOK, approveResponse{
		Message:           fmt.Sprintf("Case %s successfully %s", rec.CaseID, verb),
		ApprovalID:        rec.ApprovalID,
		CaseID:            rec.CaseID,
		Decision:          rec.Decision,
		OfficerID:         rec.OfficerID,
		OfficerNotes:      rec.Notes,
		DecisionAlignment: rec.DecisionAlignment,
		Timestamp:         rec.Timestamp,
		Case:              newCaseResponse(updated),
	})
}

func (h *Handler) GetApprovals(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		h.fail(c, "get_approvals", apperrors.NewValidationError([]string{err.Error()}))
		return
	}

	records, err := h.workflow.ListDecisions(c.Request.Context(), c.Query("case_id"))
	if err != nil {
		h.fail(c, "get_approvals", err)
		return
	}

	newest := make([]*models.ApprovalRecord, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(newest) < limit; i-- {
		newest = append(newest, records[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"approvals":   newest,
		"total_count": len(records),
	})
}

// GetApprovalHistory returns the request log in insertion order, pending cases included.
func (h *Handler) GetApprovalHistory(c *gin.Context) {
	entries, err := h.workflow.GetApprovalHistory(c.Request.Context(), c.Query("case_id"))
	if err != nil {
		h.fail(c, "get_approval_history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history":     entries,
		"total_count": len(entries),
	})
}

func (h *Handler) GetPendingApprovals(c *gin.Context) {
	pending, err := h.workflow.GetPendingApprovals(c.Request.Context())
	if err != nil {
		h.fail(c, "get_pending_approvals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cases":       newCaseResponses(pending),
		"total_count": len(pending),
	})
}

// parseStatus accepts the decision spellings APPROVE and REJECT as aliases.
func parseStatus(raw string) (models.CaseStatus, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case string(models.DecisionApprove):
		return models.StatusApproved, nil
	case string(models.DecisionReject):
		return models.StatusRejected, nil
	}
	status := models.CaseStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("status: must be one of PENDING_APPROVAL, APPROVED, REJECTED, got %q", raw)
	}
	return status, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit: must be a positive integer, got %q", raw)
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func newestFirst(cases []*models.Case, limit int) []*models.Case {
	out := make([]*models.Case, 0, min(limit, len(cases)))
	for i := len(cases) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cases[i])
	}
	return out
}
