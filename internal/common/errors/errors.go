// Package errors provides standardized error handling for the caseworker HTTP boundary.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Configuration / fatal
const (
	ErrCodeModelNotLoaded  ErrorCode = "MODEL_NOT_LOADED"
	ErrCodeModelLoadFailed ErrorCode = "MODEL_LOAD_FAILED"
)

// Validation
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidDecision  ErrorCode = "INVALID_DECISION"
)

// Workflow conflict
const (
	ErrCodeCaseNotFound         ErrorCode = "CASE_NOT_FOUND"
	ErrCodeCaseAlreadyProcessed ErrorCode = "CASE_ALREADY_PROCESSED"
	ErrCodeDuplicateCase        ErrorCode = "DUPLICATE_CASE"
)

// Dependencies
const (
	ErrCodeStoreUnavailable     ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeTextGenerationFailed ErrorCode = "TEXT_GENERATION_FAILED"
	ErrCodeAuditSinkFailed      ErrorCode = "AUDIT_SINK_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns the error with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatus returns the status code the API responds with for this error.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewModelNotLoadedError is returned when scoring is attempted without a loaded bundle.
func NewModelNotLoadedError() *StandardError {
	return &StandardError{
		Code:      ErrCodeModelNotLoaded,
		Message:   "Risk model is not loaded",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewModelLoadFailedError wraps a failure to read or decode the model bundle.
func NewModelLoadFailedError(path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeModelLoadFailed,
		Message:   "Failed to load risk model bundle",
		Details:   fmt.Sprintf("path: %s, error: %v", path, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError aggregates field-level validation failures.
func NewValidationError(fieldErrors []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   strings.Join(fieldErrors, "; "),
		Retryable: false,
		Metadata:  map[string]interface{}{"errors": fieldErrors},
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidDecisionError(decision string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidDecision,
		Message:   "Decision must be APPROVE or REJECT",
		Details:   fmt.Sprintf("decision: %q", decision),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewCaseNotFoundError(caseID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCaseNotFound,
		Message:   "Case not found",
		Details:   fmt.Sprintf("caseId: %s", caseID),
		Retryable: false,
		Metadata:  map[string]interface{}{"case_id": caseID},
		Timestamp: time.Now().UTC(),
	}
}

func NewCaseAlreadyProcessedError(caseID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCaseAlreadyProcessed,
		Message:   "Case has already been processed",
		Details:   fmt.Sprintf("caseId: %s, status: %s", caseID, status),
		Retryable: false,
		Metadata:  map[string]interface{}{"case_id": caseID, "status": status},
		Timestamp: time.Now().UTC(),
	}
}

func NewDuplicateCaseError(caseID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateCase,
		Message:   "Case already exists",
		Details:   fmt.Sprintf("caseId: %s", caseID),
		Retryable: false,
		Metadata:  map[string]interface{}{"case_id": caseID},
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError is retryable by the caller; the service itself never retries.
func NewStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Case store is unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTextGenerationFailedError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTextGenerationFailed,
		Message:   "Text generation failed",
		Details:   fmt.Sprintf("provider: %s, error: %v", provider, err),
		Retryable: false,
		Metadata:  map[string]interface{}{"provider": provider},
		Timestamp: time.Now().UTC(),
	}
}

func NewAuditSinkFailedError(sink string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditSinkFailed,
		Message:   "Audit sink failed",
		Details:   fmt.Sprintf("sink: %s, error: %v", sink, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"sink": sink},
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Code Mappings
// ==========================

// HTTPStatus maps an error code onto the HTTP status returned to API clients.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidDecision:
		return http.StatusBadRequest
	case ErrCodeCaseNotFound:
		return http.StatusNotFound
	case ErrCodeCaseAlreadyProcessed, ErrCodeDuplicateCase:
		return http.StatusConflict
	case ErrCodeModelNotLoaded, ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableErrorCode reports whether a client may usefully repeat the request.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeAuditSinkFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory groups codes for metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeModelNotLoaded, ErrCodeModelLoadFailed:
		return "configuration"
	case ErrCodeValidationFailed, ErrCodeInvalidDecision:
		return "validation"
	case ErrCodeCaseNotFound, ErrCodeCaseAlreadyProcessed, ErrCodeDuplicateCase:
		return "workflow"
	case ErrCodeStoreUnavailable, ErrCodeTextGenerationFailed, ErrCodeAuditSinkFailed:
		return "dependency"
	default:
		return "unknown"
	}
}
