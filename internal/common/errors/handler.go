// internal/common/errors/handler.go
package errors

import (
	stderrors "errors"
	"time"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Classifier turns a domain error into a StandardError; it returns nil when it does not recognize err.
type Classifier func(err error) *StandardError

// ErrorHandler normalizes errors crossing the API boundary and logs them by severity.
type ErrorHandler struct {
	logger      Logger
	classifiers []Classifier
}

func NewErrorHandler(logger Logger, classifiers ...Classifier) *ErrorHandler {
	return &ErrorHandler{logger: logger, classifiers: classifiers}
}

// Handle returns the StandardError for err, logging server-side failures at ERROR and client errors at WARN.
func (h *ErrorHandler) Handle(operation string, err error) *StandardError {
	stdErr := h.Normalize(err)

	fields := map[string]interface{}{
		"operation": operation,
		"errorCode": string(stdErr.Code),
		"category":  GetErrorCategory(stdErr.Code),
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
	}
	if h.logger != nil {
		if stdErr.HTTPStatus() >= 500 {
			h.logger.Error("request failed", fields)
		} else {
			h.logger.Warn("request rejected", fields)
		}
	}
	return stdErr
}

// Normalize ensures we always have a StandardError.
func (h *ErrorHandler) Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	for _, classify := range h.classifiers {
		if classified := classify(err); classified != nil {
			return classified
		}
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
