// internal/api/errors.go
package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "welfare-caseworker/internal/common/errors"
	"welfare-caseworker/internal/common/validation"
	"welfare-caseworker/internal/risk"
	"welfare-caseworker/internal/workflow"
)

// classifyDomainError maps scorer and workflow sentinels onto API error codes.
func classifyDomainError(err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, risk.ErrModelNotLoaded):
		return apperrors.NewModelNotLoadedError()
	case errors.Is(err, risk.ErrUnknownScheme):
		return apperrors.NewValidationError([]string{"scheme_type: " + err.Error()})
	case errors.Is(err, workflow.ErrInvalidDecision):
		return apperrors.NewInvalidDecisionError(detail(err, workflow.ErrInvalidDecision))
	case errors.Is(err, workflow.ErrMissingOfficer):
		return apperrors.NewValidationError([]string{"officer_id: is required"})
	case errors.Is(err, workflow.ErrCaseNotFound):
		return apperrors.NewCaseNotFoundError(detail(err, workflow.ErrCaseNotFound))
	case errors.Is(err, workflow.ErrAlreadyProcessed):
		return apperrors.NewCaseAlreadyProcessedError(detail(err, workflow.ErrAlreadyProcessed), "")
	case errors.Is(err, workflow.ErrDuplicateCase):
		return apperrors.NewDuplicateCaseError(detail(err, workflow.ErrDuplicateCase))
	case errors.Is(err, workflow.ErrStoreUnavailable):
		return apperrors.NewStoreUnavailableError(err)
	}
	return nil
}

func detail(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func errorBody(e *apperrors.StandardError) gin.H {
	body := gin.H{
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	}
	if fieldErrors, ok := e.Metadata["errors"]; ok {
		body["errors"] = fieldErrors
	}
	return gin.H{"error": body}
}

// validationFailure picks INVALID_DECISION when the decision enum is the only problem.
func validationFailure(res *validation.ValidationResult, decision string) *apperrors.StandardError {
	onlyDecision := len(res.Errors) > 0
	for _, e := range res.Errors {
		if e.Field != "decision" || e.Code != "ENUM" {
			onlyDecision = false
			break
		}
	}
	if onlyDecision {
		return apperrors.NewInvalidDecisionError(decision)
	}
	return apperrors.NewValidationError(res.Messages())
}
