package app

import (
	"errors"
	"fmt"
	"net/http"

	"controlroom/internal/artifacts"
	"controlroom/internal/entities"
	"controlroom/internal/export"
	"controlroom/internal/ledger"
	"controlroom/internal/links"
	"controlroom/internal/transfer"
	"controlroom/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError turns package sentinels into the HTTP status and code clients see.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var rowErr *transfer.RowError
	if errors.As(err, &rowErr) {
		return http.StatusUnprocessableEntity, "IMPORT_INVALID", err.Error(), map[string]any{"row": rowErr.Row}
	}

	switch {
	case errors.Is(err, workflow.ErrUnknownRole):
		return http.StatusUnauthorized, "UNKNOWN_ROLE", err.Error(), nil
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error(), nil
	case errors.Is(err, workflow.ErrEvidenceRequestRequired):
		return http.StatusConflict, "EVIDENCE_REQUEST_REQUIRED", err.Error(), nil
	case errors.Is(err, workflow.ErrEmptyMessage),
		errors.Is(err, workflow.ErrInvalidStatus),
		errors.Is(err, ledger.ErrInvalidMessage),
		errors.Is(err, entities.ErrInvalidControl),
		errors.Is(err, entities.ErrInvalidEvidence):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, ledger.ErrInvalidTaskTransition):
		return http.StatusConflict, "INVALID_TASK_TRANSITION", err.Error(), nil
	case errors.Is(err, entities.ErrControlNotFound),
		errors.Is(err, entities.ErrEvidenceNotFound),
		errors.Is(err, ledger.ErrTaskNotFound),
		errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, export.ErrUnknownFramework):
		return http.StatusNotFound, "UNKNOWN_FRAMEWORK", err.Error(), nil
	case errors.Is(err, transfer.ErrUnsupportedFormat),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, transfer.ErrEmptyImport),
		errors.Is(err, transfer.ErrMissingIDColumn),
		errors.Is(err, artifacts.ErrEmpty):
		return http.StatusUnprocessableEntity, "IMPORT_INVALID", err.Error(), nil
	case errors.Is(err, links.ErrInvalidLink), errors.Is(err, links.ErrExpiredLink):
		return http.StatusGone, "LINK_INVALID", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
