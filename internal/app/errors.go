package app

import (
	"fmt"
	"net/http"

	"github.com/redoswald/todopus/internal/assistant"
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

// errNotFound is the single masking outcome: an entity that is absent and an
// entity the caller may not read produce byte-identical responses, so a
// caller can never probe for existence.
func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func errValidation(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func errCycle(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "CYCLE_ERROR", message, nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT_ERROR", message, nil)
}

// errCollaborator wraps a proposal-channel failure with its category so the
// client can show a specific message (rate limited vs. bad credentials vs.
// overloaded) without parsing free text.
func errCollaborator(aerr *assistant.Error) *DomainError {
	status := http.StatusBadGateway
	switch aerr.Category {
	case assistant.CategoryRateLimited, assistant.CategoryQuotaExceeded:
		status = http.StatusTooManyRequests
	case assistant.CategoryInvalidCredentials:
		status = http.StatusBadGateway
	case assistant.CategoryOverloaded:
		status = http.StatusServiceUnavailable
	}
	return domainError(status, "COLLABORATOR_ERROR", aerr.Message, map[string]any{
		"category": string(aerr.Category),
	})
}
