package app

import (
	"fmt"
	"net/http"
)

// DomainError is a failure the caller is allowed to see: an HTTP status, a
// stable code, a human message, and optional per-field details. Anything that
// is not a DomainError collapses to a generic 500 at the handler boundary.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func errUnauthorized() *DomainError {
	return &DomainError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
}

func errForbidden() *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "Forbidden"}
}

func errNotFound(what string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: what + " not found"}
}

func errConflict() *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: "CONFLICT", Message: "Short Link already taken"}
}

func errValidation(fields map[string]string) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: "Validation failed", Details: fields}
}

func errMediaUnavailable() *DomainError {
	return &DomainError{Status: http.StatusServiceUnavailable, Code: "MEDIA_UNAVAILABLE", Message: "File uploads are not configured"}
}
