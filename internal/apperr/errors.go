package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the domain error carried across service boundaries. The HTTP
// layer is the only place it is converted into a response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details []any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match two app errors by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NotFound indicates a missing or soft-deleted resource.
func NotFound(message string, details ...any) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Message: message, Details: details}
}

// BadRequest indicates a malformed or semantically invalid request.
func BadRequest(message string, details ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "bad_request", Message: message, Details: details}
}

// Unauthorized indicates missing or invalid credentials.
func Unauthorized(message string, details ...any) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: message, Details: details}
}

// Forbidden indicates the caller may not access the resource.
func Forbidden(message string, details ...any) *Error {
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Message: message, Details: details}
}

// Conflict indicates the request clashes with current resource state,
// e.g. a pipeline run already in flight for the document.
func Conflict(message string, details ...any) *Error {
	return &Error{Status: http.StatusConflict, Code: "conflict", Message: message, Details: details}
}

// RateLimited indicates the caller exceeded a request budget.
func RateLimited(message string, details ...any) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: message, Details: details}
}

// Internal indicates an unexpected server-side failure.
func Internal(message string, details ...any) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: message, Details: details}
}

// Upstream indicates a dependent service (LLM provider, vector store,
// embedding API) failed in a non-transient way.
func Upstream(message string, details ...any) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "upstream_error", Message: message, Details: details}
}

// DependencyMissing indicates a format backend or collaborator is not
// available, as opposed to the input being corrupt.
func DependencyMissing(message string, details ...any) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: "dependency_missing", Message: message, Details: details}
}

// ValidationItem describes a single invalid field in a request body.
type ValidationItem struct {
	Type string `json:"type"`
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
}

// Validation indicates a request failed field-level validation.
func Validation(message string, items ...ValidationItem) *Error {
	details := make([]any, 0, len(items))
	for _, it := range items {
		details = append(details, it)
	}
	return &Error{Status: http.StatusUnprocessableEntity, Code: "validation_error", Message: message, Details: details}
}

// FieldError is a convenience for a single-field validation failure.
func FieldError(field, msg string) *Error {
	return Validation("Request validation failed", ValidationItem{
		Type: "value_error",
		Loc:  []any{"body", field},
		Msg:  msg,
	})
}

// From returns err as an *Error, wrapping unexpected errors as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error")
}

// IsDomain reports whether err is (or wraps) a typed domain error.
func IsDomain(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr)
}
