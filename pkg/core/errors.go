package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a chat or voice backend error.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// NewProviderError wraps a backend failure. The underlying error stays
// reachable through errors.Is and errors.As.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrProvider,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying.Error(),
		cause:         underlying,
	}
}

// NewHTTPError classifies a non-2xx backend response.
func NewHTTPError(provider string, status int, body string) *Error {
	e := &Error{
		Message:       fmt.Sprintf("%s returned %d", provider, status),
		Code:          http.StatusText(status),
		ProviderError: body,
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Type = ErrInvalidRequest
	case status == http.StatusUnauthorized:
		e.Type = ErrAuthentication
	case status == http.StatusForbidden:
		e.Type = ErrPermission
	case status == http.StatusNotFound:
		e.Type = ErrNotFound
	case status == http.StatusTooManyRequests:
		e.Type = ErrRateLimit
	case status == http.StatusServiceUnavailable || status == 529:
		e.Type = ErrOverloaded
	default:
		e.Type = ErrAPI
	}
	return e
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsRetryable reports whether err carries a retryable *Error. Nothing in the
// session retries automatically; callers use this to phrase the failure.
func IsRetryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.IsRetryable()
}
