package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared by every engine. Callers compare with Is; the HTTP layer
// maps them to status codes and OAuth2 error codes.
var (
	// OAuth2 errors
	ErrInvalidClient   = errors.New("invalid client")
	ErrInvalidRedirect = errors.New("invalid redirect URI")
	ErrInvalidGrant    = errors.New("invalid grant")
	ErrInvalidScope    = fmt.Errorf("invalid scope: %w", ErrInvalidGrant)

	// ErrRedirectMismatch is returned when a code is exchanged with a redirect URI other
	// than the one it was issued for. It is an ErrInvalidRedirect.
	ErrRedirectMismatch = fmt.Errorf("redirect URI mismatch: %w", ErrInvalidRedirect)

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTwoFactorRequired  = errors.New("two-factor authentication required")
	ErrTwoFactorInvalid   = errors.New("invalid two-factor code")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTransient      = errors.New("temporarily unavailable")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// transientError keeps the original cause reachable while also matching ErrTransient.
type transientError struct {
	cause error
}

func (e *transientError) Error() string {
	return ErrTransient.Error() + ": " + e.cause.Error()
}

func (e *transientError) Unwrap() []error {
	return []error{ErrTransient, e.cause}
}

// Transient marks err as a retryable store or network failure.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{cause: err}
}

// FromContext converts a context deadline or cancellation into a transient error.
// Any other error is returned as is.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient(err)
	}
	return err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// HTTPStatus maps an error from the taxonomy to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidClient), errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTwoFactorRequired), errors.Is(err, ErrTwoFactorInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrInvalidRedirect), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine readable error code used in JSON error bodies. OAuth2 errors
// use the RFC 6749 names.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "temporarily_unavailable"
	case errors.Is(err, ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrInvalidRedirect):
		return "invalid_grant"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTwoFactorRequired):
		return "two_factor_required"
	case errors.Is(err, ErrTwoFactorInvalid):
		return "two_factor_invalid"
	case errors.Is(err, ErrPermissionDenied):
		return "access_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "server_error"
	}
}
