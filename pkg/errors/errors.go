package errors

import (
	stderrors "errors"
	"fmt"
)

// Error types for the portal. Codes are the OAuth2 error strings where one
// exists so they can be rendered or forwarded unchanged.
var (
	// ErrInvalidRequest is terminal: the authorization request is missing a
	// mandatory parameter and the flow has to be started again.
	ErrInvalidRequest = &ServiceError{
		Code:    "invalid_request",
		Message: "The authorization request is missing a required parameter",
		Status:  400,
	}

	ErrInvalidCredentials = &ServiceError{
		Code:    "invalid_credentials",
		Message: "Invalid username or password",
		Status:  401,
	}

	// ErrMFARequired is recoverable by resubmitting with a one-time code.
	ErrMFARequired = &ServiceError{
		Code:    "mfa_required",
		Message: "A one-time verification code is required",
		Status:  401,
	}

	// ErrAccessDenied is not a fault; it is what the relying party receives
	// when the user declines consent.
	ErrAccessDenied = &ServiceError{
		Code:    "access_denied",
		Message: "The user denied the request",
		Status:  403,
	}

	ErrInvalidClient = &ServiceError{
		Code:    "invalid_client",
		Message: "Unknown client application",
		Status:  400,
	}

	// ErrTokenExchangeFailed is terminal for the code that was presented.
	ErrTokenExchangeFailed = &ServiceError{
		Code:    "token_exchange_failed",
		Message: "The authorization code could not be exchanged for tokens",
		Status:  502,
	}

	ErrSessionExpired = &ServiceError{
		Code:    "session_expired",
		Message: "Your session has expired, please sign in again",
		Status:  401,
	}

	ErrFlowExpired = &ServiceError{
		Code:    "flow_expired",
		Message: "The sign-in attempt expired, please start again",
		Status:  400,
	}

	ErrRateLimitExceeded = &ServiceError{
		Code:    "rate_limit_exceeded",
		Message: "Too many attempts, try again later",
		Status:  429,
	}

	ErrUpstream = &ServiceError{
		Code:    "upstream_error",
		Message: "The authorization server returned an unexpected response",
		Status:  502,
	}

	ErrInternalServer = &ServiceError{
		Code:    "server_error",
		Message: "Internal server error",
		Status:  500,
	}
)

// ServiceError represents a portal-level error
type ServiceError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies compare equal to the sentinels.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap wraps an error with a ServiceError
func Wrap(err error, serviceErr *ServiceError) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
		Status:  serviceErr.Status,
		Err:     err,
	}
}

// WithMessage copies serviceErr replacing the user-facing message.
func WithMessage(serviceErr *ServiceError, message string) *ServiceError {
	return &ServiceError{
		Code:    serviceErr.Code,
		Message: message,
		Status:  serviceErr.Status,
		Err:     serviceErr.Err,
	}
}

// As returns the first ServiceError in err's chain, or ErrInternalServer
// wrapping err when there is none.
func As(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return Wrap(err, ErrInternalServer)
}
