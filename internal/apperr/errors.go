package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	ValidationFailed      Kind = "validation_failed"
	DomainRuleViolation   Kind = "domain_rule_violation"
	NotFound              Kind = "not_found"
	ResourceBusy          Kind = "resource_busy"
	InvalidCredentials    Kind = "invalid_credentials"
	AccountLocked         Kind = "account_locked"
	DuplicateEmail        Kind = "duplicate_email"
	InvalidOrExpiredToken Kind = "invalid_or_expired_token"
	InvalidToken          Kind = "invalid_token"
	TokenRevoked          Kind = "token_revoked"
	Forbidden             Kind = "forbidden"
	RequestCanceled       Kind = "request_canceled"
	StorageError          Kind = "storage_error"
	InfrastructureError   Kind = "infrastructure_error"
)

// StatusClientClosedRequest is reported when the caller went away before a
// result was ready.
const StatusClientClosedRequest = 499

// GenericTokenMessage is the only message callers ever see for a rejected token.
const GenericTokenMessage = "invalid or expired token"

type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(messages []string) *Error {
	message := "invalid data"
	if len(messages) > 0 {
		message = messages[0]
	}
	details := make([]string, len(messages))
	copy(details, messages)
	return &Error{Kind: ValidationFailed, Message: message, Details: details}
}

func Storage(op string, err error) *Error {
	return &Error{Kind: StorageError, Message: op, Err: err}
}

// Canceled marks a context error as the caller abandoning the request.
func Canceled(err error) *Error {
	return &Error{Kind: RequestCanceled, Message: "request canceled", Err: err}
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return InfrastructureError
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func StatusCode(kind Kind) int {
	switch kind {
	case ValidationFailed:
		return http.StatusUnprocessableEntity
	case DomainRuleViolation, DuplicateEmail:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case ResourceBusy, AccountLocked:
		return http.StatusTooManyRequests
	case InvalidCredentials, InvalidOrExpiredToken, InvalidToken, TokenRevoked:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case RequestCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsBusiness reports whether the kind is produced deliberately by the
// application rather than by an unexpected dependency failure.
func IsBusiness(kind Kind) bool {
	switch kind {
	case StorageError, InfrastructureError:
		return false
	default:
		return true
	}
}

// Outward returns the message and detail list safe to show a caller.
func Outward(err error) (string, []string) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return "internal server error", []string{"internal server error"}
	}

	switch appErr.Kind {
	case InvalidOrExpiredToken, InvalidToken, TokenRevoked:
		return GenericTokenMessage, []string{GenericTokenMessage}
	case StorageError, InfrastructureError:
		return "internal server error", []string{"internal server error"}
	}

	if len(appErr.Details) > 0 {
		return appErr.Message, appErr.Details
	}
	return appErr.Message, []string{appErr.Message}
}
