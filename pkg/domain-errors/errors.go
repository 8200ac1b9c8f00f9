// Package domainerrors provides code-classified errors for the verification
// engine. Services construct these; the HTTP layer translates codes into
// status responses. Infra layers return pkg/platform/sentinel errors instead
// and services wrap them here.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for log severity routing.
type Code string

const (
	// CodeBadRequest marks a malformed request (unparseable body, bad ID).
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks caller-correctable input problems, e.g. a missing
	// required document. Never treated as a security event.
	CodeValidation Code = "validation"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a lost concurrent-modification race; callers should
	// refresh and retry.
	CodeConflict Code = "conflict"
	// CodeInvalidState marks a transition attempted from the wrong state.
	CodeInvalidState Code = "invalid_state"
	// CodeExpired marks an expired token or deadline.
	CodeExpired Code = "expired"
	// CodeUnauthorized marks missing or unusable credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authenticated caller acting outside its rights.
	CodeForbidden Code = "forbidden"
	// CodeSecurity marks scope mismatches, exhausted re-upload attempts and
	// similar events that warrant elevated logging.
	CodeSecurity Code = "security"
	// CodeTimeout marks a cancelled or deadline-exceeded operation.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks a collaborator (store, broker) being down.
	CodeUnavailable Code = "unavailable"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a caller-facing message and optional detail fields.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Add attaches a detail field to a domain error and returns it. Non-domain
// errors are wrapped as CodeInternal first.
func Add(err error, key, value string) *Error {
	var de *Error
	if !errors.As(err, &de) {
		de = Wrap(err, CodeInternal, "internal error")
	}
	if de.Fields == nil {
		de.Fields = make(map[string]string)
	}
	de.Fields[key] = value
	return de
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// HasCode is an alias of Is kept for call-site readability in conditionals.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the router should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeSecurity:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
