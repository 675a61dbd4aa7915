// Package ocpistatus defines the OCPI application-level status codes and the
// coded error type used across service boundaries. Every HTTP response carries
// one of these codes alongside the transport status; clients must not infer
// the outcome from the HTTP status alone.
package ocpistatus

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is an OCPI application status code. 1000 is success, the 2000 range
// covers request/credential errors raised by this platform, the 3000 range
// covers partner-communication errors.
type Code int

const (
	Success Code = 1000

	GenericClientError   Code = 2000
	InvalidParameters    Code = 2001
	NotEnoughInformation Code = 2002
	UnknownLocation      Code = 2003

	GenericServerError Code = 3000
	UnableToUseAPI     Code = 3001
	UnsupportedVersion Code = 3002
	NoMatchingEndpoint Code = 3003
)

// Error carries an OCPI status code, a human-readable status message and the
// HTTP status the transport layer should answer with.
type Error struct {
	Code       Code
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ocpi %d: %s", e.Code, e.Message)
}

// New builds an Error with an explicit HTTP status. Prefer the taxonomy
// helpers below.
func New(code Code, httpStatus int, format string, args ...any) *Error {
	return &Error{Code: code, HTTPStatus: httpStatus, Message: fmt.Sprintf(format, args...)}
}

// Invalid marks a malformed request: rejected before any mutation, HTTP 400.
func Invalid(format string, args ...any) *Error {
	return New(InvalidParameters, http.StatusBadRequest, format, args...)
}

// Forbidden marks an unknown or blocked access token, HTTP 403.
func Forbidden(format string, args ...any) *Error {
	return New(GenericClientError, http.StatusForbidden, format, args...)
}

// NotAllowed marks a verb used in the wrong registration state, HTTP 405.
func NotAllowed(format string, args ...any) *Error {
	return New(GenericClientError, http.StatusMethodNotAllowed, format, args...)
}

// PartnerUnreachable marks a failed outbound round-trip to the partner
// platform during registration, HTTP 405.
func PartnerUnreachable(format string, args ...any) *Error {
	return New(UnableToUseAPI, http.StatusMethodNotAllowed, format, args...)
}

// VersionNotFound marks a partner version list that lacks our supported
// version, HTTP 405.
func VersionNotFound(format string, args ...any) *Error {
	return New(NoMatchingEndpoint, http.StatusMethodNotAllowed, format, args...)
}

// Internal marks an unexpected server-side failure, HTTP 500.
func Internal(format string, args ...any) *Error {
	return New(GenericServerError, http.StatusInternalServerError, format, args...)
}

// From extracts the coded error from err, or wraps err as Internal so the
// transport layer always has a code and an HTTP status to answer with.
func From(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return Internal("%s", err.Error())
}

// Is reports whether err carries the given status code.
func Is(err error, code Code) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == code
}
