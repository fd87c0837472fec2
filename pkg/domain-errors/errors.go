// Package domainerrors provides coded domain errors for the registry.
//
// Every public registry operation reports failures as one of these codes so
// callers can branch on outcome without string matching. Stores and
// infrastructure return sentinel errors (pkg/platform/sentinel) and services
// translate them into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies one outcome from the registry error taxonomy.
type Code string

const (
	// Registry taxonomy. These are recoverable, reported outcomes and are
	// never process-fatal; on failure the registry state is unchanged.
	CodeUnauthorized          Code = "unauthorized"
	CodePaused                Code = "paused"
	CodeFacilityNotFound      Code = "facility_not_found"
	CodeEventNotFound         Code = "event_not_found"
	CodeInvalidHash           Code = "invalid_hash"
	CodeInvalidAmount         Code = "invalid_amount"
	CodeInvalidTimestamp      Code = "invalid_timestamp"
	CodeMetadataTooLong       Code = "metadata_too_long"
	CodeDescriptionTooLong    Code = "description_too_long"
	CodeAlreadyVerified       Code = "already_verified"
	CodeDuplicateEvidence     Code = "duplicate_evidence"
	CodeFacilityExists        Code = "facility_exists"
	CodeIndexCapacityExceeded Code = "index_capacity_exceeded"

	// Shell codes used by the transport and service layers.
	CodeInvalidInput    Code = "invalid_input"
	CodeBadRequest      Code = "bad_request"
	CodeNotFound        Code = "not_found"
	CodeUnauthenticated Code = "unauthenticated"
	CodeInternal        Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code and message so errors.Is works against a freshly
// constructed coded error.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/errors.As inspection.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from an error chain. Uncoded errors report
// CodeInternal so transport mapping stays total.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the outermost coded message, falling back to the plain
// error text for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
