// Package domainerrors carries a stable machine-readable Code alongside an
// error so services can translate store failures into client-facing outcomes
// without string matching.
//
// Usage:
//
//	return dErrors.New(dErrors.CodeUnauthorized, "api key revoked")
//	return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "vault write failed")
//	if dErrors.HasCode(err, dErrors.CodeNoTokensFound) { ... }
package domainerrors

import (
	"errors"
)

// Code identifies a class of domain failure. Codes are part of the public
// HTTP contract (they appear in the "error" field of error bodies).
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidRequest     Code = "invalid_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeRateLimited        Code = "rate_limited"

	// Redaction gateway taxonomy.
	CodeUnknownPolicyContext     Code = "unknown_policy_context"
	CodeStorageUnavailable       Code = "storage_unavailable"
	CodePolicyForbidsRestoration Code = "policy_forbids_restoration"
	CodeNoTokensFound            Code = "no_tokens_found"
	CodeGraderUnavailable        Code = "grader_unavailable"
	CodeGraderMalformedOutput    Code = "grader_malformed_output"
	CodeDetectorUnavailable      Code = "detector_unavailable"
)

// Error is a coded domain error. The wrapped cause is never shown to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without an underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping a nil error returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// MessageOf returns the client-safe message of the outermost coded error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
