// Package errors provides structured error types for stackfix.
//
// Every failure that crosses a package boundary carries a machine-readable
// [Code]. The code is the error's kind: callers branch on it instead of on
// concrete types, and the suggestion generator renders corrective guidance
// from it.
//
// # Error Codes
//
// Codes fall into the categories the resolver cares about:
//   - INVALID_*: input validation failures, fatal before any mutation
//   - AI_RESPONSE_FORMAT, PACKAGE_VERSION_VALIDATION, NO_NEW_SUGGESTION:
//     suggestion-protocol errors, recovered by corrective retries
//   - NO_SUITABLE_VERSION: fatal, ends the whole resolution
//   - NETWORK_ERROR, TIMEOUT: transport failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidTarget, "%s@%s does not exist", name, version)
//	if errors.Is(err, errors.ErrCodeInvalidTarget) {
//	    // Handle validation error
//	}
//
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidTarget   Code = "INVALID_TARGET"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	ErrCodeRunNotFound     Code = "RUN_NOT_FOUND"

	// Network errors
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeTimeout     Code = "TIMEOUT"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Suggestion protocol errors
	ErrCodeAIResponseFormat         Code = "AI_RESPONSE_FORMAT"
	ErrCodePackageVersionValidation Code = "PACKAGE_VERSION_VALIDATION"
	ErrCodeNoNewSuggestion          Code = "NO_NEW_SUGGESTION"
	ErrCodeSuggestionExhausted      Code = "SUGGESTION_EXHAUSTED"

	// Fatal resolution errors
	ErrCodeNoSuitableVersion Code = "NO_SUITABLE_VERSION"

	// Workspace and installer errors
	ErrCodeInstallFailed Code = "INSTALL_FAILED"
	ErrCodeWorkspace     Code = "WORKSPACE"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code     // Machine-readable error code
	Message string   // Human-readable message
	Details []string // Offending entries, one per line in guidance (optional)
	Cause   error    // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails attaches offending entries to the error and returns it.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDetails returns the details of the first *Error in the chain.
func GetDetails(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsSuggestionProtocol reports whether err is recoverable by a corrective
// retry of the reasoning engine.
func IsSuggestionProtocol(err error) bool {
	switch GetCode(err) {
	case ErrCodeAIResponseFormat, ErrCodePackageVersionValidation, ErrCodeNoNewSuggestion:
		return true
	}
	return false
}

// IsFatal reports whether err must end the resolution immediately.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeNoSuitableVersion, ErrCodeInvalidTarget, ErrCodeInvalidPackage,
		ErrCodeInvalidManifest, ErrCodeInvalidPath:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Timeout wraps a deadline expiry as a TIMEOUT error. Other errors pass
// through unchanged.
func Timeout(err error, format string, args ...any) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrCodeTimeout, err, format, args...)
	}
	return err
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
