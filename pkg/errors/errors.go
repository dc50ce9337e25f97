// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling for the praxis core.
// Every failure that crosses a module boundary is an *Error with a Code,
// so callers and channel adapters can branch on classification instead of
// string matching.
package errors

import (
	"encoding/json"
	"fmt"
)

// Code classifies praxis errors for callers, monitoring, and recovery.
type Code string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal Code = "INTERNAL_ERROR"

	// CodeInvalidInput indicates request or capability arguments failed validation.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeUnauthorized indicates the caller may not use a capability or agent.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeQuotaExceeded indicates the account balance cannot cover a cost.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"

	// CodeCapabilityTransient indicates a capability failed in a retryable way
	// (rate limiting, brief upstream outage).
	CodeCapabilityTransient Code = "CAPABILITY_TRANSIENT"

	// CodeCapabilityPermanent indicates a capability failed and retrying is pointless.
	CodeCapabilityPermanent Code = "CAPABILITY_PERMANENT"

	// CodeMaxSteps indicates the reasoning loop hit its iteration bound.
	CodeMaxSteps Code = "MAX_STEPS_EXCEEDED"

	// CodeEngineFault indicates the loop itself could not make progress
	// (persistence or model provider unavailable).
	CodeEngineFault Code = "ENGINE_FAULT"

	// CodeSchedulerOverlap indicates a scheduled run was skipped because the
	// previous run of the same task was still in flight.
	CodeSchedulerOverlap Code = "SCHEDULER_OVERLAP"

	// CodeThreadBusy indicates a turn was rejected because another turn holds
	// the same thread.
	CodeThreadBusy Code = "THREAD_BUSY"

	// CodeNotFound indicates a referenced agent, task, or capability does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout Code = "TIMEOUT"
)

// Error is a typed error with classification and structured context.
// It implements the error interface and supports errors.As/Unwrap.
type Error struct {
	Code        Code
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string         `json:"code"`
		Message     string         `json:"message"`
		Cause       string         `json:"cause,omitempty"`
		Recoverable bool           `json:"recoverable"`
		Context     map[string]any `json:"context,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		Context:     e.Context,
	}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code Code, msg string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Recoverable: code == CodeCapabilityTransient || code == CodeTimeout,
		StatusCode:  codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As attempts to convert an error to an *Error, wrapping unknown errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the classification of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if pe, ok := err.(*Error); ok {
		return pe.Code
	}
	return CodeInternal
}

// IsRecoverable reports whether err should be retried.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*Error); ok {
		return pe.Recoverable
	}
	return false
}

// codeToStatusCode maps error codes to HTTP status codes for channel adapters.
func codeToStatusCode(code Code) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeUnauthorized:
		return 403
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 408
	case CodeQuotaExceeded:
		return 402
	case CodeThreadBusy, CodeSchedulerOverlap:
		return 409
	case CodeEngineFault:
		return 503
	default:
		return 500
	}
}
