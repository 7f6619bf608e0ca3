package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for reporting and
// recovery decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on a later run.
	// Examples: network timeouts, a mirror that is briefly unavailable.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a state conflict, such as two packages that
	// should not be installed together.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, permission denied, unknown package.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Phase is the phase ID that caused the error, if applicable.
	Phase string `json:"phase,omitempty"`

	// Operation is the operation being performed (check, apply, rollback).
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Phase != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (phase=%s, operation=%s): %s",
			e.Class, e.Message, e.Phase, e.Operation, e.unwrapMessage())
	}
	if e.Phase != "" {
		return fmt.Sprintf("[%s] %s (phase=%s): %s",
			e.Class, e.Message, e.Phase, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithPhase adds phase context to an error.
func (e *EngineError) WithPhase(phaseID string) *EngineError {
	e.Phase = phaseID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// CodeOf returns the code of the first EngineError in the chain, or "".
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Error codes.
const (
	ErrCodeUnresolvedPackage  = "UNRESOLVED_PACKAGE"
	ErrCodeUnsupportedPackage = "UNSUPPORTED_ON_MANAGER"
	ErrCodePackageConflict    = "PACKAGE_CONFLICT"
	ErrCodePhaseCheck         = "PHASE_CHECK_ERROR"
	ErrCodePhaseApply         = "PHASE_APPLY_FAILURE"
	ErrCodeRollback           = "ROLLBACK_FAILURE"
	ErrCodeInterrupted        = "INTERRUPTED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeValidation         = "VALIDATION_ERROR"
)

// unchangedError marks an apply error that happened before any state was
// modified.
type unchangedError struct {
	err error
}

func (u *unchangedError) Error() string { return u.err.Error() }
func (u *unchangedError) Unwrap() error { return u.err }

// Unchanged wraps err to tell the executor that the failing apply did not
// modify the system, so no rollback is needed.
func Unchanged(err error) error {
	if err == nil {
		return nil
	}
	return &unchangedError{err: err}
}

// IsUnchanged reports whether err was wrapped with Unchanged.
func IsUnchanged(err error) bool {
	var u *unchangedError
	return errors.As(err, &u)
}
