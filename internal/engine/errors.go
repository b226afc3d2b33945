package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sourcechain/internal/action"
)

// ErrBaseNotFound is returned by add_link when the base entry is unknown.
var ErrBaseNotFound = errors.New("link base entry not found")

// DispatchError reports a failure of the dispatch bridge itself, as opposed
// to a failure of the action (which travels in Response.Err).
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Message is a human-readable description.
	Message string

	// ActionID is the wrapper ID of the abandoned dispatch.
	ActionID string

	// Kind is the action kind.
	Kind action.Kind

	// Err is the underlying cause, if any.
	Err error
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeTimeout indicates no response arrived within the dispatch
	// timeout.
	ErrCodeTimeout DispatchErrorCode = "TIMEOUT"

	// ErrCodeCancelled indicates the caller's context ended first.
	ErrCodeCancelled DispatchErrorCode = "CANCELLED"

	// ErrCodeEngineStopped indicates the engine is not accepting or
	// processing events.
	ErrCodeEngineStopped DispatchErrorCode = "ENGINE_STOPPED"

	// ErrCodeQuotaExceeded indicates too many dispatches are in flight.
	ErrCodeQuotaExceeded DispatchErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ActionID != "" {
		msg = fmt.Sprintf("%s (action=%s, kind=%s)", msg, e.ActionID, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsTimeout returns true if the error is a dispatch timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsEngineStopped returns true if the engine was stopped.
func IsEngineStopped(err error) bool {
	return hasCode(err, ErrCodeEngineStopped)
}

// IsQuotaError returns true if too many dispatches were in flight.
func IsQuotaError(err error) bool {
	return hasCode(err, ErrCodeQuotaExceeded)
}

func hasCode(err error, code DispatchErrorCode) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

func newTimeoutError(w action.Wrapper, d time.Duration) *DispatchError {
	return &DispatchError{
		Code:     ErrCodeTimeout,
		Message:  fmt.Sprintf("no response within %s", d),
		ActionID: w.ID,
		Kind:     w.Action.Kind(),
	}
}

func newCancelledError(w action.Wrapper, cause error) *DispatchError {
	return &DispatchError{
		Code:     ErrCodeCancelled,
		Message:  "dispatch cancelled",
		ActionID: w.ID,
		Kind:     w.Action.Kind(),
		Err:      cause,
	}
}

func newStoppedError(w action.Wrapper) *DispatchError {
	return &DispatchError{
		Code:     ErrCodeEngineStopped,
		Message:  "engine stopped",
		ActionID: w.ID,
		Kind:     w.Action.Kind(),
	}
}
