package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestInFlight refuses a collaborator call while another one is
	// outstanding for the same session.
	ErrRequestInFlight = errors.New("another request is in progress")
	// ErrStaleResponse reports a collaborator response that arrived after a
	// mode switch, note change or reset and was discarded.
	ErrStaleResponse = errors.New("response discarded: workspace changed while the request was outstanding")
)

// ValidationError aborts an operation before any state change.
type ValidationError struct {
	Op     string
	Reason string
	// Conflict marks operations refused because of the current mode rather
	// than their input.
	Conflict bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func invalid(op, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason}
}

func wrongMode(op string, want Mode) *ValidationError {
	return &ValidationError{Op: op, Reason: fmt.Sprintf("only available in %s mode", want), Conflict: true}
}

// ExternalCallError wraps a failure of the prediction, dictionary or folder
// collaborator.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }
