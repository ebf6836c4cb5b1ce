// internal/channel/errors.go
package channel

import "fmt"

// ActionErrorCode classifies why an action could not be executed. Consumers
// classify failures with errors.As instead of string matching.
type ActionErrorCode string

const (
	// ErrUnsupportedAction means the descriptor's kind is not in the
	// dispatch vocabulary.
	ErrUnsupportedAction ActionErrorCode = "unsupported_action"

	// ErrMissingArgument means a field the kind requires is absent.
	ErrMissingArgument ActionErrorCode = "missing_argument"

	// ErrBackendFailure means the browser backend itself errored.
	ErrBackendFailure ActionErrorCode = "backend_failure"
)

// ActionError is the failure type for one dispatched action.
type ActionError struct {
	Code   ActionErrorCode
	Action string
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	msg := fmt.Sprintf("action %q failed (%s)", e.Action, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewUnsupportedAction reports an unrecognized action kind.
func NewUnsupportedAction(action string) *ActionError {
	return &ActionError{Code: ErrUnsupportedAction, Action: action}
}

// NewMissingArgument reports an absent required field for the given kind.
func NewMissingArgument(action, field string) *ActionError {
	return &ActionError{Code: ErrMissingArgument, Action: action, Detail: "missing " + field}
}

// NewBackendFailure wraps a browser-level error.
func NewBackendFailure(action string, err error) *ActionError {
	return &ActionError{Code: ErrBackendFailure, Action: action, Err: err}
}
