// internal/agentloop/errors.go
package agentloop

import "fmt"

// AIErrorCode classifies why an agent run could not produce a verdict.
type AIErrorCode string

const (
	// ErrInvalidResponse means the model emitted a verdict object that could
	// not be parsed into a pass/fail result.
	ErrInvalidResponse AIErrorCode = "invalid_response"

	// ErrMaxTurnsReached means the turn budget ran out before a verdict.
	ErrMaxTurnsReached AIErrorCode = "max_turns_reached"

	// ErrProviderFailure means the model call itself failed.
	ErrProviderFailure AIErrorCode = "provider_failure"
)

// AIError is terminal for one agent run. Callers convert it to a failing
// verdict; it never aborts the surrounding test pass.
type AIError struct {
	Code   AIErrorCode
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *AIError) Error() string {
	msg := fmt.Sprintf("agent run failed (%s)", e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *AIError) Unwrap() error {
	return e.Err
}
