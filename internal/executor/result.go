package executor

import (
	"time"
)

// Request is one immutable execution request.
type Request struct {
	Language string
	Code     string
	Stdin    string

	// RequestID correlates the execution with the caller's logs. Optional.
	RequestID string
}

// Failure is the terminal result of an execution that produced no program output.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Result is produced exactly once per Request. Exactly one of Output
// (Failure == nil) or Failure is meaningful.
type Result struct {
	ID        string        `json:"id"`
	Language  string        `json:"language"`
	Output    string        `json:"output"`
	Failure   *Failure      `json:"failure,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// OK reports whether the program ran to completion, whatever its exit code.
func (r *Result) OK() bool { return r.Failure == nil }

// Text is the single string returned to clients: the output, or the failure message.
func (r *Result) Text() string {
	if r.Failure != nil {
		return r.Failure.Message
	}
	return r.Output
}

// Outcome is the metric label for the result.
func (r *Result) Outcome() string {
	if r.Failure != nil {
		return string(r.Failure.Kind)
	}
	return "success"
}
