package executor

import (
	"context"
	"errors"
	"fmt"

	"snippet-runner/internal/runtime"
	"snippet-runner/internal/sandbox"
	"snippet-runner/internal/workspace"
)

// Sentinel errors for typed error checking.
var (
	ErrUnsupportedLanguage = runtime.ErrUnsupportedLanguage
	ErrNoEntryPoint        = runtime.ErrNoEntryPoint
	ErrWorkspace           = workspace.ErrWorkspace
	ErrCompile             = errors.New("compilation failed")
	ErrTimeout             = errors.New("execution timed out")
	ErrProcessLaunch       = sandbox.ErrProcessLaunch
	ErrCanceled            = errors.New("execution canceled")
)

// Kind classifies a failed execution.
type Kind string

const (
	KindUnsupportedLanguage Kind = "unsupported_language"
	KindNoEntryPoint        Kind = "no_entry_point"
	KindWorkspace           Kind = "workspace_error"
	KindCompile             Kind = "compile_error"
	KindTimedOut            Kind = "timed_out"
	KindProcessLaunch       Kind = "process_launch_error"
	KindCanceled            Kind = "canceled"
	KindInternal            Kind = "internal_error"
)

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrUnsupportedLanguage):
		return KindUnsupportedLanguage
	case errors.Is(err, ErrNoEntryPoint):
		return KindNoEntryPoint
	case errors.Is(err, ErrWorkspace):
		return KindWorkspace
	case errors.Is(err, ErrCompile):
		return KindCompile
	case errors.Is(err, ErrTimeout):
		return KindTimedOut
	case errors.Is(err, ErrProcessLaunch):
		return KindProcessLaunch
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The stage that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CompileError carries the compiler diagnostics.
type CompileError struct {
	ExitCode    int
	Diagnostics string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: exit code %d", ErrCompile, e.ExitCode)
}

func (e *CompileError) Is(target error) bool { return target == ErrCompile }

// IsTimeout returns true if the error is a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
