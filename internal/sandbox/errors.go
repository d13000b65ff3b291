package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrProcessLaunch = errors.New("process launch failed")
	ErrInvalidLimits = errors.New("invalid resource limits")
	ErrEmptyCommand  = errors.New("empty command")
)

// LaunchError wraps a failure to start a child process.
type LaunchError struct {
	ID      string
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("process %s: launch %s: %s", e.ID, e.Program, e.Err)
	}
	return fmt.Sprintf("launch %s: %s", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

func (e *LaunchError) Is(target error) bool {
	return target == ErrProcessLaunch
}

// IsLaunchError returns true if the error is a failure to start a process.
func IsLaunchError(err error) bool {
	return errors.Is(err, ErrProcessLaunch)
}
