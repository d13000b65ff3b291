package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"snippet-runner/internal/runtime"
	"snippet-runner/internal/sandbox"
	"snippet-runner/internal/workspace"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unsupported", fmt.Errorf("%w: %q", runtime.ErrUnsupportedLanguage, "cobol"), KindUnsupportedLanguage},
		{"entry point", &runtime.EntryPointError{Language: runtime.Java, Construct: "class name"}, KindNoEntryPoint},
		{"workspace", &workspace.Error{Op: "write", Path: "/x", Err: errors.New("disk full")}, KindWorkspace},
		{"compile", &CompileError{ExitCode: 1}, KindCompile},
		{"timeout", ErrTimeout, KindTimedOut},
		{"launch", &sandbox.LaunchError{Program: "javac", Err: errors.New("not found")}, KindProcessLaunch},
		{"canceled", ErrCanceled, KindCanceled},
		{"context canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			wrapped := &ExecutionError{ExecID: "abc", Op: "running", Err: tt.err}
			assert.Equal(t, tt.want, KindOf(wrapped), "kind must survive wrapping")
		})
	}
}

func TestExecutionError(t *testing.T) {
	err := &ExecutionError{ExecID: "e1", Op: "compiling", Err: ErrTimeout}
	assert.Equal(t, "execution e1: compiling: execution timed out", err.Error())
	assert.True(t, IsTimeout(err))

	bare := &ExecutionError{Op: "dispatching", Err: errors.New("x")}
	assert.Equal(t, "dispatching: x", bare.Error())
}

func TestResult_Text(t *testing.T) {
	ok := &Result{Output: "42\n", Duration: time.Millisecond}
	assert.True(t, ok.OK())
	assert.Equal(t, "42\n", ok.Text())
	assert.Equal(t, "success", ok.Outcome())

	failed := &Result{Output: "ignored", Failure: &Failure{Kind: KindTimedOut, Message: "Error: Code execution timed out."}}
	assert.False(t, failed.OK())
	assert.Equal(t, "Error: Code execution timed out.", failed.Text())
	assert.Equal(t, "timed_out", failed.Outcome())
}

func TestFailureMessages(t *testing.T) {
	java, _ := runtime.DefaultRegistry(nil).Get("java")
	cpp, _ := runtime.DefaultRegistry(nil).Get("c_cpp")

	tests := []struct {
		name string
		rt   runtime.Runtime
		err  error
		want string
	}{
		{"write source", cpp, &workspace.Error{Op: "write", Path: "/ws/main.cpp", Err: errors.New("no space left on device")},
			"Error writing code to file: no space left on device"},
		{"write input", cpp, &workspace.Error{Op: "write", Path: "/ws/input.txt", Err: errors.New("no space left on device")},
			"Error writing input to file: no space left on device"},
		{"create", cpp, &workspace.Error{Op: "create", Path: "/ws", Err: errors.New("permission denied")},
			"Error creating workspace: permission denied"},
		{"compile", cpp, &CompileError{ExitCode: 1, Diagnostics: "main.cpp:1:1: error: x"},
			"Error compiling C++ code:\nmain.cpp:1:1: error: x"},
		{"launch", java, &sandbox.LaunchError{ID: "1", Program: "java", Err: errors.New(`exec: "java": executable file not found in $PATH`)},
			`Error executing Java code: exec: "java": executable file not found in $PATH`},
		{"canceled", java, ErrCanceled, "Error: Code execution was cancelled."},
		{"internal", java, errors.New("boom"), "Error executing Java code: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := &execution{id: "x", rt: tt.rt}
			assert.Equal(t, tt.want, x.failure(&ExecutionError{ExecID: "x", Op: "preparing", Err: tt.err}).Message)
		})
	}
}
