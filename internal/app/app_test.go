//go:build !windows

package app

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snippet-runner/internal/config"
	"snippet-runner/internal/executor"
)

func TestNew_HostLauncher(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Executor.WorkspaceRoot = t.TempDir()

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.Equal(t, "host", a.Launcher.Name())
	assert.Equal(t, cfg.Executor.WorkspaceRoot, a.Workspaces.Root())
	assert.Len(t, a.Runtimes.Languages(), 8)

	res := a.Executor.Execute(context.Background(), executor.Request{Language: "brainfuck", Code: "+"})
	require.NotNil(t, res.Failure)
	assert.Equal(t, executor.KindUnsupportedLanguage, res.Failure.Kind)
}

func TestNew_LanguageOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Executor.WorkspaceRoot = t.TempDir()
	cfg.Languages["ruby"] = config.LanguageConfig{Interpreter: "definitely-not-a-ruby"}

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res := a.Executor.Execute(context.Background(), executor.Request{Language: "ruby", Code: "puts 1"})
	require.NotNil(t, res.Failure)
	assert.Equal(t, executor.KindProcessLaunch, res.Failure.Kind)
	assert.Contains(t, res.Text(), "Error executing Ruby code")
}

func TestNew_PythonEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	cfg := config.DefaultConfig()
	cfg.Executor.WorkspaceRoot = t.TempDir()

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res := a.Executor.Execute(context.Background(), executor.Request{Language: "python", Code: "print(int(input()) * 2)", Stdin: "21\n"})
	require.Nil(t, res.Failure)
	assert.Equal(t, "42\n", res.Output)
}

func TestNew_BadMaxOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Executor.MaxOutput = "huge"

	_, err := New(cfg)
	assert.Error(t, err)
}
