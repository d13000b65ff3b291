package sandbox

import (
	"os"
	"strings"

	"snippet-runner/internal/runtime"
)

// Launcher turns a toolchain command into the concrete process that gets spawned.
// It is the isolation boundary: the host launcher runs the command as-is,
// the docker launcher wraps it in a locked-down container.
type Launcher interface {
	Name() string
	Prepare(id string, cmd runtime.Command) (Invocation, error)
}

// Invocation is a fully resolved process to start.
type Invocation struct {
	Path string
	Args []string
	Dir  string
	Env  []string

	// Teardown runs once when the process is done, whether it exited or
	// was terminated, for resources the process group kill cannot reach
	// (e.g. a container). It must return promptly.
	Teardown func()
}

// envBlocklist contains env var keys that must never reach a user program.
var envBlocklist = map[string]bool{
	"LD_PRELOAD":        true,
	"LD_LIBRARY_PATH":   true,
	"HTTP_PROXY":        true,
	"HTTPS_PROXY":       true,
	"PYTHONPATH":        true,
	"RUBYOPT":           true,
	"JAVA_TOOL_OPTIONS": true,
	"CONFIG_PATH":       true,
	"DOCKER_HOST":       true,
}

// HostLauncher runs commands directly on the host with a scrubbed environment.
type HostLauncher struct {
	env []string
}

func NewHostLauncher() *HostLauncher {
	return &HostLauncher{env: scrubEnv(os.Environ())}
}

func (h *HostLauncher) Name() string { return "host" }

func (h *HostLauncher) Prepare(id string, cmd runtime.Command) (Invocation, error) {
	if len(cmd.Args) == 0 {
		return Invocation{}, &LaunchError{ID: id, Err: ErrEmptyCommand}
	}
	env := h.env
	if cmd.Dir != "" {
		env = append(env[:len(env):len(env)], "PWD="+cmd.Dir)
	}
	return Invocation{
		Path: cmd.Args[0],
		Args: cmd.Args[1:],
		Dir:  cmd.Dir,
		Env:  env,
	}, nil
}

func scrubEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if envBlocklist[key] || key == "PWD" {
			continue
		}
		out = append(out, kv)
	}
	return out
}
