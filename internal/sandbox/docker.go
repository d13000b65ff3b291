package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"snippet-runner/internal/runtime"
	"snippet-runner/pkg/seccomp"
)

const containerPrefix = "runner-"

// removeTimeout bounds a single `docker rm -f`.
const removeTimeout = 10 * time.Second

// DockerConfig configures the docker launcher.
type DockerConfig struct {
	Binary  string
	Limits  ResourceLimits
	Network bool
	Seccomp bool
	User    string // uid:gid inside the container; defaults to the server's own
}

// DockerLauncher wraps every step in a throwaway `docker run` container with
// the workspace bind-mounted at the same path.
type DockerLauncher struct {
	binary      string
	limits      ResourceLimits
	network     bool
	user        string
	dockerHost  string
	seccompPath string
	env         []string

	cancelCleanup context.CancelFunc
	wg            sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDockerLauncher checks that the docker CLI is usable and writes the seccomp profile.
func NewDockerLauncher(cfg DockerConfig) (*DockerLauncher, error) {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if cfg.Limits == (ResourceLimits{}) {
		cfg.Limits = DefaultLimits()
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("docker not found in PATH: %w", err)
	}
	if cfg.User == "" {
		cfg.User = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	}

	d := &DockerLauncher{
		binary:     cfg.Binary,
		limits:     cfg.Limits,
		network:    cfg.Network,
		user:       cfg.User,
		dockerHost: resolveDockerHost(cfg.Binary),
	}
	d.env = os.Environ()
	if d.dockerHost != "" {
		d.env = append(d.env, "DOCKER_HOST="+d.dockerHost)
	}

	if err := exec.Command(d.binary, "info").Run(); err != nil { // #nosec G204 -- fixed args
		return nil, fmt.Errorf("docker daemon not reachable: %w", err)
	}

	if cfg.Seccomp {
		path, err := seccomp.WriteDockerProfile("", cfg.Network)
		if err != nil {
			return nil, fmt.Errorf("writing seccomp profile: %w", err)
		}
		d.seccompPath = path
	}

	return d, nil
}

func (d *DockerLauncher) Name() string { return "docker" }

func (d *DockerLauncher) Prepare(id string, cmd runtime.Command) (Invocation, error) {
	if len(cmd.Args) == 0 {
		return Invocation{}, &LaunchError{ID: id, Program: d.binary, Err: ErrEmptyCommand}
	}
	if cmd.Image == "" {
		return Invocation{}, &LaunchError{ID: id, Program: cmd.Args[0], Err: fmt.Errorf("no container image configured")}
	}

	name := containerPrefix + id
	return Invocation{
		Path:     d.binary,
		Args:     d.buildDockerArgs(name, cmd),
		Dir:      cmd.Dir,
		Env:      d.env,
		Teardown: func() { d.removeAsync(name) },
	}, nil
}

func (d *DockerLauncher) buildDockerArgs(name string, cmd runtime.Command) []string {
	network := "none"
	if d.network {
		network = "bridge"
	}

	args := []string{
		"run", "--rm",
		"--name", name,
		"--network", network,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
	}
	if d.seccompPath != "" {
		args = append(args, "--security-opt", "seccomp="+d.seccompPath)
	}
	if cmd.Stdin != "" {
		// The docker client forwards its own stdin, which is the input file.
		args = append(args, "-i")
	}
	args = append(args, d.limits.dockerArgs()...)
	args = append(args,
		"--read-only",
		"--user", d.user,
		"-v", fmt.Sprintf("%s:%s:rw", cmd.Dir, cmd.Dir),
		"-w", cmd.Dir,
		"-e", "HOME=/tmp",
		"-e", "LANG=C.UTF-8",
		cmd.Image,
	)
	return append(args, cmd.Args...)
}

// removeAsync removes the container in the background. Close waits for
// pending removals; once closed, removal runs inline.
func (d *DockerLauncher) removeAsync(name string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.remove(name)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.remove(name)
	}()
}

func (d *DockerLauncher) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	rm := exec.CommandContext(ctx, d.binary, "rm", "-f", name) // #nosec G204 -- name built internally
	rm.Env = d.env
	if out, err := rm.CombinedOutput(); err != nil && !strings.Contains(string(out), "No such container") {
		log.Warn().Err(err).Str("container", name).Msg("failed to remove container")
	}
}

// StartOrphanCleanup removes leftover runner containers now and then every interval.
func (d *DockerLauncher) StartOrphanCleanup(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancelCleanup = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.CleanupOrphans(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.CleanupOrphans(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CleanupOrphans force-removes runner containers older than a few minutes,
// which can only be survivors of a crashed server.
func (d *DockerLauncher) CleanupOrphans(ctx context.Context) int {
	ps := exec.CommandContext(ctx, d.binary, "ps", "-a", // #nosec G204 -- no user input
		"--filter", "name="+containerPrefix,
		"--format", "{{.ID}} {{.RunningFor}}")
	ps.Env = d.env
	out, err := ps.Output()
	if err != nil {
		log.Debug().Err(err).Msg("listing runner containers failed")
		return 0
	}

	removed := 0
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		id, age, ok := strings.Cut(line, " ")
		if !ok || !isOrphanAge(age) {
			continue
		}
		log.Warn().Str("container_id", id).Str("age", age).Msg("removing orphaned runner container")
		d.remove(id)
		removed++
	}
	return removed
}

// isOrphanAge reports whether a docker "RunningFor" string is older than
// any single request could live.
func isOrphanAge(age string) bool {
	return strings.Contains(age, "minutes") || strings.Contains(age, "hour") ||
		strings.Contains(age, "day") || strings.Contains(age, "week") || strings.Contains(age, "month")
}

// Close stops the cleanup loop, waits for pending container removals and
// removes the seccomp profile file.
func (d *DockerLauncher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if d.cancelCleanup != nil {
		d.cancelCleanup()
	}
	d.wg.Wait()
	if d.seccompPath != "" {
		return os.Remove(d.seccompPath)
	}
	return nil
}

// resolveDockerHost figures out the Docker socket. On macOS, Docker Desktop uses
// a context-specific socket that child processes don't inherit.
func resolveDockerHost(binary string) string {
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		return h
	}

	out, err := exec.Command(binary, "context", "inspect", "--format", "{{.Endpoints.docker.Host}}").Output() // #nosec G204 -- fixed args
	if err == nil {
		host := strings.TrimSpace(string(out))
		if host != "" {
			log.Debug().Str("docker_host", host).Msg("resolved Docker host from context")
			return host
		}
	}

	return ""
}
