package sandbox

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"snippet-runner/internal/runtime"
)

// defaultWaitDelay bounds how long Wait keeps reading pipes held open by
// stray descendants after the direct child has exited.
const defaultWaitDelay = 500 * time.Millisecond

// ExitOutcome is what a finished process left behind.
type ExitOutcome struct {
	ExitCode  int
	Output    string
	Truncated bool
	Duration  time.Duration

	// Killed is set when Terminate stopped the process before it exited.
	Killed bool
}

// Runner starts child processes through a Launcher and captures their output.
type Runner struct {
	launcher  Launcher
	maxOutput int64
	waitDelay time.Duration
}

// NewRunner creates a runner whose processes keep at most maxOutput bytes of output.
func NewRunner(l Launcher, maxOutput int64) *Runner {
	return &Runner{
		launcher:  l,
		maxOutput: maxOutput,
		waitDelay: defaultWaitDelay,
	}
}

// Launcher returns the isolation backend in use.
func (r *Runner) Launcher() Launcher { return r.launcher }

// Start spawns cmd. Stdout and stderr are merged into one bounded buffer;
// stdin is read from cmd.Stdin when set. The returned Process is already
// being reaped by its own goroutine.
func (r *Runner) Start(id string, cmd runtime.Command) (*Process, error) {
	inv, err := r.launcher.Prepare(id, cmd)
	if err != nil {
		return nil, err
	}

	c := exec.Command(inv.Path, inv.Args...) // #nosec G204 -- argv comes from the toolchain table
	c.Dir = inv.Dir
	c.Env = inv.Env
	c.WaitDelay = r.waitDelay
	setProcessGroup(c)

	out := newBoundedBuffer(r.maxOutput)
	c.Stdout = out
	c.Stderr = out

	var stdin *os.File
	if cmd.Stdin != "" {
		stdin, err = os.Open(cmd.Stdin)
		if err != nil {
			return nil, &LaunchError{ID: id, Program: inv.Path, Err: err}
		}
		c.Stdin = stdin
	}

	start := time.Now()
	err = c.Start()
	if stdin != nil {
		// The child holds its own descriptor now.
		_ = stdin.Close()
	}
	if err != nil {
		if inv.Teardown != nil {
			inv.Teardown()
		}
		return nil, &LaunchError{ID: id, Program: inv.Path, Err: err}
	}

	p := &Process{
		id:       id,
		cmd:      c,
		out:      out,
		start:    start,
		teardown: inv.Teardown,
		done:     make(chan struct{}),
	}
	go p.reap()

	log.Debug().
		Str("process_id", id).
		Int("pid", c.Process.Pid).
		Str("launcher", r.launcher.Name()).
		Str("command", cmd.String()).
		Msg("process started")

	return p, nil
}

// Process is one running child. It is owned by a single request.
type Process struct {
	id       string
	cmd      *exec.Cmd
	out      *boundedBuffer
	start    time.Time
	teardown func()

	mu       sync.Mutex
	exited   bool
	killed   bool
	duration time.Duration
	waitErr  error

	teardownOnce sync.Once
	done         chan struct{}
}

// reap waits for the direct child, then kills whatever it left running in
// its process group. A program that exits on its own takes its background
// children with it.
func (p *Process) reap() {
	err := p.cmd.Wait()
	reapProcessGroup(p.cmd)

	p.mu.Lock()
	p.exited = true
	p.duration = time.Since(p.start)
	p.waitErr = err
	p.mu.Unlock()

	p.runTeardown()
	close(p.done)
}

func (p *Process) runTeardown() {
	if p.teardown == nil {
		return
	}
	p.teardownOnce.Do(p.teardown)
}

// ID returns the identifier the process was started with.
func (p *Process) ID() string { return p.id }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process has been reaped and returns its outcome.
func (p *Process) Wait() ExitOutcome {
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()

	output, truncated := p.out.String()
	return ExitOutcome{
		ExitCode:  exitCode(p.cmd, p.waitErr),
		Output:    output,
		Truncated: truncated,
		Duration:  p.duration,
		Killed:    p.killed,
	}
}

// Terminate kills the whole process group and runs the launcher teardown.
// It is safe to call any number of times, before or after exit. Teardown
// must not block; launchers with slow cleanup run it in the background.
func (p *Process) Terminate() {
	p.mu.Lock()
	if p.exited || p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	killProcessGroup(p.cmd)
	p.mu.Unlock()

	p.runTeardown()
	log.Debug().Str("process_id", p.id).Msg("process terminated")
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}
