//go:build !windows

package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snippet-runner/internal/monitor"
	"snippet-runner/internal/runtime"
	"snippet-runner/internal/sandbox"
	"snippet-runner/internal/workspace"
)

// shellRuntime treats the submitted code as a shell script.
type shellRuntime struct {
	name    runtime.Language
	compile func(l runtime.Layout) []string
	run     func(l runtime.Layout) []string
}

func (s shellRuntime) Name() runtime.Language { return s.name }
func (s shellRuntime) DisplayName() string    { return "Shell" }
func (s shellRuntime) Image() string          { return "busybox" }

func (s shellRuntime) EntryFile(code string) (string, error) {
	if strings.Contains(code, "NOENTRY") {
		return "", &runtime.EntryPointError{Language: s.name, Construct: "script name"}
	}
	return "main.sh", nil
}

func (s shellRuntime) CompileCommand(l runtime.Layout) *runtime.Command {
	if s.compile == nil {
		return nil
	}
	return &runtime.Command{Args: s.compile(l), Dir: l.Dir}
}

func (s shellRuntime) RunCommand(l runtime.Layout) runtime.Command {
	args := []string{"sh", l.Source()}
	if s.run != nil {
		args = s.run(l)
	}
	return runtime.Command{Args: args, Dir: l.Dir, Stdin: l.Input()}
}

// script builds a compile step running body with the source path as $1.
func script(body string) func(l runtime.Layout) []string {
	return func(l runtime.Layout) []string { return []string{"sh", "-c", body, "sh", l.Source()} }
}

// countingStarter records how many processes were spawned.
type countingStarter struct {
	inner  Starter
	starts atomic.Int32
}

func (c *countingStarter) Start(id string, cmd runtime.Command) (*sandbox.Process, error) {
	c.starts.Add(1)
	return c.inner.Start(id, cmd)
}

type testEnv struct {
	exec    *Executor
	starter *countingStarter
	ws      *workspace.Manager
	metrics *monitor.Metrics
}

func newTestEnv(t *testing.T, deadline time.Duration, maxOutput int64, maxConcurrent int, rts ...runtime.Runtime) *testEnv {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	if len(rts) == 0 {
		rts = []runtime.Runtime{
			shellRuntime{name: "sh"},
			shellRuntime{name: "compiled", compile: script("cp main.sh built.sh"),
				run: func(l runtime.Layout) []string { return []string{"sh", filepath.Join(l.Dir, "built.sh")} }},
			shellRuntime{name: "broken", compile: script(`echo "$1:1: syntax error" >&2; exit 2`)},
			shellRuntime{name: "slowbuild", compile: script("sleep 0.4")},
			shellRuntime{name: "missing", run: func(runtime.Layout) []string { return []string{"/nonexistent/interpreter"} }},
		}
	}
	java, err := runtime.DefaultRegistry(nil).Get("java")
	require.NoError(t, err)
	rts = append(rts, java)

	wsm, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)

	starter := &countingStarter{inner: sandbox.NewRunner(sandbox.NewHostLauncher(), maxOutput)}
	metrics := monitor.NewMetrics()
	e, err := New(Options{
		Runtimes:      runtime.NewRegistry(rts...),
		Workspaces:    wsm,
		Runner:        starter,
		Metrics:       metrics,
		Deadline:      deadline,
		MaxConcurrent: maxConcurrent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return &testEnv{exec: e, starter: starter, ws: wsm, metrics: metrics}
}

func (env *testEnv) workspaceCount(t *testing.T) int {
	t.Helper()
	require.NoError(t, env.exec.Close())
	entries, err := os.ReadDir(env.ws.Root())
	require.NoError(t, err)
	return len(entries)
}

func TestExecute_EchoRoundTrip(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "sh", Code: "cat", Stdin: "hello\nworld\n"})

	require.Nil(t, res.Failure, "unexpected failure: %+v", res.Failure)
	assert.Equal(t, "hello\nworld\n", res.Output)
	assert.Equal(t, res.Output, res.Text())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "success", res.Outcome())
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 0, env.workspaceCount(t), "workspace should be removed")
}

func TestExecute_UnsupportedLanguage(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	for _, lang := range []string{"cobol", "", "JAVA"} {
		res := env.exec.Execute(context.Background(), Request{Language: lang, Code: "x"})
		require.NotNil(t, res.Failure)
		assert.Equal(t, KindUnsupportedLanguage, res.Failure.Kind)
		assert.Equal(t, "Unsupported programming language.", res.Text())
	}
	assert.Equal(t, int32(0), env.starter.starts.Load())
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestExecute_JavaWithoutClass(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "java", Code: `System.out.println("hi");`})

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindNoEntryPoint, res.Failure.Kind)
	assert.Equal(t, "Error: Unable to determine class name from Java code.", res.Text())
	assert.Equal(t, int32(0), env.starter.starts.Load(), "nothing may be spawned")
	assert.Equal(t, 0, env.workspaceCount(t), "no workspace may be left behind")
}

func TestExecute_NoEntryPointGeneric(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)
	res := env.exec.Execute(context.Background(), Request{Language: "sh", Code: "NOENTRY"})
	require.NotNil(t, res.Failure)
	assert.Equal(t, "Error: Unable to determine script name from Shell code.", res.Text())
}

func TestExecute_TimeoutKillsProcessTree(t *testing.T) {
	env := newTestEnv(t, 300*time.Millisecond, 1<<20, 0)
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	start := time.Now()
	res := env.exec.Execute(context.Background(), Request{
		Language: "sh",
		Code:     fmt.Sprintf("sleep 30 &\necho $! > %s\nwait\n", pidFile),
	})
	elapsed := time.Since(start)

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindTimedOut, res.Failure.Kind)
	assert.Equal(t, "Error: Code execution timed out.", res.Text())
	assert.Less(t, elapsed, 2*time.Second)

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !processAlive(pid) }, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestExecute_BackgroundChildDiesWithProgram(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
	env := newTestEnv(t, 2*time.Second, 1<<20, 0)
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	res := env.exec.Execute(context.Background(), Request{
		Language: "sh",
		Code:     fmt.Sprintf("sleep 60 >/dev/null 2>&1 </dev/null &\necho $! > %s\necho hi\n", pidFile),
	})

	require.Nil(t, res.Failure, "unexpected failure: %+v", res.Failure)
	assert.Equal(t, "hi\n", res.Output)

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !processAlive(pid) }, 500*time.Millisecond, 10*time.Millisecond,
		"background process %d outlived its request", pid)
}

func TestExecute_LogsCarryRequestID(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	res := env.exec.Execute(context.Background(), Request{Language: "sh", Code: "echo ok", RequestID: "req-42"})
	require.Nil(t, res.Failure)

	tagged := 0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"exec_id":"`+res.ID+`"`) {
			continue
		}
		assert.Contains(t, line, `"request_id":"req-42"`)
		tagged++
	}
	assert.GreaterOrEqual(t, tagged, 2, "requested and completed lines should both carry the ids")
}

func TestExecute_DeadlineSpansCompileAndRun(t *testing.T) {
	env := newTestEnv(t, 600*time.Millisecond, 1<<20, 0)

	// 0.4s of compiling leaves 0.2s for a 0.4s run.
	res := env.exec.Execute(context.Background(), Request{Language: "slowbuild", Code: "sleep 0.4; echo late"})

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindTimedOut, res.Failure.Kind)
	assert.Equal(t, int32(2), env.starter.starts.Load())
}

func TestExecute_CompileErrorSkipsRun(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)
	marker := filepath.Join(t.TempDir(), "ran")

	res := env.exec.Execute(context.Background(), Request{Language: "broken", Code: "touch " + marker})

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindCompile, res.Failure.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error compiling Shell code:\n"))
	assert.Contains(t, res.Text(), "main.sh:1: syntax error")
	assert.NotContains(t, res.Text(), env.ws.Root(), "workspace path should be stripped from diagnostics")
	assert.Equal(t, int32(1), env.starter.starts.Load())
	assert.NoFileExists(t, marker)
}

func TestExecute_CompileThenRun(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "compiled", Code: "read x; echo \"got $x\"", Stdin: "42\n"})

	require.Nil(t, res.Failure)
	assert.Equal(t, "got 42\n", res.Output)
	assert.Equal(t, int32(2), env.starter.starts.Load())
}

func TestExecute_NonZeroExitIsOutput(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "sh", Code: "echo partial; echo oops >&2; exit 3"})

	require.Nil(t, res.Failure)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "partial\n")
	assert.Contains(t, res.Output, "oops\n")
}

func TestExecute_EmptyInputAndCode(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "sh"})
	require.Nil(t, res.Failure)
	assert.Equal(t, "", res.Output)
}

func TestExecute_ProcessLaunchError(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "missing", Code: "echo hi"})

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindProcessLaunch, res.Failure.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error executing Shell code: "), res.Text())
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestExecute_WorkspaceError(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)
	require.NoError(t, os.RemoveAll(env.ws.Root()))

	res := env.exec.Execute(context.Background(), Request{Language: "sh", Code: "echo hi"})

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindWorkspace, res.Failure.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error creating workspace: "), res.Text())
	assert.Equal(t, int32(0), env.starter.starts.Load())
}

func TestExecute_OutputTruncated(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 64, 0)

	res := env.exec.Execute(context.Background(), Request{Language: "sh", Code: "i=0; while [ $i -lt 100 ]; do echo line-$i; i=$((i+1)); done"})

	require.Nil(t, res.Failure)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasSuffix(res.Output, sandbox.TruncationMarker))
	assert.True(t, strings.HasPrefix(res.Output, "line-0\n"))
}

func TestExecute_ConcurrentRequestsAreIsolated(t *testing.T) {
	env := newTestEnv(t, 10*time.Second, 1<<20, 0)

	const n = 20
	var wg sync.WaitGroup
	results := make([]*Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same language, same code: only stdin differs.
			results[i] = env.exec.Execute(context.Background(), Request{
				Language: "sh",
				Code:     "cat; echo > marker; ls",
				Stdin:    fmt.Sprintf("request-%d\n", i),
			})
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, res := range results {
		require.Nil(t, res.Failure, "request %d: %+v", i, res.Failure)
		assert.True(t, strings.HasPrefix(res.Output, fmt.Sprintf("request-%d\n", i)), "request %d got %q", i, res.Output)
		// Each workspace holds only its own artifacts.
		assert.Equal(t, fmt.Sprintf("request-%d\ninput.txt\nmain.sh\nmarker\n", i), res.Output)
		ids[res.ID] = true
	}
	assert.Len(t, ids, n)
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestExecute_RepeatSubmissionIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)
	req := Request{Language: "compiled", Code: "read a; read b; echo $((a + b))", Stdin: "2\n3\n"}

	first := env.exec.Execute(context.Background(), req)
	second := env.exec.Execute(context.Background(), req)

	require.Nil(t, first.Failure)
	require.Nil(t, second.Failure)
	assert.Equal(t, "5\n", first.Output)
	assert.Equal(t, first.Output, second.Output)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestExecute_CanceledContext(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := env.exec.Execute(ctx, Request{Language: "sh", Code: "echo hi"})

	require.NotNil(t, res.Failure)
	assert.Equal(t, KindCanceled, res.Failure.Kind)
	assert.Equal(t, int32(0), env.starter.starts.Load())
}

func TestExecute_AdmissionLimit(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 1)

	done := make(chan *Result, 1)
	go func() {
		done <- env.exec.Execute(context.Background(), Request{Language: "sh", Code: "sleep 0.5; echo first"})
	}()
	require.Eventually(t, func() bool { return env.exec.ActiveCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	blocked := env.exec.Execute(ctx, Request{Language: "sh", Code: "echo second"})
	require.NotNil(t, blocked.Failure)
	assert.Equal(t, KindCanceled, blocked.Failure.Kind)

	first := <-done
	require.Nil(t, first.Failure)
	assert.Equal(t, "first\n", first.Output)
	assert.Equal(t, int64(0), env.exec.ActiveCount())
}

func TestExecute_RecordsMetrics(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1<<20, 0)

	env.exec.Execute(context.Background(), Request{Language: "sh", Code: "echo ok"})
	env.exec.Execute(context.Background(), Request{Language: "nope"})

	families, err := env.metrics.Registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() == "runner_executions_total" {
			for _, m := range f.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, total)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

// processAlive treats zombies as dead: they have exited and only wait to be reaped.
func processAlive(pid int) bool {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	s := string(b)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] != 'Z' && s[i+2] != 'X'
}
