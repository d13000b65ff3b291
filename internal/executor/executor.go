package executor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"snippet-runner/internal/monitor"
	"snippet-runner/internal/runtime"
	"snippet-runner/internal/sandbox"
	"snippet-runner/internal/workspace"
)

// DefaultDeadline is the budget for compile and run together.
const DefaultDeadline = 5 * time.Second

// Stage is a state of the execution pipeline.
type Stage string

const (
	StageDispatching Stage = "dispatching"
	StagePreparing   Stage = "preparing"
	StageCompiling   Stage = "compiling"
	StageRunning     Stage = "running"
	StageFinalized   Stage = "finalized"
)

// Starter spawns one process. *sandbox.Runner implements it.
type Starter interface {
	Start(id string, cmd runtime.Command) (*sandbox.Process, error)
}

// Options configures an Executor. Runtimes, Workspaces and Runner are required.
type Options struct {
	Runtimes      *runtime.Registry
	Workspaces    *workspace.Manager
	Runner        Starter
	Metrics       *monitor.Metrics
	Tracer        *monitor.Tracer
	Detector      *monitor.CodeDetector
	Deadline      time.Duration
	MaxConcurrent int // 0 means unbounded
}

// Executor turns a Request into exactly one Result.
type Executor struct {
	runtimes   *runtime.Registry
	workspaces *workspace.Manager
	runner     Starter
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer
	detector   *monitor.CodeDetector
	deadline   time.Duration
	sem        chan struct{}

	active  atomic.Int64
	cleanup sync.WaitGroup
}

func New(opts Options) (*Executor, error) {
	if opts.Runtimes == nil || opts.Workspaces == nil || opts.Runner == nil {
		return nil, errors.New("executor: runtimes, workspaces and runner are required")
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Metrics == nil {
		opts.Metrics = monitor.NewMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = monitor.NewTracer(false)
	}
	if opts.Detector == nil {
		opts.Detector = monitor.NewCodeDetector()
	}

	e := &Executor{
		runtimes:   opts.Runtimes,
		workspaces: opts.Workspaces,
		runner:     opts.Runner,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		detector:   opts.Detector,
		deadline:   opts.Deadline,
	}
	if opts.MaxConcurrent > 0 {
		e.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return e, nil
}

// execution is the per-request state. It never leaves the calling goroutine.
type execution struct {
	id      string
	req     Request
	rt      runtime.Runtime
	ws      *workspace.Workspace
	layout  runtime.Layout
	stage   Stage
	started time.Time
	logger  zerolog.Logger
}

// Execute dispatches, prepares, compiles (when the language needs it) and runs
// req under a single deadline. Every failure is folded into the Result.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Code)))

	lc := log.With().
		Str("exec_id", execID).
		Str("language", req.Language).
		Str("code_hash", codeHash[:16])
	attrs := []attribute.KeyValue{
		monitor.AttrExecID.String(execID),
		monitor.AttrLanguage.String(req.Language),
		monitor.AttrCodeHash.String(codeHash[:16]),
	}
	if req.RequestID != "" {
		lc = lc.Str("request_id", req.RequestID)
		attrs = append(attrs, monitor.AttrRequestID.String(req.RequestID))
	}

	x := &execution{
		id:      execID,
		req:     req,
		stage:   StageDispatching,
		started: time.Now(),
		logger:  lc.Logger(),
	}

	ctx, span := e.tracer.StartSpan(ctx, "execute", attrs...)

	x.logger.Info().Int("code_bytes", len(req.Code)).Int("stdin_bytes", len(req.Stdin)).Msg("execution requested")
	e.metrics.CodeSizeBytes.Observe(float64(len(req.Code)))

	res := &Result{ID: execID, Language: req.Language}
	err := e.execute(ctx, x, res)
	failedAt := x.stage
	x.stage = StageFinalized
	res.Duration = time.Since(x.started)

	if err != nil {
		res.Failure = x.failure(err)
		e.metrics.RecordError(string(res.Failure.Kind))
		x.logFailure(failedAt, res.Failure.Kind, err)
	} else {
		e.metrics.OutputSizeBytes.Observe(float64(len(res.Output)))
		if res.Truncated {
			e.metrics.OutputTruncated.WithLabelValues(x.languageLabel()).Inc()
		}
		x.logger.Info().
			Int("exit_code", res.ExitCode).
			Int("output_bytes", len(res.Output)).
			Bool("truncated", res.Truncated).
			Dur("duration", res.Duration).
			Msg("execution completed")
	}

	e.metrics.RecordExecution(x.languageLabel(), res.Outcome(), res.Duration.Seconds())
	span.SetAttributes(
		monitor.AttrOutcome.String(res.Outcome()),
		monitor.AttrExitCode.Int(res.ExitCode),
		monitor.AttrDurationMS.Int64(res.Duration.Milliseconds()),
	)
	monitor.EndSpan(span, err)

	return res
}

func (e *Executor) execute(ctx context.Context, x *execution, res *Result) error {
	rt, err := e.runtimes.Get(x.req.Language)
	if err != nil {
		return x.wrap(err)
	}
	x.rt = rt

	release, err := e.acquire(ctx)
	if err != nil {
		return x.wrap(err)
	}
	defer release()

	e.analyzeCode(x)

	guard, cancel := NewGuard(ctx, e.deadline)
	defer cancel()

	x.stage = StagePreparing
	prepStart := time.Now()
	err = e.prepare(x)
	if x.ws != nil {
		// Registered after cancel, so it runs first; Guard.Run has reaped every process by then.
		defer e.dispose(x.ws)
	}
	e.metrics.RecordStage(x.languageLabel(), "prepare", time.Since(prepStart).Seconds())
	if err != nil {
		return x.wrap(err)
	}

	if cmd := rt.CompileCommand(x.layout); cmd != nil {
		x.stage = StageCompiling
		out, err := e.step(ctx, guard, x, "compile", *cmd)
		if err != nil {
			return x.wrap(err)
		}
		if out.ExitCode != 0 {
			return x.wrap(&CompileError{
				ExitCode:    out.ExitCode,
				Diagnostics: strings.ReplaceAll(out.Output, x.layout.Dir+string(filepath.Separator), ""),
			})
		}
	}

	x.stage = StageRunning
	out, err := e.step(ctx, guard, x, "run", rt.RunCommand(x.layout))
	if err != nil {
		return x.wrap(err)
	}

	res.Output = out.Output
	res.ExitCode = out.ExitCode
	res.Truncated = out.Truncated
	e.analyzeOutput(x, out.Output)
	return nil
}

// prepare derives the entry file before touching the filesystem, so a Java
// snippet without a class fails without creating anything.
func (e *Executor) prepare(x *execution) error {
	entry, err := x.rt.EntryFile(x.req.Code)
	if err != nil {
		return err
	}

	ws, err := e.workspaces.Create(x.id)
	if err != nil {
		return err
	}
	x.ws = ws
	x.layout = runtime.Layout{Dir: ws.Dir, SourceFile: entry, InputFile: runtime.InputFile}

	if err := e.workspaces.WriteSource(ws, entry, x.req.Code); err != nil {
		return err
	}
	return e.workspaces.WriteInput(ws, x.layout.InputFile, x.req.Stdin)
}

func (e *Executor) step(ctx context.Context, guard *Guard, x *execution, name string, cmd runtime.Command) (sandbox.ExitOutcome, error) {
	_, span := e.tracer.StartSpan(ctx, name, monitor.AttrStage.String(name))
	x.logger.Debug().Str("stage", name).Str("command", cmd.String()).Dur("budget_left", guard.Remaining()).Msg("step starting")

	out, err := guard.Run(func() (*sandbox.Process, error) {
		return e.runner.Start(x.id+"-"+name, cmd)
	})

	e.metrics.RecordStage(x.languageLabel(), name, out.Duration.Seconds())
	if out.Killed {
		e.metrics.RecordKill(name)
	}
	span.SetAttributes(monitor.AttrExitCode.Int(out.ExitCode))
	monitor.EndSpan(span, err)

	x.logger.Debug().
		Str("stage", name).
		Int("exit_code", out.ExitCode).
		Dur("duration", out.Duration).
		Bool("killed", out.Killed).
		Msg("step finished")
	return out, err
}

func (e *Executor) acquire(ctx context.Context) (func(), error) {
	if e.sem != nil {
		e.metrics.QueuedExecutions.Inc()
		select {
		case e.sem <- struct{}{}:
			e.metrics.QueuedExecutions.Dec()
		case <-ctx.Done():
			e.metrics.QueuedExecutions.Dec()
			return nil, fmt.Errorf("%w: waiting for a free slot: %v", ErrCanceled, ctx.Err())
		}
	}

	e.active.Add(1)
	e.metrics.ActiveExecutions.Inc()
	return func() {
		e.metrics.ActiveExecutions.Dec()
		e.active.Add(-1)
		if e.sem != nil {
			<-e.sem
		}
	}, nil
}

func (e *Executor) dispose(ws *workspace.Workspace) {
	e.cleanup.Add(1)
	go func() {
		defer e.cleanup.Done()
		e.workspaces.Dispose(ws)
	}()
}

func (e *Executor) analyzeCode(x *execution) {
	for _, d := range e.detector.AnalyzeCode(string(x.rt.Name()), x.req.Code) {
		e.metrics.RecordDetection(d)
		x.logger.Warn().
			Str("pattern", d.Pattern).
			Str("severity", d.Severity).
			Int("line", d.Line).
			Msg("suspicious code submitted")
	}
}

func (e *Executor) analyzeOutput(x *execution, output string) {
	for _, d := range e.detector.AnalyzeOutput(output) {
		e.metrics.RecordDetection(d)
		x.logger.Warn().
			Str("pattern", d.Pattern).
			Str("severity", d.Severity).
			Msg("suspicious content in program output")
	}
}

// ActiveCount returns the number of executions currently holding a slot.
func (e *Executor) ActiveCount() int64 {
	return e.active.Load()
}

// Close waits for pending workspace removals.
func (e *Executor) Close() error {
	e.cleanup.Wait()
	return nil
}

func (x *execution) wrap(err error) error {
	return &ExecutionError{ExecID: x.id, Op: string(x.stage), Err: err}
}

func (x *execution) languageLabel() string {
	if x.rt == nil {
		return "unknown"
	}
	return string(x.rt.Name())
}

func (x *execution) displayName() string {
	if x.rt == nil {
		return x.req.Language
	}
	return x.rt.DisplayName()
}

// failure renders err as the message clients see.
func (x *execution) failure(err error) *Failure {
	kind := KindOf(err)
	lang := x.displayName()

	var msg string
	switch kind {
	case KindUnsupportedLanguage:
		msg = "Unsupported programming language."
	case KindNoEntryPoint:
		construct := "entry point"
		var epErr *runtime.EntryPointError
		if errors.As(err, &epErr) {
			construct = epErr.Construct
		}
		msg = fmt.Sprintf("Error: Unable to determine %s from %s code.", construct, lang)
	case KindWorkspace:
		msg = workspaceMessage(err)
	case KindCompile:
		var ce *CompileError
		if errors.As(err, &ce) {
			msg = fmt.Sprintf("Error compiling %s code:\n%s", lang, ce.Diagnostics)
		} else {
			msg = fmt.Sprintf("Error compiling %s code.", lang)
		}
	case KindTimedOut:
		msg = "Error: Code execution timed out."
	case KindProcessLaunch:
		var le *sandbox.LaunchError
		if errors.As(err, &le) {
			msg = fmt.Sprintf("Error executing %s code: %v", lang, le.Err)
		} else {
			msg = fmt.Sprintf("Error executing %s code: %v", lang, err)
		}
	case KindCanceled:
		msg = "Error: Code execution was cancelled."
	default:
		msg = fmt.Sprintf("Error executing %s code: %v", lang, err)
	}
	return &Failure{Kind: kind, Message: msg}
}

func workspaceMessage(err error) string {
	var wsErr *workspace.Error
	if !errors.As(err, &wsErr) {
		return fmt.Sprintf("Error writing code to file: %v", err)
	}
	switch {
	case wsErr.Op != "write":
		return fmt.Sprintf("Error creating workspace: %v", wsErr.Err)
	case filepath.Base(wsErr.Path) == runtime.InputFile:
		return fmt.Sprintf("Error writing input to file: %v", wsErr.Err)
	default:
		return fmt.Sprintf("Error writing code to file: %v", wsErr.Err)
	}
}

func (x *execution) logFailure(stage Stage, kind Kind, err error) {
	var ev *zerolog.Event
	switch kind {
	case KindTimedOut:
		ev = x.logger.Warn()
	case KindWorkspace, KindProcessLaunch, KindInternal:
		ev = x.logger.Error()
	default:
		ev = x.logger.Info()
	}
	ev.Err(err).
		Str("stage", string(stage)).
		Str("kind", string(kind)).
		Dur("duration", time.Since(x.started)).
		Msg("execution failed")
}
