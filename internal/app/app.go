// Package app assembles the runner from a Config. Both the HTTP server and the
// CLI's local mode build their executor here.
package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"snippet-runner/internal/config"
	"snippet-runner/internal/executor"
	"snippet-runner/internal/monitor"
	"snippet-runner/internal/runtime"
	"snippet-runner/internal/sandbox"
	"snippet-runner/internal/workspace"
)

// App owns every long-lived component of a runner instance.
type App struct {
	Config     *config.Config
	Runtimes   *runtime.Registry
	Workspaces *workspace.Manager
	Launcher   sandbox.Launcher
	Metrics    *monitor.Metrics
	Tracer     *monitor.Tracer
	Executor   *executor.Executor

	docker *sandbox.DockerLauncher
}

// New builds the registry, workspace manager, launcher and executor described by cfg.
func New(cfg *config.Config) (*App, error) {
	maxOutput, err := cfg.MaxOutputBytes()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Runtimes: runtime.DefaultRegistry(cfg.Overrides()),
		Metrics:  monitor.NewMetrics(),
		Tracer:   monitor.NewTracer(cfg.Tracing.Enabled),
	}
	if langs := cfg.OverriddenLanguages(); len(langs) > 0 {
		log.Info().Strs("languages", langs).Msg("toolchain overrides applied")
	}

	a.Workspaces, err = workspace.NewManager(cfg.Executor.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if n, err := a.Workspaces.SweepStale(cfg.Executor.StaleAfter); err != nil {
		log.Warn().Err(err).Msg("stale workspace sweep failed")
	} else if n > 0 {
		log.Info().Int("removed", n).Str("root", a.Workspaces.Root()).Msg("swept stale workspaces")
	}

	switch cfg.Isolation.Launcher {
	case "docker":
		dc, err := cfg.Isolation.Docker.SandboxConfig()
		if err != nil {
			return nil, err
		}
		d, err := sandbox.NewDockerLauncher(dc)
		if err != nil {
			return nil, err
		}
		if cfg.Isolation.Docker.OrphanSweep > 0 {
			d.StartOrphanCleanup(cfg.Isolation.Docker.OrphanSweep)
		}
		a.docker = d
		a.Launcher = d
	default:
		a.Launcher = sandbox.NewHostLauncher()
	}

	a.Executor, err = executor.New(executor.Options{
		Runtimes:      a.Runtimes,
		Workspaces:    a.Workspaces,
		Runner:        sandbox.NewRunner(a.Launcher, maxOutput),
		Metrics:       a.Metrics,
		Tracer:        a.Tracer,
		Detector:      monitor.NewCodeDetector(),
		Deadline:      cfg.Executor.Deadline,
		MaxConcurrent: cfg.Executor.MaxConcurrent,
	})
	if err != nil {
		_ = a.closeLauncher()
		return nil, err
	}

	log.Info().
		Str("launcher", a.Launcher.Name()).
		Dur("deadline", cfg.Executor.Deadline).
		Int("max_concurrent", cfg.Executor.MaxConcurrent).
		Str("workspace_root", a.Workspaces.Root()).
		Strs("languages", a.Runtimes.Languages()).
		Msg("runner ready")

	return a, nil
}

// Close waits for in-flight workspace cleanup and releases the launcher.
func (a *App) Close() error {
	return errors.Join(a.Executor.Close(), a.closeLauncher())
}

func (a *App) closeLauncher() error {
	if a.docker == nil {
		return nil
	}
	return a.docker.Close()
}
