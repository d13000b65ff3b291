package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snippet-runner/internal/api"
	"snippet-runner/internal/app"
	"snippet-runner/internal/config"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	// Override launcher from env if set
	if launcher := os.Getenv("RUNNER_LAUNCHER"); launcher != "" {
		cfg.Isolation.Launcher = launcher
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid RUNNER_LAUNCHER")
		}
	}

	runner, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("launcher", cfg.Isolation.Launcher).Msg("failed to initialize runner")
	}

	server, err := api.NewServer(cfg, runner.Executor, runner.Runtimes, runner.Metrics, runner.Launcher.Name())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build HTTP server")
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		if err := runner.Close(); err != nil {
			log.Error().Err(err).Msg("runner close error")
		}
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Str("launcher", runner.Launcher.Name()).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Bool("tracing_enabled", cfg.Tracing.Enabled).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	<-done
	log.Info().Msg("server stopped")
}
