package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	units "github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"snippet-runner/internal/runtime"
	"snippet-runner/internal/sandbox"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Executor  ExecutorConfig            `yaml:"executor"`
	Isolation IsolationConfig           `yaml:"isolation"`
	Languages map[string]LanguageConfig `yaml:"languages"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Tracing   TracingConfig             `yaml:"tracing"`
	TLS       TLSConfig                 `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  string        `yaml:"max_request_body"` // human size, e.g. "1MiB"
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type ExecutorConfig struct {
	Deadline      time.Duration `yaml:"deadline"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxOutput     string        `yaml:"max_output"`
	WorkspaceRoot string        `yaml:"workspace_root"` // empty means <tmp>/snippet-runner
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// IsolationConfig selects how compile and run steps are launched.
type IsolationConfig struct {
	Launcher string       `yaml:"launcher"` // "host" or "docker"
	Docker   DockerConfig `yaml:"docker"`
}

type DockerConfig struct {
	Binary      string        `yaml:"binary"`
	Memory      string        `yaml:"memory"`
	CPUs        float64       `yaml:"cpus"`
	PidsLimit   int64         `yaml:"pids_limit"`
	TmpfsSize   string        `yaml:"tmpfs_size"`
	Network     bool          `yaml:"network"`
	Seccomp     bool          `yaml:"seccomp"`
	User        string        `yaml:"user"`
	OrphanSweep time.Duration `yaml:"orphan_sweep"`
}

// LanguageConfig overrides the built-in toolchain for one language.
type LanguageConfig struct {
	Compiler    string `yaml:"compiler"`
	Interpreter string `yaml:"interpreter"`
	Image       string `yaml:"image"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CONFIG_PATH or the default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to DefaultConfig otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		log.Info().Str("path", path).Msg("no config file found, using defaults")
		return DefaultConfig(), nil
	}
	return Load(path)
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second, // > executor deadline + workspace setup
			ShutdownTimeout: 15 * time.Second,
			MaxRequestBody:  "1MiB",
			CORSOrigins:     []string{"*"},
		},
		Executor: ExecutorConfig{
			Deadline:      5 * time.Second,
			MaxConcurrent: 64,
			MaxOutput:     "1MiB",
			StaleAfter:    time.Hour,
		},
		Isolation: IsolationConfig{
			Launcher: "host",
			Docker: DockerConfig{
				Binary:      "docker",
				Memory:      "512m",
				CPUs:        1,
				PidsLimit:   128,
				TmpfsSize:   "256m",
				Seccomp:     true,
				OrphanSweep: 5 * time.Minute,
			},
		},
		Languages: map[string]LanguageConfig{},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if _, err := c.MaxRequestBodyBytes(); err != nil {
		return err
	}
	if c.Executor.Deadline <= 0 || c.Executor.Deadline > 5*time.Minute {
		return fmt.Errorf("executor.deadline must be in (0, 5m], got %s", c.Executor.Deadline)
	}
	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("executor.max_concurrent must be >= 1")
	}
	if _, err := c.MaxOutputBytes(); err != nil {
		return err
	}
	if c.Executor.StaleAfter <= 0 {
		return fmt.Errorf("executor.stale_after must be positive")
	}
	switch c.Isolation.Launcher {
	case "host":
	case "docker":
		if _, err := c.Isolation.Docker.Limits(); err != nil {
			return fmt.Errorf("isolation.docker: %w", err)
		}
	default:
		return fmt.Errorf("isolation.launcher must be host or docker, got %q", c.Isolation.Launcher)
	}
	for name := range c.Languages {
		if !runtime.IsBuiltin(name) {
			return fmt.Errorf("languages: %q is not a supported language", name)
		}
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.Isolation.Launcher == "host" && c.Executor.MaxConcurrent > 256 {
		log.Warn().Int("max_concurrent", c.Executor.MaxConcurrent).Msg("host launcher with high concurrency, toolchains share the machine")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxRequestBodyBytes parses server.max_request_body.
func (c *Config) MaxRequestBodyBytes() (int64, error) {
	return parseSize("server.max_request_body", c.Server.MaxRequestBody)
}

// MaxOutputBytes parses executor.max_output.
func (c *Config) MaxOutputBytes() (int64, error) {
	return parseSize("executor.max_output", c.Executor.MaxOutput)
}

// Overrides converts the languages section into registry overrides.
func (c *Config) Overrides() map[runtime.Language]runtime.Override {
	out := make(map[runtime.Language]runtime.Override, len(c.Languages))
	for name, lc := range c.Languages {
		out[runtime.Language(name)] = runtime.Override{
			Compiler:    lc.Compiler,
			Interpreter: lc.Interpreter,
			Image:       lc.Image,
		}
	}
	return out
}

// OverriddenLanguages lists the configured language keys, sorted.
func (c *Config) OverriddenLanguages() []string {
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Limits converts the human-readable docker sizes into sandbox limits.
func (d DockerConfig) Limits() (sandbox.ResourceLimits, error) {
	mem, err := units.RAMInBytes(d.Memory)
	if err != nil {
		return sandbox.ResourceLimits{}, fmt.Errorf("memory %q: %w", d.Memory, err)
	}
	tmpfs, err := units.RAMInBytes(d.TmpfsSize)
	if err != nil {
		return sandbox.ResourceLimits{}, fmt.Errorf("tmpfs_size %q: %w", d.TmpfsSize, err)
	}
	rl := sandbox.ResourceLimits{
		CPUShares: int64(d.CPUs * 1024),
		MemoryMB:  mem / units.MiB,
		PidsLimit: d.PidsLimit,
		DiskMB:    tmpfs / units.MiB,
	}
	if err := rl.Validate(); err != nil {
		return sandbox.ResourceLimits{}, err
	}
	return rl, nil
}

// SandboxConfig builds the docker launcher configuration.
func (d DockerConfig) SandboxConfig() (sandbox.DockerConfig, error) {
	rl, err := d.Limits()
	if err != nil {
		return sandbox.DockerConfig{}, err
	}
	return sandbox.DockerConfig{
		Binary:  d.Binary,
		Limits:  rl,
		Network: d.Network,
		Seccomp: d.Seccomp,
		User:    d.User,
	}, nil
}

func parseSize(field, v string) (int64, error) {
	n, err := units.RAMInBytes(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", field, v)
	}
	return n, nil
}
