package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"snippet-runner/internal/api"
	"snippet-runner/internal/app"
	"snippet-runner/internal/config"
	"snippet-runner/internal/executor"
	"snippet-runner/internal/runtime"
)

var (
	serverURL  string
	language   string
	inputPath  string
	configPath string
	detailed   bool
	verbose    bool
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "snippet-cli",
		Short: "Run code snippets against snippet-runner",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
		},
	}

	defaultServer := os.Getenv("RUNNER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Server URL")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// Run a file on the server
	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a source file on the server",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemote,
	}
	runCmd.Flags().StringVarP(&language, "language", "l", "", "Language (auto-detected from extension)")
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "File fed to the program's stdin (- for stdin)")
	runCmd.Flags().BoolVar(&detailed, "detailed", false, "Print the full execution result as JSON")
	root.AddCommand(runCmd)

	// Run a file in-process
	localCmd := &cobra.Command{
		Use:   "local [file]",
		Short: "Run a source file with the local toolchains, no server needed",
		Args:  cobra.ExactArgs(1),
		RunE:  runLocal,
	}
	localCmd.Flags().StringVarP(&language, "language", "l", "", "Language (auto-detected from extension)")
	localCmd.Flags().StringVarP(&inputPath, "input", "i", "", "File fed to the program's stdin (- for stdin)")
	localCmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Config file (defaults when empty)")
	root.AddCommand(localCmd)

	root.AddCommand(&cobra.Command{
		Use:   "languages",
		Short: "List the languages the server supports",
		RunE:  runLanguages,
	})

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRemote(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args[0], language, inputPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	path := "/run-code"
	if detailed {
		path = "/execute"
	}
	body, err := postJSON(serverURL+path, req)
	if err != nil {
		return err
	}

	if detailed {
		return printJSON(cmd.OutOrStdout(), body)
	}
	var resp api.RunCodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), resp.Output)
	return nil
}

func runLocal(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args[0], language, inputPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	// Local mode always uses the host toolchains.
	cfg.Isolation.Launcher = "host"

	runner, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res := runner.Executor.Execute(ctx, executor.Request{Language: req.Language, Code: req.Code, Stdin: req.Input})
	fmt.Fprint(cmd.OutOrStdout(), res.Text())
	if !res.OK() {
		return fmt.Errorf("%s", res.Failure.Kind)
	}
	if res.ExitCode != 0 {
		log.Warn().Int("exit_code", res.ExitCode).Msg("program exited with non-zero status")
	}
	return nil
}

func runLanguages(cmd *cobra.Command, _ []string) error {
	body, err := get(serverURL + "/languages")
	if err != nil {
		return err
	}
	var langs []api.LanguageInfo
	if err := json.Unmarshal(body, &langs); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	for _, l := range langs {
		kind := "interpreted"
		if l.Compiled {
			kind = "compiled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-8s %-12s %s\n", l.Name, l.DisplayName, kind, l.Image)
	}
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	body, err := get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), body)
}

// buildRequest reads the source file and optional stdin and settles the language.
func buildRequest(path, lang, input string, stdin io.Reader) (api.RunCodeRequest, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return api.RunCodeRequest{}, fmt.Errorf("reading file: %w", err)
	}

	if lang == "" {
		detected, ok := runtime.DetectLanguage(path)
		if !ok {
			return api.RunCodeRequest{}, fmt.Errorf("cannot detect language for %q, use --language flag", path)
		}
		lang = string(detected)
	}

	var in []byte
	switch input {
	case "":
	case "-":
		if in, err = io.ReadAll(stdin); err != nil {
			return api.RunCodeRequest{}, fmt.Errorf("reading stdin: %w", err)
		}
	default:
		if in, err = os.ReadFile(input); err != nil {
			return api.RunCodeRequest{}, fmt.Errorf("reading input file: %w", err)
		}
	}

	return api.RunCodeRequest{Language: lang, Code: string(code), Input: string(in)}, nil
}

var client = &http.Client{Timeout: 70 * time.Second}

func postJSON(url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req)
}

func get(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return do(req)
}

func do(req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode, apiErr.Error, apiErr.Code)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return body, nil
}

func printJSON(w io.Writer, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	formatted, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(formatted))
	return nil
}
