package api

import "time"

// RunCodeRequest is the body of POST /run-code and POST /execute.
type RunCodeRequest struct {
	Language string `json:"language"` // java, c_cpp, python, go, swift, scala, ruby, dart
	Code     string `json:"code"`
	Input    string `json:"input"` // fed to the program's stdin
}

// RunCodeResponse carries the program output or the failure message.
type RunCodeResponse struct {
	Output string `json:"output"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ExecutionResponse is the detailed result returned by POST /execute.
type ExecutionResponse struct {
	ID        string       `json:"id"`
	Language  string       `json:"language"`
	Output    string       `json:"output"`
	ExitCode  int          `json:"exit_code"`
	Truncated bool         `json:"truncated,omitempty"`
	Duration  Duration     `json:"duration"`
	Error     *FailureInfo `json:"error,omitempty"`
}

// FailureInfo describes why no program output was produced.
type FailureInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// LanguageInfo describes one supported toolchain.
type LanguageInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	EntryFile   string `json:"entry_file,omitempty"`
	Compiled    bool   `json:"compiled"`
	Image       string `json:"image,omitempty"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status           string `json:"status"`
	Launcher         string `json:"launcher"`
	ActiveExecutions int64  `json:"active_executions"`
	Uptime           string `json:"uptime"`
}
