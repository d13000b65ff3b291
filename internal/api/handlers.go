package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"snippet-runner/internal/executor"
	"snippet-runner/internal/runtime"
)

// Executor runs one request to completion. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) *executor.Result
	ActiveCount() int64
}

type Handlers struct {
	exec     Executor
	runtimes *runtime.Registry
	launcher string
	started  time.Time
}

func NewHandlers(exec Executor, runtimes *runtime.Registry, launcher string) *Handlers {
	return &Handlers{
		exec:     exec,
		runtimes: runtimes,
		launcher: launcher,
		started:  time.Now(),
	}
}

// HandleRunCode answers 200 {output} for every execution outcome, failures included.
func (h *Handlers) HandleRunCode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res := h.exec.Execute(r.Context(), req)
	writeJSON(w, http.StatusOK, RunCodeResponse{Output: res.Text()})
}

// HandleExecute runs the same pipeline as HandleRunCode but reports the full result.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res := h.exec.Execute(r.Context(), req)

	resp := ExecutionResponse{
		ID:        res.ID,
		Language:  res.Language,
		Output:    res.Output,
		ExitCode:  res.ExitCode,
		Truncated: res.Truncated,
		Duration:  Duration{Duration: res.Duration},
	}
	if res.Failure != nil {
		resp.Output = ""
		resp.Error = &FailureInfo{Kind: string(res.Failure.Kind), Message: res.Failure.Message}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	names := h.runtimes.Languages()
	out := make([]LanguageInfo, 0, len(names))
	for _, name := range names {
		rt, err := h.runtimes.Get(name)
		if err != nil {
			continue
		}
		info := LanguageInfo{
			Name:        name,
			DisplayName: rt.DisplayName(),
			Compiled:    rt.CompileCommand(runtime.Layout{}) != nil,
			Image:       rt.Image(),
		}
		// Java derives its entry file from the submitted class name.
		if entry, err := rt.EntryFile(""); err == nil {
			info.EntryFile = entry
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:           "ok",
		Launcher:         h.launcher,
		ActiveExecutions: h.exec.ActiveCount(),
		Uptime:           time.Since(h.started).Round(time.Second).String(),
	}
	if h.launcher == "" {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request) (executor.Request, bool) {
	var req RunCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "request body too large", "BODY_TOO_LARGE", http.StatusRequestEntityTooLarge, r)
			return executor.Request{}, false
		}
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return executor.Request{}, false
	}

	log.Debug().
		Str("request_id", RequestIDFromContext(r.Context())).
		Str("language", req.Language).
		Int("code_bytes", len(req.Code)).
		Msg("execution requested")

	return executor.Request{
		Language:  req.Language,
		Code:      req.Code,
		Stdin:     req.Input,
		RequestID: RequestIDFromContext(r.Context()),
	}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
