package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snippet-runner/internal/api"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestBuildRequest(t *testing.T) {
	src := writeFile(t, "Hello.java", "public class Hello {}")
	in := writeFile(t, "in.txt", "42\n")

	tests := []struct {
		name     string
		lang     string
		input    string
		stdin    string
		wantLang string
		wantIn   string
	}{
		{"detected from extension", "", "", "", "java", ""},
		{"explicit language wins", "scala", "", "", "scala", ""},
		{"input file", "", in, "", "java", "42\n"},
		{"input from stdin", "", "-", "piped\n", "java", "piped\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildRequest(src, tt.lang, tt.input, strings.NewReader(tt.stdin))
			require.NoError(t, err)
			assert.Equal(t, tt.wantLang, req.Language)
			assert.Equal(t, "public class Hello {}", req.Code)
			assert.Equal(t, tt.wantIn, req.Input)
		})
	}
}

func TestBuildRequest_UnknownExtension(t *testing.T) {
	src := writeFile(t, "prog.cob", "DISPLAY 'HI'.")

	_, err := buildRequest(src, "", "", strings.NewReader(""))
	assert.ErrorContains(t, err, "--language")
}

func TestPostJSON_RunCode(t *testing.T) {
	var got api.RunCodeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run-code", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(api.RunCodeResponse{Output: "hi\n"})
	}))
	defer ts.Close()

	body, err := postJSON(ts.URL+"/run-code", api.RunCodeRequest{Language: "ruby", Code: "puts 'hi'"})
	require.NoError(t, err)

	var resp api.RunCodeResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "hi\n", resp.Output)
	assert.Equal(t, "ruby", got.Language)
}

func TestDo_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "invalid JSON", Code: "INVALID_REQUEST"})
	}))
	defer ts.Close()

	_, err := get(ts.URL)
	assert.ErrorContains(t, err, "INVALID_REQUEST")
}
