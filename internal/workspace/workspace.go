package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// ErrWorkspace matches every failure to create or populate a workspace.
var ErrWorkspace = errors.New("workspace error")

// Error describes a failed filesystem operation on a workspace.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrWorkspace }

const dirPrefix = "run-"

// Workspace is a directory owned by exactly one request.
type Workspace struct {
	ID      string
	Dir     string
	Created time.Time
}

// Manager creates and disposes per-request workspaces under a single root.
type Manager struct {
	root string
}

// NewManager ensures root exists. An empty root uses a directory under os.TempDir().
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "snippet-runner")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &Error{Op: "resolve", Path: root, Err: err}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &Error{Op: "mkdir", Path: abs, Err: err}
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute directory all workspaces live under.
func (m *Manager) Root() string { return m.root }

// Create makes a fresh directory named from requestID plus a random token.
// It fails rather than reuse an existing directory.
func (m *Manager) Create(requestID string) (*Workspace, error) {
	id := xid.New().String()
	name := dirPrefix + id
	if tag := sanitize(requestID); tag != "" {
		name = dirPrefix + tag + "-" + id
	}
	dir := filepath.Join(m.root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, &Error{Op: "create", Path: dir, Err: err}
	}
	return &Workspace{ID: id, Dir: dir, Created: time.Now()}, nil
}

// WriteSource writes code to filename, which must be a bare file name.
func (m *Manager) WriteSource(ws *Workspace, filename, code string) error {
	return m.write(ws, filename, code)
}

// WriteInput writes the program's stdin to the workspace's input file.
func (m *Manager) WriteInput(ws *Workspace, filename, input string) error {
	return m.write(ws, filename, input)
}

func (m *Manager) write(ws *Workspace, filename, content string) error {
	if filename == "" || filepath.Base(filename) != filename || filename == "." || filename == ".." {
		return &Error{Op: "write", Path: filename, Err: errors.New("file name must not contain a path")}
	}
	path := filepath.Join(ws.Dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Dispose removes the workspace. Failures are logged, never returned.
func (m *Manager) Dispose(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		log.Error().Err(err).Str("workspace", ws.Dir).Msg("failed to remove workspace")
		return
	}
	log.Debug().Str("workspace", ws.Dir).Dur("age", time.Since(ws.Created)).Msg("workspace removed")
}

// SweepStale removes workspaces older than maxAge, left behind by a crash.
func (m *Manager) SweepStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, &Error{Op: "sweep", Path: m.root, Err: err}
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("workspace", path).Msg("failed to sweep stale workspace")
			continue
		}
		removed++
	}
	return removed, nil
}

// sanitize keeps a short, filesystem-safe prefix of a request id.
func sanitize(requestID string) string {
	var b strings.Builder
	for _, r := range requestID {
		if b.Len() >= 8 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
