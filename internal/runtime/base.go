package runtime

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Language is the identifier clients use to select a toolchain.
type Language string

const (
	Java   Language = "java"
	CCpp   Language = "c_cpp"
	Python Language = "python"
	Go     Language = "go"
	Swift  Language = "swift"
	Scala  Language = "scala"
	Ruby   Language = "ruby"
	Dart   Language = "dart"
)

var (
	// ErrUnsupportedLanguage is returned by Registry.Get for unknown identifiers.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrNoEntryPoint is returned when an entry file name cannot be derived from the source.
	ErrNoEntryPoint = errors.New("no entry point")
)

// EntryPointError reports which construct was missing from the submitted source.
type EntryPointError struct {
	Language  Language
	Construct string
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("%s: no %s declared in %s source", ErrNoEntryPoint, e.Construct, e.Language)
}

func (e *EntryPointError) Is(target error) bool { return target == ErrNoEntryPoint }

// InputFile is the name of the stdin artifact inside every workspace.
const InputFile = "input.txt"

// Layout locates the artifacts of one request inside its workspace.
type Layout struct {
	Dir        string
	SourceFile string
	InputFile  string
}

// Source returns the absolute path of the source file.
func (l Layout) Source() string { return filepath.Join(l.Dir, l.SourceFile) }

// Input returns the absolute path of the stdin file.
func (l Layout) Input() string { return filepath.Join(l.Dir, l.InputFile) }

// Command is a single process invocation produced by a Runtime.
// Args[0] is the program; Stdin, when set, is a file path.
type Command struct {
	Args  []string
	Dir   string
	Stdin string
	Image string
}

func (c Command) String() string { return strings.Join(c.Args, " ") }

// Runtime defines how to compile and run code for a specific language.
// Implementations are stateless and never touch the filesystem.
type Runtime interface {
	// Name returns the language identifier (e.g. "java", "c_cpp").
	Name() Language

	// DisplayName is the human form used in error messages (e.g. "C++").
	DisplayName() string

	// Image returns the container image used by the docker launcher.
	Image() string

	// EntryFile returns the file name the source must be written to.
	EntryFile(code string) (string, error)

	// CompileCommand returns nil for interpreted languages.
	CompileCommand(l Layout) *Command

	// RunCommand returns the program invocation, reading stdin from l.Input().
	RunCommand(l Layout) Command
}

// Override replaces parts of a built-in toolchain entry.
type Override struct {
	Compiler    string
	Interpreter string
	Image       string
}

// Registry maps language identifiers to their Runtime implementations.
// It is read-only once constructed and safe for concurrent use.
type Registry struct {
	runtimes map[Language]Runtime
}

// NewRegistry creates a registry holding the given runtimes.
func NewRegistry(rts ...Runtime) *Registry {
	r := &Registry{
		runtimes: make(map[Language]Runtime, len(rts)),
	}
	for _, rt := range rts {
		r.runtimes[rt.Name()] = rt
	}
	return r
}

// DefaultRegistry creates a registry with all built-in toolchains, applying overrides.
func DefaultRegistry(overrides map[Language]Override) *Registry {
	rts := make([]Runtime, 0, len(toolchains))
	for _, tc := range toolchains {
		if o, ok := overrides[tc.lang]; ok {
			tc = tc.with(o)
		}
		rts = append(rts, tc)
	}
	return NewRegistry(rts...)
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[Language(language)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// Languages returns all registered language names, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, string(name))
	}
	sort.Strings(langs)
	return langs
}

// Images returns the distinct container images needed by registered runtimes.
func (r *Registry) Images() []string {
	seen := make(map[string]bool, len(r.runtimes))
	images := make([]string, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		if img := rt.Image(); img != "" && !seen[img] {
			seen[img] = true
			images = append(images, img)
		}
	}
	sort.Strings(images)
	return images
}

// IsBuiltin reports whether name is one of the built-in language identifiers.
func IsBuiltin(name string) bool {
	for _, tc := range toolchains {
		if string(tc.lang) == name {
			return true
		}
	}
	return false
}

// DetectLanguage guesses the language of a file from its extension.
func DetectLanguage(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, tc := range toolchains {
		for _, e := range tc.extensions {
			if e == ext {
				return tc.lang, true
			}
		}
	}
	return "", false
}
