package monitor

import (
	"regexp"
	"strings"
)

// CodeDetector flags submitted programs that probe the isolation boundary.
// It is advisory: callers log and count detections but still run the code.
type CodeDetector struct {
	patterns []DetectionPattern
}

// DetectionPattern defines a suspicious pattern to match.
// An empty Languages list applies the pattern to every language.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
	Languages   []string
}

// Severity levels for detected threats.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detection represents a detected suspicious pattern.
type Detection struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
}

// NewCodeDetector creates a detector with default patterns.
func NewCodeDetector() *CodeDetector {
	return &CodeDetector{
		patterns: defaultPatterns(),
	}
}

func (p DetectionPattern) appliesTo(language string) bool {
	if len(p.Languages) == 0 {
		return true
	}
	for _, l := range p.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// AnalyzeCode checks submitted code for suspicious patterns before execution.
// Each pattern is reported at most once, on the first line it matches.
func (d *CodeDetector) AnalyzeCode(language, code string) []Detection {
	var detections []Detection

	lines := strings.Split(code, "\n")
	for _, p := range d.patterns {
		if !p.appliesTo(language) {
			continue
		}
		for i, line := range lines {
			if p.Regex.MatchString(line) {
				detections = append(detections, Detection{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Line:     i + 1,
				})
				break
			}
		}
	}

	return detections
}

// AnalyzeOutput checks program output for signs that host data leaked through.
func (d *CodeDetector) AnalyzeOutput(output string) []Detection {
	var detections []Detection

	outputPatterns := []struct {
		name   string
		substr string
		sev    Severity
	}{
		{"passwd_leak", "root:x:0:0", SeverityCritical},
		{"shadow_leak", "root:$", SeverityCritical},
		{"kernel_leak", "Linux version", SeverityHigh},
		{"docker_socket", "docker.sock", SeverityCritical},
		{"cloud_credentials", "AccessKeyId", SeverityCritical},
	}

	for _, p := range outputPatterns {
		if strings.Contains(output, p.substr) {
			detections = append(detections, Detection{
				Pattern:  p.name,
				Severity: p.sev.String(),
				Detail:   "suspicious content in output: " + p.name,
			})
		}
	}

	return detections
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "process_spawn",
			Description: "Spawning external processes from user code",
			Regex: regexp.MustCompile(`Runtime\.getRuntime\(\)\.exec|new\s+ProcessBuilder|\bos/exec\b|exec\.Command\(|` +
				`\bsubprocess\.|\bos\.(system|popen|exec[lv]p?e?)\(|\b(system|popen|execv|execl|fork)\s*\(|` +
				`\bProcess\.(run|start)\(|\bProcess\(\)`),
			Severity: SeverityMedium,
		},
		{
			Name:        "shell_escape",
			Description: "Running shell commands through backticks",
			Regex:       regexp.MustCompile("%x\\(|`[^`]+`"),
			Severity:    SeverityMedium,
			Languages:   []string{"ruby"},
		},
		{
			Name:        "sensitive_file_read",
			Description: "Reading host credential or identity files",
			Regex:       regexp.MustCompile(`/etc/(passwd|shadow|sudoers)|\.ssh/|\.aws/credentials`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "proc_self_access",
			Description: "Accessing /proc/self for process info",
			Regex:       regexp.MustCompile(`/proc/self/(root|exe|fd|ns|maps|environ|mem)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "container_breakout",
			Description: "Attempting container breakout via cgroup",
			Regex:       regexp.MustCompile(`/sys/fs/cgroup|notify_on_release|release_agent`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "host_socket_access",
			Description: "Attempting to reach the container runtime socket",
			Regex:       regexp.MustCompile(`/var/run/docker|/run/containerd`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "network_access",
			Description: "Opening network connections",
			Regex: regexp.MustCompile(`new\s+(java\.net\.)?(Socket|ServerSocket|URL)\(|HttpClient|net\.(Dial|Listen)|` +
				`socket\.socket\(|urllib|requests\.(get|post)|TCPSocket|Net::HTTP|URLSession|\bsocket\s*\(\s*AF_INET|` +
				`Socket\.connect`),
			Severity: SeverityMedium,
		},
		{
			Name:        "native_code",
			Description: "Loading native code or bypassing the language runtime",
			Regex:       regexp.MustCompile(`System\.load(Library)?\(|\bctypes\b|\bdlopen\b|"unsafe"|"syscall"|\bFiddle\b|dart:ffi|sun\.misc\.Unsafe|__asm__|\basm\s*\(`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "fork_bomb",
			Description: "Unbounded process creation",
			Regex:       regexp.MustCompile(`while\s*\(\s*(1|true)\s*\)\s*\{?\s*fork\s*\(|for\s*\(\s*;\s*;\s*\)\s*fork\s*\(|:\(\)\s*\{\s*:\|:&\s*\};:`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "metadata_service",
			Description: "Attempting to reach cloud metadata service",
			Regex:       regexp.MustCompile(`169\.254\.169\.254|metadata\.google|metadata\.aws`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "ptrace_attempt",
			Description: "Attempting to use ptrace for debugging/injection",
			Regex:       regexp.MustCompile(`(?i)(\bptrace\b|process_vm_readv|process_vm_writev|PTRACE_ATTACH)`),
			Severity:    SeverityCritical,
			Languages:   []string{"c_cpp", "go", "swift", "dart"},
		},
		{
			Name:        "crypto_miner",
			Description: "Potential cryptocurrency mining",
			Regex:       regexp.MustCompile(`(?i)(stratum\+tcp|xmrig|minerd|cryptonight|hashrate)`),
			Severity:    SeverityMedium,
		},
	}
}
