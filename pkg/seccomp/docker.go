package seccomp

import (
	"encoding/json"
	"fmt"
	"os"
)

// DockerProfileJSON renders the profile in the format accepted by
// `docker run --security-opt seccomp=<file>`.
func DockerProfileJSON(network bool) ([]byte, error) {
	p := DefaultProfile()
	if network {
		p = NetworkAllowProfile()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal seccomp profile: %w", err)
	}
	return data, nil
}

// WriteDockerProfile writes the profile to a new file in dir (os.TempDir when
// empty) and returns its path. The caller removes it.
func WriteDockerProfile(dir string, network bool) (string, error) {
	data, err := DockerProfileJSON(network)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "snippet-runner-seccomp-*.json")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	// The docker daemon, not this process, reads the file.
	if err := os.Chmod(f.Name(), 0o644); err != nil { // #nosec G302 -- profile contains no secrets
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
