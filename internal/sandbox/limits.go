package sandbox

import (
	"fmt"
)

// ResourceLimits bound a single containerized step.
type ResourceLimits struct {
	CPUShares int64 `json:"cpu_shares"` // 1024 = 1 CPU core
	MemoryMB  int64 `json:"memory_mb"`  // Hard memory limit, swap included
	PidsLimit int64 `json:"pids_limit"` // Max processes (fork bomb protection)
	DiskMB    int64 `json:"disk_mb"`    // Tmpfs size for /tmp
}

// DefaultLimits leaves room for the JVM and the Swift/Scala toolchains.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		CPUShares: 1024, // 1 CPU
		MemoryMB:  512,
		PidsLimit: 128,
		DiskMB:    256,
	}
}

func (rl ResourceLimits) Validate() error {
	if rl.CPUShares < 2 || rl.CPUShares > 8192 {
		return fmt.Errorf("%w: cpu_shares must be 2-8192, got %d", ErrInvalidLimits, rl.CPUShares)
	}
	if rl.MemoryMB < 16 || rl.MemoryMB > 16384 {
		return fmt.Errorf("%w: memory_mb must be 16-16384, got %d", ErrInvalidLimits, rl.MemoryMB)
	}
	if rl.PidsLimit < 5 || rl.PidsLimit > 2000 {
		return fmt.Errorf("%w: pids_limit must be 5-2000, got %d", ErrInvalidLimits, rl.PidsLimit)
	}
	if rl.DiskMB < 1 || rl.DiskMB > 10240 {
		return fmt.Errorf("%w: disk_mb must be 1-10240, got %d", ErrInvalidLimits, rl.DiskMB)
	}
	return nil
}

// dockerArgs renders the limits as docker run flags.
func (rl ResourceLimits) dockerArgs() []string {
	return []string{
		"--memory", fmt.Sprintf("%dm", rl.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", rl.MemoryMB),
		"--pids-limit", fmt.Sprintf("%d", rl.PidsLimit),
		"--cpus", fmt.Sprintf("%.2f", float64(rl.CPUShares)/1024.0),
		"--tmpfs", fmt.Sprintf("/tmp:rw,exec,nosuid,nodev,size=%dm", rl.DiskMB),
		"--ulimit", "core=0",
		"--ulimit", "nofile=256:256",
	}
}
