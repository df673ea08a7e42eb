package limits

import (
	"fmt"
	"time"
)

type Network string

const (
	NetworkDeny  Network = "deny"
	NetworkAllow Network = "allow"
)

// ParseNetwork accepts the two wire values of the network policy.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case NetworkDeny, NetworkAllow:
		return Network(s), nil
	}
	return "", fmt.Errorf("unknown network policy %q", s)
}

// Limits is the effective resource limit set of one job.
// Values are only produced by Clamp and are never mutated afterwards.
type Limits struct {
	CpuTimeMs      int64   `json:"cpuTimeMs" toml:"cpu_time_ms"`
	WallTimeMs     int64   `json:"wallTimeMs" toml:"wall_time_ms"`
	MaxOutputBytes int64   `json:"maxOutputBytes" toml:"max_output_bytes"`
	MaxMemoryMb    int64   `json:"maxMemoryMb" toml:"max_memory_mb"`
	MaxFileBytes   int64   `json:"maxFileBytes" toml:"max_file_bytes"`
	MaxFiles       int64   `json:"maxFiles" toml:"max_files"`
	Network        Network `json:"network" toml:"network"`
}

// Partial holds caller overrides. Nil fields fall back to defaults.
type Partial struct {
	CpuTimeMs      *int64
	WallTimeMs     *int64
	MaxOutputBytes *int64
	MaxMemoryMb    *int64
	MaxFileBytes   *int64
	MaxFiles       *int64
	Network        *Network
}

type bound struct {
	def, floor, ceil int64
}

var (
	cpuTimeMsBound      = bound{def: 2_000, floor: 250, ceil: 30_000}
	wallTimeMsBound     = bound{def: 8_000, floor: 500, ceil: 120_000}
	maxOutputBytesBound = bound{def: 512_000, floor: 8_192, ceil: 10_000_000}
	maxMemoryMbBound    = bound{def: 256, floor: 64, ceil: 4_096}
	maxFileBytesBound   = bound{def: 10_000_000, floor: 256_000, ceil: 200_000_000}
	maxFilesBound       = bound{def: 200, floor: 10, ceil: 10_000}
)

func (b bound) apply(v *int64) int64 {
	if v == nil {
		return b.def
	}
	return min(max(*v, b.floor), b.ceil)
}

func Default() Limits {
	return Clamp(Partial{})
}

// Clamp merges the overrides onto the defaults and forces every numeric
// field into its [floor, ceiling] range. It never fails.
func Clamp(p Partial) Limits {
	network := NetworkDeny
	if p.Network != nil && *p.Network == NetworkAllow {
		network = NetworkAllow
	}
	return Limits{
		CpuTimeMs:      cpuTimeMsBound.apply(p.CpuTimeMs),
		WallTimeMs:     wallTimeMsBound.apply(p.WallTimeMs),
		MaxOutputBytes: maxOutputBytesBound.apply(p.MaxOutputBytes),
		MaxMemoryMb:    maxMemoryMbBound.apply(p.MaxMemoryMb),
		MaxFileBytes:   maxFileBytesBound.apply(p.MaxFileBytes),
		MaxFiles:       maxFilesBound.apply(p.MaxFiles),
		Network:        network,
	}
}

func (l Limits) WallTime() time.Duration {
	return time.Duration(l.WallTimeMs) * time.Millisecond
}

func (l Limits) CpuTime() time.Duration {
	return time.Duration(l.CpuTimeMs) * time.Millisecond
}

// CpuTimeSec rounds the CPU limit up to whole seconds, the granularity of RLIMIT_CPU.
func (l Limits) CpuTimeSec() int64 {
	return (l.CpuTimeMs + 999) / 1000
}

func (l Limits) MemoryBytes() int64 {
	return l.MaxMemoryMb * 1024 * 1024
}
