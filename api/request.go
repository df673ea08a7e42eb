package api

import "encoding/json"

// JobReq is the sandbox job descriptor as it arrives from a queue or the CLI.
type JobReq struct {
	EntryFile string            `json:"entryFile" toml:"entry_file"`
	Files     []File            `json:"files" toml:"files"`
	Args      []string          `json:"args,omitempty" toml:"args"`
	Env       map[string]string `json:"env,omitempty" toml:"env"`
	Limits    *LimitsReq        `json:"limits,omitempty" toml:"limits"`
}

type File struct {
	RelPath string `json:"relPath" toml:"rel_path"`
	Content string `json:"content" toml:"content"`
}

// LimitsReq carries partial limit overrides. Nil fields use defaults.
type LimitsReq struct {
	CpuTimeMs      *int64  `json:"cpuTimeMs,omitempty" toml:"cpu_time_ms"`
	WallTimeMs     *int64  `json:"wallTimeMs,omitempty" toml:"wall_time_ms"`
	MaxOutputBytes *int64  `json:"maxOutputBytes,omitempty" toml:"max_output_bytes"`
	MaxMemoryMb    *int64  `json:"maxMemoryMb,omitempty" toml:"max_memory_mb"`
	MaxFileBytes   *int64  `json:"maxFileBytes,omitempty" toml:"max_file_bytes"`
	MaxFiles       *int64  `json:"maxFiles,omitempty" toml:"max_files"`
	Network        *string `json:"network,omitempty" toml:"network"`
}

// RunModuleReq asks the worker to run a packed module bundle.
type RunModuleReq struct {
	RunID             string          `json:"runId"`
	ModuleID          string          `json:"moduleId"`
	ForkID            *string         `json:"forkId,omitempty"`
	PackedArtifactKey string          `json:"packedArtifactKey"`
	Input             json.RawMessage `json:"input,omitempty"`
	Limits            *LimitsReq      `json:"limits,omitempty"`
}

// Bundle is the JSON document stored under a packed artifact key.
type Bundle struct {
	EntryFile string `json:"entryFile"`
	Files     []File `json:"files"`
}
