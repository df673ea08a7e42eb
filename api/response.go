package api

// OutputLimitExceeded is appended to stderr when the output guard fires.
const OutputLimitExceeded = "OUTPUT_LIMIT_EXCEEDED"

// Result is the outcome of one sandbox execution.
type Result struct {
	Ok              bool    `json:"ok"`
	ExitCode        *int    `json:"exitCode"`
	Signal          *string `json:"signal"`
	Stdout          string  `json:"stdout"`
	Stderr          string  `json:"stderr"`
	DurationMs      int64   `json:"durationMs"`
	TimedOut        bool    `json:"timedOut"`
	OutputTruncated bool    `json:"outputTruncated"`

	// Backend names the isolation backend that ran the job.
	Backend  string `json:"backend"`
	Isolated bool   `json:"isolated"`

	// Hex SHA-256 of the trimmed stdout, set when output hashing is enabled.
	StdoutSha256 string `json:"stdoutSha256,omitempty"`
}

type RunModuleRes struct {
	RunID    string  `json:"runId"`
	ModuleID string  `json:"moduleId"`
	ForkID   *string `json:"forkId,omitempty"`
	Result   Result  `json:"result"`
}
