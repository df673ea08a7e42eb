package api

import "encoding/json"

type JobType string

const (
	RunModuleJob JobType = "run-module"
	SandboxJob   JobType = "sandbox"
)

// Envelope wraps every job delivered by a transport.
type Envelope struct {
	Type JobType `json:"type"`
	// ID identifies the job for cancellation. Run-module jobs default to their run id.
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorKind string

const (
	ValidationErr     ErrorKind = "validation"
	InfrastructureErr ErrorKind = "infrastructure"
	CancelledErr      ErrorKind = "cancelled"
	UnknownTypeErr    ErrorKind = "unknown_type"
)

type ErrorBody struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Reply is sent back for every envelope. Exactly one of Error and Result is set.
type Reply struct {
	Type   JobType         `json:"type"`
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Error  *ErrorBody      `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}
