// Package assistant adapts the external tool-calling capability (OpenAI
// Assistants API). It is the only package that imports the OpenAI client;
// everything else sees thread handles, run snapshots, and invocations.
package assistant

import "encoding/json"

// RunState is the coarse state of an in-flight run.
type RunState string

const (
	StateQueued         RunState = "queued"
	StateInProgress     RunState = "in_progress"
	StateRequiresAction RunState = "requires_action"
	StateCompleted      RunState = "completed"
	StateFailed         RunState = "failed"
)

// Invocation is one tool call requested by the model.
type Invocation struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolOutput pairs an invocation id with its serialized result.
type ToolOutput struct {
	CallID string
	Output string
}

// RunSnapshot is one observation of a run.
type RunSnapshot struct {
	State RunState
	Calls []Invocation
}
