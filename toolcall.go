package agentbridge

import "encoding/json"

// ToolStatus is a tool call's lifecycle position per spec §3.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
	ToolCancelled ToolStatus = "cancelled"
)

// ToolCall is an agent-invoked operation. Identity is ToolUseID, an
// opaque string from the backend; every emitted ToolResult must carry a
// ToolUseID previously announced by a ToolUse event in the same session
// (spec §3 invariant; each adapter's parser tracks announced ids and
// logs and drops a result whose id was never announced).
type ToolCall struct {
	ToolUseID string          `json:"tool_use_id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Status    ToolStatus      `json:"status"`

	// ParentToolUseID links a subagent's tool call back to the tool call
	// that spawned the subagent, when the backend reports one.
	ParentToolUseID string `json:"parent_tool_use_id,omitempty"`

	// AffectedPaths lists filesystem paths the tool touched, when the
	// backend reports them (ACP's tool_call.locations, Codex's
	// fileChange.changes[].path).
	AffectedPaths []string `json:"affected_paths,omitempty"`

	// IsError marks a ToolResult whose Output represents a failure
	// rather than a successful result, per the Content Block ToolResult
	// variant's is_error flag.
	IsError bool `json:"is_error,omitempty"`
}
