package agentbridge

import "encoding/json"

// Decision is the unified permission decision vocabulary consumers reply
// with. The Permission Dispatcher (package permission) maps each value to
// the three backends' independent wire vocabularies per spec §4.6.
type Decision string

const (
	DecisionAllowOnce       Decision = "allow_once"
	DecisionAllowForSession Decision = "allow_for_session"
	DecisionAllowAlways     Decision = "allow_always"
	DecisionDeny            Decision = "deny"
	DecisionCancelTurn      Decision = "cancel_turn"
)

// PermissionState is a permission request's lifecycle per spec §3:
// Pending → (Allowed | Denied | Cancelled).
type PermissionState string

const (
	PermissionPending  PermissionState = "pending"
	PermissionAllowed  PermissionState = "allowed"
	PermissionDenied   PermissionState = "denied"
	PermissionCancelled PermissionState = "cancelled"
)

// CodexExtras carries the Codex-specific fields a permission request may
// include: a server-proposed persistent-allow rule and the structured
// command action list backing a commandExecution approval.
type CodexExtras struct {
	ProposedExecpolicyAmendment json.RawMessage `json:"proposed_execpolicy_amendment,omitempty"`
	Actions                     json.RawMessage `json:"actions,omitempty"`
}

// ACPExtras carries the ACP-specific fields a permission request must
// preserve verbatim so a UI can render the agent's own option set (spec
// §4.4.3's "acp.permissionOptions" extension).
type ACPExtras struct {
	// Options is the verbatim options array the agent offered, e.g.
	// [{optionId, name, kind: allow_once|allow_always|reject_once|reject_always}, ...].
	Options json.RawMessage `json:"options,omitempty"`

	// BlockedPath is set when the request originates from a
	// client-implemented fs/terminal method rejecting a path (spec §7's
	// "raise a permission request" policy option).
	BlockedPath string `json:"blocked_path,omitempty"`
}

// PermissionRequest is a server-originated prompt asking whether a tool
// may run. Identity is RequestID, a correlation id the dispatcher either
// receives from the wire (Codex, ACP requests carry a JSON-RPC id) or
// mints itself (Claude's callback.request has no envelope id).
type PermissionRequest struct {
	RequestID string          `json:"request_id"`
	SessionID string          `json:"session_id"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Backend   BackendKind     `json:"backend"`
	State     PermissionState `json:"state"`

	Codex *CodexExtras `json:"codex,omitempty"`
	ACP   *ACPExtras   `json:"acp,omitempty"`
}

// Respond is the shape a consumer sends back for exactly one
// PermissionRequest. UpdatedInput lets the consumer edit the tool input
// before it runs (Claude's updated_input); Message is an optional
// human-readable reason attached to a deny.
type Respond struct {
	RequestID string   `json:"request_id"`
	Decision  Decision `json:"decision"`

	UpdatedInput json.RawMessage `json:"updated_input,omitempty"`
	Message      string          `json:"message,omitempty"`

	// OptionID, when set, pins the exact ACP option to select instead of
	// letting the dispatcher pick the first option matching Decision's
	// kind. Ignored by non-ACP backends.
	OptionID string `json:"option_id,omitempty"`
}
