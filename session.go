package agentbridge

import "maps"

// BackendKind identifies which wire dialect a session speaks.
type BackendKind string

const (
	BackendClaude BackendKind = "claude"
	BackendCodex  BackendKind = "codex"
	BackendACP    BackendKind = "acp"
)

// SessionState is a session's position in the lifecycle spec §3 defines:
// Spawning → Initializing → Ready → (Turn-active ⇄ Ready)* → Terminating → Terminated.
type SessionState string

const (
	SessionSpawning     SessionState = "spawning"
	SessionInitializing SessionState = "initializing"
	SessionReady        SessionState = "ready"
	SessionTurnActive   SessionState = "turn_active"
	SessionTerminating  SessionState = "terminating"
	SessionTerminated   SessionState = "terminated"
)

// Cross-cutting, backend-namespaced-where-relevant option keys. Backend
// packages define their own additional namespaced keys (e.g.
// claude.OptionPermissionMode) for options with no cross-backend meaning.
const (
	OptionResumeID       = "resume_id"
	OptionSystemPrompt   = "system_prompt"
	OptionMaxTurns       = "max_turns"
	OptionThinkingBudget = "thinking_budget"
	OptionEffort         = "effort"
	OptionAddDirs        = "add_dirs"
	OptionMode           = "mode"
)

// Mode is the cross-cutting plan/act control surface honored, where
// representable, by all three adapters.
type Mode string

const (
	ModeAct  Mode = "act"
	ModePlan Mode = "plan"
)

// Valid reports whether m is a recognized Mode value.
func (m Mode) Valid() bool { return m == ModeAct || m == ModePlan }

// Effort is the cross-cutting reasoning-effort control surface. Only the
// Codex adapter maps this onto a wire field; others report Unsupported
// via capability negotiation in the Transport Facade (C7).
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
	EffortMax    Effort = "max"
)

// Valid reports whether e is a recognized Effort value.
func (e Effort) Valid() bool {
	switch e {
	case EffortLow, EffortMedium, EffortHigh, EffortMax:
		return true
	}
	return false
}

// SessionSpec is the value-type configuration passed to Engine.Start. It
// carries identity and initial configuration only — no runtime state, no
// mutexes, no channels — mirroring the teacher's Session value-type
// convention so it can be freely cloned and compared.
type SessionSpec struct {
	// ID is the transport-local session identifier, chosen by the
	// caller before the backend assigns anything of its own.
	ID string `json:"id"`

	// Backend identifies which adapter created/will create this session.
	// Set by the Engine on Start; callers leave it zero.
	Backend BackendKind `json:"backend,omitempty"`

	// CWD is the working directory for the agent process. Must be an
	// absolute path that exists and is a directory.
	CWD string `json:"cwd"`

	// Model is the initial model override, if any.
	Model string `json:"model,omitempty"`

	// InitialPrompt, when non-empty, is sent as the first turn
	// immediately after initialization completes.
	InitialPrompt string `json:"initial_prompt,omitempty"`

	// Options holds cross-cutting and backend-namespaced key/value
	// configuration (see OptionXxx constants here and per-backend).
	Options map[string]string `json:"options,omitempty"`

	// Env holds additional environment variables merged over the
	// inherited process environment for the spawned child.
	Env map[string]string `json:"env,omitempty"`
}

// Clone returns a deep copy of s, cloning the Options and Env maps so the
// caller and the engine never alias the same backing map.
func (s SessionSpec) Clone() SessionSpec {
	if s.Options != nil {
		s.Options = maps.Clone(s.Options)
	}
	if s.Env != nil {
		s.Env = maps.Clone(s.Env)
	}
	return s
}

// ResolvedSessionID returns the opaque backend-assigned identifier for
// spec §3's "resolved session id": once set it never changes, and it is
// the token fed back into a resume/load call in a later process.
type ResolvedSessionID struct {
	ID string
	Ok bool
}

// Capabilities describes which cross-cutting commands a session's
// backend can fulfil. The Transport Facade (C7) validates outgoing
// Commands against this table and rejects unsupported ones with
// ErrUnsupported rather than letting the adapter fail silently.
type Capabilities struct {
	SupportsModelChange          bool
	SupportsPermissionModeChange bool
	SupportsReasoningEffort      bool
	SupportsConfigOptions        bool
	SupportsHooks                bool
}
