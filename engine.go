package agentbridge

import "context"

// Engine starts and validates agent sessions for one backend dialect.
// backend/claude, backend/codex, and backend/acp each provide one
// implementation. Use Validate to check the engine's prerequisites
// (binary on PATH, etc.) before calling Start.
type Engine interface {
	// Start spawns the backend process (or, for Codex, attaches to its
	// shared app-server process) and performs the initialization
	// handshake. The returned Session is in state SessionReady (or
	// SessionTerminated with a non-nil error on handshake failure).
	Start(ctx context.Context, spec SessionSpec) (Session, error)

	// Validate checks that the engine's prerequisites are met: for CLI
	// engines, that the binary exists and is executable.
	Validate() error
}

// Session is the live handle to one running agent session — the common
// contract spec §4.4 requires of all three backend adapters. It is the
// thing backend packages implement; EventTransport wraps it with command
// validation and a public-facing uniform surface.
type Session interface {
	// Events returns the hot stream of normalized Events. Closed when
	// the session terminates; no further sends occur after close.
	Events() <-chan Event

	// PermissionRequests returns the hot stream of normalized
	// PermissionRequest items. Closed when the session terminates.
	PermissionRequests() <-chan PermissionRequest

	// SendText sends a plain-text user message, starting a new turn.
	SendText(ctx context.Context, text string) error

	// SendContent sends a structured content-block message, starting a
	// new turn.
	SendContent(ctx context.Context, blocks []ContentBlock) error

	// Interrupt cancels the active turn, if any. A no-op if no turn is
	// active (spec §4.4.4).
	Interrupt(ctx context.Context) error

	// Kill terminates the session immediately: graceful-then-forceful
	// child termination, then stream closure. Idempotent. Where one
	// process serves many sessions (Codex), Kill ends only this session's
	// thread and streams; the shared process keeps running.
	Kill(ctx context.Context) error

	// SetModel, SetPermissionMode, SetReasoningEffort, and
	// SetConfigOption apply a cross-cutting override. Each returns
	// ErrUnsupported if the backend has no wire representation for it.
	SetModel(ctx context.Context, model string) error
	SetPermissionMode(ctx context.Context, mode string) error
	SetReasoningEffort(ctx context.Context, effort Effort) error
	SetConfigOption(ctx context.Context, id, value string) error

	// RespondPermission resolves exactly one outstanding
	// PermissionRequest. Later or duplicate calls for the same
	// RequestID are no-ops.
	RespondPermission(ctx context.Context, resp Respond) error

	// ResolvedSessionID returns the backend-assigned identifier once
	// initialization has captured one.
	ResolvedSessionID() ResolvedSessionID

	// Capabilities reports which cross-cutting commands this session's
	// backend can fulfil.
	Capabilities() Capabilities

	// Done returns a channel closed once the session has fully
	// terminated and both Events and PermissionRequests have been
	// closed. Used by EventTransport to drive its status() stream.
	Done() <-chan struct{}
}
