package agentbridge

import (
	"context"
	"sync"
)

// Status is a value on the Transport Facade's status() hot stream
// (spec §4.7).
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// EventTransport is the consumer-facing object spec §4.7 names: one per
// active session, exposing a uniform event stream, permission-request
// stream, status stream, and validated command sink over whichever
// Session a backend Engine produced.
type EventTransport struct {
	session Session
	spec    SessionSpec

	statusCh chan Status

	disposeOnce sync.Once
	disposed    chan struct{}
}

// Start spawns a session through eng and wraps it in an EventTransport.
// opts override fields of spec before the engine sees it (WithModel,
// WithOption, etc.).
func Start(ctx context.Context, eng Engine, spec SessionSpec, opts ...Option) (*EventTransport, error) {
	resolved := resolveOptions(spec, opts...)

	session, err := eng.Start(ctx, resolved)
	if err != nil {
		return nil, err
	}

	t := &EventTransport{
		session:  session,
		spec:     resolved,
		statusCh: make(chan Status, 8),
		disposed: make(chan struct{}),
	}
	t.statusCh <- StatusConnected
	go t.watchDone()
	return t, nil
}

// watchDone forwards the underlying session's termination into a single
// StatusDisconnected on the status stream, then closes it.
func (t *EventTransport) watchDone() {
	<-t.session.Done()
	select {
	case t.statusCh <- StatusDisconnected:
	default:
		// Status stream has a slow/absent subscriber; per spec §5 this
		// never blocks the underlying reader, and a terminal
		// Disconnected is best-effort — Events()/PermissionRequests()
		// closing is the authoritative termination signal regardless.
	}
	close(t.statusCh)
}

// Events returns the hot stream of normalized Events for this session.
func (t *EventTransport) Events() <-chan Event { return t.session.Events() }

// PermissionRequests returns the hot stream of normalized
// PermissionRequest items for this session.
func (t *EventTransport) PermissionRequests() <-chan PermissionRequest {
	return t.session.PermissionRequests()
}

// Status returns the hot stream of connection status transitions.
func (t *EventTransport) Status() <-chan Status { return t.statusCh }

// ResolvedSessionID returns the backend-assigned identifier once
// initialization has captured one.
func (t *EventTransport) ResolvedSessionID() ResolvedSessionID { return t.session.ResolvedSessionID() }

// Send validates cmd against the session's backend capabilities and
// dispatches it. Unsupported command types return ErrUnsupported without
// reaching the adapter (spec §4.7).
func (t *EventTransport) Send(ctx context.Context, cmd Command) error {
	caps := t.session.Capabilities()

	switch cmd.Type {
	case CommandSendMessage:
		return t.session.SendText(ctx, cmd.Text)
	case CommandSendContent:
		return t.session.SendContent(ctx, cmd.Blocks)
	case CommandInterrupt:
		return t.session.Interrupt(ctx)
	case CommandKill:
		return t.session.Kill(ctx)
	case CommandSetModel:
		if !caps.SupportsModelChange {
			return ErrUnsupported
		}
		return t.session.SetModel(ctx, cmd.Model)
	case CommandSetPermissionMode:
		if !caps.SupportsPermissionModeChange {
			return ErrUnsupported
		}
		return t.session.SetPermissionMode(ctx, cmd.PermissionMode)
	case CommandSetReasoningEffort:
		if !caps.SupportsReasoningEffort {
			return ErrUnsupported
		}
		return t.session.SetReasoningEffort(ctx, cmd.Effort)
	case CommandSetConfigOption:
		if !caps.SupportsConfigOptions {
			return ErrUnsupported
		}
		return t.session.SetConfigOption(ctx, cmd.ConfigOptionID, cmd.ConfigOptionValue)
	case CommandPermissionResponse:
		return t.session.RespondPermission(ctx, cmd.Permission)
	default:
		return ErrUnsupported
	}
}

// Dispose terminates the session and releases all resources. Idempotent.
func (t *EventTransport) Dispose(ctx context.Context) error {
	var err error
	t.disposeOnce.Do(func() {
		err = t.session.Kill(ctx)
		close(t.disposed)
	})
	return err
}
