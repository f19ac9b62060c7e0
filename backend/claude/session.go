package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/jsonutil"
	"github.com/sessiond/agentbridge/internal/supervisor"
	"github.com/sessiond/agentbridge/internal/wire"
	"github.com/sessiond/agentbridge/permission"
	"go.uber.org/zap"
)

const (
	defaultInitTimeout = 60 * time.Second
	eventBuffer        = 256
	permissionBuffer   = 32
)

type pendingCallback struct {
	envelopeID string
}

// session implements agentbridge.Session over Claude's stream-json
// envelope on a single long-lived child process.
type session struct {
	spec   agentbridge.SessionSpec
	sup    *supervisor.Supervisor
	writer *wire.Writer
	logger *zap.Logger

	events chan agentbridge.Event
	perms  chan agentbridge.PermissionRequest

	dispatcher *permission.Dispatcher
	callbacks  sync.Map // requestID(string) -> pendingCallback

	parser sdkParser
	seq    atomic.Uint64

	resolvedMu sync.Mutex
	resolved   agentbridge.ResolvedSessionID

	turnActive atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) nextEvent(typ agentbridge.EventType, raw json.RawMessage) agentbridge.Event {
	return agentbridge.Event{
		SessionID: s.spec.ID,
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Provider:  agentbridge.BackendClaude,
		Type:      typ,
		Raw:       raw,
	}
}

func (s *session) Events() <-chan agentbridge.Event                     { return s.events }
func (s *session) PermissionRequests() <-chan agentbridge.PermissionRequest { return s.perms }
func (s *session) Done() <-chan struct{}                                { return s.done }

func (s *session) ResolvedSessionID() agentbridge.ResolvedSessionID {
	s.resolvedMu.Lock()
	defer s.resolvedMu.Unlock()
	return s.resolved
}

func (s *session) setResolvedID(id string) {
	s.resolvedMu.Lock()
	defer s.resolvedMu.Unlock()
	if !s.resolved.Ok {
		s.resolved = agentbridge.ResolvedSessionID{ID: id, Ok: true}
	}
}

func (s *session) Capabilities() agentbridge.Capabilities {
	return agentbridge.Capabilities{
		SupportsModelChange:          false,
		SupportsPermissionModeChange: true,
		SupportsReasoningEffort:      false,
		SupportsConfigOptions:        false,
		SupportsHooks:                false,
	}
}

func (s *session) writeEnvelope(env envelope) error {
	return s.writer.WriteValue(env)
}

func (s *session) SendText(ctx context.Context, text string) error {
	return s.sendContentRaw(text)
}

func (s *session) SendContent(ctx context.Context, blocks []agentbridge.ContentBlock) error {
	rendered := contentBlocksToClaude(blocks)
	if len(rendered) == 1 && rendered[0]["type"] == "text" {
		return s.sendContentRaw(rendered[0]["text"])
	}
	return s.sendContentRaw(rendered)
}

func (s *session) sendContentRaw(content any) error {
	if !s.turnActive.CompareAndSwap(false, true) {
		return agentbridge.ErrTurnActive
	}
	payload := userMessagePayload{Message: userMessageBody{Role: "user", Content: content}}
	env := envelope{Type: typeUserMessage, SessionID: s.resolved.ID, Payload: mustRaw(payload)}
	if err := s.writeEnvelope(env); err != nil {
		s.turnActive.Store(false)
		return fmt.Errorf("claude: send: %w", err)
	}
	return nil
}

func (s *session) Interrupt(ctx context.Context) error {
	if !s.turnActive.Load() {
		return nil // no-op per spec §4.4.4
	}
	env := envelope{Type: typeSessionInterrupt, SessionID: s.resolved.ID}
	return s.writeEnvelope(env)
}

func (s *session) Kill(ctx context.Context) error {
	return s.sup.Stop(ctx)
}

func (s *session) SetModel(ctx context.Context, model string) error {
	return agentbridge.ErrUnsupported
}

// SetPermissionMode applies a runtime permission-mode change. There is
// no documented response to this control request, so the call is
// fire-and-forget: the next system/init-equivalent the agent emits (if
// any) is what confirms it took effect.
func (s *session) SetPermissionMode(ctx context.Context, mode string) error {
	payload := map[string]string{"subtype": "set_permission_mode", "mode": mode}
	env := envelope{Type: typeControlRequest, ID: uuid.NewString(), SessionID: s.resolved.ID, Payload: mustRaw(payload)}
	return s.writeEnvelope(env)
}

func (s *session) SetReasoningEffort(ctx context.Context, effort agentbridge.Effort) error {
	return agentbridge.ErrUnsupported
}

func (s *session) SetConfigOption(ctx context.Context, id, value string) error {
	return agentbridge.ErrUnsupported
}

func (s *session) RespondPermission(ctx context.Context, resp agentbridge.Respond) error {
	if !s.dispatcher.Resolve(resp) {
		return nil
	}
	v, ok := s.callbacks.LoadAndDelete(resp.RequestID)
	if !ok {
		return nil
	}
	pc := v.(pendingCallback)

	behavior := permission.ToClaude(resp.Decision)
	payload := callbackResponsePayload{Behavior: string(behavior)}
	switch behavior {
	case permission.ClaudeAllow:
		payload.UpdatedInput = resp.UpdatedInput
	case permission.ClaudeDeny:
		payload.Message = resp.Message
		payload.Interrupt = resp.Decision == agentbridge.DecisionCancelTurn
	}
	env := envelope{Type: typeCallbackResponse, ID: pc.envelopeID, SessionID: s.resolved.ID, Payload: mustRaw(payload)}
	return s.writeEnvelope(env)
}

// readLoop decodes envelopes from the child's stdout and dispatches them
// until the stream ends, at which point it closes the session's streams.
func (s *session) readLoop(r *wire.Reader, initDone chan<- error) {
	var gotCreated, gotInit bool
	initReported := false

	reportInit := func(err error) {
		if !initReported {
			initReported = true
			initDone <- err
		}
	}

	defer s.finish()

	for {
		raw, ok := r.Next()
		if !ok {
			break
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Debug("claude: malformed envelope", zap.Error(err))
			continue
		}

		switch env.Type {
		case typeSessionCreated:
			var p sessionCreatedPayload
			_ = json.Unmarshal(env.Payload, &p)
			s.setResolvedID(p.SessionID)
			gotCreated = true
			if gotCreated && gotInit {
				reportInit(nil)
			}
		case typeSDKMessage:
			var raw map[string]any
			if err := json.Unmarshal(env.Payload, &raw); err != nil {
				continue
			}
			if jsonutil.GetString(raw, "type") == "system" && jsonutil.GetString(raw, "subtype") == "init" {
				gotInit = true
			}
			base := s.nextEvent("", env.Payload)
			for _, ev := range s.parser.parse(raw, base) {
				s.pushEvent(ev)
			}
			if gotCreated && gotInit {
				reportInit(nil)
			}
			if jsonutil.GetString(raw, "type") == "result" {
				s.turnActive.Store(false)
			}
		case typeCallbackReq:
			s.handleCallbackRequest(env)
		case typeControlResp:
			// Acks for fire-and-forget control requests; nothing to do.
		case typeError:
			var p errorPayload
			_ = json.Unmarshal(env.Payload, &p)
			ev := s.nextEvent(agentbridge.EventError, env.Payload)
			ev.ErrorCode = p.Code
			ev.Text = p.Message
			s.pushEvent(ev)
		}
	}

	reportInit(fmt.Errorf("%w: stream closed before handshake completed", agentbridge.ErrInitTimeout))
}

func (s *session) handleCallbackRequest(env envelope) {
	var p callbackRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.CallbackType != "can_use_tool" {
		return
	}
	requestID := uuid.NewString()
	s.callbacks.Store(requestID, pendingCallback{envelopeID: env.ID})
	s.dispatcher.Register(requestID)

	req := agentbridge.PermissionRequest{
		RequestID: requestID,
		SessionID: s.spec.ID,
		ToolName:  p.ToolName,
		Input:     p.ToolInput,
		ToolUseID: p.ToolUseID,
		Backend:   agentbridge.BackendClaude,
		State:     agentbridge.PermissionPending,
	}
	if p.BlockedPath != "" {
		// ACPExtras.BlockedPath is the one generic carrier PermissionRequest
		// offers for this field; Claude's callback.request can report it too.
		req.ACP = &agentbridge.ACPExtras{BlockedPath: p.BlockedPath}
	}
	select {
	case s.perms <- req:
	case <-s.done:
	}
}

func (s *session) pushEvent(ev agentbridge.Event) {
	select {
	case s.events <- ev:
	default:
		// Slow consumer: drop and note it via a warning Log event rather
		// than block the reader (spec §5).
		dropped := s.nextEvent(agentbridge.EventLog, nil)
		dropped.LogLevel = "warning"
		dropped.Text = "event dropped: subscriber buffer full"
		select {
		case s.events <- dropped:
		default:
		}
	}
}

func (s *session) finish() {
	s.closeOnce.Do(func() {
		s.dispatcher.CancelAll()
		close(s.events)
		close(s.perms)
		close(s.done)
	})
}
