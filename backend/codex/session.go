package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/rpc"
	"github.com/sessiond/agentbridge/permission"
	"go.uber.org/zap"
)

// itemState tracks an in-flight item between item/started and
// item/completed so the completion event can carry the name and kind
// the start event announced — Codex's wire protocol does not repeat
// them on completion.
type itemState struct {
	kind string
	name string
}

// session implements agentbridge.Session over one Codex thread,
// multiplexed on the Backend's shared JSON-RPC connection.
type session struct {
	spec     agentbridge.SessionSpec
	conn     *rpc.Conn
	threadID string
	logger   *zap.Logger

	events chan agentbridge.Event
	perms  chan agentbridge.PermissionRequest

	dispatcher *permission.Dispatcher

	itemsMu sync.Mutex
	items   map[string]*itemState

	seq atomic.Uint64

	resolved agentbridge.ResolvedSessionID

	turnActive  atomic.Bool
	currentTurn atomic.Value // string, the backend turnId of the active turn
	model       atomic.Value // string, SetModel override sent on later turns

	// remove unregisters this session from the Backend's shared thread
	// registry. Called exactly once, from finish.
	remove func()

	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) nextEvent(typ agentbridge.EventType, raw json.RawMessage) agentbridge.Event {
	return agentbridge.Event{
		SessionID: s.spec.ID,
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Provider:  agentbridge.BackendCodex,
		Type:      typ,
		Raw:       raw,
	}
}

func (s *session) Events() <-chan agentbridge.Event                        { return s.events }
func (s *session) PermissionRequests() <-chan agentbridge.PermissionRequest { return s.perms }
func (s *session) Done() <-chan struct{}                                   { return s.done }
func (s *session) ResolvedSessionID() agentbridge.ResolvedSessionID        { return s.resolved }

func (s *session) Capabilities() agentbridge.Capabilities {
	return agentbridge.Capabilities{
		SupportsModelChange:          true,
		SupportsPermissionModeChange: false,
		SupportsReasoningEffort:      true,
		SupportsConfigOptions:        false,
		SupportsHooks:                false,
	}
}

func (s *session) SendText(ctx context.Context, text string) error {
	return s.startTurn(ctx, []map[string]any{{"type": "text", "text": text}})
}

func (s *session) SendContent(ctx context.Context, blocks []agentbridge.ContentBlock) error {
	input, err := buildTurnInput(blocks)
	if err != nil {
		return err
	}
	return s.startTurn(ctx, input)
}

func (s *session) startTurn(ctx context.Context, input []map[string]any) error {
	if !s.turnActive.CompareAndSwap(false, true) {
		return agentbridge.ErrTurnActive
	}
	params := map[string]any{"threadId": s.threadID, "input": input}
	if effort := s.spec.Options[agentbridge.OptionEffort]; effort != "" {
		if wire, ok := codexEffort[agentbridge.Effort(effort)]; ok {
			params["effort"] = wire
		}
	}
	model := s.spec.Model
	if m, ok := s.model.Load().(string); ok && m != "" {
		model = m
	}
	if model != "" {
		params["model"] = model
	}

	var result struct {
		TurnID string `json:"turnId"`
	}
	if err := s.conn.Call(ctx, "turn/start", params, &result); err != nil {
		s.turnActive.Store(false)
		return fmt.Errorf("codex: turn/start: %w", err)
	}
	if result.TurnID != "" {
		s.currentTurn.Store(result.TurnID)
	}
	return nil
}

func (s *session) Interrupt(ctx context.Context) error {
	if !s.turnActive.Load() {
		return nil
	}
	turnID, _ := s.currentTurn.Load().(string)
	return s.conn.Notify("turn/interrupt", map[string]any{"threadId": s.threadID, "turnId": turnID})
}

// Kill severs this thread's local state. The shared app-server process
// and its connection outlive any single session, since other threads
// may still be in flight on it.
func (s *session) Kill(ctx context.Context) error {
	_ = s.conn.Notify("thread/stop", map[string]any{"threadId": s.threadID})
	s.finish()
	return nil
}

func (s *session) SetModel(ctx context.Context, model string) error {
	s.model.Store(model)
	return nil
}

func (s *session) SetPermissionMode(ctx context.Context, mode string) error {
	return agentbridge.ErrUnsupported
}

func (s *session) SetReasoningEffort(ctx context.Context, effort agentbridge.Effort) error {
	wire, ok := codexEffort[effort]
	if !ok {
		return fmt.Errorf("%w: unrecognized effort %q", agentbridge.ErrUnsupported, effort)
	}
	return s.conn.Notify("thread/updateConfig", map[string]any{"threadId": s.threadID, "effort": wire})
}

func (s *session) SetConfigOption(ctx context.Context, id, value string) error {
	return agentbridge.ErrUnsupported
}

// RespondPermission resolves the dispatcher slot; the goroutine blocked
// in awaitApproval (items.go) picks up the Respond, maps it to Codex's
// decision vocabulary, and returns it as the JSON-RPC method's result —
// this adapter never calls conn.RespondResult directly.
func (s *session) RespondPermission(ctx context.Context, resp agentbridge.Respond) error {
	s.dispatcher.Resolve(resp)
	return nil
}

func (s *session) pushEvent(ev agentbridge.Event) {
	select {
	case s.events <- ev:
	default:
		dropped := s.nextEvent(agentbridge.EventLog, nil)
		dropped.LogLevel = "warning"
		dropped.Text = "event dropped: subscriber buffer full"
		select {
		case s.events <- dropped:
		default:
		}
	}
}

func (s *session) pushPermission(req agentbridge.PermissionRequest) {
	select {
	case s.perms <- req:
	case <-s.done:
	}
}

func (s *session) finish() {
	s.closeOnce.Do(func() {
		s.dispatcher.CancelAll()
		if s.remove != nil {
			s.remove()
		}
		close(s.events)
		close(s.perms)
		close(s.done)
	})
}

func (s *session) setItem(id, kind, name string) {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	s.items[id] = &itemState{kind: kind, name: name}
}

func (s *session) popItem(id string) (*itemState, bool) {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	it, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	return it, ok
}
