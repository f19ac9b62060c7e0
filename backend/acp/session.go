package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/rpc"
	"github.com/sessiond/agentbridge/internal/supervisor"
	"github.com/sessiond/agentbridge/permission"
	"go.uber.org/zap"
)

// session implements agentbridge.Session over one ACP subprocess.
type session struct {
	spec   agentbridge.SessionSpec
	conn   *rpc.Conn
	sup    *supervisor.Supervisor
	logger *zap.Logger

	sessionID string
	agentCaps *agentCapabilities

	modes         *sessionModeState
	models        *sessionModelState
	configOptions []sessionConfigOption

	events chan agentbridge.Event
	perms  chan agentbridge.PermissionRequest

	dispatcher *permission.Dispatcher
	terminals  *terminalRegistry
	policy     *pathPolicy

	// announcedToolIDs tracks toolCallIds already surfaced by a tool_call
	// or tool_call_update, so a later tool_call_update's completion can
	// be matched to the call it reports on. Only touched from the
	// connection's single read-loop goroutine, like the rest of the
	// session-update dispatch table in update.go.
	announcedToolIDs map[string]bool

	seq atomic.Uint64

	resolved agentbridge.ResolvedSessionID

	turnActive atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) nextEvent(typ agentbridge.EventType, raw json.RawMessage) agentbridge.Event {
	return agentbridge.Event{
		SessionID: s.spec.ID,
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Provider:  agentbridge.BackendACP,
		Type:      typ,
		Raw:       raw,
	}
}

func (s *session) Events() <-chan agentbridge.Event                        { return s.events }
func (s *session) PermissionRequests() <-chan agentbridge.PermissionRequest { return s.perms }
func (s *session) Done() <-chan struct{}                                   { return s.done }
func (s *session) ResolvedSessionID() agentbridge.ResolvedSessionID        { return s.resolved }

func (s *session) Capabilities() agentbridge.Capabilities {
	_, hasModel := s.modelConfigOptionID()
	return agentbridge.Capabilities{
		SupportsModelChange:          hasModel,
		SupportsPermissionModeChange: s.modes != nil,
		SupportsReasoningEffort:      false,
		SupportsConfigOptions:        len(s.configOptions) > 0,
		SupportsHooks:                false,
	}
}

func (s *session) SendText(ctx context.Context, text string) error {
	return s.prompt(ctx, []wireContentBlock{{Type: "text", Text: text}})
}

func (s *session) SendContent(ctx context.Context, blocks []agentbridge.ContentBlock) error {
	wire, err := buildPromptBlocks(blocks)
	if err != nil {
		return err
	}
	return s.prompt(ctx, wire)
}

func (s *session) prompt(ctx context.Context, blocks []wireContentBlock) error {
	if !s.turnActive.CompareAndSwap(false, true) {
		return agentbridge.ErrTurnActive
	}

	var result promptResult
	err := s.conn.Call(ctx, MethodSessionPrompt, promptParams{
		SessionID: s.sessionID,
		Prompt:    blocks,
	}, &result)
	s.turnActive.Store(false)
	if err != nil {
		return fmt.Errorf("acp: session/prompt: %w", err)
	}

	s.pushEvent(s.turnResultEvent(result))
	return nil
}

func (s *session) turnResultEvent(result promptResult) agentbridge.Event {
	ev := s.nextEvent(agentbridge.EventTurnResult, nil)
	subtype := "success"
	switch result.StopReason {
	case "cancelled":
		subtype = "interrupted"
	case "refusal", "max_turn_requests", "":
		if result.StopReason != "" && result.StopReason != "end_turn" {
			subtype = "error"
		}
	}
	info := agentbridge.TurnResultInfo{Subtype: subtype, StopReason: agentbridge.StopReason(result.StopReason)}
	if result.Usage != nil {
		info.Usage = agentbridge.Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.TotalTokens,
		}
	}
	ev.TurnResult = &info
	return ev
}

func (s *session) Interrupt(ctx context.Context) error {
	if !s.turnActive.Load() {
		return nil
	}
	return s.conn.Notify(MethodSessionCancel, map[string]any{"sessionId": s.sessionID})
}

func (s *session) Kill(ctx context.Context) error {
	err := s.sup.Stop(ctx)
	s.finish()
	return err
}

func (s *session) SetModel(ctx context.Context, model string) error {
	id, ok := s.modelConfigOptionID()
	if !ok {
		return agentbridge.ErrUnsupported
	}
	return s.conn.Call(ctx, MethodSessionSetConfig, setConfigOptionParams{
		SessionID: s.sessionID,
		ConfigID:  id,
		Value:     model,
	}, nil)
}

func (s *session) SetPermissionMode(ctx context.Context, mode string) error {
	if s.modes == nil {
		return agentbridge.ErrUnsupported
	}
	return s.conn.Call(ctx, MethodSessionSetMode, setModeParams{
		SessionID: s.sessionID,
		ModeID:    mode,
	}, nil)
}

func (s *session) SetReasoningEffort(ctx context.Context, effort agentbridge.Effort) error {
	return agentbridge.ErrUnsupported
}

// SetConfigOption refuses silently-unadvertised config ids (Open Question
// #1: an agent that never listed the option in session/new's
// configOptions has not opted into receiving it), logging a warning
// rather than sending a call the agent is unlikely to understand.
func (s *session) SetConfigOption(ctx context.Context, id, value string) error {
	found := false
	for _, opt := range s.configOptions {
		if opt.ID == id {
			found = true
			break
		}
	}
	if !found {
		s.logger.Warn("acp: refusing set_config_option for unadvertised id", zap.String("id", id))
		return fmt.Errorf("%w: config option %q not advertised by agent", agentbridge.ErrUnsupported, id)
	}
	return s.conn.Call(ctx, MethodSessionSetConfig, setConfigOptionParams{
		SessionID: s.sessionID,
		ConfigID:  id,
		Value:     value,
	}, nil)
}

// RespondPermission resolves the dispatcher slot; the goroutine blocked in
// handleRequestPermission (client.go) picks it up and returns the ACP
// option selection directly as the session/request_permission result.
func (s *session) RespondPermission(ctx context.Context, resp agentbridge.Respond) error {
	s.dispatcher.Resolve(resp)
	return nil
}

// acpDecisionResult picks the agent-offered option matching resp's
// decision (or resp.OptionID verbatim, when the caller pinned one) and
// returns the requestPermissionResult the protocol expects. Falling back
// to "cancelled" when no matching option exists downgrades gracefully
// rather than sending a fabricated optionId the agent never offered.
func acpDecisionResult(resp agentbridge.Respond, options []permissionOpt) requestPermissionResult {
	if resp.Decision == agentbridge.DecisionCancelTurn {
		return cancelledPermission()
	}
	if resp.OptionID != "" {
		for _, opt := range options {
			if opt.OptionID == resp.OptionID {
				return requestPermissionResult{Outcome: requestPermissionOutcome{Outcome: "selected", OptionID: opt.OptionID}}
			}
		}
	}
	for _, kind := range permission.ACPFallbackKinds(resp.Decision) {
		for _, opt := range options {
			if opt.Kind == string(kind) {
				return requestPermissionResult{Outcome: requestPermissionOutcome{Outcome: "selected", OptionID: opt.OptionID}}
			}
		}
	}
	return cancelledPermission()
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
		s.terminals.killAll()
		close(s.events)
		close(s.perms)
		close(s.done)
	})
}

// watchProcessExit tears down session state if the subprocess exits on
// its own, without Kill ever being called.
func (s *session) watchProcessExit() {
	<-s.sup.Done()
	s.finish()
}
