package codex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/jsonutil"
	"github.com/sessiond/agentbridge/internal/rpc"
	"github.com/sessiond/agentbridge/permission"
)

// registerNotificationHandlers wires every Codex app-server notification
// and server-originated approval method this adapter understands. Must
// be called before conn.ReadLoop starts.
func (b *Backend) registerNotificationHandlers(conn *rpc.Conn) {
	conn.OnNotification("thread/started", b.onThreadStarted)
	conn.OnNotification("turn/started", b.onTurnStarted)
	conn.OnNotification("thread/tokenUsage/updated", b.onTokenUsage)
	conn.OnNotification("item/started", b.onItemStarted)
	conn.OnNotification("item/completed", b.onItemCompleted)
	conn.OnNotification("turn/completed", b.onTurnCompleted)

	conn.OnMethod("item/commandExecution/requestApproval", b.handleCommandApproval)
	conn.OnMethod("item/fileChange/requestApproval", b.handleFileChangeApproval)
	conn.OnMethod("item/tool/requestUserInput", b.handleToolUserInput)
}

func decodeNotification(raw json.RawMessage) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func (b *Backend) session(raw map[string]any) (*session, bool) {
	return lookupSession(b, jsonutil.GetString(raw, "threadId"))
}

func (b *Backend) onThreadStarted(raw json.RawMessage) {
	m := decodeNotification(raw)
	s, ok := b.session(m)
	if !ok {
		return
	}
	ev := s.nextEvent(agentbridge.EventSystemInit, raw)
	ev.Init = &agentbridge.SystemInitInfo{AgentName: "codex"}
	s.pushEvent(ev)
}

func (b *Backend) onTurnStarted(raw json.RawMessage) {
	m := decodeNotification(raw)
	s, ok := b.session(m)
	if !ok {
		return
	}
	if turnID := jsonutil.GetString(m, "turnId"); turnID != "" {
		s.currentTurn.Store(turnID)
	}
}

func (b *Backend) onTokenUsage(raw json.RawMessage) {
	m := decodeNotification(raw)
	s, ok := b.session(m)
	if !ok {
		return
	}
	usage := jsonutil.GetMap(m, "usage")
	ev := s.nextEvent(agentbridge.EventLog, raw)
	ev.LogLevel = "info"
	ev.Text = fmt.Sprintf("token usage: input=%d output=%d", jsonutil.GetInt(usage, "inputTokens"), jsonutil.GetInt(usage, "outputTokens"))
	s.pushEvent(ev)
}

func (b *Backend) onItemStarted(raw json.RawMessage) {
	m := decodeNotification(raw)
	s, ok := b.session(m)
	if !ok {
		return
	}
	item := jsonutil.GetMap(m, "item")
	id := jsonutil.GetString(item, "id")
	kind := jsonutil.GetString(item, "type")
	name := itemName(kind, item)
	s.setItem(id, kind, name)

	switch kind {
	case "commandExecution", "fileChange", "mcpToolCall":
		ev := s.nextEvent(agentbridge.EventToolUse, raw)
		ev.Tool = &agentbridge.ToolCall{
			ToolUseID: id,
			Name:      name,
			Input:     rawField(item, "input"),
			Status:    agentbridge.ToolPending,
		}
		s.pushEvent(ev)
	case "plan":
		ev := s.nextEvent(agentbridge.EventPlan, raw)
		ev.PlanEntries = planEntries(item)
		s.pushEvent(ev)
	}
}

func (b *Backend) onItemCompleted(raw json.RawMessage) {
	m := decodeNotification(raw)
	s, ok := b.session(m)
	if !ok {
		return
	}
	item := jsonutil.GetMap(m, "item")
	id := jsonutil.GetString(item, "id")
	state, known := s.popItem(id)
	kind := jsonutil.GetString(item, "type")
	if known {
		kind = state.kind
	}

	switch kind {
	case "agentMessage":
		ev := s.nextEvent(agentbridge.EventAssistantText, raw)
		ev.Text = jsonutil.GetString(item, "text")
		s.pushEvent(ev)
	case "reasoning":
		ev := s.nextEvent(agentbridge.EventAssistantThinking, raw)
		ev.Text = valueOrDefault(jsonutil.GetString(item, "summary"), jsonutil.GetString(item, "text"))
		s.pushEvent(ev)
	case "plan":
		ev := s.nextEvent(agentbridge.EventPlan, raw)
		ev.PlanEntries = planEntries(item)
		s.pushEvent(ev)
	case "commandExecution", "fileChange", "mcpToolCall":
		if !known {
			ev := s.nextEvent(agentbridge.EventLog, raw)
			ev.LogLevel = "warning"
			ev.Text = fmt.Sprintf("tool result for unannounced item %q dropped", id)
			s.pushEvent(ev)
			return
		}
		name := state.name
		status := agentbridge.ToolCompleted
		if jsonutil.GetString(item, "status") == "failed" {
			status = agentbridge.ToolFailed
		}
		ev := s.nextEvent(agentbridge.EventToolResult, raw)
		tool := &agentbridge.ToolCall{
			ToolUseID: id,
			Name:      name,
			Output:    rawField(item, "output"),
			Status:    status,
			IsError:   status == agentbridge.ToolFailed,
		}
		if kind == "fileChange" {
			tool.AffectedPaths = filePaths(item)
		}
		ev.Tool = tool
		s.pushEvent(ev)
	}
}

func (b *Backend) onTurnCompleted(raw json.RawMessage) {
	m := decodeNotification(raw)
	s, ok := b.session(m)
	if !ok {
		return
	}
	s.turnActive.Store(false)

	status := jsonutil.GetString(m, "status")
	subtype := "success"
	switch status {
	case "interrupted":
		subtype = "interrupted"
	case "failed":
		subtype = "error"
	}
	usage := jsonutil.GetMap(m, "usage")
	ev := s.nextEvent(agentbridge.EventTurnResult, raw)
	ev.TurnResult = &agentbridge.TurnResultInfo{
		Subtype: subtype,
		Usage: agentbridge.Usage{
			InputTokens:  jsonutil.GetInt(usage, "inputTokens"),
			OutputTokens: jsonutil.GetInt(usage, "outputTokens"),
		},
	}
	s.pushEvent(ev)
}

func itemName(kind string, item map[string]any) string {
	switch kind {
	case "commandExecution":
		return valueOrDefault(jsonutil.GetString(item, "command"), "shell")
	case "fileChange":
		return "apply_patch"
	case "mcpToolCall":
		return fmt.Sprintf("%s.%s", jsonutil.GetString(item, "server"), jsonutil.GetString(item, "tool"))
	default:
		return kind
	}
}

func planEntries(item map[string]any) []agentbridge.PlanEntry {
	steps := jsonutil.GetSlice(item, "steps")
	out := make([]agentbridge.PlanEntry, 0, len(steps))
	for _, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, agentbridge.PlanEntry{
			Content:  jsonutil.GetString(step, "content"),
			Priority: jsonutil.GetString(step, "priority"),
			Status:   jsonutil.GetString(step, "status"),
		})
	}
	return out
}

func filePaths(item map[string]any) []string {
	changes := jsonutil.GetSlice(item, "changes")
	out := make([]string, 0, len(changes))
	for _, raw := range changes {
		change, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if p := jsonutil.GetString(change, "path"); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rawField(m map[string]any, key string) json.RawMessage {
	v, ok := m[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// --- server-originated approval requests ---

func (b *Backend) handleCommandApproval(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		ThreadID                    string          `json:"threadId"`
		ItemID                      string          `json:"itemId"`
		Command                     string          `json:"command"`
		Cwd                         string          `json:"cwd"`
		ProposedExecpolicyAmendment json.RawMessage `json:"proposedExecpolicyAmendment,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return declineResult(), nil
	}
	s, ok := lookupSession(b, p.ThreadID)
	if !ok {
		return declineResult(), nil
	}
	input, _ := json.Marshal(map[string]any{"command": p.Command, "cwd": p.Cwd})
	req := agentbridge.PermissionRequest{
		ToolName: "shell",
		Input:    input,
	}
	if len(p.ProposedExecpolicyAmendment) > 0 {
		req.Codex = &agentbridge.CodexExtras{ProposedExecpolicyAmendment: p.ProposedExecpolicyAmendment}
	}
	return s.awaitApproval(ctx, requestKey(p.ThreadID, p.ItemID), req, len(p.ProposedExecpolicyAmendment) > 0)
}

func (b *Backend) handleFileChangeApproval(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		ThreadID string          `json:"threadId"`
		ItemID   string          `json:"itemId"`
		Changes  json.RawMessage `json:"changes"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return declineResult(), nil
	}
	s, ok := lookupSession(b, p.ThreadID)
	if !ok {
		return declineResult(), nil
	}
	req := agentbridge.PermissionRequest{ToolName: "apply_patch", Input: p.Changes}
	return s.awaitApproval(ctx, requestKey(p.ThreadID, p.ItemID), req, false)
}

func (b *Backend) handleToolUserInput(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		ThreadID  string          `json:"threadId"`
		ItemID    string          `json:"itemId"`
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return declineResult(), nil
	}
	s, ok := lookupSession(b, p.ThreadID)
	if !ok {
		return declineResult(), nil
	}
	req := agentbridge.PermissionRequest{ToolName: p.Tool, Input: p.Arguments}
	return s.awaitApproval(ctx, requestKey(p.ThreadID, p.ItemID), req, false)
}

func requestKey(threadID, itemID string) string {
	return threadID + "/" + itemID
}

func declineResult() any {
	return map[string]any{"decision": string(permission.CodexDecline)}
}

// awaitApproval registers req under requestID, pushes it onto the
// permission stream, and blocks until RespondPermission resolves it
// (or the session terminates), returning the wire-shaped decision
// result the server expects as this JSON-RPC call's response.
func (s *session) awaitApproval(ctx context.Context, requestID string, req agentbridge.PermissionRequest, hasAmendment bool) (any, error) {
	req.RequestID = requestID
	req.SessionID = s.spec.ID
	req.Backend = agentbridge.BackendCodex
	req.State = agentbridge.PermissionPending

	ch := s.dispatcher.Register(requestID)
	s.pushPermission(req)

	select {
	case resp := <-ch:
		decision := permission.ToCodex(resp.Decision, hasAmendment)
		if resp.Decision == agentbridge.DecisionAllowAlways && !hasAmendment {
			ev := s.nextEvent(agentbridge.EventLog, nil)
			ev.LogLevel = "info"
			ev.Text = fmt.Sprintf("downgraded allow_always to %s: no execpolicy amendment available for %q", decision, requestID)
			s.pushEvent(ev)
		}
		if decision == permission.CodexAcceptWithExecpolicyAmendment {
			var amendment json.RawMessage
			if req.Codex != nil {
				amendment = req.Codex.ProposedExecpolicyAmendment
			}
			return map[string]any{"decision": map[string]any{"acceptWithExecpolicyAmendment": map[string]any{"execpolicy_amendment": amendment}}}, nil
		}
		return map[string]any{"decision": string(decision)}, nil
	case <-s.done:
		return declineResult(), nil
	}
}
