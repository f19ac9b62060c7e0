package acp

import (
	"encoding/json"
	"fmt"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/jsonutil"
	"go.uber.org/zap"
)

// registerNotificationHandlers wires session/update dispatch. ACP carries
// everything through this one notification, discriminated by the
// sessionUpdate field, unlike Codex's per-kind notification methods.
func (s *session) registerNotificationHandlers() {
	s.conn.OnNotification(MethodSessionUpdate, s.onSessionUpdate)
}

func (s *session) onSessionUpdate(raw json.RawMessage) {
	var note sessionNotification
	if err := json.Unmarshal(raw, &note); err != nil {
		s.logger.Debug("acp: malformed session/update", zap.Error(err))
		return
	}
	m := decodeNotification(note.Update)
	if m == nil {
		return
	}
	kind := jsonutil.GetString(m, "sessionUpdate")

	parser, ok := updateParsers[kind]
	if !ok {
		s.logger.Debug("acp: unrecognized sessionUpdate kind", zap.String("kind", kind))
		return
	}
	if ev, ok := parser(s, m); ok {
		s.pushEvent(ev)
	}
}

type updateParser func(s *session, m map[string]any) (agentbridge.Event, bool)

var updateParsers = map[string]updateParser{
	"agent_message_chunk": contentChunkParser(agentbridge.EventAssistantText),
	"agent_thought_chunk": contentChunkParser(agentbridge.EventAssistantThinking),
	"user_message_chunk":        contentChunkParser(agentbridge.EventUserText),
	"tool_call":                 parseToolCall,
	"tool_call_update":          parseToolCallUpdate,
	"plan":                      parsePlan,
	"current_mode_update":       parseCurrentModeUpdate,
	"config_option_update":      parseConfigOptionUpdate,
	"session_info_update":       parseSessionInfoUpdate,
	"available_commands_update": parseAvailableCommandsUpdate,
	// usage_update is silently consumed: turn-level usage comes from
	// promptResult.Usage on the session/prompt response instead.
	"usage_update": func(s *session, m map[string]any) (agentbridge.Event, bool) { return agentbridge.Event{}, false },
}

// contentChunkParser builds a parser for the three streaming-chunk update
// kinds, which share one shape: {sessionUpdate, content: ContentBlock}.
func contentChunkParser(typ agentbridge.EventType) updateParser {
	return func(s *session, m map[string]any) (agentbridge.Event, bool) {
		text := extractContentText(jsonutil.GetMap(m, "content"))
		if text == "" {
			return agentbridge.Event{}, false
		}
		ev := s.nextEvent(typ, nil)
		ev.Text = text
		ev.DeltaKind = deltaKindFor(typ)
		return ev, true
	}
}

func deltaKindFor(typ agentbridge.EventType) agentbridge.DeltaKind {
	if typ == agentbridge.EventAssistantThinking {
		return agentbridge.DeltaThinking
	}
	return agentbridge.DeltaText
}

func extractContentText(content map[string]any) string {
	if content == nil {
		return ""
	}
	if t := jsonutil.GetString(content, "type"); t == "text" {
		return jsonutil.GetString(content, "text")
	}
	return ""
}

func parseToolCall(s *session, m map[string]any) (agentbridge.Event, bool) {
	s.announceToolID(jsonutil.GetString(m, "toolCallId"))
	tc := toolCallFromUpdate(m, agentbridge.ToolPending)
	ev := s.nextEvent(agentbridge.EventToolUse, nil)
	ev.Tool = tc
	return ev, true
}

func parseToolCallUpdate(s *session, m map[string]any) (agentbridge.Event, bool) {
	id := jsonutil.GetString(m, "toolCallId")
	status := jsonutil.GetString(m, "status")
	switch status {
	case "completed", "failed":
		if !s.announcedToolIDs[id] {
			ev := s.nextEvent(agentbridge.EventLog, nil)
			ev.LogLevel = "warning"
			ev.Text = fmt.Sprintf("tool result for unannounced toolCallId %q dropped", id)
			return ev, true
		}
		delete(s.announcedToolIDs, id)
		tc := toolCallFromUpdate(m, statusFor(status))
		tc.Output = extractToolOutput(m)
		tc.IsError = status == "failed"
		ev := s.nextEvent(agentbridge.EventToolResult, nil)
		ev.Tool = tc
		return ev, true
	default:
		s.announceToolID(id)
		tc := toolCallFromUpdate(m, statusFor(status))
		ev := s.nextEvent(agentbridge.EventToolUse, nil)
		ev.Tool = tc
		return ev, true
	}
}

func (s *session) announceToolID(id string) {
	if id == "" {
		return
	}
	if s.announcedToolIDs == nil {
		s.announcedToolIDs = make(map[string]bool)
	}
	s.announcedToolIDs[id] = true
}

func statusFor(status string) agentbridge.ToolStatus {
	switch status {
	case "completed":
		return agentbridge.ToolCompleted
	case "failed":
		return agentbridge.ToolFailed
	case "in_progress":
		return agentbridge.ToolRunning
	default:
		return agentbridge.ToolPending
	}
}

func toolCallFromUpdate(m map[string]any, status agentbridge.ToolStatus) *agentbridge.ToolCall {
	name := jsonutil.GetString(m, "title")
	if name == "" {
		name = jsonutil.GetString(m, "kind")
	}
	var rawInput json.RawMessage
	if v, ok := m["rawInput"]; ok {
		rawInput, _ = json.Marshal(v)
	}
	return &agentbridge.ToolCall{
		ToolUseID:     jsonutil.GetString(m, "toolCallId"),
		Name:          name,
		Input:         rawInput,
		Status:        status,
		AffectedPaths: toolCallLocations(m),
	}
}

func toolCallLocations(m map[string]any) []string {
	raw := jsonutil.GetSlice(m, "locations")
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if lm, ok := v.(map[string]any); ok {
			if p := jsonutil.GetString(lm, "path"); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func extractToolOutput(m map[string]any) json.RawMessage {
	if v, ok := m["rawOutput"]; ok {
		raw, _ := json.Marshal(v)
		return raw
	}
	if v, ok := m["content"]; ok {
		raw, _ := json.Marshal(v)
		return raw
	}
	return nil
}

func parsePlan(s *session, m map[string]any) (agentbridge.Event, bool) {
	entries := jsonutil.GetSlice(m, "entries")
	plan := make([]agentbridge.PlanEntry, 0, len(entries))
	for _, v := range entries {
		em, ok := v.(map[string]any)
		if !ok {
			continue
		}
		plan = append(plan, agentbridge.PlanEntry{
			Content:  jsonutil.GetString(em, "content"),
			Priority: jsonutil.GetString(em, "priority"),
			Status:   jsonutil.GetString(em, "status"),
		})
	}
	ev := s.nextEvent(agentbridge.EventPlan, nil)
	ev.PlanEntries = plan
	return ev, true
}

func parseCurrentModeUpdate(s *session, m map[string]any) (agentbridge.Event, bool) {
	ev := s.nextEvent(agentbridge.EventModeUpdate, nil)
	ev.ModeID = jsonutil.GetString(m, "currentModeId")
	return ev, true
}

func parseConfigOptionUpdate(s *session, m map[string]any) (agentbridge.Event, bool) {
	opt := jsonutil.GetMap(m, "configOption")
	if opt == nil {
		return agentbridge.Event{}, false
	}
	ev := s.nextEvent(agentbridge.EventConfigOptions, nil)
	ev.ConfigOptions = []agentbridge.ConfigOption{{
		ID:    jsonutil.GetString(opt, "id"),
		Label: jsonutil.GetString(opt, "name"),
		Value: jsonutil.GetString(opt, "currentValue"),
	}}
	return ev, true
}

func parseSessionInfoUpdate(s *session, m map[string]any) (agentbridge.Event, bool) {
	ev := s.nextEvent(agentbridge.EventLog, nil)
	ev.LogLevel = "info"
	ev.Text = jsonutil.GetString(m, "title")
	return ev, ev.Text != ""
}

func parseAvailableCommandsUpdate(s *session, m map[string]any) (agentbridge.Event, bool) {
	raw := jsonutil.GetSlice(m, "availableCommands")
	cmds := make([]string, 0, len(raw))
	for _, v := range raw {
		if cm, ok := v.(map[string]any); ok {
			if name := jsonutil.GetString(cm, "name"); name != "" {
				cmds = append(cmds, name)
				continue
			}
		}
		if str, ok := v.(string); ok {
			cmds = append(cmds, str)
		}
	}
	ev := s.nextEvent(agentbridge.EventAvailableCommands, nil)
	ev.AvailableCommands = cmds
	return ev, true
}
