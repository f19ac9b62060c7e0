package claude

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/jsonutil"
	"github.com/sessiond/agentbridge/internal/stoputil"
)

// sdkParser turns one sdk.message payload into zero or more normalized
// Events. It carries state across calls because Claude's streaming mode
// reports the authoritative stop_reason in an earlier message_delta
// event rather than in the terminal result event (SPEC_FULL supplement
// #1) — the parser holds it until the next TurnResult claims it.
type sdkParser struct {
	pendingStopReason agentbridge.StopReason

	// announcedToolUseIDs tracks tool_use ids seen in an assistant message
	// so a later tool_result can be matched to the call it answers; a
	// result whose id was never announced is logged and dropped rather
	// than forwarded as a fabricated ToolCall.
	announcedToolUseIDs map[string]bool
}

// parse maps one sdk.message payload (the Anthropic SDK message shape)
// onto normalized events. raw is the decoded JSON object; base carries
// the session id / timestamp / provider fields common to every Event
// this call produces.
func (p *sdkParser) parse(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	typeStr := jsonutil.GetString(raw, "type")

	switch typeStr {
	case "system":
		return p.parseSystem(raw, base)
	case "assistant":
		return p.parseAssistant(raw, base)
	case "user":
		return p.parseUser(raw, base)
	case "result":
		return p.parseResult(raw, base)
	case "error":
		return p.parseError(raw, base)
	case "stream_event":
		return p.parseStreamEvent(raw, base)
	default:
		return nil
	}
}

func (p *sdkParser) parseSystem(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	if jsonutil.GetString(raw, "subtype") != "init" {
		base.Type = agentbridge.EventLog
		base.LogLevel = "info"
		base.Text = jsonutil.GetString(raw, "message")
		return []agentbridge.Event{base}
	}
	base.Type = agentbridge.EventSystemInit
	base.Init = &agentbridge.SystemInitInfo{
		Model:      jsonutil.GetString(raw, "model"),
		Tools:      jsonutil.GetStringSlice(raw, "tools"),
		MCPServers: jsonutil.GetStringSlice(raw, "mcp_servers"),
		AgentName:  "claude",
	}
	return []agentbridge.Event{base}
}

func (p *sdkParser) parseAssistant(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	message, _ := raw["message"].(map[string]any)
	contentArr, _ := message["content"].([]any)

	var events []agentbridge.Event
	for _, c := range contentArr {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		switch jsonutil.GetString(cm, "type") {
		case "thinking":
			ev := base
			ev.Type = agentbridge.EventAssistantThinking
			ev.Text = jsonutil.GetString(cm, "thinking")
			events = append(events, ev)
		case "tool_use":
			id := jsonutil.GetString(cm, "id")
			ev := base
			ev.Type = agentbridge.EventToolUse
			ev.Tool = &agentbridge.ToolCall{
				ToolUseID: id,
				Name:      jsonutil.GetString(cm, "name"),
				Status:    agentbridge.ToolPending,
			}
			if input, ok := cm["input"]; ok {
				if data, err := json.Marshal(input); err == nil {
					ev.Tool.Input = data
				}
			}
			if id != "" {
				if p.announcedToolUseIDs == nil {
					p.announcedToolUseIDs = make(map[string]bool)
				}
				p.announcedToolUseIDs[id] = true
			}
			events = append(events, ev)
		default:
			if t, ok := cm["text"].(string); ok && t != "" {
				ev := base
				ev.Type = agentbridge.EventAssistantText
				ev.Text = t
				events = append(events, ev)
			}
		}
	}
	return events
}

func (p *sdkParser) parseUser(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	message, _ := raw["message"].(map[string]any)
	contentArr, _ := message["content"].([]any)

	var events []agentbridge.Event
	for _, c := range contentArr {
		cm, ok := c.(map[string]any)
		if !ok || jsonutil.GetString(cm, "type") != "tool_result" {
			continue
		}
		id := jsonutil.GetString(cm, "tool_use_id")
		if !p.announcedToolUseIDs[id] {
			ev := base
			ev.Type = agentbridge.EventLog
			ev.LogLevel = "warning"
			ev.Text = fmt.Sprintf("tool result for unannounced tool_use_id %q dropped", id)
			events = append(events, ev)
			continue
		}
		delete(p.announcedToolUseIDs, id)
		ev := base
		ev.Type = agentbridge.EventToolResult
		tool := &agentbridge.ToolCall{
			ToolUseID: id,
			Status:    agentbridge.ToolCompleted,
			IsError:   jsonutil.GetBool(cm, "is_error"),
		}
		if tool.IsError {
			tool.Status = agentbridge.ToolFailed
		}
		if content, ok := cm["content"]; ok {
			if data, err := json.Marshal(content); err == nil {
				tool.Output = data
			}
		}
		ev.Tool = tool
		events = append(events, ev)
	}
	return events
}

func (p *sdkParser) parseResult(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	base.Type = agentbridge.EventTurnResult
	info := &agentbridge.TurnResultInfo{
		Subtype: jsonutil.GetString(raw, "subtype"),
		Turns:   jsonutil.GetInt(raw, "num_turns"),
		Usage:   extractUsage(raw),
	}
	if sr := jsonutil.GetString(raw, "stop_reason"); sr != "" {
		info.StopReason = stoputil.Sanitize(sr)
	} else {
		info.StopReason = p.pendingStopReason
	}
	p.pendingStopReason = ""
	base.TurnResult = info
	return []agentbridge.Event{base}
}

func (p *sdkParser) parseError(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	base.Type = agentbridge.EventError
	base.ErrorCode = jsonutil.GetString(raw, "code")
	base.Text = jsonutil.GetString(raw, "message")
	return []agentbridge.Event{base}
}

func (p *sdkParser) parseStreamEvent(raw map[string]any, base agentbridge.Event) []agentbridge.Event {
	event, ok := raw["event"].(map[string]any)
	if !ok {
		return nil
	}
	switch jsonutil.GetString(event, "type") {
	case "content_block_delta":
		return p.parseContentBlockDelta(event, base)
	case "message_delta":
		if delta, ok := event["delta"].(map[string]any); ok {
			if sr := jsonutil.GetString(delta, "stop_reason"); sr != "" {
				p.pendingStopReason = stoputil.Sanitize(sr)
			}
		}
		return nil
	default:
		// message_start, content_block_start, content_block_stop,
		// message_stop — lifecycle frames carrying nothing a consumer
		// needs beyond what the surrounding events already convey.
		return nil
	}
}

func (p *sdkParser) parseContentBlockDelta(event map[string]any, base agentbridge.Event) []agentbridge.Event {
	delta, ok := event["delta"].(map[string]any)
	if !ok {
		return nil
	}
	base.Type = agentbridge.EventStreamDelta
	switch jsonutil.GetString(delta, "type") {
	case "text_delta":
		base.DeltaKind = agentbridge.DeltaText
		base.Text = jsonutil.GetString(delta, "text")
	case "input_json_delta":
		base.DeltaKind = agentbridge.DeltaToolUse
		base.Text = jsonutil.GetString(delta, "partial_json")
	case "thinking_delta":
		base.DeltaKind = agentbridge.DeltaThinking
		base.Text = jsonutil.GetString(delta, "thinking")
	default:
		return nil
	}
	return []agentbridge.Event{base}
}

func extractUsage(source map[string]any) agentbridge.Usage {
	var u agentbridge.Usage
	if usage, ok := source["usage"].(map[string]any); ok {
		u.InputTokens = jsonutil.GetInt(usage, "input_tokens")
		u.OutputTokens = jsonutil.GetInt(usage, "output_tokens")
		u.CacheReadTokens = jsonutil.GetInt(usage, "cache_read_input_tokens")
		u.CacheWriteTokens = jsonutil.GetInt(usage, "cache_creation_input_tokens")
		u.ThinkingTokens = jsonutil.GetInt(usage, "thinking_tokens")
	}
	cost := jsonutil.GetFloat(source, "total_cost_usd")
	if math.IsInf(cost, 0) || math.IsNaN(cost) || cost < 0 {
		cost = 0
	}
	u.CostUSD = cost
	return u
}

// contentBlocksToClaude renders []agentbridge.ContentBlock into the
// Anthropic SDK content-array shape expected in user.message's
// message.content field.
func contentBlocksToClaude(blocks []agentbridge.ContentBlock) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case agentbridge.ContentText:
			out = append(out, map[string]any{"type": "text", "text": b.Text})
		case agentbridge.ContentImage:
			src := map[string]any{"type": string(b.Source.Kind)}
			switch b.Source.Kind {
			case agentbridge.ImageSourceBase64:
				src["media_type"] = b.Source.MediaType
				src["data"] = b.Source.Data
			case agentbridge.ImageSourceURL:
				src["url"] = b.Source.URL
			}
			out = append(out, map[string]any{"type": "image", "source": src})
		case agentbridge.ContentToolResult:
			m := map[string]any{
				"type":        "tool_result",
				"tool_use_id": b.ToolResultForID,
				"is_error":    b.IsError,
			}
			if len(b.ToolResultBody) > 0 {
				var v any
				if json.Unmarshal(b.ToolResultBody, &v) == nil {
					m["content"] = v
				}
			}
			out = append(out, m)
		}
	}
	return out
}

// flattenText renders plain content blocks down to a single string when
// the caller needs the simple stdin shape; non-text block types are
// dropped rather than erroring, and the text itself is not validated.
func flattenText(blocks []agentbridge.ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == agentbridge.ContentText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
