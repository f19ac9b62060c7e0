package claude

import (
	"encoding/json"
	"testing"

	"github.com/sessiond/agentbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestSDKParser_SystemInit(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"system","subtype":"init","model":"claude-opus","tools":["bash","edit"],"mcp_servers":["fs"]}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventSystemInit, events[0].Type)
	require.NotNil(t, events[0].Init)
	assert.Equal(t, "claude-opus", events[0].Init.Model)
	assert.ElementsMatch(t, []string{"bash", "edit"}, events[0].Init.Tools)
}

func TestSDKParser_SystemNonInitBecomesLog(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"system","subtype":"warning","message":"heads up"}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventLog, events[0].Type)
	assert.Equal(t, "heads up", events[0].Text)
}

func TestSDKParser_AssistantTextAndToolUse(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"assistant","message":{"content":[
		{"type":"text","text":"hello there"},
		{"type":"tool_use","id":"tu_1","name":"bash","input":{"cmd":"ls"}}
	]}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 2)
	assert.Equal(t, agentbridge.EventAssistantText, events[0].Type)
	assert.Equal(t, "hello there", events[0].Text)
	assert.Equal(t, agentbridge.EventToolUse, events[1].Type)
	require.NotNil(t, events[1].Tool)
	assert.Equal(t, "bash", events[1].Tool.Name)
	assert.Equal(t, "tu_1", events[1].Tool.ToolUseID)
	assert.Equal(t, agentbridge.ToolPending, events[1].Tool.Status)
}

func TestSDKParser_AssistantThinking(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"pondering"}]}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventAssistantThinking, events[0].Type)
	assert.Equal(t, "pondering", events[0].Text)
}

func TestSDKParser_UserToolResult(t *testing.T) {
	p := &sdkParser{announcedToolUseIDs: map[string]bool{"tu_1": true}}
	raw := decodeRaw(t, `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"tu_1","is_error":false,"content":"ok"}
	]}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventToolResult, events[0].Type)
	require.NotNil(t, events[0].Tool)
	assert.Equal(t, "tu_1", events[0].Tool.ToolUseID)
	assert.Equal(t, agentbridge.ToolCompleted, events[0].Tool.Status)
	assert.False(t, events[0].Tool.IsError)
	assert.False(t, p.announcedToolUseIDs["tu_1"], "matched id should be consumed")
}

func TestSDKParser_UserToolResultError(t *testing.T) {
	p := &sdkParser{announcedToolUseIDs: map[string]bool{"tu_2": true}}
	raw := decodeRaw(t, `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"tu_2","is_error":true,"content":"boom"}
	]}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.ToolFailed, events[0].Tool.Status)
	assert.True(t, events[0].Tool.IsError)
}

func TestSDKParser_UserToolResultUnannouncedIsDroppedAndLogged(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"tu_ghost","is_error":false,"content":"ok"}
	]}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventLog, events[0].Type)
	assert.Equal(t, "warning", events[0].LogLevel)
}

func TestSDKParser_AssistantToolUseThenUserToolResultRoundTrip(t *testing.T) {
	p := &sdkParser{}
	assistantRaw := decodeRaw(t, `{"type":"assistant","message":{"content":[
		{"type":"tool_use","id":"tu_3","name":"bash","input":{"cmd":"ls"}}
	]}}`)
	toolUseEvents := p.parse(assistantRaw, agentbridge.Event{})
	require.Len(t, toolUseEvents, 1)
	assert.Equal(t, agentbridge.EventToolUse, toolUseEvents[0].Type)

	resultRaw := decodeRaw(t, `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"tu_3","is_error":false,"content":"done"}
	]}}`)
	resultEvents := p.parse(resultRaw, agentbridge.Event{})
	require.Len(t, resultEvents, 1)
	assert.Equal(t, agentbridge.EventToolResult, resultEvents[0].Type)
	assert.Equal(t, "tu_3", resultEvents[0].Tool.ToolUseID)
}

func TestSDKParser_ResultUsesOwnStopReason(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"result","subtype":"success","num_turns":3,"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	require.NotNil(t, events[0].TurnResult)
	assert.Equal(t, agentbridge.StopReason("end_turn"), events[0].TurnResult.StopReason)
	assert.Equal(t, 3, events[0].TurnResult.Turns)
	assert.Equal(t, 10, events[0].TurnResult.Usage.InputTokens)
}

func TestSDKParser_ResultFallsBackToPendingStopReason(t *testing.T) {
	p := &sdkParser{}
	deltaRaw := decodeRaw(t, `{"type":"stream_event","event":{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}}`)
	p.parse(deltaRaw, agentbridge.Event{})

	resultRaw := decodeRaw(t, `{"type":"result","subtype":"success"}`)
	events := p.parse(resultRaw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.StopReason("max_tokens"), events[0].TurnResult.StopReason)

	// consumed once; a second result with no stop_reason source sees none.
	events = p.parse(decodeRaw(t, `{"type":"result","subtype":"success"}`), agentbridge.Event{})
	assert.Equal(t, agentbridge.StopReason(""), events[0].TurnResult.StopReason)
}

func TestSDKParser_ErrorEvent(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"error","code":"overloaded","message":"try again"}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventError, events[0].Type)
	assert.Equal(t, "overloaded", events[0].ErrorCode)
}

func TestSDKParser_StreamEventTextDelta(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}}`)
	events := p.parse(raw, agentbridge.Event{})
	require.Len(t, events, 1)
	assert.Equal(t, agentbridge.EventStreamDelta, events[0].Type)
	assert.Equal(t, agentbridge.DeltaText, events[0].DeltaKind)
	assert.Equal(t, "par", events[0].Text)
}

func TestSDKParser_StreamEventLifecycleFramesProduceNothing(t *testing.T) {
	p := &sdkParser{}
	raw := decodeRaw(t, `{"type":"stream_event","event":{"type":"message_start"}}`)
	assert.Nil(t, p.parse(raw, agentbridge.Event{}))
}

func TestSDKParser_UnknownTypeIgnored(t *testing.T) {
	p := &sdkParser{}
	assert.Nil(t, p.parse(decodeRaw(t, `{"type":"mystery"}`), agentbridge.Event{}))
}

func TestExtractUsage_RejectsNegativeCost(t *testing.T) {
	raw := decodeRaw(t, `{"usage":{"input_tokens":1},"total_cost_usd":-5}`)
	usage := extractUsage(raw)
	assert.Equal(t, 0.0, usage.CostUSD)
}

func TestContentBlocksToClaude_Text(t *testing.T) {
	out := contentBlocksToClaude([]agentbridge.ContentBlock{{Type: agentbridge.ContentText, Text: "hi"}})
	require.Len(t, out, 1)
	assert.Equal(t, "text", out[0]["type"])
	assert.Equal(t, "hi", out[0]["text"])
}

func TestContentBlocksToClaude_ToolResult(t *testing.T) {
	out := contentBlocksToClaude([]agentbridge.ContentBlock{{
		Type:            agentbridge.ContentToolResult,
		ToolResultForID: "tu_1",
		ToolResultBody:  json.RawMessage(`"done"`),
	}})
	require.Len(t, out, 1)
	assert.Equal(t, "tool_result", out[0]["type"])
	assert.Equal(t, "tu_1", out[0]["tool_use_id"])
	assert.Equal(t, "done", out[0]["content"])
}

func TestFlattenText_DropsNonTextBlocks(t *testing.T) {
	got := flattenText([]agentbridge.ContentBlock{
		{Type: agentbridge.ContentText, Text: "a"},
		{Type: agentbridge.ContentImage},
		{Type: agentbridge.ContentText, Text: "b"},
	})
	assert.Equal(t, "ab", got)
}
