package acp

import (
	"testing"

	"github.com/sessiond/agentbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall_AnnouncesID(t *testing.T) {
	s := newTestSession()
	m := map[string]any{"toolCallId": "tc_1", "title": "Read file"}
	ev, ok := parseToolCall(s, m)
	require.True(t, ok)
	assert.Equal(t, agentbridge.EventToolUse, ev.Type)
	assert.Equal(t, "tc_1", ev.Tool.ToolUseID)
	assert.True(t, s.announcedToolIDs["tc_1"])
}

func TestParseToolCallUpdate_CompletedAfterAnnouncedEmitsResult(t *testing.T) {
	s := newTestSession()
	parseToolCall(s, map[string]any{"toolCallId": "tc_1", "title": "Read file"})

	ev, ok := parseToolCallUpdate(s, map[string]any{"toolCallId": "tc_1", "status": "completed"})
	require.True(t, ok)
	assert.Equal(t, agentbridge.EventToolResult, ev.Type)
	assert.Equal(t, agentbridge.ToolCompleted, ev.Tool.Status)
	assert.False(t, s.announcedToolIDs["tc_1"], "matched id should be consumed")
}

func TestParseToolCallUpdate_FailedAfterAnnouncedEmitsResult(t *testing.T) {
	s := newTestSession()
	parseToolCall(s, map[string]any{"toolCallId": "tc_1", "title": "Run command"})

	ev, ok := parseToolCallUpdate(s, map[string]any{"toolCallId": "tc_1", "status": "failed"})
	require.True(t, ok)
	assert.Equal(t, agentbridge.EventToolResult, ev.Type)
	assert.Equal(t, agentbridge.ToolFailed, ev.Tool.Status)
	assert.True(t, ev.Tool.IsError)
}

func TestParseToolCallUpdate_CompletedWithoutAnnouncementIsDroppedAndLogged(t *testing.T) {
	s := newTestSession()
	ev, ok := parseToolCallUpdate(s, map[string]any{"toolCallId": "tc_ghost", "status": "completed"})
	require.True(t, ok)
	assert.Equal(t, agentbridge.EventLog, ev.Type)
	assert.Equal(t, "warning", ev.LogLevel)
}

func TestParseToolCallUpdate_InProgressAnnouncesAndEmitsToolUse(t *testing.T) {
	s := newTestSession()
	ev, ok := parseToolCallUpdate(s, map[string]any{"toolCallId": "tc_2", "status": "in_progress"})
	require.True(t, ok)
	assert.Equal(t, agentbridge.EventToolUse, ev.Type)
	assert.Equal(t, agentbridge.ToolRunning, ev.Tool.Status)
	assert.True(t, s.announcedToolIDs["tc_2"])
}

func TestContentChunkParser_SkipsEmptyText(t *testing.T) {
	s := newTestSession()
	parser := contentChunkParser(agentbridge.EventAssistantText)
	_, ok := parser(s, map[string]any{"content": map[string]any{"type": "text", "text": ""}})
	assert.False(t, ok)
}

func TestContentChunkParser_ExtractsText(t *testing.T) {
	s := newTestSession()
	parser := contentChunkParser(agentbridge.EventAssistantThinking)
	ev, ok := parser(s, map[string]any{"content": map[string]any{"type": "text", "text": "hmm"}})
	require.True(t, ok)
	assert.Equal(t, "hmm", ev.Text)
	assert.Equal(t, agentbridge.DeltaThinking, ev.DeltaKind)
}

func TestParsePlan_BuildsEntries(t *testing.T) {
	s := newTestSession()
	m := map[string]any{"entries": []any{
		map[string]any{"content": "step one", "priority": "high", "status": "pending"},
	}}
	ev, ok := parsePlan(s, m)
	require.True(t, ok)
	require.Len(t, ev.PlanEntries, 1)
	assert.Equal(t, "step one", ev.PlanEntries[0].Content)
}

func TestParseSessionInfoUpdate_FalseWhenTitleEmpty(t *testing.T) {
	s := newTestSession()
	_, ok := parseSessionInfoUpdate(s, map[string]any{})
	assert.False(t, ok)
}
