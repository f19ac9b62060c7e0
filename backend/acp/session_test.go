package acp

import (
	"testing"

	"github.com/sessiond/agentbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *session {
	return &session{
		spec:   agentbridge.SessionSpec{ID: "sess-1"},
		events: make(chan agentbridge.Event, 8),
		perms:  make(chan agentbridge.PermissionRequest, 8),
		done:   make(chan struct{}),
	}
}

func TestSession_ModelConfigOptionID(t *testing.T) {
	s := newTestSession()
	s.configOptions = []sessionConfigOption{
		{ID: "reasoning", Category: "reasoning"},
		{ID: "model-choice", Category: "model"},
	}
	id, ok := s.modelConfigOptionID()
	require.True(t, ok)
	assert.Equal(t, "model-choice", id)
}

func TestSession_ModelConfigOptionID_NotAdvertised(t *testing.T) {
	s := newTestSession()
	s.configOptions = []sessionConfigOption{{ID: "reasoning", Category: "reasoning"}}
	_, ok := s.modelConfigOptionID()
	assert.False(t, ok)
}

func TestSession_Capabilities_ReflectsAdvertisedSurface(t *testing.T) {
	s := newTestSession()
	s.modes = &sessionModeState{CurrentModeID: "act"}
	s.configOptions = []sessionConfigOption{{ID: "model-choice", Category: "model"}}

	caps := s.Capabilities()
	assert.True(t, caps.SupportsModelChange)
	assert.True(t, caps.SupportsPermissionModeChange)
	assert.True(t, caps.SupportsConfigOptions)
	assert.False(t, caps.SupportsReasoningEffort)
	assert.False(t, caps.SupportsHooks)
}

func TestSession_Capabilities_BareAgentHasNoOptionalSurface(t *testing.T) {
	s := newTestSession()
	caps := s.Capabilities()
	assert.False(t, caps.SupportsModelChange)
	assert.False(t, caps.SupportsPermissionModeChange)
	assert.False(t, caps.SupportsConfigOptions)
}

func TestSession_TurnResultEvent_Success(t *testing.T) {
	s := newTestSession()
	ev := s.turnResultEvent(promptResult{StopReason: "end_turn", Usage: &acpUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}})
	require.NotNil(t, ev.TurnResult)
	assert.Equal(t, "success", ev.TurnResult.Subtype)
	assert.Equal(t, 10, ev.TurnResult.Usage.InputTokens)
	assert.Equal(t, 5, ev.TurnResult.Usage.OutputTokens)
}

func TestSession_TurnResultEvent_Cancelled(t *testing.T) {
	s := newTestSession()
	ev := s.turnResultEvent(promptResult{StopReason: "cancelled"})
	require.NotNil(t, ev.TurnResult)
	assert.Equal(t, "interrupted", ev.TurnResult.Subtype)
}

func TestSession_TurnResultEvent_Refusal(t *testing.T) {
	s := newTestSession()
	ev := s.turnResultEvent(promptResult{StopReason: "refusal"})
	require.NotNil(t, ev.TurnResult)
	assert.Equal(t, "error", ev.TurnResult.Subtype)
}

func TestSession_SetConfigOption_RefusesUnadvertised(t *testing.T) {
	s := newTestSession()
	err := s.SetConfigOption(nil, "unknown-id", "value")
	assert.ErrorIs(t, err, agentbridge.ErrUnsupported)
}

func TestSession_PushEvent_DropsWhenFull(t *testing.T) {
	s := newTestSession()
	s.events = make(chan agentbridge.Event, 1)
	s.pushEvent(agentbridge.Event{Type: agentbridge.EventAssistantText, Text: "first"})
	s.pushEvent(agentbridge.Event{Type: agentbridge.EventAssistantText, Text: "second"})

	got := <-s.events
	assert.Equal(t, "first", got.Text)
}
