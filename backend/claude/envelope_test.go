package claude

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	payload := mustRaw(userMessagePayload{Message: userMessageBody{Role: "user", Content: "hi"}})
	env := envelope{Type: typeUserMessage, SessionID: "sess-1", Payload: payload}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var got envelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, typeUserMessage, got.Type)
	assert.Equal(t, "sess-1", got.SessionID)

	var body userMessagePayload
	require.NoError(t, json.Unmarshal(got.Payload, &body))
	assert.Equal(t, "user", body.Message.Role)
}

func TestEnvelope_OmitsEmptyOptionalFields(t *testing.T) {
	env := envelope{Type: typeSessionInterrupt}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
	assert.NotContains(t, string(data), `"session_id"`)
	assert.NotContains(t, string(data), `"payload"`)
}

func TestMustRaw_ProducesValidJSON(t *testing.T) {
	raw := mustRaw(errorPayload{Code: "bad_input", Message: "oops"})
	var got errorPayload
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "bad_input", got.Code)
	assert.Equal(t, "oops", got.Message)
}

func TestCallbackRequestPayload_DecodesFromEnvelope(t *testing.T) {
	raw := `{"type":"callback.request","payload":{"callback_type":"can_use_tool","tool_name":"bash","tool_input":{"cmd":"ls"},"tool_use_id":"tu_1"}}`
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, typeCallbackReq, env.Type)

	var payload callbackRequestPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "can_use_tool", payload.CallbackType)
	assert.Equal(t, "bash", payload.ToolName)
	assert.Equal(t, "tu_1", payload.ToolUseID)
}
