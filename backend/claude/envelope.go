package claude

import "encoding/json"

// envelope is the shared client↔agent frame shape spec §4.4.1 defines:
// {type, id?, session_id?, payload}. Both directions reuse it; the
// payload's shape depends on type.
type envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Outbound type values.
const (
	typeSessionCreate    = "session.create"
	typeUserMessage      = "user.message"
	typeSessionInterrupt = "session.interrupt"
	typeCallbackResponse = "callback.response"
	typeControlRequest   = "control_request"
)

// Inbound type values.
const (
	typeSessionCreated = "session.created"
	typeSDKMessage     = "sdk.message"
	typeCallbackReq    = "callback.request"
	typeControlResp    = "control_response"
	typeError          = "error"
)

type controlRequestPayload struct {
	Subtype string `json:"subtype"`
}

type sessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
}

type userMessagePayload struct {
	Message userMessageBody `json:"message"`
}

type userMessageBody struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// callbackRequestPayload is the payload of a callback.request with
// callback_type "can_use_tool".
type callbackRequestPayload struct {
	CallbackType string          `json:"callback_type"`
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolUseID    string          `json:"tool_use_id"`
	Suggestions  json.RawMessage `json:"suggestions,omitempty"`
	BlockedPath  string          `json:"blocked_path,omitempty"`
}

// callbackResponsePayload is the payload of the client's callback.response.
type callbackResponsePayload struct {
	Behavior          string          `json:"behavior"`
	UpdatedInput      json.RawMessage `json:"updated_input,omitempty"`
	UpdatedPermissions json.RawMessage `json:"updated_permissions,omitempty"`
	Message           string          `json:"message,omitempty"`
	Interrupt         bool            `json:"interrupt,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Every caller here marshals a concrete struct literal with no
		// unsupported field types; a marshal failure would be a coding
		// error, not a runtime condition to propagate.
		panic("claude: envelope payload marshal: " + err.Error())
	}
	return data
}
