package acp

import "encoding/json"

// JSON-RPC 2.0 method constants for the Agent Client Protocol (spec §4.4.3).
const (
	MethodInitialize       = "initialize"
	MethodSessionNew       = "session/new"
	MethodSessionLoad      = "session/load"
	MethodSessionPrompt    = "session/prompt"
	MethodSessionUpdate    = "session/update"
	MethodSessionCancel    = "session/cancel"
	MethodSessionSetMode   = "session/set_mode"
	MethodSessionSetConfig = "session/set_config_option"
	MethodRequestPerm      = "session/request_permission"
	MethodShutdown         = "shutdown"

	MethodFSReadTextFile  = "fs/read_text_file"
	MethodFSWriteTextFile = "fs/write_text_file"

	MethodTerminalCreate      = "terminal/create"
	MethodTerminalOutput      = "terminal/output"
	MethodTerminalWaitForExit = "terminal/wait_for_exit"
	MethodTerminalKill        = "terminal/kill"
	MethodTerminalRelease     = "terminal/release"
)

const (
	protocolVersion = 1 // ACP spec v0.10.8 — integer, not semver
	clientName      = "agentbridge"
	clientVersion   = "0.1.0"
)

// --- Initialize ---

type initializeParams struct {
	ProtocolVersion    int                 `json:"protocolVersion"`
	ClientCapabilities *clientCapabilities `json:"clientCapabilities,omitempty"`
	ClientInfo         *implementation     `json:"clientInfo,omitempty"`
}

type initializeResult struct {
	ProtocolVersion   int                `json:"protocolVersion"`
	AgentCapabilities *agentCapabilities `json:"agentCapabilities,omitempty"`
	AgentInfo         *implementation    `json:"agentInfo,omitempty"`
	AuthMethods       []authMethod       `json:"authMethods,omitempty"`
}

type implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// clientCapabilities advertises this adapter's fs/terminal support, unlike
// the teacher's MVP "no fs/terminal" stance — spec §4.4.3 requires both.
type clientCapabilities struct {
	FS       *fileSystemCapability `json:"fs,omitempty"`
	Terminal bool                  `json:"terminal,omitempty"`
}

type fileSystemCapability struct {
	ReadTextFile  bool `json:"readTextFile,omitempty"`
	WriteTextFile bool `json:"writeTextFile,omitempty"`
}

type agentCapabilities struct {
	LoadSession bool `json:"loadSession,omitempty"`
}

type authMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// --- Session ---

type newSessionParams struct {
	CWD        string      `json:"cwd"`
	MCPServers []mcpServer `json:"mcpServers"`
}

type newSessionResult struct {
	SessionID     string                `json:"sessionId"`
	Modes         *sessionModeState     `json:"modes,omitempty"`
	Models        *sessionModelState    `json:"models,omitempty"`
	ConfigOptions []sessionConfigOption `json:"configOptions,omitempty"`
}

type loadSessionParams struct {
	SessionID  string      `json:"sessionId"`
	CWD        string      `json:"cwd"`
	MCPServers []mcpServer `json:"mcpServers"`
}

type loadSessionResult struct {
	Modes         *sessionModeState     `json:"modes,omitempty"`
	Models        *sessionModelState    `json:"models,omitempty"`
	ConfigOptions []sessionConfigOption `json:"configOptions,omitempty"`
}

type mcpServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type sessionModeState struct {
	CurrentModeID  string        `json:"currentModeId"`
	AvailableModes []sessionMode `json:"availableModes"`
}

type sessionMode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type sessionModelState struct {
	CurrentModelID  string      `json:"currentModelId"`
	AvailableModels []modelInfo `json:"availableModels"`
}

type modelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type sessionConfigOption struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Category     string               `json:"category,omitempty"`
	Type         string               `json:"type,omitempty"`
	CurrentValue string               `json:"currentValue,omitempty"`
	Options      []configOptionChoice `json:"options,omitempty"`
}

type configOptionChoice struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// --- Prompt ---

type wireContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	Data      string `json:"data,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	URI       string `json:"uri,omitempty"`
}

type promptParams struct {
	SessionID string              `json:"sessionId"`
	Prompt    []wireContentBlock  `json:"prompt"`
}

type promptResult struct {
	StopReason string    `json:"stopReason,omitempty"`
	Usage      *acpUsage `json:"usage,omitempty"`
}

type acpUsage struct {
	InputTokens       int `json:"inputTokens"`
	OutputTokens      int `json:"outputTokens"`
	TotalTokens       int `json:"totalTokens"`
	ThoughtTokens     int `json:"thoughtTokens,omitempty"`
	CachedReadTokens  int `json:"cachedReadTokens,omitempty"`
	CachedWriteTokens int `json:"cachedWriteTokens,omitempty"`
}

// --- Updates ---

type sessionNotification struct {
	SessionID string          `json:"sessionId"`
	Update    json.RawMessage `json:"update"`
}

type sessionUpdateHeader struct {
	SessionUpdate string `json:"sessionUpdate"`
}

type toolCallUpdate struct {
	ToolCallID string          `json:"toolCallId"`
	Title      string          `json:"title,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	Status     string          `json:"status,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	RawInput   json.RawMessage `json:"rawInput,omitempty"`
	RawOutput  json.RawMessage `json:"rawOutput,omitempty"`
	Locations  []toolCallLocation `json:"locations,omitempty"`
}

type toolCallLocation struct {
	Path string `json:"path"`
}

// --- Permission ---

type requestPermissionParams struct {
	SessionID string          `json:"sessionId"`
	ToolCall  toolCallUpdate  `json:"toolCall"`
	Options   []permissionOpt `json:"options"`
}

type permissionOpt struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

type requestPermissionResult struct {
	Outcome requestPermissionOutcome `json:"outcome"`
}

type requestPermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// --- Config ---

type setModeParams struct {
	SessionID string `json:"sessionId"`
	ModeID    string `json:"modeId"`
}

type setConfigOptionParams struct {
	SessionID string `json:"sessionId"`
	ConfigID  string `json:"configId"`
	Value     string `json:"value"`
}

// --- fs/* (client-implemented, spec §7) ---

type readTextFileParams struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Line      *int   `json:"line,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

type readTextFileResult struct {
	Content string `json:"content"`
}

type writeTextFileParams struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// --- terminal/* (client-implemented, spec §7) ---

type terminalCreateParams struct {
	SessionID string   `json:"sessionId"`
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	Cwd       string   `json:"cwd,omitempty"`
	Env       []envVar `json:"env,omitempty"`
}

type envVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type terminalCreateResult struct {
	TerminalID string `json:"terminalId"`
}

type terminalIDParams struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
}

type terminalOutputResult struct {
	Output       string `json:"output"`
	Truncated    bool   `json:"truncated"`
	ExitStatus   *exitStatus `json:"exitStatus,omitempty"`
}

type exitStatus struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
}

type terminalWaitResult struct {
	ExitStatus exitStatus `json:"exitStatus"`
}
