package agentbridge

import (
	"encoding/json"
	"time"
)

// EventType discriminates the Event tagged union (spec §3).
type EventType string

const (
	EventSystemInit            EventType = "system_init"
	EventAssistantText         EventType = "assistant_text"
	EventAssistantThinking     EventType = "assistant_thinking"
	EventUserText              EventType = "user_text"
	EventToolUse               EventType = "tool_use"
	EventToolResult            EventType = "tool_result"
	EventTurnResult            EventType = "turn_result"
	EventStreamDelta           EventType = "stream_delta"
	EventConfigOptions         EventType = "config_options"
	EventAvailableCommands     EventType = "available_commands"
	EventModeUpdate            EventType = "mode_update"
	EventPlan                  EventType = "plan"
	EventPermissionOutcomeEcho EventType = "permission_outcome_echo"
	EventLog                   EventType = "log"
	EventError                 EventType = "error"
)

// DeltaKind discriminates a StreamDelta payload.
type DeltaKind string

const (
	DeltaText     DeltaKind = "text"
	DeltaToolUse  DeltaKind = "tool_use"
	DeltaThinking DeltaKind = "thinking"
)

// SystemInitInfo is the payload of an EventSystemInit.
type SystemInitInfo struct {
	Model        string       `json:"model,omitempty"`
	Tools        []string     `json:"tools,omitempty"`
	MCPServers   []string     `json:"mcp_servers,omitempty"`
	AgentName    string       `json:"agent_name,omitempty"`
	AgentVersion string       `json:"agent_version,omitempty"`
	Process      *ProcessMeta `json:"process,omitempty"`
}

// ProcessMeta is the shape of a snapshot of the spawned child (PID and
// resolved binary path). No adapter in this module fills it in, so
// SystemInitInfo.Process is always nil.
type ProcessMeta struct {
	PID    int    `json:"pid"`
	Binary string `json:"binary"`
}

// TurnResultInfo is the payload of an EventTurnResult.
type TurnResultInfo struct {
	Subtype    string     `json:"subtype,omitempty"` // "success" | "interrupted" | "error"
	Turns      int        `json:"turns,omitempty"`
	Usage      Usage      `json:"usage"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// ConfigOption is one entry of an EventConfigOptions payload (ACP-only).
type ConfigOption struct {
	ID      string   `json:"id"`
	Label   string   `json:"label,omitempty"`
	Value   string   `json:"value,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// PlanEntry is one step of an EventPlan payload.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Event is the normalized, tagged-union output of the Event Normalizer
// (C5). Every event carries session id, a monotonic per-session sequence
// number, a timestamp, and the provider tag (spec §3). The remaining
// fields are populated according to Type; unused fields are left zero.
type Event struct {
	SessionID string      `json:"session_id"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Provider  BackendKind `json:"provider"`
	Type      EventType   `json:"type"`

	// Text carries textual content for AssistantText, AssistantThinking,
	// UserText, Log, and Error. Plan events carry PlanEntries instead.
	Text string `json:"text,omitempty"`

	Tool *ToolCall `json:"tool,omitempty"`

	Init       *SystemInitInfo `json:"init,omitempty"`
	TurnResult *TurnResultInfo `json:"turn_result,omitempty"`

	DeltaKind DeltaKind `json:"delta_kind,omitempty"`

	ConfigOptions     []ConfigOption `json:"config_options,omitempty"`
	AvailableCommands []string       `json:"available_commands,omitempty"`
	ModeID            string         `json:"mode_id,omitempty"`
	PlanEntries       []PlanEntry    `json:"plan_entries,omitempty"`

	PermissionOutcome *PermissionOutcomeEcho `json:"permission_outcome,omitempty"`

	LogLevel  string `json:"log_level,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Raw is the originating backend frame, kept for audit/debugging.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// PermissionOutcomeEcho is the payload of an EventPermissionOutcomeEcho,
// emitted after the dispatcher resolves a PermissionRequest so the event
// stream carries a single total order including permission outcomes.
type PermissionOutcomeEcho struct {
	RequestID string   `json:"request_id"`
	Decision  Decision `json:"decision"`
}
