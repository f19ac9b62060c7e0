package agentbridge

// CommandType discriminates the Command tagged union (spec §3).
type CommandType string

const (
	CommandSendMessage         CommandType = "send_message"
	CommandSendContent         CommandType = "send_content"
	CommandInterrupt           CommandType = "interrupt"
	CommandKill                CommandType = "kill"
	CommandSetModel            CommandType = "set_model"
	CommandSetPermissionMode   CommandType = "set_permission_mode"
	CommandSetReasoningEffort  CommandType = "set_reasoning_effort"
	CommandSetConfigOption     CommandType = "set_config_option"
	CommandPermissionResponse  CommandType = "permission_response"
)

// Command is the normalized, tagged-union input accepted by
// EventTransport.Send. Only the fields relevant to Type are populated.
type Command struct {
	Type CommandType

	// SendMessage
	Text string

	// SendContent
	Blocks []ContentBlock

	// SetModel
	Model string

	// SetPermissionMode (Claude only)
	PermissionMode string

	// SetReasoningEffort (Codex only)
	Effort Effort

	// SetConfigOption (ACP only)
	ConfigOptionID    string
	ConfigOptionValue string

	// PermissionResponse
	Permission Respond
}
