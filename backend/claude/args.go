package claude

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/jsonutil"
)

// OptionPermissionMode sets the Claude Code --permission-mode flag.
// Namespaced with "claude." because permission modes are Claude-CLI
// specific — the other two backends have different or no permission
// vocabularies of their own.
const OptionPermissionMode = "claude.permission_mode"

// validResumeID is a positive allowlist for --resume values, preventing
// control characters or flag-injection strings from reaching argv.
var validResumeID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// PermissionMode controls Claude Code's permission behavior.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionBypassAll   PermissionMode = "bypassAll"
	PermissionPlan        PermissionMode = "plan"
)

func validateResumeID(id string) error {
	if !validResumeID.MatchString(id) {
		return fmt.Errorf("claude: invalid resume_id format: %q", id)
	}
	return nil
}

// streamArgs builds the argv for the one long-lived, bidirectional
// stream-json process this adapter spawns per session (spec §4.4.1: "one
// subprocess per session, for the life of the session" — unlike the
// teacher's spawn-per-turn -p mode, which this backend never uses).
func (b *Backend) streamArgs(spec agentbridge.SessionSpec) []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--permission-prompt-tool", "stdio",
	}
	if b.partialMessages {
		args = append(args, "--include-partial-messages")
	}
	if id := spec.Options[agentbridge.OptionResumeID]; id != "" && validateResumeID(id) == nil {
		args = append(args, "--resume", id)
	}
	args = appendSessionArgs(args, spec)
	return args
}

func appendSessionArgs(args []string, spec agentbridge.SessionSpec) []string {
	if spec.Model != "" && !jsonutil.ContainsNull(spec.Model) {
		args = append(args, "--model", spec.Model)
	}
	if sp := spec.Options[agentbridge.OptionSystemPrompt]; sp != "" && !jsonutil.ContainsNull(sp) {
		args = append(args, "--system-prompt", sp)
	}
	if flag, ok := resolvePermissionFlag(spec.Options); ok {
		args = append(args, "--permission-mode", flag)
	}
	args = appendPositiveInt(args, spec.Options, agentbridge.OptionMaxTurns, "--max-turns")
	args = appendPositiveInt(args, spec.Options, agentbridge.OptionThinkingBudget, "--max-thinking-tokens")
	for _, dir := range splitAddDirs(spec.Options[agentbridge.OptionAddDirs]) {
		if dir != "" && !jsonutil.ContainsNull(dir) {
			args = append(args, "--add-dir", dir)
		}
	}
	return args
}

func appendPositiveInt(args []string, opts map[string]string, key, flag string) []string {
	v := opts[key]
	if v == "" || jsonutil.ContainsNull(v) {
		return args
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		args = append(args, flag, strconv.Itoa(n))
	}
	return args
}

// rootOptionsSet reports whether the cross-cutting OptionMode is present;
// when it is, it takes precedence over the backend-specific
// OptionPermissionMode (independent control surfaces, root wins).
func rootOptionsSet(opts map[string]string) bool {
	return opts[agentbridge.OptionMode] != ""
}

func resolvePermissionFlag(opts map[string]string) (string, bool) {
	if rootOptionsSet(opts) {
		if agentbridge.Mode(opts[agentbridge.OptionMode]) == agentbridge.ModePlan {
			return "plan", true
		}
		return "", false
	}
	perm := PermissionMode(opts[OptionPermissionMode])
	if perm != "" && perm != PermissionDefault {
		if mapped, err := mapPermission(perm); err == nil {
			return mapped, true
		}
	}
	return "", false
}

func mapPermission(perm PermissionMode) (string, error) {
	switch perm {
	case PermissionDefault:
		return "default", nil
	case PermissionAcceptEdits:
		return "acceptEdits", nil
	case PermissionBypassAll:
		return "bypassPermissions", nil
	case PermissionPlan:
		return "plan", nil
	default:
		return "", fmt.Errorf("claude: unknown permission mode %q; valid: default, acceptEdits, bypassAll, plan", perm)
	}
}

func splitAddDirs(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ':' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
