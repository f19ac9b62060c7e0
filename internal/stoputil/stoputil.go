// Package stoputil sanitizes backend-supplied stop_reason strings before
// they are attached to a TurnResult.
package stoputil

import (
	"unicode"
	"unicode/utf8"

	"github.com/sessiond/agentbridge"
)

// MaxLen is the maximum byte length for a sanitized StopReason.
const MaxLen = 64

// Sanitize validates and truncates a raw stop_reason string. Returns the
// empty StopReason for strings containing control characters.
func Sanitize(raw string) agentbridge.StopReason {
	for _, r := range raw {
		if unicode.IsControl(r) {
			return ""
		}
	}
	if len(raw) > MaxLen {
		end := MaxLen
		for end > 0 && !utf8.RuneStart(raw[end]) {
			end--
		}
		return agentbridge.StopReason(raw[:end])
	}
	return agentbridge.StopReason(raw)
}
