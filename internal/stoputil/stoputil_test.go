package stoputil

import (
	"strings"
	"testing"

	"github.com/sessiond/agentbridge"
	"github.com/stretchr/testify/assert"
)

func TestSanitize_PassesThroughCleanReason(t *testing.T) {
	assert.Equal(t, agentbridge.StopReason("end_turn"), Sanitize("end_turn"))
}

func TestSanitize_RejectsControlCharacters(t *testing.T) {
	assert.Equal(t, agentbridge.StopReason(""), Sanitize("end\nturn"))
}

func TestSanitize_TruncatesAtMaxLen(t *testing.T) {
	long := strings.Repeat("a", MaxLen+10)
	got := Sanitize(long)
	assert.LessOrEqual(t, len(got), MaxLen)
}
