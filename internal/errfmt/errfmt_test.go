package errfmt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_ShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello"))
}

func TestTruncate_LongStringCapsAtMaxLen(t *testing.T) {
	long := strings.Repeat("x", MaxLen+100)
	got := Truncate(long)
	assert.LessOrEqual(t, len(got), MaxLen)
}

func TestTruncate_BacktracksToUTF8Boundary(t *testing.T) {
	// Each "é" is 2 bytes; the leading 1-byte "x" forces the cut to land mid-rune.
	s := "x" + strings.Repeat("é", MaxLen) // 1 + MaxLen*2 bytes total
	got := Truncate(s)
	assert.True(t, len(got) <= MaxLen)
	assert.True(t, utf8.ValidString(got), "truncated string must end on a valid rune boundary")
}

func TestSanitizeCode_RejectsControlCharacters(t *testing.T) {
	assert.Equal(t, "", SanitizeCode("bad\ncode"))
	assert.Equal(t, "", SanitizeCode("bad\x00code"))
}

func TestSanitizeCode_TruncatesLongCode(t *testing.T) {
	long := strings.Repeat("a", MaxCodeLen+50)
	got := SanitizeCode(long)
	assert.Equal(t, MaxCodeLen, len(got))
}

func TestSanitizeCode_PassesThroughCleanCode(t *testing.T) {
	assert.Equal(t, "rate_limited", SanitizeCode("rate_limited"))
}
