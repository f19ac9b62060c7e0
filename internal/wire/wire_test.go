package wire

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_DecodesOneValuePerLine(t *testing.T) {
	r := NewReader(strings.NewReader("{\"a\":1}\n{\"b\":2}\n"), Options{})
	first, ok := r.Next()
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(first))

	second, ok := r.Next()
	require.True(t, ok)
	assert.JSONEq(t, `{"b":2}`, string(second))

	_, ok = r.Next()
	assert.False(t, ok)
	assert.NoError(t, r.Err())
}

func TestReader_SkipsBlankLines(t *testing.T) {
	r := NewReader(strings.NewReader("\n  \n{\"a\":1}\n"), Options{})
	raw, ok := r.Next()
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestReader_TrimsTrailingCR(t *testing.T) {
	r := NewReader(strings.NewReader("{\"a\":1}\r\n"), Options{})
	raw, ok := r.Next()
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestReader_SkipsMalformedLinesAndReportsThem(t *testing.T) {
	var reported []string
	r := NewReader(strings.NewReader("not json\n{\"a\":1}\n"), Options{
		OnParseError: func(line []byte, err error) { reported = append(reported, string(line)) },
	})
	raw, ok := r.Next()
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw))
	assert.Equal(t, []string{"not json"}, reported)
}

func TestReader_RespectsScannerBufferOption(t *testing.T) {
	big := strings.Repeat("x", 128)
	line := `{"a":"` + big + `"}`
	r := NewReader(strings.NewReader(line+"\n"), Options{ScannerBuffer: 4096})
	raw, ok := r.Next()
	require.True(t, ok)
	assert.JSONEq(t, line, string(raw))
}

func TestWriter_AppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteValue(map[string]int{"a": 1}))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.JSONEq(t, `{"a":1}`, strings.TrimSuffix(buf.String(), "\n"))
}

func TestWriter_SerializesConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = w.WriteValue(map[string]int{"n": n})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 50)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, `{"n":`))
	}
}
