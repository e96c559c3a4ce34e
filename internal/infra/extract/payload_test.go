package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripANSI(t *testing.T) {
	in := []byte("\x1b[32mok\x1b[0m done \x1b[1;31merror\x1b[0m")
	assert.Equal(t, []byte("ok done error"), StripANSI(in))

	assert.Equal(t, []byte("plain"), StripANSI([]byte("plain")))
	assert.Equal(t, []byte{}, StripANSI([]byte{}))
}

func TestExtractJSONPayload(t *testing.T) {
	type payload struct {
		Text string `json:"text"`
		OCR  bool   `json:"ocr"`
	}

	t.Run("clean JSON", func(t *testing.T) {
		var p payload
		require.NoError(t, ExtractJSONPayload([]byte(`{"text":"hello","ocr":true}`), &p))
		assert.Equal(t, "hello", p.Text)
		assert.True(t, p.OCR)
	})

	t.Run("leading tool chatter", func(t *testing.T) {
		var p payload
		out := []byte("loading model...\nwarming cache\n{\"text\":\"body\"}\n")
		require.NoError(t, ExtractJSONPayload(out, &p))
		assert.Equal(t, "body", p.Text)
	})

	t.Run("ANSI colored progress before payload", func(t *testing.T) {
		var p payload
		out := []byte("\x1b[33m[warn]\x1b[0m slow disk\n{\"text\":\"colored\"}")
		require.NoError(t, ExtractJSONPayload(out, &p))
		assert.Equal(t, "colored", p.Text)
	})

	t.Run("first decodable object wins", func(t *testing.T) {
		var p payload
		out := []byte("{broken {\"text\":\"first\"} {\"text\":\"second\"}")
		require.NoError(t, ExtractJSONPayload(out, &p))
		assert.Equal(t, "first", p.Text)
	})

	t.Run("array payload", func(t *testing.T) {
		var vals []int
		require.NoError(t, ExtractJSONPayload([]byte("noise [1,2,3] tail"), &vals))
		assert.Equal(t, []int{1, 2, 3}, vals)
	})

	t.Run("empty output", func(t *testing.T) {
		var p payload
		err := ExtractJSONPayload([]byte("  \x1b[0m  "), &p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty tool output")
	})

	t.Run("no JSON at all", func(t *testing.T) {
		var p payload
		err := ExtractJSONPayload([]byte("fatal: credential rejected"), &p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no JSON payload")
	})
}
