package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/logger"
)

// writeStubTool writes an executable shell script standing in for the external
// extraction tool.
func writeStubTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridged-tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func bridgedOpts() Options {
	return Options{Credential: "tok-secret", Principal: "svc-scanner", Organization: "acme"}
}

func TestBridgedExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("clean output", func(t *testing.T) {
		bin := writeStubTool(t, `echo '{"text": "extracted body"}'`)
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		res, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		require.NoError(t, err)
		assert.Equal(t, "extracted body", res.Text)
		assert.Equal(t, ModuleBridgedExtract, res.Module)
	})

	t.Run("progress chatter around the payload", func(t *testing.T) {
		bin := writeStubTool(t, "echo 'loading model'\necho '{\"text\": \"body\"}'\necho 'done'")
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		res, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		require.NoError(t, err)
		assert.Equal(t, "body", res.Text)
	})

	t.Run("document content mentioning access denial is just content", func(t *testing.T) {
		bin := writeStubTool(t,
			`echo '{"text": "HR memo: access denied for employee 123-45-6789, badge unauthorized"}'`)
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		res, err := b.Extract(ctx, "memo.docx", []byte("payload"), bridgedOpts())
		require.NoError(t, err)
		assert.Contains(t, res.Text, "access denied for employee")
	})

	t.Run("credential travels through the environment", func(t *testing.T) {
		bin := writeStubTool(t, `echo "{\"text\": \"cred=$SIT_TOKEN org=$SIT_ORGANIZATION\"}"`)
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		res, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		require.NoError(t, err)
		assert.Equal(t, "cred=tok-secret org=acme", res.Text)
	})

	t.Run("missing credential is fatal", func(t *testing.T) {
		b := NewBridged("unused", "SIT_TOKEN", 30*time.Second, logger.NewNop())

		_, err := b.Extract(ctx, "doc.pdf", []byte("payload"), Options{})
		var unavailable *BackendUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Contains(t, unavailable.Reason, "credential missing")
	})

	t.Run("missing tool is fatal", func(t *testing.T) {
		b := NewBridged(filepath.Join(t.TempDir(), "no-such-tool"), "SIT_TOKEN", 30*time.Second, logger.NewNop())

		_, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		var unavailable *BackendUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Contains(t, unavailable.Reason, "tool not found")
	})

	t.Run("nonzero exit with auth marker is fatal", func(t *testing.T) {
		bin := writeStubTool(t, "echo 'error: invalid token' >&2\nexit 3")
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		_, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		var unavailable *BackendUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Contains(t, unavailable.Reason, "credential rejected")
	})

	t.Run("nonzero exit without auth marker fails only the file", func(t *testing.T) {
		bin := writeStubTool(t, "echo 'cannot parse document' >&2\nexit 2")
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		_, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		var fileErr *FileError
		require.ErrorAs(t, err, &fileErr)
		assert.Equal(t, "doc.pdf", fileErr.FileName)
		assert.Contains(t, fileErr.Error(), "cannot parse document")
	})

	t.Run("unparseable success output fails only the file", func(t *testing.T) {
		bin := writeStubTool(t, `echo 'all done, no payload'`)
		b := NewBridged(bin, "SIT_TOKEN", 30*time.Second, logger.NewNop())

		_, err := b.Extract(ctx, "doc.pdf", []byte("payload"), bridgedOpts())
		var fileErr *FileError
		require.ErrorAs(t, err, &fileErr)
		assert.Contains(t, fileErr.Error(), "parse tool output")
	})
}
