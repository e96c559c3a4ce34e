package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/logger"
)

type fakeOCR struct {
	text  string
	err   error
	calls []string
}

func (f *fakeOCR) Name() string { return "fake-ocr" }

func (f *fakeOCR) Recognize(ctx context.Context, fileName string, data []byte) (string, error) {
	f.calls = append(f.calls, fileName)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestClassicExtractText(t *testing.T) {
	ctx := context.Background()
	c := NewClassic(&fakeOCR{}, logger.NewNop())

	t.Run("plain text", func(t *testing.T) {
		res, err := c.Extract(ctx, "notes.txt", []byte("hello world"), Options{})
		require.NoError(t, err)
		assert.Equal(t, "hello world", res.Text)
		assert.Equal(t, ModuleTextReader, res.Module)
		require.NotNil(t, res.OCRPerformed)
		assert.False(t, *res.OCRPerformed)
	})

	t.Run("invalid UTF-8 is sanitized not dropped", func(t *testing.T) {
		res, err := c.Extract(ctx, "notes.log", []byte{'o', 'k', 0xff, 0xfe, '!'}, Options{})
		require.NoError(t, err)
		assert.Contains(t, res.Text, "ok")
		assert.Contains(t, res.Text, "�")
	})

	t.Run("json is pretty printed", func(t *testing.T) {
		res, err := c.Extract(ctx, "cfg.json", []byte(`{"user":{"ssn":"123-45-6789"}}`), Options{})
		require.NoError(t, err)
		assert.Equal(t, ModuleJSONReader, res.Module)
		assert.Contains(t, res.Text, "\n")
		assert.Contains(t, res.Text, `"ssn": "123-45-6789"`)
	})

	t.Run("broken json falls back to text read", func(t *testing.T) {
		res, err := c.Extract(ctx, "cfg.json", []byte(`{"user": truncated`), Options{})
		require.NoError(t, err)
		assert.Equal(t, ModuleTextReader, res.Module)
		assert.Equal(t, `{"user": truncated`, res.Text)
	})
}

func TestClassicExtractImage(t *testing.T) {
	ctx := context.Background()

	t.Run("image routed through OCR", func(t *testing.T) {
		ocr := &fakeOCR{text: "BADGE 4711"}
		c := NewClassic(ocr, logger.NewNop())

		res, err := c.Extract(ctx, "badge.png", []byte{0x89, 'P', 'N', 'G'}, Options{})
		require.NoError(t, err)
		assert.Equal(t, "BADGE 4711", res.Text)
		assert.Equal(t, ModuleOCRImage, res.Module)
		require.NotNil(t, res.OCRPerformed)
		assert.True(t, *res.OCRPerformed)
		assert.Equal(t, []string{"badge.png"}, ocr.calls)
	})

	t.Run("OCR failure on image is a file error", func(t *testing.T) {
		c := NewClassic(&fakeOCR{err: errors.New("tesseract not found")}, logger.NewNop())

		_, err := c.Extract(ctx, "badge.png", []byte{0x89}, Options{})
		require.Error(t, err)
		var fe *FileError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "badge.png", fe.FileName)
		assert.Equal(t, ModuleOCRImage, fe.Module)
	})
}

func TestClassicForceOCR(t *testing.T) {
	ctx := context.Background()

	t.Run("forces non-image files through OCR", func(t *testing.T) {
		ocr := &fakeOCR{text: "scanned letter"}
		c := NewClassic(ocr, logger.NewNop())

		res, err := c.Extract(ctx, "letter.txt", []byte("ignored"), Options{ForceOCR: true})
		require.NoError(t, err)
		assert.Equal(t, "scanned letter", res.Text)
		assert.Equal(t, ModuleOCRForced, res.Module)
	})

	t.Run("falls back to text read when forced OCR fails", func(t *testing.T) {
		c := NewClassic(&fakeOCR{err: errors.New("unsupported format")}, logger.NewNop())

		res, err := c.Extract(ctx, "letter.txt", []byte("dear sir"), Options{ForceOCR: true})
		require.NoError(t, err)
		assert.Equal(t, "dear sir", res.Text)
		assert.Equal(t, ModuleTextReader, res.Module)
		require.NotNil(t, res.OCRPerformed)
		assert.False(t, *res.OCRPerformed)
	})
}

func TestClassicFallbackReader(t *testing.T) {
	ctx := context.Background()
	c := NewClassic(&fakeOCR{}, logger.NewNop())

	t.Run("printable runs from binary payload", func(t *testing.T) {
		data := append([]byte{0x00, 0x01, 0x02}, []byte("Account 12345")...)
		data = append(data, 0x00, 0x03)
		data = append(data, []byte("xy")...) // too short, dropped as noise

		res, err := c.Extract(ctx, "export.bin", data, Options{})
		require.NoError(t, err)
		assert.Equal(t, ModuleFallbackReader, res.Module)
		assert.Equal(t, "Account 12345", res.Text)
	})

	t.Run("pure binary yields a file error", func(t *testing.T) {
		_, err := c.Extract(ctx, "blob.bin", []byte{0x00, 0x01, 0x02, 0x03}, Options{})
		require.Error(t, err)
		var fe *FileError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, ModuleFallbackReader, fe.Module)
		assert.Contains(t, fe.Error(), "no extractable text content")
	})
}
