package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// OCREngine turns image bytes into text.
type OCREngine interface {
	// Name identifies the engine for provenance and logging.
	Name() string

	// Recognize runs OCR over the image payload.
	Recognize(ctx context.Context, fileName string, data []byte) (string, error)
}

// Tesseract shells out to the tesseract binary. The payload is written to a
// temp file because tesseract reads its input from a path.
type Tesseract struct {
	bin   string
	langs string
}

// NewTesseract creates a Tesseract engine. An empty binary name yields a
// disabled engine whose Recognize always fails.
func NewTesseract(bin, langs string) *Tesseract {
	return &Tesseract{bin: bin, langs: langs}
}

// Name implements OCREngine.
func (t *Tesseract) Name() string {
	return "tesseract"
}

// Recognize implements OCREngine.
func (t *Tesseract) Recognize(ctx context.Context, fileName string, data []byte) (string, error) {
	if t.bin == "" {
		return "", errors.New("ocr engine disabled")
	}

	tmp, err := os.CreateTemp("", "sit-ocr-*"+filepath.Ext(fileName))
	if err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}

	args := []string{tmp.Name(), "stdout"}
	if t.langs != "" {
		args = append(args, "-l", t.langs)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("tesseract: %s", msg)
	}
	return stdout.String(), nil
}
