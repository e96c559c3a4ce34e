package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tp12121212/sit-builder/pkg/logger"
)

// Module provenance identifiers for the classic extraction paths.
const (
	ModuleTextReader     = "text-reader"
	ModuleJSONReader     = "json-reader"
	ModuleOCRImage       = "ocr-image"
	ModuleOCRForced      = "ocr-forced"
	ModuleFallbackReader = "fallback-text-reader"
)

var textSuffixes = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".tsv": true,
	".log": true, ".yaml": true, ".yml": true, ".xml": true,
	".html": true, ".htm": true, ".ini": true, ".conf": true,
}

var imageSuffixes = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// Classic is the local extraction backend. Text-like files are read directly,
// JSON is pretty-printed so nested values become line-oriented, images go
// through the OCR engine, and everything else gets a best-effort text read.
type Classic struct {
	ocr OCREngine
	log *logger.Logger
}

// NewClassic creates the classic backend. ocr may be a disabled engine; image
// files then fail recoverably instead of silently skipping OCR.
func NewClassic(ocr OCREngine, log *logger.Logger) *Classic {
	return &Classic{
		ocr: ocr,
		log: log.With("backend", "classic"),
	}
}

// Extract parses one file locally. Per-file failures are returned as
// *FileError so the caller can record them without failing the scan.
func (c *Classic) Extract(ctx context.Context, name string, data []byte, opts Options) (Result, error) {
	ext := strings.ToLower(filepath.Ext(name))

	boolPtr := func(b bool) *bool { return &b }

	if imageSuffixes[ext] || opts.ForceOCR {
		module := ModuleOCRImage
		if !imageSuffixes[ext] {
			module = ModuleOCRForced
		}
		text, err := c.ocr.Recognize(ctx, name, data)
		if err != nil {
			if !imageSuffixes[ext] {
				// Forced OCR on a text-bearing file falls back to the
				// regular reader instead of failing the file.
				c.log.Warn("forced OCR failed, falling back to text read",
					"file", name, "error", err)
				return c.extractText(name, ext, data)
			}
			return Result{}, NewFileError(name, module, err)
		}
		return Result{Text: text, OCRPerformed: boolPtr(true), Module: module}, nil
	}

	return c.extractText(name, ext, data)
}

func (c *Classic) extractText(name, ext string, data []byte) (Result, error) {
	boolPtr := func(b bool) *bool { return &b }

	switch {
	case ext == ".json":
		if text, ok := prettyJSON(data); ok {
			return Result{Text: text, OCRPerformed: boolPtr(false), Module: ModuleJSONReader}, nil
		}
		// Invalid JSON is still worth scanning as plain text.
		return Result{Text: sanitizeText(data), OCRPerformed: boolPtr(false), Module: ModuleTextReader}, nil

	case textSuffixes[ext]:
		return Result{Text: sanitizeText(data), OCRPerformed: boolPtr(false), Module: ModuleTextReader}, nil

	default:
		text := printableRuns(data)
		if text == "" {
			return Result{}, NewFileError(name, ModuleFallbackReader,
				errors.New("no extractable text content"))
		}
		return Result{Text: text, OCRPerformed: boolPtr(false), Module: ModuleFallbackReader}, nil
	}
}

// prettyJSON re-indents a JSON document so values buried in nested objects
// appear on their own lines for pattern matching.
func prettyJSON(data []byte) (string, bool) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", false
	}
	return buf.String(), true
}

// sanitizeText returns the payload as UTF-8 text, replacing invalid byte
// sequences rather than dropping the file.
func sanitizeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

// printableRuns extracts runs of printable characters from arbitrary bytes,
// the best-effort path for unknown binary formats. Runs shorter than four
// characters are dropped as noise.
func printableRuns(data []byte) string {
	const minRun = 4

	var out strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= minRun {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.Write(run)
		}
		run = run[:0]
	}

	for _, b := range data {
		if b == '\t' || (b >= 0x20 && b < 0x7f) {
			run = append(run, b)
			continue
		}
		flush()
	}
	flush()
	return out.String()
}
