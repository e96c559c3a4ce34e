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
	"time"

	"github.com/tp12121212/sit-builder/internal/metrics"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// ModuleBridgedExtract is the provenance identifier for bridged extraction.
const ModuleBridgedExtract = "bridged-extract"

// authFailureMarkers in tool output indicate the delegated credential was
// rejected rather than a per-file problem.
var authFailureMarkers = []string{
	"unauthorized",
	"invalid credential",
	"invalid token",
	"access denied",
	"authentication failed",
}

// Bridged shells out to the external extraction tool. The delegated
// credential is passed through the environment, never on the command line,
// so it cannot leak into process listings.
type Bridged struct {
	bin      string
	tokenEnv string
	timeout  time.Duration
	log      *logger.Logger
}

// NewBridged creates the bridged extraction backend.
func NewBridged(bin, tokenEnv string, timeout time.Duration, log *logger.Logger) *Bridged {
	return &Bridged{
		bin:      bin,
		tokenEnv: tokenEnv,
		timeout:  timeout,
		log:      log.With("backend", "bridged"),
	}
}

// Extract runs the external extraction tool over one file. A missing binary
// or rejected credential is fatal for the scan; anything else fails just this
// file.
func (b *Bridged) Extract(ctx context.Context, name string, data []byte, opts Options) (Result, error) {
	if opts.Credential == "" {
		return Result{}, &BackendUnavailableError{
			Backend: "bridged",
			Reason:  "delegated credential missing",
		}
	}
	if _, err := exec.LookPath(b.bin); err != nil {
		metrics.BridgedToolErrors.WithLabelValues("extract").Inc()
		return Result{}, &BackendUnavailableError{
			Backend: "bridged",
			Reason:  "extraction tool not found",
			Err:     err,
		}
	}

	tmp, err := os.CreateTemp("", "sit-bridged-*"+filepath.Ext(name))
	if err != nil {
		return Result{}, NewFileError(name, ModuleBridgedExtract, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Result{}, NewFileError(name, ModuleBridgedExtract, err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, NewFileError(name, ModuleBridgedExtract, err)
	}

	runCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, b.bin, "--input", tmp.Name(), "--format", "json")
	cmd.Env = append(os.Environ(),
		b.tokenEnv+"="+opts.Credential,
		"SIT_PRINCIPAL="+opts.Principal,
		"SIT_ORGANIZATION="+opts.Organization,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		metrics.BridgedToolErrors.WithLabelValues("extract").Inc()
		// Auth markers matter only when the tool itself failed; a document
		// that happens to talk about access denial is still a document.
		combined := strings.ToLower(stdout.String() + "\n" + stderr.String())
		for _, marker := range authFailureMarkers {
			if strings.Contains(combined, marker) {
				return Result{}, &BackendUnavailableError{
					Backend: "bridged",
					Reason:  "delegated credential rejected",
					Err:     runErr,
				}
			}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return Result{}, NewFileError(name, ModuleBridgedExtract, errors.New(msg))
	}

	// The tool may interleave progress logging with its JSON result, so the
	// payload is fished out rather than parsed strictly.
	var payload struct {
		Text string `json:"text"`
	}
	if err := ExtractJSONPayload(stdout.Bytes(), &payload); err != nil {
		metrics.BridgedToolErrors.WithLabelValues("extract").Inc()
		return Result{}, NewFileError(name, ModuleBridgedExtract,
			fmt.Errorf("parse tool output: %w", err))
	}

	b.log.Debug("bridged extraction complete", "file", name, "bytes", len(payload.Text))
	return Result{Text: payload.Text, Module: ModuleBridgedExtract}, nil
}
