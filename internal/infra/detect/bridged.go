package detect

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tp12121212/sit-builder/internal/infra/extract"
	"github.com/tp12121212/sit-builder/internal/metrics"
	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// ModuleBridgedScore is the provenance identifier for bridged scoring.
const ModuleBridgedScore = "bridged-score"

// BridgedGenerator shells out to the external scoring tool with the extracted
// text on stdin. Like the bridged extraction tool, the credential travels in
// the environment only.
type BridgedGenerator struct {
	bin      string
	tokenEnv string
	timeout  time.Duration

	credential   string
	principal    string
	organization string

	log *logger.Logger
}

// NewBridgedGenerator creates a scoring generator bound to one scan's
// delegated credential.
func NewBridgedGenerator(bin, tokenEnv string, timeout time.Duration, credential, principal, organization string, log *logger.Logger) *BridgedGenerator {
	return &BridgedGenerator{
		bin:          bin,
		tokenEnv:     tokenEnv,
		timeout:      timeout,
		credential:   credential,
		principal:    principal,
		organization: organization,
		log:          log.With("component", "detect", "backend", "bridged"),
	}
}

// toolCandidate is the scoring tool's wire shape for one finding.
type toolCandidate struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
	Frequency  int     `json:"frequency"`
	Context    string  `json:"context,omitempty"`
	Position   int     `json:"position,omitempty"`
	Category   string  `json:"category,omitempty"`
}

// Generate implements Generator.
func (g *BridgedGenerator) Generate(ctx context.Context, text, fileName string) ([]candidate.Raw, error) {
	if _, err := exec.LookPath(g.bin); err != nil {
		metrics.BridgedToolErrors.WithLabelValues("score").Inc()
		return nil, &extract.BackendUnavailableError{
			Backend: "bridged",
			Reason:  "scoring tool not found",
			Err:     err,
		}
	}

	runCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, g.bin, "--format", "json")
	cmd.Stdin = strings.NewReader(text)
	cmd.Env = append(os.Environ(),
		g.tokenEnv+"="+g.credential,
		"SIT_PRINCIPAL="+g.principal,
		"SIT_ORGANIZATION="+g.organization,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.BridgedToolErrors.WithLabelValues("score").Inc()
		combined := strings.ToLower(stdout.String() + "\n" + stderr.String())
		if strings.Contains(combined, "unauthorized") || strings.Contains(combined, "invalid token") {
			return nil, &extract.BackendUnavailableError{
				Backend: "bridged",
				Reason:  "delegated credential rejected",
				Err:     err,
			}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, extract.NewFileError(fileName, ModuleBridgedScore, errors.New(msg))
	}

	var findings []toolCandidate
	if err := extract.ExtractJSONPayload(stdout.Bytes(), &findings); err != nil {
		metrics.BridgedToolErrors.WithLabelValues("score").Inc()
		return nil, extract.NewFileError(fileName, ModuleBridgedScore, err)
	}

	out := make([]candidate.Raw, 0, len(findings))
	for _, f := range findings {
		if f.Value == "" {
			continue
		}
		score := f.Score
		freq := f.Frequency
		if freq < 1 {
			freq = 1
		}
		raw := candidate.Raw{
			Type:       candidate.TypeEntity,
			Value:      f.Value,
			Frequency:  freq,
			Confidence: f.Confidence,
			Score:      &score,
			FileName:   fileName,
			Category:   f.Category,
			Module:     ModuleBridgedScore,
		}
		if f.Type != "" {
			raw.PatternTemplate = f.Type
		}
		if f.Context != "" {
			raw.Evidence = []candidate.Snippet{{
				Context:    f.Context,
				Position:   f.Position,
				Confidence: f.Confidence,
			}}
		}
		out = append(out, raw)
		metrics.CandidatesGeneratedTotal.WithLabelValues(string(raw.Type)).Inc()
	}

	g.log.Debug("bridged scoring complete", "file", fileName, "candidates", len(out))
	return out, nil
}
