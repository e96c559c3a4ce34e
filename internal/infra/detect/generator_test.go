package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

func newTestGenerator(t *testing.T, minFreq, topN int) *PatternGenerator {
	t.Helper()
	return NewPatternGenerator(DefaultPatterns(), minFreq, topN, logger.NewNop())
}

func rawsOfType(raws []candidate.Raw, typ candidate.Type) []candidate.Raw {
	var out []candidate.Raw
	for _, r := range raws {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func findValue(raws []candidate.Raw, value string) *candidate.Raw {
	for i := range raws {
		if raws[i].Value == value {
			return &raws[i]
		}
	}
	return nil
}

func TestGeneratePatternPass(t *testing.T) {
	g := newTestGenerator(t, 2, 10)
	text := "Employee SSN 123-45-6789 on file.\n" +
		"Contact jane.doe@example.com or jane.doe@example.com again.\n" +
		"Backup SSN 123-45-6789."

	raws, err := g.Generate(context.Background(), text, "hr.txt")
	require.NoError(t, err)
	patterns := rawsOfType(raws, candidate.TypePattern)
	require.Len(t, patterns, 2)

	ssn := findValue(patterns, "123-45-6789")
	require.NotNil(t, ssn)
	assert.Equal(t, "SSN", ssn.PatternTemplate)
	assert.Equal(t, 2, ssn.Frequency)
	assert.Equal(t, 0.95, ssn.Confidence)
	assert.Equal(t, "pii", ssn.Category)
	assert.Equal(t, "hr.txt", ssn.FileName)
	assert.Equal(t, ModulePatternScan, ssn.Module)
	assert.Equal(t, candidate.HintRegex, ssn.ElementHint)
	require.NotNil(t, ssn.Score)
	wantScore := clampScore(2*8 + 0.95*40 + shannonEntropy("123-45-6789")*5)
	assert.InDelta(t, wantScore, *ssn.Score, 1e-9)

	email := findValue(patterns, "jane.doe@example.com")
	require.NotNil(t, email)
	assert.Equal(t, "EMAIL", email.PatternTemplate)
	assert.Equal(t, 2, email.Frequency)

	// Evidence points at the first occurrence and carries surrounding
	// context.
	require.Len(t, ssn.Evidence, 1)
	assert.Equal(t, strings.Index(text, "123-45-6789"), ssn.Evidence[0].Position)
	assert.Contains(t, ssn.Evidence[0].Context, "Employee SSN 123-45-6789")
	assert.Equal(t, 0.95, ssn.Evidence[0].Confidence)
}

func TestGenerateEvidenceWindow(t *testing.T) {
	g := newTestGenerator(t, 100, 0)
	pad := strings.Repeat("x", 200)
	text := pad + " 10.0.0.1 " + pad

	raws, err := g.Generate(context.Background(), text, "net.log")
	require.NoError(t, err)
	ip := findValue(raws, "10.0.0.1")
	require.NotNil(t, ip)
	require.Len(t, ip.Evidence, 1)

	// 50 chars each side plus the value itself.
	assert.Len(t, ip.Evidence[0].Context, 50+len("10.0.0.1")+50)
	assert.Contains(t, ip.Evidence[0].Context, "10.0.0.1")
}

func TestGenerateKeywordPass(t *testing.T) {
	g := newTestGenerator(t, 2, 10)
	text := "Project Vesuvius kickoff. Vesuvius budget attached.\n" +
		"the the the and and singleton"

	raws, err := g.Generate(context.Background(), text, "memo.txt")
	require.NoError(t, err)
	keywords := rawsOfType(raws, candidate.TypeKeyword)

	ves := findValue(keywords, "Vesuvius")
	require.NotNil(t, ves, "repeated unusual token should surface")
	assert.Equal(t, 2, ves.Frequency)
	assert.Equal(t, 0.65, ves.Confidence)
	assert.Equal(t, ModuleKeywordScan, ves.Module)
	assert.Equal(t, candidate.HintKeywordList, ves.ElementHint)

	assert.Nil(t, findValue(keywords, "the"), "stopwords never surface")
	assert.Nil(t, findValue(keywords, "singleton"), "below-threshold tokens never surface")
}

func TestGenerateKeywordTopN(t *testing.T) {
	g := newTestGenerator(t, 2, 1)
	text := strings.Repeat("alpha ", 5) + strings.Repeat("beta ", 3)

	raws, err := g.Generate(context.Background(), text, "doc.txt")
	require.NoError(t, err)
	keywords := rawsOfType(raws, candidate.TypeKeyword)
	require.Len(t, keywords, 1)
	assert.Equal(t, "alpha", keywords[0].Value)
	assert.Equal(t, 5, keywords[0].Frequency)
}

func TestGenerateEmptyText(t *testing.T) {
	g := newTestGenerator(t, 2, 10)

	raws, err := g.Generate(context.Background(), "   \n\t ", "empty.txt")
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestGenerateCancelledContext(t *testing.T) {
	g := newTestGenerator(t, 2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "some text", "doc.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDedupeByKey(t *testing.T) {
	lo, hi := 40.0, 90.0
	raws := []candidate.Raw{
		{Type: candidate.TypePattern, Value: "token", Score: &lo},
		{Type: candidate.TypePattern, Value: "TOKEN", Score: &hi},
		{Type: candidate.TypeKeyword, Value: "token", Score: &lo},
		{Type: candidate.TypePattern, Value: "other", Score: nil},
	}

	out := dedupeByKey(raws)
	require.Len(t, out, 3)

	// Case-insensitive same-type duplicates collapse to the best scored,
	// keeping the first-seen position.
	assert.Equal(t, "TOKEN", out[0].Value)
	assert.Equal(t, hi, *out[0].Score)
	// Different type is a different key.
	assert.Equal(t, candidate.TypeKeyword, out[1].Type)
	assert.Nil(t, out[2].Score)
}

func TestShannonEntropy(t *testing.T) {
	assert.Equal(t, 0.0, shannonEntropy(""))
	assert.Equal(t, 0.0, shannonEntropy("aaaa"))
	assert.InDelta(t, 1.0, shannonEntropy("abab"), 1e-9)
	assert.Greater(t, shannonEntropy("k9#Qx!"), shannonEntropy("aaaaab"))
}
