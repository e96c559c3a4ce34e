package detect

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tp12121212/sit-builder/internal/metrics"
	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// Module provenance identifiers for the detection passes.
const (
	ModulePatternScan = "pattern-scan"
	ModuleKeywordScan = "keyword-scan"
)

// evidenceWindow is the number of context characters captured on each side of
// a match.
const evidenceWindow = 50

// Generator produces raw candidates from one file's extracted text.
type Generator interface {
	Generate(ctx context.Context, text, fileName string) ([]candidate.Raw, error)
}

// PatternGenerator runs the regex pattern pass and the frequency-based
// keyword pass over extracted text.
type PatternGenerator struct {
	patterns []Pattern

	keywordMinFreq int
	keywordTopN    int

	log *logger.Logger
}

// NewPatternGenerator creates the default local generator.
func NewPatternGenerator(patterns []Pattern, keywordMinFreq, keywordTopN int, log *logger.Logger) *PatternGenerator {
	return &PatternGenerator{
		patterns:       patterns,
		keywordMinFreq: keywordMinFreq,
		keywordTopN:    keywordTopN,
		log:            log.With("component", "detect"),
	}
}

// Generate implements Generator. Candidates are deduplicated per file by
// (type, lowercased value), keeping the occurrence with the highest score.
func (g *PatternGenerator) Generate(ctx context.Context, text, fileName string) ([]candidate.Raw, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raws := g.patternPass(text, fileName)
	raws = append(raws, g.keywordPass(text, fileName)...)
	raws = dedupeByKey(raws)

	for _, r := range raws {
		metrics.CandidatesGeneratedTotal.WithLabelValues(string(r.Type)).Inc()
	}
	return raws, nil
}

// patternPass matches every configured pattern, scoring each distinct value
// by frequency, pattern confidence and value entropy.
func (g *PatternGenerator) patternPass(text, fileName string) []candidate.Raw {
	var out []candidate.Raw
	for _, p := range g.patterns {
		locs := p.Re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}

		type hit struct {
			first int
			freq  int
		}
		hits := make(map[string]*hit)
		order := make([]string, 0, len(locs))
		for _, loc := range locs {
			value := text[loc[0]:loc[1]]
			h, ok := hits[value]
			if !ok {
				h = &hit{first: loc[0]}
				hits[value] = h
				order = append(order, value)
			}
			h.freq++
		}

		for _, value := range order {
			h := hits[value]
			entropy := shannonEntropy(value)
			score := clampScore(float64(h.freq)*8 + p.Confidence*40 + entropy*5)
			out = append(out, candidate.Raw{
				Type:            candidate.TypePattern,
				ElementHint:     candidate.HintRegex,
				Value:           value,
				PatternTemplate: p.Name,
				Frequency:       h.freq,
				Confidence:      p.Confidence,
				Score:           &score,
				Entropy:         entropy,
				Evidence:        []candidate.Snippet{snippetAt(text, h.first, len(value), p.Confidence)},
				FileName:        fileName,
				Category:        p.Category,
				Module:          ModulePatternScan,
			})
		}
	}
	return out
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_\-]{2,}`)

// keywordPass surfaces frequently repeated tokens that no pattern claimed.
// Repetition of an unusual token is a weak but real signal that a document
// revolves around it.
func (g *PatternGenerator) keywordPass(text, fileName string) []candidate.Raw {
	type token struct {
		value string
		first int
		freq  int
	}
	tokens := make(map[string]*token)
	order := make([]string, 0, 64)

	for _, loc := range wordRe.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		key := strings.ToLower(word)
		if stopwords[key] {
			continue
		}
		t, ok := tokens[key]
		if !ok {
			t = &token{value: word, first: loc[0]}
			tokens[key] = t
			order = append(order, key)
		}
		t.freq++
	}

	eligible := make([]*token, 0, len(order))
	for _, key := range order {
		if t := tokens[key]; t.freq >= g.keywordMinFreq {
			eligible = append(eligible, t)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].freq > eligible[j].freq
	})
	if len(eligible) > g.keywordTopN {
		eligible = eligible[:g.keywordTopN]
	}

	const keywordConfidence = 0.65
	out := make([]candidate.Raw, 0, len(eligible))
	for _, t := range eligible {
		entropy := shannonEntropy(t.value)
		score := clampScore(float64(t.freq)*10 + entropy*8 + 15)
		out = append(out, candidate.Raw{
			Type:        candidate.TypeKeyword,
			ElementHint: candidate.HintKeywordList,
			Value:       t.value,
			Frequency:   t.freq,
			Confidence:  keywordConfidence,
			Score:       &score,
			Entropy:     entropy,
			Evidence:    []candidate.Snippet{snippetAt(text, t.first, len(t.value), keywordConfidence)},
			FileName:    fileName,
			Module:      ModuleKeywordScan,
		})
	}
	return out
}

// dedupeByKey collapses same-type same-value candidates within one file,
// keeping the highest-scored one. Order of first appearance is preserved.
func dedupeByKey(raws []candidate.Raw) []candidate.Raw {
	type key struct {
		t candidate.Type
		v string
	}
	best := make(map[key]int)
	out := make([]candidate.Raw, 0, len(raws))
	for _, r := range raws {
		k := key{t: r.Type, v: strings.ToLower(r.Value)}
		idx, seen := best[k]
		if !seen {
			best[k] = len(out)
			out = append(out, r)
			continue
		}
		if scoreOf(r) > scoreOf(out[idx]) {
			out[idx] = r
		}
	}
	return out
}

func scoreOf(r candidate.Raw) float64 {
	if r.Score == nil {
		return -1
	}
	return *r.Score
}

// snippetAt captures the context window around one occurrence.
func snippetAt(text string, pos, length int, confidence float64) candidate.Snippet {
	start := pos - evidenceWindow
	if start < 0 {
		start = 0
	}
	end := pos + length + evidenceWindow
	if end > len(text) {
		end = len(text)
	}
	return candidate.Snippet{
		Context:    text[start:end],
		Position:   pos,
		Confidence: confidence,
	}
}

// shannonEntropy computes the character-level Shannon entropy of a value,
// used as a randomness signal in scoring.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	var h float64
	for _, n := range freq {
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

func clampScore(v float64) float64 {
	return math.Min(100, v)
}

// stopwords filters tokens too common to carry signal in the keyword pass.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"had": true, "her": true, "was": true, "one": true, "our": true,
	"out": true, "day": true, "get": true, "has": true, "him": true,
	"his": true, "how": true, "man": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true,
	"its": true, "did": true, "yes": true, "this": true, "that": true,
	"with": true, "from": true, "have": true, "they": true, "been": true,
	"were": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "about": true, "which": true, "when": true, "your": true,
	"than": true, "them": true, "then": true, "some": true, "into": true,
	"only": true, "other": true, "these": true, "also": true, "more": true,
	"each": true, "such": true, "most": true, "over": true, "like": true,
	"null": true, "true": true, "false": true, "none": true,
}
