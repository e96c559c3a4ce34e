// Package candidate provides the candidate finding types produced by detection
// passes and the merge logic that turns per-file raw findings into a
// deduplicated result set.
package candidate

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Type classifies what kind of sensitive-information candidate was detected.
type Type string

const (
	TypePattern Type = "PATTERN"
	TypeKeyword Type = "KEYWORD"
	TypeEntity  Type = "ENTITY"
)

// ElementHint suggests which SIT element type a candidate maps to.
type ElementHint string

const (
	HintRegex       ElementHint = "REGEX"
	HintKeywordList ElementHint = "KEYWORD_LIST"
	HintDictionary  ElementHint = "DICTIONARY"
)

// Snippet is a piece of evidence for a candidate: the surrounding context of
// one occurrence within the extracted text.
type Snippet struct {
	Context    string  `json:"context"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Raw is one detection emitted for one file during one pass. It is immutable
// once emitted; the aggregator only ever reads it.
type Raw struct {
	Type            Type        `json:"type"`
	ElementHint     ElementHint `json:"element_hint"`
	Value           string      `json:"value"`
	PatternTemplate string      `json:"pattern_template,omitempty"`
	Frequency       int         `json:"frequency"`
	Confidence      float64     `json:"confidence"`
	Score           *float64    `json:"score,omitempty"`
	Entropy         float64     `json:"entropy,omitempty"`
	Evidence        []Snippet   `json:"evidence,omitempty"`

	// Provenance.
	FileName     string `json:"file_name"`
	Category     string `json:"category,omitempty"`
	Module       string `json:"module,omitempty"`
	OCRPerformed *bool  `json:"ocr_performed,omitempty"`
}

// OCRIndicator reports whether OCR contributed to an aggregated candidate.
// It is tri-state (plus not-applicable) because different contributing files
// may have used different extraction paths.
type OCRIndicator string

const (
	OCRNotApplicable OCRIndicator = "not_applicable"
	OCRNoSignal      OCRIndicator = "no_signal"
	OCRAll           OCRIndicator = "all"
	OCRNone          OCRIndicator = "none"
	OCRMixed         OCRIndicator = "mixed"
)

// Key identifies an aggregation group: candidates with the same type and
// normalized value merge into one aggregated candidate.
type Key struct {
	Type  Type   `json:"type"`
	Value string `json:"value"`
}

// NormalizeValue produces the identity form of a candidate value: NFKC
// normalization plus case folding unless preserveCase is set.
func NormalizeValue(value string, preserveCase bool) string {
	v := norm.NFKC.String(strings.TrimSpace(value))
	if !preserveCase {
		v = strings.ToLower(v)
	}
	return v
}

// Aggregated is the deduplicated view over all Raw candidates sharing a Key
// within one scan's result set.
type Aggregated struct {
	Key         Key          `json:"key"`
	Value       string       `json:"value"`
	ElementHint ElementHint  `json:"element_hint"`
	Score       *float64     `json:"score,omitempty"`
	Confidence  float64      `json:"confidence"`
	Frequency   int          `json:"frequency"`
	Files       []string     `json:"files"`
	Modules     []string     `json:"modules,omitempty"`
	OCR         OCRIndicator `json:"ocr"`
	Category    string       `json:"category,omitempty"`
	Evidence    []Snippet    `json:"evidence,omitempty"`
}
