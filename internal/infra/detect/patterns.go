// Package detect generates raw sensitive-information candidates from
// extracted text.
package detect

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PatternDef is one detection pattern as declared in a pattern file.
type PatternDef struct {
	Name       string  `yaml:"name"`
	Regex      string  `yaml:"regex"`
	Confidence float64 `yaml:"confidence"`
	Category   string  `yaml:"category,omitempty"`
}

// Pattern is a compiled detection pattern.
type Pattern struct {
	Name       string
	Re         *regexp.Regexp
	Confidence float64
	Category   string
}

// defaultPatternDefs is the built-in pattern set used when no pattern file is
// configured.
var defaultPatternDefs = []PatternDef{
	{
		Name:       "EMAIL",
		Regex:      `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
		Confidence: 0.9,
	},
	{
		Name:       "CREDIT_CARD",
		Regex:      `\b(?:\d{4}[ \-]?){3}\d{4}\b`,
		Confidence: 0.8,
		Category:   "financial",
	},
	{
		Name:       "SSN",
		Regex:      `\b\d{3}-\d{2}-\d{4}\b`,
		Confidence: 0.95,
		Category:   "pii",
	},
	{
		Name:       "IP_ADDRESS",
		Regex:      `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		Confidence: 0.7,
	},
}

// DefaultPatterns compiles the built-in pattern set.
func DefaultPatterns() []Pattern {
	patterns, err := compilePatterns(defaultPatternDefs)
	if err != nil {
		// The built-in set is static; a compile failure is a programming
		// error.
		panic(err)
	}
	return patterns
}

// LoadPatterns reads pattern definitions from a YAML file. An empty path
// returns the built-in set.
func LoadPatterns(path string) ([]Pattern, error) {
	if path == "" {
		return DefaultPatterns(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}

	var doc struct {
		Patterns []PatternDef `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse patterns file: %w", err)
	}
	if len(doc.Patterns) == 0 {
		return nil, fmt.Errorf("patterns file %s defines no patterns", path)
	}
	return compilePatterns(doc.Patterns)
}

func compilePatterns(defs []PatternDef) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("pattern with empty name")
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", def.Name, err)
		}
		if def.Confidence <= 0 || def.Confidence > 1 {
			return nil, fmt.Errorf("pattern %s: confidence %v out of range (0,1]", def.Name, def.Confidence)
		}
		patterns = append(patterns, Pattern{
			Name:       def.Name,
			Re:         re,
			Confidence: def.Confidence,
			Category:   def.Category,
		})
	}
	return patterns, nil
}
