package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrFloat(f float64) *float64 { return &f }
func ptrBool(b bool) *bool        { return &b }

func ssnPool() []Raw {
	// The same SSN seen in two files with different scores, frequencies and
	// extraction paths.
	return []Raw{
		{
			Type: TypePattern, ElementHint: HintRegex, Value: "123-45-6789",
			Frequency: 2, Confidence: 0.95, Score: ptrFloat(90),
			FileName: "hr/payroll.txt", Module: "text-reader", OCRPerformed: ptrBool(false),
			Evidence: []Snippet{{Context: "ssn: 123-45-6789", Position: 5}},
		},
		{
			Type: TypePattern, ElementHint: HintRegex, Value: "123-45-6789",
			Frequency: 1, Confidence: 0.95, Score: ptrFloat(74),
			FileName: "scans/badge.png", Module: "ocr-image", OCRPerformed: ptrBool(true),
			Evidence: []Snippet{{Context: "id 123-45-6789 on badge", Position: 3}},
		},
	}
}

func TestAggregateMerge(t *testing.T) {
	out := Aggregate(ssnPool(), AggregateOptions{DefaultCategory: "pii"})
	require.Len(t, out, 1)

	agg := out[0]
	assert.Equal(t, TypePattern, agg.Key.Type)
	assert.Equal(t, "123-45-6789", agg.Key.Value)
	require.NotNil(t, agg.Score)
	assert.Equal(t, float64(90), *agg.Score)
	assert.Equal(t, 3, agg.Frequency)
	assert.Equal(t, []string{"hr/payroll.txt", "scans/badge.png"}, agg.Files)
	assert.Equal(t, []string{"text-reader", "ocr-image"}, agg.Modules)
	assert.Equal(t, OCRMixed, agg.OCR)
	assert.Equal(t, "pii", agg.Category)
	assert.Len(t, agg.Evidence, 2)
}

func TestAggregateOCRIndicator(t *testing.T) {
	tests := []struct {
		name string
		ocr  []*bool
		want OCRIndicator
	}{
		{"all ocr", []*bool{ptrBool(true), ptrBool(true)}, OCRAll},
		{"none ocr", []*bool{ptrBool(false), ptrBool(false)}, OCRNone},
		{"mixed", []*bool{ptrBool(true), ptrBool(false)}, OCRMixed},
		{"no signal", []*bool{nil, nil}, OCRNoSignal},
		{"partial signal keeps known side", []*bool{nil, ptrBool(true)}, OCRAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := make([]Raw, 0, len(tt.ocr))
			for i, o := range tt.ocr {
				pool = append(pool, Raw{
					Type: TypePattern, Value: "v", Frequency: 1,
					FileName: "f" + string(rune('0'+i)), OCRPerformed: o,
				})
			}
			out := Aggregate(pool, AggregateOptions{})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].OCR)
		})
	}

	t.Run("bridged backend overrides to not applicable", func(t *testing.T) {
		out := Aggregate(ssnPool(), AggregateOptions{BridgedBackend: true})
		require.Len(t, out, 1)
		assert.Equal(t, OCRNotApplicable, out[0].OCR)
	})
}

func TestAggregateNormalization(t *testing.T) {
	pool := []Raw{
		{Type: TypeKeyword, Value: "Invoice", Frequency: 1, FileName: "a"},
		{Type: TypeKeyword, Value: "invoice", Frequency: 2, FileName: "b"},
	}

	t.Run("case folds by default", func(t *testing.T) {
		out := Aggregate(pool, AggregateOptions{})
		require.Len(t, out, 1)
		assert.Equal(t, 3, out[0].Frequency)
		// Representative value is the first seen spelling.
		assert.Equal(t, "Invoice", out[0].Value)
	})

	t.Run("preserve case keeps groups apart", func(t *testing.T) {
		out := Aggregate(pool, AggregateOptions{PreserveCase: true})
		assert.Len(t, out, 2)
	})

	t.Run("same value different type stays apart", func(t *testing.T) {
		mixed := []Raw{
			{Type: TypePattern, Value: "alpha", Frequency: 1, FileName: "a"},
			{Type: TypeKeyword, Value: "alpha", Frequency: 1, FileName: "a"},
		}
		out := Aggregate(mixed, AggregateOptions{})
		assert.Len(t, out, 2)
	})
}

func TestAggregateOrdering(t *testing.T) {
	pool := []Raw{
		{Type: TypeKeyword, Value: "unscored", Frequency: 1, FileName: "a"},
		{Type: TypePattern, Value: "low", Frequency: 1, Score: ptrFloat(10), FileName: "a"},
		{Type: TypePattern, Value: "high", Frequency: 1, Score: ptrFloat(95), FileName: "a"},
		{Type: TypeKeyword, Value: "also-unscored", Frequency: 1, FileName: "a"},
	}
	out := Aggregate(pool, AggregateOptions{})
	require.Len(t, out, 4)

	assert.Equal(t, "high", out[0].Value)
	assert.Equal(t, "low", out[1].Value)
	// Nil scores sort strictly last, keeping first-seen order among themselves.
	assert.Equal(t, "unscored", out[2].Value)
	assert.Equal(t, "also-unscored", out[3].Value)
}

func TestAggregateIdempotence(t *testing.T) {
	pool := ssnPool()
	first := Aggregate(pool, AggregateOptions{DefaultCategory: "pii"})
	second := Aggregate(pool, AggregateOptions{DefaultCategory: "pii"})
	assert.Equal(t, first, second)
}

func TestAggregateSupersetMonotonicity(t *testing.T) {
	// Aggregating a superset never loses groups and never lowers a group's
	// score or frequency.
	base := ssnPool()
	superset := append(append([]Raw(nil), base...), Raw{
		Type: TypePattern, Value: "a@b.com", Frequency: 1,
		Score: ptrFloat(50), FileName: "mail.txt",
	})

	before := Aggregate(base, AggregateOptions{})
	after := Aggregate(superset, AggregateOptions{})

	require.Len(t, before, 1)
	require.Len(t, after, 2)
	for _, agg := range after {
		if agg.Key == before[0].Key {
			assert.GreaterOrEqual(t, *agg.Score, *before[0].Score)
			assert.GreaterOrEqual(t, agg.Frequency, before[0].Frequency)
		}
	}
}

func TestAggregateEmptyPool(t *testing.T) {
	out := Aggregate(nil, AggregateOptions{})
	assert.Empty(t, out)
}

func TestNormalizeValue(t *testing.T) {
	// NFKC folds compatibility forms (fullwidth digits, ligatures).
	assert.Equal(t, "abc123", NormalizeValue(" ABC１２３ ", false))
	assert.Equal(t, "ABC123", NormalizeValue("ABC１２３", true))
}
