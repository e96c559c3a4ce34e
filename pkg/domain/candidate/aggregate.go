package candidate

import "sort"

// AggregateOptions controls how a raw pool is merged.
type AggregateOptions struct {
	// BridgedBackend marks results produced by the bridged backend, whose
	// extraction path carries no OCR signal. All groups report OCR as
	// not-applicable regardless of raw flags.
	BridgedBackend bool

	// DefaultCategory is applied to groups where no member carries a
	// category label.
	DefaultCategory string

	// PreserveCase keeps value casing significant in the identity key.
	PreserveCase bool
}

// Aggregate merges a raw candidate pool into one deduplicated, ranked result
// set. It is a pure function of the full pool: always safe to recompute,
// never patched incrementally, so the merge stays consistent with the raw
// data currently known even when candidates arrive out of order.
func Aggregate(pool []Raw, opts AggregateOptions) []Aggregated {
	groups := make(map[Key]*Aggregated, len(pool))
	order := make([]Key, 0, len(pool))

	for i := range pool {
		raw := &pool[i]
		key := Key{Type: raw.Type, Value: NormalizeValue(raw.Value, opts.PreserveCase)}

		agg, ok := groups[key]
		if !ok {
			agg = &Aggregated{
				Key:         key,
				Value:       raw.Value,
				ElementHint: raw.ElementHint,
			}
			groups[key] = agg
			order = append(order, key)
		}

		mergeRaw(agg, raw)
	}

	out := make([]Aggregated, 0, len(order))
	for _, key := range order {
		agg := groups[key]
		finalizeOCR(agg, opts.BridgedBackend)
		if agg.Category == "" {
			agg.Category = opts.DefaultCategory
		}
		out = append(out, *agg)
	}

	// Descending by score; candidates without a score sort strictly after
	// any concrete score. Stable so equal scores keep first-seen order.
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score, out[j].Score
		switch {
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return *si > *sj
		}
	})

	return out
}

func mergeRaw(agg *Aggregated, raw *Raw) {
	if raw.Score != nil && (agg.Score == nil || *raw.Score > *agg.Score) {
		score := *raw.Score
		agg.Score = &score
	}
	if raw.Confidence > agg.Confidence {
		agg.Confidence = raw.Confidence
	}
	agg.Frequency += raw.Frequency

	if raw.FileName != "" && !contains(agg.Files, raw.FileName) {
		agg.Files = append(agg.Files, raw.FileName)
	}
	if raw.Module != "" && !contains(agg.Modules, raw.Module) {
		agg.Modules = append(agg.Modules, raw.Module)
	}
	if agg.Category == "" && raw.Category != "" {
		agg.Category = raw.Category
	}
	agg.Evidence = append(agg.Evidence, raw.Evidence...)

	// OCR tri-state fold; finalized once the group is complete.
	if raw.OCRPerformed != nil {
		switch agg.OCR {
		case "":
			if *raw.OCRPerformed {
				agg.OCR = OCRAll
			} else {
				agg.OCR = OCRNone
			}
		case OCRAll:
			if !*raw.OCRPerformed {
				agg.OCR = OCRMixed
			}
		case OCRNone:
			if *raw.OCRPerformed {
				agg.OCR = OCRMixed
			}
		}
	}
}

func finalizeOCR(agg *Aggregated, bridged bool) {
	if bridged {
		agg.OCR = OCRNotApplicable
		return
	}
	if agg.OCR == "" {
		agg.OCR = OCRNoSignal
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
