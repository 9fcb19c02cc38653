package extract

import (
	"strings"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// hasEvidence reports whether a value carries actual extracted content
// (neither blank nor the sentinel).
func hasEvidence(value, nullSentinel string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed != "" && trimmed != nullSentinel
}

// selectBetter picks between the currently merged value and a candidate.
// Non-blank beats blank; otherwise higher confidence rank wins; otherwise
// the first seen wins. Candidates arrive in logical chunk order, so the
// overall rule is first-non-sentinel-wins refined by confidence.
func selectBetter(current *schema.FieldValue, candidate schema.FieldValue, nullSentinel string) schema.FieldValue {
	if current == nil {
		return candidate
	}
	currentEvidence := hasEvidence(current.Value, nullSentinel)
	candidateEvidence := hasEvidence(candidate.Value, nullSentinel)
	if !currentEvidence && candidateEvidence {
		return candidate
	}
	if currentEvidence && !candidateEvidence {
		return *current
	}
	if candidate.Confidence.Rank() > current.Confidence.Rank() {
		return candidate
	}
	return *current
}

// mergeValues folds value batches into a per-key selection. Batches must be
// passed in logical chunk order so the result is deterministic regardless of
// call completion order.
func mergeValues(batches [][]schema.FieldValue, nullSentinel string) map[string]schema.FieldValue {
	byKey := make(map[string]schema.FieldValue)
	for _, batch := range batches {
		for _, value := range batch {
			if current, ok := byKey[value.Key]; ok {
				byKey[value.Key] = selectBetter(&current, value, nullSentinel)
			} else {
				byKey[value.Key] = value
			}
		}
	}
	return byKey
}

// assembleFields produces the final ordered field list and flat mapping:
// every spec key exactly once, sentinel substituted where no evidence was
// found, typed normalization applied to the rest.
func assembleFields(spec *schema.Spec, byKey map[string]schema.FieldValue, nullSentinel string) ([]schema.FieldValue, map[string]string) {
	fields := make([]schema.FieldValue, 0, len(spec.Fields))
	flat := make(map[string]string, len(spec.Fields))

	for _, sf := range spec.Fields {
		value, ok := byKey[sf.Key]
		if !ok || !hasEvidence(value.Value, nullSentinel) {
			out := schema.FieldValue{Key: sf.Key, Value: nullSentinel, Page: sf.Page}
			if ok && value.Page > 0 {
				out.Page = value.Page
			}
			fields = append(fields, out)
			flat[sf.Key] = nullSentinel
			continue
		}
		value.Value = schema.NormalizeTypedValue(value.Value, sf, nullSentinel)
		if value.Page == 0 {
			value.Page = sf.Page
		}
		fields = append(fields, value)
		flat[value.Key] = value.Value
	}
	return fields, flat
}
