package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// SanitizeValues validates and repairs a raw values payload against the
// declared field set before anything else trusts it.
//
// Enforced contract: the payload is a single JSON object; properties outside
// the declared keys are rejected (not dropped) to surface backend drift;
// missing declared keys are filled with the null sentinel since absence is a
// legitimate "not found" signal; coercion is attempted only for values that
// are unambiguously stringifiable (numbers, booleans).
func SanitizeValues(raw []byte, fields []schema.Field, nullSentinel string, logger *slog.Logger) ([]schema.FieldValue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrSchemaViolation, err)
	}

	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.Key] = struct{}{}
	}
	for key := range payload {
		if _, ok := declared[key]; !ok {
			return nil, fmt.Errorf("%w: undeclared property %q", ErrSchemaViolation, key)
		}
	}

	out := make([]schema.FieldValue, 0, len(fields))
	filled := 0
	for _, f := range fields {
		rawValue, ok := payload[f.Key]
		if !ok {
			out = append(out, schema.FieldValue{Key: f.Key, Value: nullSentinel})
			filled++
			continue
		}
		fv, err := coerceFieldValue(f.Key, rawValue, nullSentinel)
		if err != nil {
			return nil, err
		}
		out = append(out, fv)
	}

	if filled > 0 {
		logger.Debug("llm.sanitize.missing_keys_filled", "count", filled)
	}
	return out, nil
}

// coerceFieldValue accepts either a bare scalar or a {value, page, confidence}
// object for one key.
func coerceFieldValue(key string, raw json.RawMessage, nullSentinel string) (schema.FieldValue, error) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return schema.FieldValue{}, fmt.Errorf("%w: key %q: %v", ErrSchemaViolation, key, err)
	}

	fv := schema.FieldValue{Key: key}
	switch v := node.(type) {
	case nil:
		fv.Value = nullSentinel
		return fv, nil
	case string, float64, bool:
		fv.Value = stringifyScalar(v, nullSentinel)
		return fv, nil
	case map[string]any:
		inner, ok := v["value"]
		if !ok {
			return schema.FieldValue{}, fmt.Errorf("%w: key %q: object without value", ErrSchemaViolation, key)
		}
		switch iv := inner.(type) {
		case nil:
			fv.Value = nullSentinel
		case string, float64, bool:
			fv.Value = stringifyScalar(iv, nullSentinel)
		default:
			return schema.FieldValue{}, fmt.Errorf("%w: key %q: value not stringifiable", ErrSchemaViolation, key)
		}
		if page, ok := v["page"].(float64); ok && page >= 1 {
			fv.Page = int(page)
		}
		if conf, ok := v["confidence"].(string); ok {
			fv.Confidence = parseConfidence(conf)
		}
		return fv, nil
	default:
		return schema.FieldValue{}, fmt.Errorf("%w: key %q: value not stringifiable", ErrSchemaViolation, key)
	}
}

func stringifyScalar(v any, nullSentinel string) string {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nullSentinel
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return nullSentinel
	}
}

func parseConfidence(raw string) schema.Confidence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return schema.ConfidenceLow
	case "medium":
		return schema.ConfidenceMedium
	case "high":
		return schema.ConfidenceHigh
	default:
		return ""
	}
}

// wireField is the schema-inference field shape on the wire.
type wireField struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Page         *int    `json:"page"`
	Kind         *string `json:"kind"`
	SemanticType *string `json:"semantic_type"`
	Value        any     `json:"value"`
	Confidence   *string `json:"confidence"`
}

type wireSchemaResponse struct {
	Name   string      `json:"name"`
	Fields []wireField `json:"fields"`
}

// SanitizeSchemaFields validates a pass-1 response against the field-list
// meta-schema and converts it. Duplicate keys (case-insensitive) keep the
// first occurrence; the collision is a logged anomaly, not a failure.
func SanitizeSchemaFields(raw []byte, logger *slog.Logger) (string, []schema.Field, error) {
	name, fields, _, err := sanitizeSchemaResponse(raw, BuildSchemaInferenceSchema(), "", logger)
	return name, fields, err
}

// SanitizeOnePass validates a combined schema-and-values response and splits
// it into the inferred fields and their values.
func SanitizeOnePass(raw []byte, nullSentinel string, logger *slog.Logger) (string, []schema.Field, []schema.FieldValue, error) {
	return sanitizeSchemaResponse(raw, BuildOnePassSchema(), nullSentinel, logger)
}

func sanitizeSchemaResponse(
	raw []byte,
	metaSchema map[string]any,
	nullSentinel string,
	logger *slog.Logger,
) (string, []schema.Field, []schema.FieldValue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateJSONAgainstSchema(metaSchema, raw); err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	var resp wireSchemaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	seen := make(map[string]struct{}, len(resp.Fields))
	fields := make([]schema.Field, 0, len(resp.Fields))
	var values []schema.FieldValue
	for _, wf := range resp.Fields {
		key := strings.TrimSpace(wf.Key)
		if key == "" {
			continue
		}
		folded := strings.ToLower(key)
		if _, dup := seen[folded]; dup {
			logger.Warn("llm.sanitize.duplicate_key", "key", key)
			continue
		}
		seen[folded] = struct{}{}

		field := schema.Field{Key: key, Label: wf.Label, Kind: schema.KindUnknown}
		if field.Label == "" {
			field.Label = key
		}
		if wf.Page != nil && *wf.Page >= 1 {
			field.Page = *wf.Page
		}
		if wf.Kind != nil {
			field.Kind = parseFieldKind(*wf.Kind)
		}
		if wf.SemanticType != nil {
			field.SemanticType = schema.SemanticType(strings.ToLower(strings.TrimSpace(*wf.SemanticType)))
		}
		fields = append(fields, field)

		if nullSentinel != "" {
			fv := schema.FieldValue{Key: key, Value: stringifyScalar(wf.Value, nullSentinel), Page: field.Page}
			if wf.Value == nil {
				fv.Value = nullSentinel
			}
			if wf.Confidence != nil {
				fv.Confidence = parseConfidence(*wf.Confidence)
			}
			values = append(values, fv)
		}
	}
	return strings.TrimSpace(resp.Name), fields, values, nil
}

func parseFieldKind(raw string) schema.FieldKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text", "string":
		return schema.KindText
	case "number", "integer", "decimal":
		return schema.KindNumber
	case "date", "datetime":
		return schema.KindDate
	case "boolean", "checkbox":
		return schema.KindBoolean
	case "enum", "select":
		return schema.KindEnum
	default:
		return schema.KindUnknown
	}
}
