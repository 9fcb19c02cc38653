package llm

import (
	"sort"
	"sync"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// SanitizeJSONSchema rewrites a JSON schema for strict structured-output
// compatibility: every object gains additionalProperties:false and a full
// required list, and defaults next to $ref are stripped.
func SanitizeJSONSchema(raw map[string]any) map[string]any {
	cleaned := deepCopyValue(raw).(map[string]any)
	walkSchema(cleaned)
	return cleaned
}

func walkSchema(node any) {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := n["properties"].(map[string]any); ok {
			if _, hasType := n["type"]; !hasType {
				n["type"] = "object"
			}
			required := make([]string, 0, len(props))
			for key := range props {
				required = append(required, key)
			}
			sort.Strings(required)
			n["required"] = required
			n["additionalProperties"] = false
		}
		if _, hasRef := n["$ref"]; hasRef {
			delete(n, "default")
		}
		for _, v := range n {
			walkSchema(v)
		}
	case []any:
		for _, item := range n {
			walkSchema(item)
		}
	}
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopyValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopyValue(vv)
		}
		return out
	default:
		return t
	}
}

// fieldValueProp is the per-key value object accepted from the backend.
func fieldValueProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"value", "page", "confidence"},
		"properties": map[string]any{
			"value":      map[string]any{"type": []any{"string", "number", "boolean", "null"}},
			"page":       map[string]any{"type": []any{"integer", "null"}},
			"confidence": map[string]any{"type": []any{"string", "null"}},
		},
	}
}

// BuildValuesSchema returns the strict response schema for a values call:
// one object whose properties are exactly the given field keys.
func BuildValuesSchema(fields []schema.Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Key] = fieldValueProp()
	}
	return SanitizeJSONSchema(map[string]any{
		"type":       "object",
		"properties": props,
	})
}

// schemaFieldProp describes one field entry in the schema-inference response.
func schemaFieldProp(withValue bool) map[string]any {
	props := map[string]any{
		"key":           map[string]any{"type": "string", "minLength": 1},
		"label":         map[string]any{"type": "string"},
		"page":          map[string]any{"type": []any{"integer", "null"}},
		"kind":          map[string]any{"type": []any{"string", "null"}},
		"semantic_type": map[string]any{"type": []any{"string", "null"}},
	}
	if withValue {
		props["value"] = map[string]any{"type": []any{"string", "number", "boolean", "null"}}
		props["confidence"] = map[string]any{"type": []any{"string", "null"}}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// BuildSchemaInferenceSchema returns the meta-schema for pass 1: the shape
// being validated is a list of fields, not the end-user schema.
func BuildSchemaInferenceSchema() map[string]any {
	return SanitizeJSONSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":   map[string]any{"type": "string"},
			"fields": map[string]any{"type": "array", "items": schemaFieldProp(false)},
		},
	})
}

// BuildOnePassSchema returns the response schema for the combined
// schema-and-values call.
func BuildOnePassSchema() map[string]any {
	return SanitizeJSONSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":   map[string]any{"type": "string"},
			"fields": map[string]any{"type": "array", "items": schemaFieldProp(true)},
		},
	})
}

// valuesSchemaCache reuses the rewritten per-spec schema across calls.
type valuesSchemaCache struct {
	mu     sync.Mutex
	bySpec map[string]map[string]any
}

func (c *valuesSchemaCache) forSpec(spec *schema.Spec) map[string]any {
	key := spec.Fingerprint + "/" + spec.ID
	if key == "/" {
		// Runtime spec without identity (one-pass); nothing to key on.
		return BuildValuesSchema(spec.Fields)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bySpec == nil {
		c.bySpec = make(map[string]map[string]any)
	}
	if cached, ok := c.bySpec[key]; ok {
		return cached
	}
	built := BuildValuesSchema(spec.Fields)
	c.bySpec[key] = built
	return built
}

// filterValuesSchema restricts a full per-spec values schema to a key subset
// without rebuilding it.
func filterValuesSchema(full map[string]any, keys []string) map[string]any {
	props, _ := full["properties"].(map[string]any)
	subset := make(map[string]any, len(keys))
	for _, key := range keys {
		if p, ok := props[key]; ok {
			subset[key] = p
		}
	}
	filtered := deepCopyValue(full).(map[string]any)
	filtered["properties"] = subset
	required := make([]string, 0, len(subset))
	for key := range subset {
		required = append(required, key)
	}
	sort.Strings(required)
	filtered["required"] = required
	return filtered
}
