// Package schema defines the document schema model shared by inference,
// extraction and the cache.
package schema

import "strings"

// FieldKind is the primitive shape of a schema field.
type FieldKind string

const (
	KindText    FieldKind = "text"
	KindNumber  FieldKind = "number"
	KindDate    FieldKind = "date"
	KindBoolean FieldKind = "boolean"
	KindEnum    FieldKind = "enum"
	KindUnknown FieldKind = "unknown"
)

// SemanticType refines a field kind with domain meaning (phone, IBAN, ...).
type SemanticType string

const (
	SemanticPhone      SemanticType = "phone"
	SemanticAddress    SemanticType = "address"
	SemanticAmount     SemanticType = "amount"
	SemanticPercentage SemanticType = "percentage"
	SemanticEmail      SemanticType = "email"
	SemanticIBAN       SemanticType = "iban"
	SemanticPostalCode SemanticType = "postal_code"
)

// Confidence is the level reported for a single extracted value.
// The empty string means unknown and is omitted from JSON.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank returns a comparable rank where higher is more confident.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// Field is a single schema field definition. Key is the stable identifier
// used as the output map key; Page is a 1-based logical page hint (0 = none).
type Field struct {
	Key          string       `json:"key"`
	Label        string       `json:"label"`
	Page         int          `json:"page,omitempty"`
	Kind         FieldKind    `json:"kind,omitempty"`
	SemanticType SemanticType `json:"semantic_type,omitempty"`
	Pattern      string       `json:"pattern,omitempty"`
	Options      []string     `json:"options,omitempty"`
}

// Spec describes an input form. Immutable once cached; a new fingerprint
// always yields a new spec.
type Spec struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Fingerprint string  `json:"fingerprint"`
	Version     int     `json:"version"`
	Fields      []Field `json:"fields"`
}

// Keys returns the field keys in declaration order.
func (s *Spec) Keys() []string {
	keys := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// FieldByKey returns the field with the given key, or nil.
func (s *Spec) FieldByKey(key string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			return &s.Fields[i]
		}
	}
	return nil
}

// Labels returns the case-folded field labels, used for heuristic matching.
func (s *Spec) Labels() []string {
	labels := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		labels = append(labels, strings.ToLower(strings.TrimSpace(f.Label)))
	}
	return labels
}

// MaxPage returns the highest page hint declared by any field (0 if none).
func (s *Spec) MaxPage() int {
	max := 0
	for _, f := range s.Fields {
		if f.Page > max {
			max = f.Page
		}
	}
	return max
}

// FieldValue is one extracted value. Page is the logical page the value was
// found on (0 = unknown).
type FieldValue struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Page       int        `json:"page,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// MatchStrategy identifies how a schema match was established.
type MatchStrategy string

const (
	MatchByFingerprint MatchStrategy = "fingerprint"
	MatchByHeuristic   MatchStrategy = "heuristic"
	MatchNone          MatchStrategy = "none"
)

// MatchResult is the outcome of matching a document against the schema store.
type MatchResult struct {
	Matched  bool          `json:"matched"`
	SchemaID string        `json:"schema_id,omitempty"`
	Score    float64       `json:"score,omitempty"`
	Strategy MatchStrategy `json:"strategy"`
}
