// Package extract orchestrates multi-stage inference: page preprocessing,
// schema inference (pass 1), value extraction (pass 2), schema caching and
// pricing aggregation.
package extract

import (
	"fmt"

	"github.com/Guillaume-Lombardo/extractforms/internal/pricing"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// PassMode selects how schema inference and value extraction are combined.
type PassMode string

const (
	// OnePass infers schema and values in a single combined call.
	OnePass PassMode = "one_pass"
	// TwoPass infers a schema first, then extracts values against it.
	TwoPass PassMode = "two_pass"
	// OneSchemaPass uses an externally supplied schema and only runs the
	// values pass.
	OneSchemaPass PassMode = "one_schema_pass"
)

// ParsePassMode maps the CLI --passes flag to a PassMode.
func ParsePassMode(passes int) (PassMode, error) {
	switch passes {
	case 1:
		return OnePass, nil
	case 2:
		return TwoPass, nil
	default:
		return "", fmt.Errorf("unsupported pass count: %d", passes)
	}
}

// Request describes one extraction request.
type Request struct {
	InputPath  string
	OutputPath string
	Mode       PassMode
	Backend    BackendKind // empty = settings default

	NoCache     bool
	MatchSchema bool

	DPI         int
	ImageFormat string
	PageStart   int
	PageEnd     int
	MaxPages    int
	ChunkPages  int

	// KeepBlankPages disables blank-page filtering for this request.
	KeepBlankPages bool

	SchemaID   string
	SchemaPath string

	ExtraInstructions string
}

// ResultMetadata carries per-request diagnostics attached to the persisted
// result.
type ResultMetadata struct {
	Backend        string `json:"backend"`
	Mode           string `json:"mode"`
	PagesProcessed int    `json:"pages_processed"`
	ModelCalls     int    `json:"model_calls"`
	DurationMS     int64  `json:"duration_ms"`
	CacheHit       bool   `json:"cache_hit"`
	// Degraded is set when a chunk exhausted its retries and its fields
	// were filled with the sentinel.
	Degraded bool `json:"degraded,omitempty"`
}

// Result is the final extraction output. Every schema field key appears
// exactly once in Fields and Flat; unresolved keys carry the sentinel.
type Result struct {
	Fields            []schema.FieldValue `json:"fields"`
	Flat              map[string]string   `json:"flat"`
	SchemaFieldsCount int                 `json:"schema_fields_count"`
	Pricing           *pricing.Call       `json:"pricing,omitempty"`
	Metadata          ResultMetadata      `json:"metadata"`
}
