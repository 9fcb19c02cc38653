package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guillaume-Lombardo/extractforms/internal/config"
	"github.com/Guillaume-Lombardo/extractforms/internal/llm"
	"github.com/Guillaume-Lombardo/extractforms/internal/ocr"
	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/pricing"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// Backend is the capability interface the orchestrator depends on. Swapping
// the extraction strategy (multimodal vs. OCR) never touches orchestration.
type Backend interface {
	// InferSchema proposes field keys/labels/kinds/pages from the logical
	// page sequence. The returned spec carries no identity yet.
	InferSchema(ctx context.Context, pgs []pages.Page, extraInstructions string) (schema.Spec, *pricing.Call, error)
	// ExtractValues extracts values for a key subset of spec from the given
	// pages.
	ExtractValues(ctx context.Context, spec *schema.Spec, fields []schema.Field, pgs []pages.Page, extraInstructions string) ([]schema.FieldValue, *pricing.Call, error)
	// InferAndExtract runs the one-pass combined call.
	InferAndExtract(ctx context.Context, pgs []pages.Page, extraInstructions string) (schema.Spec, []schema.FieldValue, *pricing.Call, error)
}

// BackendKind is the tagged backend selection.
type BackendKind string

const (
	BackendMultimodal BackendKind = "multimodal"
	BackendOCR        BackendKind = "ocr"
)

// ParseBackendKind validates a backend name.
func ParseBackendKind(raw string) (BackendKind, error) {
	switch BackendKind(raw) {
	case BackendMultimodal, BackendOCR:
		return BackendKind(raw), nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unsupported backend: %q", raw)
	}
}

// BuildBackend constructs the backend selected by request override or
// settings default. The OCR provider may be nil; the OCR backend then fails
// on first use with its own configuration error.
func BuildBackend(kind BackendKind, settings *config.Settings, provider ocr.PageProvider, logger *slog.Logger) (Backend, BackendKind, error) {
	if kind == "" {
		kind = BackendKind(settings.Backend)
	}
	switch kind {
	case BackendMultimodal:
		client := llm.NewClient(llm.Config{
			BaseURL:      settings.OpenAI.BaseURL,
			APIKey:       settings.OpenAI.APIKey,
			Model:        settings.OpenAI.Model,
			Timeout:      settings.OpenAI.Timeout,
			NullSentinel: settings.NullSentinel,
		}, logger)
		return client, kind, nil
	case BackendOCR:
		return ocr.NewBackend(provider, settings.NullSentinel, logger), kind, nil
	default:
		return nil, kind, fmt.Errorf("unsupported backend: %q", kind)
	}
}
