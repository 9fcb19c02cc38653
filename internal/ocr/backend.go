// Package ocr implements the OCR extraction backend: line-based key/value
// parsing over provider-supplied OCR payloads. The provider itself (e.g. a
// Document Intelligence client) stays behind the PageProvider interface.
package ocr

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/pricing"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// ErrProviderNotConfigured is returned when the OCR backend is selected but
// no page provider bridge was supplied.
var ErrProviderNotConfigured = errors.New("ocr backend requires a page provider")

// PageText is the OCR payload for one logical page.
type PageText struct {
	Page  int
	Lines []string
}

// PageProvider bridges to an external OCR service.
type PageProvider interface {
	ExtractPages(ctx context.Context, pgs []pages.Page) ([]PageText, error)
}

// Backend extracts fields from "key: value" OCR lines. It reports no pricing.
type Backend struct {
	provider     PageProvider
	nullSentinel string
	logger       *slog.Logger
}

// NewBackend builds an OCR backend around a page provider.
func NewBackend(provider PageProvider, nullSentinel string, logger *slog.Logger) *Backend {
	if nullSentinel == "" {
		nullSentinel = "NULL"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{provider: provider, nullSentinel: nullSentinel, logger: logger}
}

// InferSchema derives fields from recurring "key: value" lines.
func (b *Backend) InferSchema(ctx context.Context, pgs []pages.Page, _ string) (schema.Spec, *pricing.Call, error) {
	ocrPages, err := b.ocrPages(ctx, pgs)
	if err != nil {
		return schema.Spec{}, nil, err
	}

	seen := make(map[string]struct{})
	var fields []schema.Field
	for _, pt := range ocrPages {
		for _, line := range pt.Lines {
			key, _ := parseKeyValueLine(line)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			fields = append(fields, schema.Field{
				Key:   key,
				Label: labelForKey(key),
				Page:  pt.Page,
				Kind:  schema.KindUnknown,
			})
		}
	}

	b.logger.Info("ocr.infer_schema.ok", "fields", len(fields), "pages", len(pgs))
	return schema.Spec{Name: "ocr-inferred", Version: 1, Fields: fields}, nil, nil
}

// ExtractValues matches requested keys against parsed OCR lines. The first
// match per key wins, in page order.
func (b *Backend) ExtractValues(
	ctx context.Context,
	_ *schema.Spec,
	fields []schema.Field,
	pgs []pages.Page,
	_ string,
) ([]schema.FieldValue, *pricing.Call, error) {
	if len(fields) == 0 {
		return nil, nil, nil
	}
	ocrPages, err := b.ocrPages(ctx, pgs)
	if err != nil {
		return nil, nil, err
	}

	requested := make(map[string]string, len(fields))
	for _, f := range fields {
		requested[strings.ToLower(strings.TrimSpace(f.Key))] = f.Key
	}

	found := make(map[string]struct{}, len(fields))
	var values []schema.FieldValue
	for _, pt := range ocrPages {
		for _, line := range pt.Lines {
			parsedKey, parsedValue := parseKeyValueLine(line)
			if parsedKey == "" {
				continue
			}
			key, ok := requested[parsedKey]
			if !ok {
				continue
			}
			if _, dup := found[key]; dup {
				continue
			}
			found[key] = struct{}{}
			value := strings.TrimSpace(parsedValue)
			if value == "" {
				value = b.nullSentinel
			}
			values = append(values, schema.FieldValue{
				Key:        key,
				Value:      value,
				Page:       pt.Page,
				Confidence: schema.ConfidenceMedium,
			})
		}
	}
	return values, nil, nil
}

// InferAndExtract runs both stages locally; for OCR there is no combined
// call to save.
func (b *Backend) InferAndExtract(ctx context.Context, pgs []pages.Page, extraInstructions string) (schema.Spec, []schema.FieldValue, *pricing.Call, error) {
	spec, _, err := b.InferSchema(ctx, pgs, extraInstructions)
	if err != nil {
		return schema.Spec{}, nil, nil, err
	}
	values, _, err := b.ExtractValues(ctx, &spec, spec.Fields, pgs, extraInstructions)
	if err != nil {
		return schema.Spec{}, nil, nil, err
	}
	return spec, values, nil, nil
}

func (b *Backend) ocrPages(ctx context.Context, pgs []pages.Page) ([]PageText, error) {
	if b.provider == nil {
		return nil, ErrProviderNotConfigured
	}
	return b.provider.ExtractPages(ctx, pgs)
}

var keyCleanup = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// parseKeyValueLine splits one OCR line on the first colon and returns a
// normalized snake_case key plus the raw value.
func parseKeyValueLine(line string) (string, string) {
	left, right, ok := strings.Cut(line, ":")
	if !ok {
		return "", ""
	}
	key := normalizeKey(left)
	if key == "" {
		return "", ""
	}
	return key, right
}

func normalizeKey(raw string) string {
	return strings.Trim(keyCleanup.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "_"), "_")
}

func labelForKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
