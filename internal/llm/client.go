package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/pricing"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// Config for the OpenAI-compatible multimodal client.
type Config struct {
	BaseURL      string        // default https://api.openai.com/v1
	APIKey       string
	Model        string        // e.g. "gpt-4o-mini"
	Timeout      time.Duration // per-request timeout
	NullSentinel string        // default "NULL"
}

// Client drives schema inference and value extraction over a chat-style
// completion endpoint with strict JSON-schema constrained output.
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	schemas valuesSchemaCache
}

// NewClient builds a client with defaulted config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.NullSentinel == "" {
		cfg.NullSentinel = "NULL"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// InferSchema runs pass 1 against the logical page sequence. The returned
// spec carries no identity; the inference engine assigns id and fingerprint.
func (c *Client) InferSchema(ctx context.Context, pgs []pages.Page, extraInstructions string) (schema.Spec, *pricing.Call, error) {
	if len(pgs) == 0 {
		return schema.Spec{}, nil, fmt.Errorf("infer schema: %w", pages.ErrEmptyDocument)
	}
	reqID := uuid.New().String()
	start := time.Now()

	content := pageContent(BuildSchemaInferencePrompt(extraInstructions), pgs)
	raw, call, err := c.postChatCompletions(ctx, reqID, content, "schema_response", BuildSchemaInferenceSchema())
	if err != nil {
		return schema.Spec{}, call, err
	}

	name, fields, err := SanitizeSchemaFields(raw, c.logger)
	if err != nil {
		c.logger.Error("llm.infer_schema.sanitize_failed", "req_id", reqID, "error", err)
		return schema.Spec{}, call, err
	}

	c.logger.Info("llm.infer_schema.ok",
		"req_id", reqID,
		"fields", len(fields),
		"pages", len(pgs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return schema.Spec{Name: name, Version: 1, Fields: fields}, call, nil
}

// ExtractValues runs one values call for a key subset of the given spec.
// The strict response schema is built once per spec and reused across calls.
func (c *Client) ExtractValues(
	ctx context.Context,
	spec *schema.Spec,
	fields []schema.Field,
	pgs []pages.Page,
	extraInstructions string,
) ([]schema.FieldValue, *pricing.Call, error) {
	if len(pgs) == 0 {
		return nil, nil, fmt.Errorf("extract values: %w", pages.ErrEmptyDocument)
	}
	if len(fields) == 0 {
		return nil, nil, nil
	}
	reqID := uuid.New().String()
	start := time.Now()

	valuesSchema := c.schemas.forSpec(spec)
	if len(fields) != len(spec.Fields) {
		keys := make([]string, 0, len(fields))
		for _, f := range fields {
			keys = append(keys, f.Key)
		}
		valuesSchema = filterValuesSchema(valuesSchema, keys)
	}

	content := pageContent(BuildValuesPrompt(fields, c.cfg.NullSentinel, extraInstructions), pgs)
	raw, call, err := c.postChatCompletions(ctx, reqID, content, "values_response", valuesSchema)
	if err != nil {
		return nil, call, err
	}

	// Strict validation first; the sanitizer is still the authority and can
	// repair coercible drift the validator flags.
	if vErr := ValidateJSONAgainstSchema(valuesSchema, raw); vErr != nil {
		c.logger.Warn("llm.extract_values.strict_validation_failed",
			"req_id", reqID, "error", vErr)
	}
	values, err := SanitizeValues(raw, fields, c.cfg.NullSentinel, c.logger)
	if err != nil {
		c.logger.Error("llm.extract_values.sanitize_failed", "req_id", reqID, "error", err)
		return nil, call, err
	}

	c.logger.Info("llm.extract_values.ok",
		"req_id", reqID,
		"keys", len(fields),
		"pages", len(pgs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return values, call, nil
}

// InferAndExtract runs the combined one-pass call: schema and values from a
// single backend interaction.
func (c *Client) InferAndExtract(ctx context.Context, pgs []pages.Page, extraInstructions string) (schema.Spec, []schema.FieldValue, *pricing.Call, error) {
	if len(pgs) == 0 {
		return schema.Spec{}, nil, nil, fmt.Errorf("one-pass extract: %w", pages.ErrEmptyDocument)
	}
	reqID := uuid.New().String()
	start := time.Now()

	content := pageContent(BuildOnePassPrompt(c.cfg.NullSentinel, extraInstructions), pgs)
	raw, call, err := c.postChatCompletions(ctx, reqID, content, "one_pass_response", BuildOnePassSchema())
	if err != nil {
		return schema.Spec{}, nil, call, err
	}

	name, fields, values, err := SanitizeOnePass(raw, c.cfg.NullSentinel, c.logger)
	if err != nil {
		c.logger.Error("llm.one_pass.sanitize_failed", "req_id", reqID, "error", err)
		return schema.Spec{}, nil, call, err
	}

	c.logger.Info("llm.one_pass.ok",
		"req_id", reqID,
		"fields", len(fields),
		"pages", len(pgs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return schema.Spec{Name: name, Version: 1, Fields: fields}, values, call, nil
}

// pageContent builds the chat content blocks: the instruction text, then a
// "Page N" marker before every image so the backend's page references stay
// anchored to logical order.
func pageContent(prompt string, pgs []pages.Page) []map[string]any {
	content := make([]map[string]any, 0, 1+2*len(pgs))
	content = append(content, map[string]any{"type": "text", "text": prompt})
	for _, p := range pgs {
		content = append(content, map[string]any{
			"type": "text",
			"text": fmt.Sprintf("Page %d", p.Number),
		})
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:" + p.MIME + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
			},
		})
	}
	return content
}

// postChatCompletions sends one strict structured-output completion request
// and returns the message content plus pricing extracted from usage.
func (c *Client) postChatCompletions(
	ctx context.Context,
	reqID string,
	content []map[string]any,
	schemaName string,
	responseSchema map[string]any,
) ([]byte, *pricing.Call, error) {
	if c.cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: OPENAI API key not configured", ErrBackendUnavailable)
	}

	body := map[string]any{
		"model":    c.cfg.Model,
		"messages": []map[string]any{{"role": "user", "content": content}},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": responseSchema,
			},
		},
	}

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		c.logger.Error("llm.http.send_error", "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	c.logger.Debug("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		err := fmt.Errorf("chat completion status %d: %s", resp.StatusCode, truncate(string(raw), 2<<10))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil, nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, nil, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, nil, errors.New("no choices in chat completion")
	}

	call := &pricing.Call{
		Provider:     "openai-compatible",
		Model:        c.cfg.Model,
		Calls:        1,
		InputTokens:  cc.Usage.PromptTokens,
		OutputTokens: cc.Usage.CompletionTokens,
	}
	return []byte(strings.TrimSpace(cc.Choices[0].Message.Content)), call, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
