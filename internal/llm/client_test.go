package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

func completionResponse(t *testing.T, content string) []byte {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     120,
			"completion_tokens": 30,
		},
	}
	bs, err := json.Marshal(payload)
	require.NoError(t, err)
	return bs
}

func testPages() []pages.Page {
	return []pages.Page{
		{Number: 1, Physical: 1, MIME: "image/png", Data: []byte{0x89}},
		{Number: 2, Physical: 3, MIME: "image/png", Data: []byte{0x89}},
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{BaseURL: baseURL, APIKey: "test-key", Model: "test-model"}, nil)
}

func TestClientInferSchema(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_, _ = w.Write(completionResponse(t, `{
			"name": "Consent Form",
			"fields": [
				{"key": "name", "label": "Name", "page": 1, "kind": "text", "semantic_type": null},
				{"key": "total", "label": "Total", "page": 2, "kind": "number", "semantic_type": "amount"}
			]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	spec, call, err := client.InferSchema(context.Background(), testPages(), "")
	require.NoError(t, err)

	assert.Equal(t, "Consent Form", spec.Name)
	require.Len(t, spec.Fields, 2)
	assert.Equal(t, schema.SemanticAmount, spec.Fields[1].SemanticType)

	require.NotNil(t, call)
	assert.Equal(t, int64(120), call.InputTokens)
	assert.Equal(t, int64(30), call.OutputTokens)
	assert.Equal(t, "test-model", call.Model)

	// Strict structured output is requested.
	rf := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, true, js["strict"])

	// Content interleaves "Page N" markers with the images.
	messages := captured["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 5, "prompt + (marker+image) per page")
	marker := content[1].(map[string]any)
	assert.Equal(t, "Page 1", marker["text"])
	image := content[2].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
}

func TestClientExtractValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionResponse(t, `{
			"name": {"value": "Jane Doe", "page": 1, "confidence": "high"}
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	spec := &schema.Spec{
		ID:          "11111111-1111-1111-1111-111111111111",
		Fingerprint: "fpr",
		Fields: []schema.Field{
			{Key: "name", Label: "Name", Page: 1},
			{Key: "total", Label: "Total", Page: 2},
		},
	}

	values, call, err := client.ExtractValues(context.Background(), spec, spec.Fields[:1], testPages(), "")
	require.NoError(t, err)
	require.NotNil(t, call)
	require.Len(t, values, 1, "only the requested key subset comes back")
	assert.Equal(t, "Jane Doe", values[0].Value)
	assert.Equal(t, 1, values[0].Page)
	assert.Equal(t, schema.ConfidenceHigh, values[0].Confidence)
}

func TestClientExtractValuesEmptyFields(t *testing.T) {
	client := newTestClient("http://unreachable.invalid")
	values, call, err := client.ExtractValues(context.Background(), &schema.Spec{}, nil, testPages(), "")
	require.NoError(t, err)
	assert.Nil(t, values)
	assert.Nil(t, call, "no fields means no backend call")
}

func TestClientInferAndExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionResponse(t, `{
			"name": "Combined",
			"fields": [
				{"key": "name", "label": "Name", "page": 1, "kind": "text", "semantic_type": null, "value": "Jane", "confidence": "medium"}
			]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	spec, values, call, err := client.InferAndExtract(context.Background(), testPages(), "")
	require.NoError(t, err)
	require.NotNil(t, call)
	require.Len(t, spec.Fields, 1)
	require.Len(t, values, 1)
	assert.Equal(t, "Jane", values[0].Value)
}

func TestClientServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, _, err := client.InferSchema(context.Background(), testPages(), "")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestClientBadRequestIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad schema", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, _, err := client.InferSchema(context.Background(), testPages(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestClientMissingAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://unreachable.invalid"}, nil)
	_, _, err := client.InferSchema(context.Background(), testPages(), "")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestClientEmptyPageSequence(t *testing.T) {
	client := newTestClient("http://unreachable.invalid")
	_, _, err := client.InferSchema(context.Background(), nil, "")
	assert.ErrorIs(t, err, pages.ErrEmptyDocument)
}
