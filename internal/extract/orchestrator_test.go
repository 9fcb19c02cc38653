package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guillaume-Lombardo/extractforms/internal/config"
	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/render"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
	"github.com/Guillaume-Lombardo/extractforms/internal/store"
)

type fakeRenderer struct {
	pageCount int
	err       error
}

func (r *fakeRenderer) Render(ctx context.Context, path string, opts render.Options) ([]pages.RawPage, error) {
	if r.err != nil {
		return nil, r.err
	}
	raw := make([]pages.RawPage, r.pageCount)
	for i := range raw {
		raw[i] = pages.RawPage{Physical: i + 1, MIME: "image/png", Data: []byte{0x1}}
	}
	return raw, nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		Backend:      "multimodal",
		NullSentinel: "NULL",
		OpenAI: config.OpenAISettings{
			Concurrency: 2,
		},
		Retry: config.RetrySettings{
			MaxAttempts: 2,
			BackoffBase: time.Millisecond,
		},
		Pages: config.PagesSettings{
			DropBlankPages: false,
		},
		Match: config.MatchSettings{
			Threshold: 0.5,
		},
	}
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func twoPassBackend() *fakeBackend {
	return &fakeBackend{
		inferSpec: schema.Spec{
			Name: "Consent Form",
			Fields: []schema.Field{
				{Key: "name", Label: "Name", Page: 1, Kind: schema.KindText},
				{Key: "amount", Label: "Amount", Page: 2, SemanticType: schema.SemanticAmount},
			},
		},
		valuesByPage: map[int][]schema.FieldValue{
			1: {{Key: "name", Value: "Jane Doe", Page: 1, Confidence: schema.ConfidenceHigh}},
		},
	}
}

func newTestOrchestrator(backend *fakeBackend, cache store.Cache) *Orchestrator {
	return NewOrchestrator(testSettings(), &fakeRenderer{pageCount: 2}, backend, BackendMultimodal, cache, nil)
}

func TestOrchestratorTwoPass(t *testing.T) {
	backend := twoPassBackend()
	cache := store.NewMemCache()
	orch := newTestOrchestrator(backend, cache)
	input := writeInput(t, "document body")

	result, err := orch.Run(context.Background(), Request{InputPath: input, Mode: TwoPass})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"name": "Jane Doe", "amount": "NULL"}, result.Flat)
	assert.Equal(t, 2, result.SchemaFieldsCount)
	assert.Equal(t, "two_pass", result.Metadata.Mode)
	assert.Equal(t, "multimodal", result.Metadata.Backend)
	assert.Equal(t, 2, result.Metadata.PagesProcessed)
	assert.False(t, result.Metadata.CacheHit)
	assert.False(t, result.Metadata.Degraded)
	require.NotNil(t, result.Pricing)
	assert.Equal(t, result.Pricing.Calls, result.Metadata.ModelCalls)

	// The inferred schema got identity and landed in the cache.
	fingerprint, err := schema.FingerprintFile(input)
	require.NoError(t, err)
	cached, err := cache.Lookup(fingerprint)
	require.NoError(t, err)
	require.NotNil(t, cached)
	_, uuidErr := uuid.Parse(cached.ID)
	assert.NoError(t, uuidErr)
	assert.Equal(t, fingerprint, cached.Fingerprint)
	assert.Equal(t, 1, cached.Version)
}

func TestOrchestratorCacheHitSkipsInference(t *testing.T) {
	backend := twoPassBackend()
	cache := store.NewMemCache()
	orch := newTestOrchestrator(backend, cache)
	input := writeInput(t, "same document")

	_, err := orch.Run(context.Background(), Request{InputPath: input, Mode: TwoPass})
	require.NoError(t, err)
	require.Equal(t, 1, backend.inferCalls)

	result, err := orch.Run(context.Background(), Request{InputPath: input, Mode: TwoPass})
	require.NoError(t, err)
	assert.True(t, result.Metadata.CacheHit)
	assert.Equal(t, 1, backend.inferCalls, "second run reuses the cached schema")
}

func TestOrchestratorNoCacheBypassesStore(t *testing.T) {
	backend := twoPassBackend()
	cache := store.NewMemCache()
	orch := newTestOrchestrator(backend, cache)
	input := writeInput(t, "uncached document")

	_, err := orch.Run(context.Background(), Request{InputPath: input, Mode: TwoPass, NoCache: true})
	require.NoError(t, err)

	specs, err := cache.List()
	require.NoError(t, err)
	assert.Empty(t, specs, "no-cache runs never store")

	_, err = orch.Run(context.Background(), Request{InputPath: input, Mode: TwoPass, NoCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.inferCalls)
}

func TestOrchestratorEmptySchemaRetriesOnce(t *testing.T) {
	backend := twoPassBackend()
	backend.inferSpec = schema.Spec{Name: "empty"}
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "blank-ish document")

	_, err := orch.Run(context.Background(), Request{InputPath: input, Mode: TwoPass})
	assert.ErrorIs(t, err, ErrEmptySchema)
	assert.Equal(t, 2, backend.inferCalls, "empty field list is retried once")
}

func TestOrchestratorOnePass(t *testing.T) {
	backend := twoPassBackend()
	backend.onePassSpec = schema.Spec{
		Name: "Combined",
		Fields: []schema.Field{
			{Key: "name", Label: "Name", Page: 1},
		},
	}
	backend.onePassVals = []schema.FieldValue{
		{Key: "name", Value: "Jane Doe", Page: 1, Confidence: schema.ConfidenceHigh},
	}
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "one pass document")

	result, err := orch.Run(context.Background(), Request{InputPath: input, Mode: OnePass})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Jane Doe"}, result.Flat)
	assert.Equal(t, "one_pass", result.Metadata.Mode)
	assert.Equal(t, 1, backend.onePassCalls)
	assert.Zero(t, backend.inferCalls)
	assert.Zero(t, backend.extractCalls)
}

func TestOrchestratorOnePassEmptySchema(t *testing.T) {
	backend := twoPassBackend()
	backend.onePassSpec = schema.Spec{}
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "one pass empty")

	_, err := orch.Run(context.Background(), Request{InputPath: input, Mode: OnePass})
	assert.ErrorIs(t, err, ErrEmptySchema)
}

func TestOrchestratorExternalSchemaPath(t *testing.T) {
	backend := twoPassBackend()
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "external schema document")

	schemaPath := filepath.Join(t.TempDir(), "consent.schema.json")
	payload := `{
		"id": "` + uuid.New().String() + `",
		"name": "Consent",
		"fingerprint": "external",
		"version": 1,
		"fields": [{"key": "name", "label": "Name", "page": 1}]
	}`
	require.NoError(t, os.WriteFile(schemaPath, []byte(payload), 0o644))

	result, err := orch.Run(context.Background(), Request{
		InputPath:  input,
		Mode:       OneSchemaPass,
		SchemaPath: schemaPath,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Jane Doe"}, result.Flat)
	assert.Zero(t, backend.inferCalls, "external schema skips inference")
}

func TestOrchestratorExternalSchemaPathBroken(t *testing.T) {
	backend := twoPassBackend()
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "doc")

	_, err := orch.Run(context.Background(), Request{
		InputPath:  input,
		Mode:       OneSchemaPass,
		SchemaPath: filepath.Join(t.TempDir(), "missing.schema.json"),
	})
	assert.ErrorIs(t, err, ErrUnresolvedSchema)
}

func TestOrchestratorSchemaIDUnresolved(t *testing.T) {
	backend := twoPassBackend()
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "doc")

	_, err := orch.Run(context.Background(), Request{
		InputPath: input,
		Mode:      OneSchemaPass,
		SchemaID:  uuid.New().String(),
	})
	assert.ErrorIs(t, err, ErrUnresolvedSchema)

	_, err = orch.Run(context.Background(), Request{InputPath: input, Mode: OneSchemaPass})
	assert.ErrorIs(t, err, ErrUnresolvedSchema)
}

func TestOrchestratorSchemaIDResolved(t *testing.T) {
	backend := twoPassBackend()
	cache := store.NewMemCache()
	spec := &schema.Spec{
		ID:          uuid.New().String(),
		Name:        "Stored",
		Fingerprint: "some-other-doc",
		Version:     1,
		Fields:      []schema.Field{{Key: "name", Label: "Name", Page: 1}},
	}
	require.NoError(t, cache.Store(spec))

	orch := newTestOrchestrator(backend, cache)
	input := writeInput(t, "doc for stored schema")

	result, err := orch.Run(context.Background(), Request{
		InputPath: input,
		Mode:      OneSchemaPass,
		SchemaID:  spec.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Flat["name"])
	assert.Zero(t, backend.inferCalls)
}

func TestOrchestratorCancelledContext(t *testing.T) {
	backend := twoPassBackend()
	orch := newTestOrchestrator(backend, store.NewMemCache())
	input := writeInput(t, "doc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := orch.Run(ctx, Request{InputPath: input, Mode: TwoPass})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteResult(t *testing.T) {
	result := &Result{
		Flat:              map[string]string{"name": "Jane Doe"},
		SchemaFieldsCount: 1,
	}
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, WriteResult(result, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Jane Doe"`)
}
