package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Guillaume-Lombardo/extractforms/internal/config"
	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/pricing"
	"github.com/Guillaume-Lombardo/extractforms/internal/render"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
	"github.com/Guillaume-Lombardo/extractforms/internal/store"
)

// Orchestrator composes preprocessing, schema inference/cache and value
// extraction per the selected pass mode.
type Orchestrator struct {
	settings    *config.Settings
	renderer    render.Renderer
	backend     Backend
	backendKind BackendKind
	cache       store.Cache
	matcher     *store.Matcher
	logger      *slog.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(
	settings *config.Settings,
	renderer render.Renderer,
	backend Backend,
	backendKind BackendKind,
	cache store.Cache,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		settings:    settings,
		renderer:    renderer,
		backend:     backend,
		backendKind: backendKind,
		cache:       cache,
		matcher:     store.NewMatcher(cache, settings.Match.Threshold, logger),
		logger:      logger,
	}
}

// Run executes one extraction request end to end. Cancellation is
// all-or-nothing: no partial result is ever returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	reqID := uuid.New().String()
	o.applyDefaults(&req)

	o.logger.Info("extract.run.start",
		"req_id", reqID,
		"input", req.InputPath,
		"mode", string(req.Mode),
		"backend", string(o.backendKind),
		"chunk_pages", req.ChunkPages,
	)

	fingerprint, err := schema.FingerprintFile(req.InputPath)
	if err != nil {
		return nil, err
	}

	logical, pageMap, err := o.renderAndPreprocess(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := &pricing.Aggregator{}
	var result *Result
	switch {
	case req.SchemaPath != "":
		result, err = o.runExternalSchema(ctx, req, logical, agg)
	case req.Mode == OnePass:
		result, err = o.runOnePass(ctx, req, logical, agg)
	case req.Mode == OneSchemaPass:
		result, err = o.runOneSchemaPass(ctx, req, logical, agg)
	case req.Mode == TwoPass:
		result, err = o.runTwoPass(ctx, req, fingerprint, logical, agg)
	default:
		err = fmt.Errorf("unsupported pass mode: %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Pricing = agg.Total()
	result.Metadata.Backend = string(o.backendKind)
	result.Metadata.Mode = string(req.Mode)
	result.Metadata.PagesProcessed = len(logical)
	if result.Pricing != nil {
		result.Metadata.ModelCalls = result.Pricing.Calls
	}
	result.Metadata.DurationMS = time.Since(start).Milliseconds()

	o.logger.Info("extract.run.ok",
		"req_id", reqID,
		"fields", result.SchemaFieldsCount,
		"logical_pages", pageMap.Len(),
		"cache_hit", result.Metadata.CacheHit,
		"degraded", result.Metadata.Degraded,
		"elapsed_ms", result.Metadata.DurationMS,
	)
	return result, nil
}

func (o *Orchestrator) applyDefaults(req *Request) {
	if req.Mode == "" {
		req.Mode = TwoPass
	}
	if req.DPI == 0 {
		req.DPI = o.settings.Render.DPI
	}
	if req.ImageFormat == "" {
		req.ImageFormat = o.settings.Render.ImageFormat
	}
	if req.ChunkPages < 0 {
		req.ChunkPages = 0
	}
}

func (o *Orchestrator) renderAndPreprocess(ctx context.Context, req Request) ([]pages.Page, pages.PageMap, error) {
	raw, err := o.renderer.Render(ctx, req.InputPath, render.Options{
		DPI:         req.DPI,
		ImageFormat: req.ImageFormat,
		PageStart:   req.PageStart,
		PageEnd:     req.PageEnd,
		MaxPages:    req.MaxPages,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", req.InputPath, err)
	}
	logical, pageMap, err := pages.Preprocess(raw, pages.Config{
		InkRatioThreshold: o.settings.Pages.InkRatioThreshold,
		NearWhiteLevel:    uint8(o.settings.Pages.NearWhiteLevel),
		DropBlank:         o.settings.Pages.DropBlankPages && !req.KeepBlankPages,
		SampleWidth:       pages.DefaultSampleWidth,
		Logger:            o.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preprocess %s: %w", req.InputPath, err)
	}
	return logical, pageMap, nil
}

func (o *Orchestrator) newEngine(req Request) *Engine {
	return NewEngine(o.backend, EngineConfig{
		ChunkPages:   req.ChunkPages,
		Concurrency:  o.settings.OpenAI.Concurrency,
		MaxAttempts:  o.settings.Retry.MaxAttempts,
		BackoffBase:  o.settings.Retry.BackoffBase,
		NullSentinel: o.settings.NullSentinel,
	}, o.logger)
}

// inferSchema runs pass 1 and assigns identity to the inferred spec. An
// empty field list is retried once before surfacing ErrEmptySchema.
func (o *Orchestrator) inferSchema(
	ctx context.Context,
	req Request,
	fingerprint string,
	logical []pages.Page,
	agg *pricing.Aggregator,
) (*schema.Spec, error) {
	var spec schema.Spec
	for attempt := 1; attempt <= 2; attempt++ {
		inferred, call, err := o.backend.InferSchema(ctx, logical, req.ExtraInstructions)
		agg.Record(call)
		if err != nil {
			return nil, fmt.Errorf("infer schema: %w", err)
		}
		if len(inferred.Fields) > 0 {
			spec = inferred
			break
		}
		if attempt == 2 {
			return nil, ErrEmptySchema
		}
		o.logger.Warn("extract.infer_schema.empty_retry", "input", req.InputPath)
	}

	spec.ID = uuid.New().String()
	spec.Fingerprint = fingerprint
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(req.InputPath), filepath.Ext(req.InputPath))
	}
	if spec.Version == 0 {
		spec.Version = 1
	}
	return &spec, nil
}

func (o *Orchestrator) extractWithSpec(
	ctx context.Context,
	req Request,
	spec *schema.Spec,
	logical []pages.Page,
	agg *pricing.Aggregator,
) (*Result, error) {
	engine := o.newEngine(req)
	byKey, calls, degraded, err := engine.ExtractValues(ctx, spec, logical, req.ExtraInstructions)
	if err != nil {
		return nil, err
	}
	for _, call := range calls {
		agg.Record(call)
	}
	fields, flat := assembleFields(spec, byKey, o.settings.NullSentinel)
	return &Result{
		Fields:            fields,
		Flat:              flat,
		SchemaFieldsCount: len(spec.Fields),
		Metadata:          ResultMetadata{Degraded: degraded},
	}, nil
}

// runTwoPass is the default flow: cached or inferred schema, then the
// values pass.
func (o *Orchestrator) runTwoPass(
	ctx context.Context,
	req Request,
	fingerprint string,
	logical []pages.Page,
	agg *pricing.Aggregator,
) (*Result, error) {
	var spec *schema.Spec
	cacheHit := false

	if !req.NoCache {
		cached, err := o.cache.Lookup(fingerprint)
		if errors.Is(err, store.ErrCacheCorrupt) {
			// Corruption is an anomaly, never a request failure.
			o.logger.Warn("schema.cache.corrupt", "fingerprint", fingerprint, "error", err)
		} else if err != nil {
			return nil, err
		}
		if cached != nil {
			o.logger.Info("schema.cache.hit", "fingerprint", fingerprint, "schema_id", cached.ID)
			spec = cached
			cacheHit = true
		}
	}

	if spec == nil && req.MatchSchema {
		matched, err := o.matcher.Match(store.DocumentMeta{
			Fingerprint: fingerprint,
			PageCount:   len(logical),
		})
		if err != nil {
			return nil, err
		}
		if matched.Matched {
			candidate, err := o.specByID(matched.SchemaID)
			if err != nil {
				return nil, err
			}
			if candidate != nil {
				o.logger.Info("schema.match.hit",
					"schema_id", matched.SchemaID,
					"strategy", string(matched.Strategy),
					"score", matched.Score)
				spec = candidate
				cacheHit = true
			}
		}
	}

	if spec == nil {
		inferred, err := o.inferSchema(ctx, req, fingerprint, logical, agg)
		if err != nil {
			return nil, err
		}
		spec = inferred
		if !req.NoCache {
			if err := o.cache.Store(spec); err != nil {
				o.logger.Warn("schema.cache.store_failed", "fingerprint", fingerprint, "error", err)
			}
		}
	}

	result, err := o.extractWithSpec(ctx, req, spec, logical, agg)
	if err != nil {
		return nil, err
	}
	result.Metadata.CacheHit = cacheHit
	return result, nil
}

// runOnePass infers schema and values from a single combined call.
func (o *Orchestrator) runOnePass(
	ctx context.Context,
	req Request,
	logical []pages.Page,
	agg *pricing.Aggregator,
) (*Result, error) {
	type onePassOut struct {
		spec   schema.Spec
		values []schema.FieldValue
	}
	out, err := withRetry(ctx, o.settings.Retry.MaxAttempts, o.settings.Retry.BackoffBase, o.logger, "one_pass",
		func() (onePassOut, error) {
			spec, values, call, callErr := o.backend.InferAndExtract(ctx, logical, req.ExtraInstructions)
			agg.Record(call)
			return onePassOut{spec: spec, values: values}, callErr
		})
	if err != nil {
		return nil, fmt.Errorf("one-pass extract: %w", err)
	}
	if len(out.spec.Fields) == 0 {
		return nil, ErrEmptySchema
	}

	byKey := mergeValues([][]schema.FieldValue{out.values}, o.settings.NullSentinel)
	fields, flat := assembleFields(&out.spec, byKey, o.settings.NullSentinel)
	return &Result{
		Fields:            fields,
		Flat:              flat,
		SchemaFieldsCount: len(out.spec.Fields),
	}, nil
}

// runOneSchemaPass uses a schema already in the store, addressed by id.
func (o *Orchestrator) runOneSchemaPass(
	ctx context.Context,
	req Request,
	logical []pages.Page,
	agg *pricing.Aggregator,
) (*Result, error) {
	if req.SchemaID == "" {
		return nil, fmt.Errorf("%w: one_schema_pass requires --schema-id or --schema-path", ErrUnresolvedSchema)
	}
	spec, err := o.specByID(req.SchemaID)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: schema id %s", ErrUnresolvedSchema, req.SchemaID)
	}
	return o.extractWithSpec(ctx, req, spec, logical, agg)
}

// runExternalSchema loads a schema file supplied by the caller.
func (o *Orchestrator) runExternalSchema(
	ctx context.Context,
	req Request,
	logical []pages.Page,
	agg *pricing.Aggregator,
) (*Result, error) {
	spec, err := store.LoadFile(req.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvedSchema, req.SchemaPath, err)
	}
	return o.extractWithSpec(ctx, req, spec, logical, agg)
}

func (o *Orchestrator) specByID(id string) (*schema.Spec, error) {
	specs, err := o.cache.List()
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if spec.ID == id {
			return spec, nil
		}
	}
	return nil, nil
}
