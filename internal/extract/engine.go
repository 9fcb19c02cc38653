package extract

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/pricing"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// EngineConfig bounds the value extraction pass.
type EngineConfig struct {
	ChunkPages   int
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	NullSentinel string
}

// Engine runs pass 2: extracting field values against a known schema, with
// page-hint routing, chunk-level parallelism and bounded retries.
type Engine struct {
	backend Backend
	cfg     EngineConfig
	logger  *slog.Logger
}

// NewEngine builds a value extraction engine.
func NewEngine(backend Backend, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.NullSentinel == "" {
		cfg.NullSentinel = "NULL"
	}
	return &Engine{backend: backend, cfg: cfg, logger: logger}
}

// ExtractValues extracts values for every spec field over the logical page
// sequence. It returns the per-key merged values, the pricing calls in
// deterministic chunk order, and a degraded flag set when any chunk
// exhausted its retries and fell back to the sentinel.
//
// Chunk results merge in logical page order, never completion order, so
// parallel execution cannot change the outcome.
func (e *Engine) ExtractValues(
	ctx context.Context,
	spec *schema.Spec,
	pgs []pages.Page,
	extraInstructions string,
) (map[string]schema.FieldValue, []*pricing.Call, bool, error) {
	chunks := pages.Chunk(pgs, e.cfg.ChunkPages)
	routing := routeFields(spec.Fields, len(pgs))
	chunkFields := fieldsPerChunk(spec.Fields, routing, chunks)

	batches, calls, degraded, err := e.extractRound(ctx, spec, chunks, chunkFields, extraInstructions)
	if err != nil {
		return nil, nil, false, err
	}
	byKey := mergeValues(batches, e.cfg.NullSentinel)

	// Whole-document fallback: keys still without evidence get one more
	// chance against every chunk before the sentinel sticks.
	if len(chunks) > 1 {
		missing := e.missingFields(spec, byKey)
		if len(missing) > 0 {
			e.logger.Info("extract.values.fallback_pass", "keys", len(missing))
			fallbackFields := make([][]schema.Field, len(chunks))
			for i := range fallbackFields {
				fallbackFields[i] = missing
			}
			fbBatches, fbCalls, fbDegraded, fbErr := e.extractRound(ctx, spec, chunks, fallbackFields, extraInstructions)
			if fbErr != nil {
				return nil, nil, false, fbErr
			}
			calls = append(calls, fbCalls...)
			degraded = degraded || fbDegraded
			for key, value := range mergeValues(fbBatches, e.cfg.NullSentinel) {
				if current, ok := byKey[key]; ok {
					byKey[key] = selectBetter(&current, value, e.cfg.NullSentinel)
				} else {
					byKey[key] = value
				}
			}
		}
	}

	return byKey, calls, degraded, nil
}

// extractRound issues one extraction call per non-empty chunk, in parallel
// up to the concurrency limit. Chunk failures after retries degrade that
// chunk only; context cancellation aborts the whole round.
func (e *Engine) extractRound(
	ctx context.Context,
	spec *schema.Spec,
	chunks [][]pages.Page,
	chunkFields [][]schema.Field,
	extraInstructions string,
) ([][]schema.FieldValue, []*pricing.Call, bool, error) {
	results := make([][]schema.FieldValue, len(chunks))
	chunkCalls := make([]*pricing.Call, len(chunks))
	var mu sync.Mutex
	degraded := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i := range chunks {
		if len(chunkFields[i]) == 0 {
			continue
		}
		g.Go(func() error {
			type outcome struct {
				values []schema.FieldValue
				call   *pricing.Call
			}
			out, err := withRetry(gctx, e.cfg.MaxAttempts, e.cfg.BackoffBase, e.logger, "extract_values",
				func() (outcome, error) {
					values, call, callErr := e.backend.ExtractValues(gctx, spec, chunkFields[i], chunks[i], extraInstructions)
					return outcome{values: values, call: call}, callErr
				})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Partial failure is non-fatal: this chunk's fields fall
				// back to the sentinel and the result is flagged.
				e.logger.Error("extract.values.chunk_failed",
					"chunk", i, "keys", len(chunkFields[i]), "error", err)
				mu.Lock()
				degraded = true
				mu.Unlock()
				return nil
			}
			mu.Lock()
			results[i] = out.values
			chunkCalls[i] = out.call
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}

	calls := make([]*pricing.Call, 0, len(chunkCalls))
	for _, c := range chunkCalls {
		if c != nil {
			calls = append(calls, c)
		}
	}
	return results, calls, degraded, nil
}

// fieldsPerChunk routes each anchored field to the chunk containing its
// page; unanchored fields are requested from every chunk.
func fieldsPerChunk(fields []schema.Field, routing fieldRouting, chunks [][]pages.Page) [][]schema.Field {
	out := make([][]schema.Field, len(chunks))
	for i, chunk := range chunks {
		inChunk := make(map[int]struct{}, len(chunk))
		for _, p := range chunk {
			inChunk[p.Number] = struct{}{}
		}
		for _, f := range fields {
			page, anchored := routing.anchorPage[f.Key]
			if !anchored {
				continue
			}
			if _, ok := inChunk[page]; ok {
				out[i] = append(out[i], f)
			}
		}
		out[i] = append(out[i], routing.unanchored...)
	}
	return out
}

func (e *Engine) missingFields(spec *schema.Spec, byKey map[string]schema.FieldValue) []schema.Field {
	var missing []schema.Field
	for _, f := range spec.Fields {
		value, ok := byKey[f.Key]
		if !ok || !hasEvidence(value.Value, e.cfg.NullSentinel) {
			missing = append(missing, f)
		}
	}
	return missing
}
