package store

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// DocumentMeta is the lightweight candidate metadata used for matching.
type DocumentMeta struct {
	Fingerprint string
	PageCount   int
	Labels      []string // detected field labels, case-insensitive
}

// Matcher compares a candidate document against the schema store. Read-only.
type Matcher struct {
	cache     Cache
	threshold float64
	logger    *slog.Logger
}

// Heuristic score weights: page-count agreement is a fixed contribution,
// the rest comes from label overlap.
const (
	pageCountWeight = 0.25
	labelWeight     = 0.75
)

// NewMatcher builds a matcher over a cache with the given score threshold.
func NewMatcher(cache Cache, threshold float64, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{cache: cache, threshold: threshold, logger: logger}
}

// Match tries an exact fingerprint match first (score 1.0), then a heuristic
// match over page count and label overlap. Below the threshold the result
// reports no match rather than a low-confidence guess.
func (m *Matcher) Match(meta DocumentMeta) (schema.MatchResult, error) {
	if meta.Fingerprint != "" {
		spec, err := m.cache.Lookup(meta.Fingerprint)
		if err != nil && !errors.Is(err, ErrCacheCorrupt) {
			return schema.MatchResult{Strategy: schema.MatchNone}, err
		}
		if errors.Is(err, ErrCacheCorrupt) {
			m.logger.Warn("schema.match.corrupt_cache_entry", "fingerprint", meta.Fingerprint, "error", err)
		}
		if spec != nil {
			return schema.MatchResult{
				Matched:  true,
				SchemaID: spec.ID,
				Score:    1.0,
				Strategy: schema.MatchByFingerprint,
			}, nil
		}
	}

	specs, err := m.cache.List()
	if err != nil {
		return schema.MatchResult{Strategy: schema.MatchNone}, err
	}

	var bestScore float64
	var bestID string
	for _, spec := range specs {
		score := heuristicScore(meta, spec)
		if score > bestScore {
			bestScore = score
			bestID = spec.ID
		}
	}

	if bestScore >= m.threshold && bestID != "" {
		m.logger.Info("schema.match.heuristic", "schema_id", bestID, "score", bestScore)
		return schema.MatchResult{
			Matched:  true,
			SchemaID: bestID,
			Score:    bestScore,
			Strategy: schema.MatchByHeuristic,
		}, nil
	}
	return schema.MatchResult{Strategy: schema.MatchNone}, nil
}

func heuristicScore(meta DocumentMeta, spec *schema.Spec) float64 {
	score := 0.0
	if meta.PageCount > 0 && spec.MaxPage() > 0 && spec.MaxPage() <= meta.PageCount {
		score += pageCountWeight
	}
	score += labelWeight * labelJaccard(meta.Labels, spec.Labels())
	return score
}

// labelJaccard computes Jaccard similarity over case-folded label sets.
func labelJaccard(a, b []string) float64 {
	setA := foldSet(a)
	setB := foldSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for label := range setA {
		if _, ok := setB[label]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func foldSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		folded := strings.ToLower(strings.TrimSpace(l))
		if folded != "" {
			set[folded] = struct{}{}
		}
	}
	return set
}
