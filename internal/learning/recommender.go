// Package learning turns recorded outcomes into workflow recommendations.
//
// The recommender is a confidence-shrinkage estimator: empirical success
// rates are discounted by sample size via confidence = n/(n+K), so sparse
// categories cannot produce overconfident recommendations. A single lucky
// or unlucky outcome never dominates. When no workflow clears the
// confidence threshold the recommender returns nothing and the caller
// falls back to the rule-based baseline; insufficient data is degradation,
// not failure.
package learning

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

// Defaults for the tunable estimator parameters. The right values are an
// empirical question; they are configuration, not constants of nature.
const (
	DefaultSmoothingK          = 5
	DefaultConfidenceThreshold = 0.6
)

// OutcomeSource is the slice of the outcome store the recommender reads.
type OutcomeSource interface {
	QuerySimilar(ctx context.Context, category features.Category) ([]outcomes.OutcomeRecord, int, error)
}

// Recommendation is a learned workflow suggestion for one category.
type Recommendation struct {
	Workflow    scoring.Workflow `json:"workflow"`
	SuccessRate float64          `json:"success_rate"`
	Confidence  float64          `json:"confidence"`
	SampleSize  int              `json:"sample_size"`
}

// Config holds the estimator tunables.
type Config struct {
	// SmoothingK is the K in confidence = n/(n+K).
	SmoothingK int `koanf:"smoothing_k"`
	// ConfidenceThreshold is the minimum confidence for a recommendation.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
}

// DefaultConfig returns the default estimator tunables.
func DefaultConfig() Config {
	return Config{
		SmoothingK:          DefaultSmoothingK,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Validate checks the tunables are usable.
func (c Config) Validate() error {
	if c.SmoothingK < 1 {
		return fmt.Errorf("smoothing_k must be >= 1, got %d", c.SmoothingK)
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("confidence_threshold must be in (0,1), got %v", c.ConfidenceThreshold)
	}
	return nil
}

// Recommender computes per-category recommendations from the outcome log.
type Recommender struct {
	source OutcomeSource
	cfg    Config
	logger *zap.Logger
}

// NewRecommender creates a recommender over the given outcome source.
func NewRecommender(source OutcomeSource, cfg Config, logger *zap.Logger) (*Recommender, error) {
	if source == nil {
		return nil, fmt.Errorf("outcome source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid learning config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recommender{source: source, cfg: cfg, logger: logger}, nil
}

// Confidence is the saturating shrinkage function n/(n+K). It rises
// asymptotically toward 1 as evidence accumulates and is monotonically
// non-decreasing in n.
func Confidence(sampleSize, k int) float64 {
	if sampleSize <= 0 {
		return 0
	}
	return float64(sampleSize) / float64(sampleSize+k)
}

// Recommend returns the best-learned workflow for the category, or nil when
// no workflow has enough evidence. Zero-sample categories always yield nil,
// never a guess. The skipped count reports corrupt records passed over.
func (r *Recommender) Recommend(ctx context.Context, category features.Category) (*Recommendation, int, error) {
	records, skipped, err := r.source.QuerySimilar(ctx, category)
	if err != nil {
		return nil, skipped, fmt.Errorf("query outcomes for %s: %w", category, err)
	}
	if len(records) == 0 {
		return nil, skipped, nil
	}

	type tally struct {
		total     int
		successes int
	}
	tallies := make(map[scoring.Workflow]*tally)
	for _, rec := range records {
		tl := tallies[rec.Workflow]
		if tl == nil {
			tl = &tally{}
			tallies[rec.Workflow] = tl
		}
		tl.total++
		if rec.Success {
			tl.successes++
		}
	}

	var candidates []Recommendation
	for workflow, tl := range tallies {
		conf := Confidence(tl.total, r.cfg.SmoothingK)
		if conf < r.cfg.ConfidenceThreshold {
			continue
		}
		candidates = append(candidates, Recommendation{
			Workflow:    workflow,
			SuccessRate: float64(tl.successes) / float64(tl.total),
			Confidence:  conf,
			SampleSize:  tl.total,
		})
	}
	if len(candidates) == 0 {
		r.logger.Debug("no workflow clears confidence threshold, deferring to baseline",
			zap.String("category", string(category)),
			zap.Int("records", len(records)))
		return nil, skipped, nil
	}

	// Highest success rate wins; sample size then workflow name break ties
	// deterministically.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SuccessRate != candidates[j].SuccessRate {
			return candidates[i].SuccessRate > candidates[j].SuccessRate
		}
		if candidates[i].SampleSize != candidates[j].SampleSize {
			return candidates[i].SampleSize > candidates[j].SampleSize
		}
		return candidates[i].Workflow < candidates[j].Workflow
	})

	best := candidates[0]
	return &best, skipped, nil
}
