package scoring

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/routed/internal/features"
)

// Dimension names used in score maps and weight tables.
const (
	DimComplexity  = "complexity"
	DimScope       = "scope"
	DimRisk        = "risk"
	DimContextLoad = "context_load"
	DimUrgency     = "urgency"
)

// DimensionScores maps a dimension name to its 1-10 rating.
type DimensionScores map[string]int

// SignalWeights maps a text signal to its contribution for one dimension.
// Signals are evaluated independently so each (dimension, signal, weight)
// tuple can be unit-tested and tuned on its own.
type SignalWeights map[string]float64

// Thresholds holds the numeric knobs consulted by the scorer.
type Thresholds struct {
	// LightweightMax is the highest complexity routed to lightweight.
	LightweightMax int `json:"lightweight_max"`
	// StandardMax is the highest complexity routed to standard_validated.
	// Anything above routes to phase_based.
	StandardMax int `json:"standard_max"`
	// SignalWeight is the complexity contribution of each signal.
	SignalWeight int `json:"signal_weight"`
	// SimplicityBonus is subtracted when a simplicity keyword is present.
	SimplicityBonus int `json:"simplicity_bonus"`
	// RiskEscalation is added for high-risk categories before clipping.
	RiskEscalation int `json:"risk_escalation"`
}

// CategoryTraits annotates a category with routing behavior beyond the
// plain complexity mapping.
type CategoryTraits struct {
	// HighRisk triggers the risk escalation bonus.
	HighRisk bool `json:"high_risk,omitempty"`
	// RouteTo, when set, routes the category directly (after the context
	// override) regardless of complexity band.
	RouteTo Workflow `json:"route_to,omitempty"`
	// MidBand, when set, replaces standard_validated for this category
	// when complexity lands in the middle band.
	MidBand Workflow `json:"mid_band,omitempty"`
}

// SuccessPattern is an aggregated community statistic for one
// category/workflow pair, recomputed wholesale by the aggregator.
type SuccessPattern struct {
	Category    features.Category `json:"category"`
	Workflow    Workflow          `json:"workflow"`
	SampleSize  int               `json:"sample_size"`
	SuccessRate float64           `json:"success_rate"`
	Confidence  float64           `json:"confidence"`
}

// ScoringRule is an immutable, versioned snapshot of everything the scorer
// consults. New versions are appended by the aggregator; published versions
// are never mutated, so readers need no locking beyond the active pointer.
type ScoringRule struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	// SourceDigest identifies the aggregator input set that produced this
	// version. Re-running on unchanged inputs reuses the digest, which is
	// how idempotence is detected.
	SourceDigest string `json:"source_digest,omitempty"`

	DimensionWeights map[string]SignalWeights               `json:"dimension_weights"`
	Thresholds       Thresholds                             `json:"thresholds"`
	CategoryTable    map[features.Category]CategoryTraits   `json:"category_table"`
	SimplicityKeys   []string                               `json:"simplicity_keywords"`
	Learned          []SuccessPattern                       `json:"learned_patterns,omitempty"`
}

// Validate checks structural invariants before a rule version is published
// or activated.
func (r *ScoringRule) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("rule version is required")
	}
	t := r.Thresholds
	if t.LightweightMax < ScoreMin || t.StandardMax <= t.LightweightMax || t.StandardMax >= ScoreMax {
		return fmt.Errorf("invalid complexity bands: lightweight_max=%d standard_max=%d", t.LightweightMax, t.StandardMax)
	}
	if t.SignalWeight < 1 {
		return fmt.Errorf("signal_weight must be >= 1, got %d", t.SignalWeight)
	}
	for _, p := range r.Learned {
		if p.SuccessRate < 0 || p.SuccessRate > 1 {
			return fmt.Errorf("pattern %s/%s: success_rate %v out of [0,1]", p.Category, p.Workflow, p.SuccessRate)
		}
		if p.SampleSize < 0 {
			return fmt.Errorf("pattern %s/%s: negative sample_size %d", p.Category, p.Workflow, p.SampleSize)
		}
		if !p.Workflow.Valid() {
			return fmt.Errorf("pattern %s: unknown workflow %q", p.Category, p.Workflow)
		}
	}
	return nil
}

// DefaultRule returns the built-in baseline rule set, used until an
// aggregator run publishes a version. The signal weights follow the
// original tuning of the rule tables and are deliberately data, not code.
func DefaultRule() *ScoringRule {
	return &ScoringRule{
		Version:   "builtin",
		CreatedAt: time.Time{},
		DimensionWeights: map[string]SignalWeights{
			DimRisk: {
				"breaking": 0.4, "critical": 0.4, "delete": 0.3, "remove": 0.3,
				"drop": 0.3, "production": 0.3, "live": 0.3, "migrate": 0.25,
				"security": 0.25, "password": 0.25, "auth": 0.2, "authentication": 0.2,
				"permission": 0.2, "admin": 0.2, "schema": 0.2, "database": 0.15,
				"api": 0.1, "refactor": 0.1,
				"change": 0.05, "modify": 0.05, "update": 0.05,
			},
			DimScope: {
				"all": 0.15, "entire": 0.15, "every": 0.15, "across": 0.15,
				"throughout": 0.15, "multiple": 0.1, "several": 0.1,
				"various": 0.1, "different": 0.1, "many": 0.1,
			},
			DimUrgency: {
				"emergency": 0.45, "critical": 0.4, "asap": 0.35, "immediately": 0.35,
				"urgent": 0.3, "rush": 0.3, "quickly": 0.25, "deadline": 0.25,
				"fast": 0.2, "priority": 0.2, "soon": 0.15,
				"today": 0.4, "tonight": 0.4, "tomorrow": 0.4,
				"this morning": 0.4, "right now": 0.4,
			},
			DimContextLoad: {
				"implement": 0.08, "create": 0.08, "build": 0.08, "design": 0.08,
				"refactor": 0.08, "architecture": 0.08, "system": 0.08,
				"complex": 0.08, "integration": 0.08,
			},
		},
		Thresholds: Thresholds{
			LightweightMax:  3,
			StandardMax:     6,
			SignalWeight:    2,
			SimplicityBonus: 1,
			RiskEscalation:  3,
		},
		CategoryTable: map[features.Category]CategoryTraits{
			features.CategoryAuthentication: {HighRisk: true},
			features.CategoryPayments:       {HighRisk: true},
			features.CategorySecurity:       {HighRisk: true},
			features.CategorySetup:          {RouteTo: WorkflowStandardsSetup},
			features.CategoryFeature:        {MidBand: WorkflowPRDBased},
		},
		SimplicityKeys: []string{"fix", "typo", "small", "tweak"},
	}
}
