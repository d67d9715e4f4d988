// Package scoring implements the deterministic rule-based baseline: it maps
// extracted features to 1-10 dimension scores and a default workflow via an
// ordered set of rules consulted from an immutable, versioned ScoringRule
// snapshot. The scorer is pure: it never reads the outcome store, so the
// same features and rule version always produce the same decision.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/routed/internal/features"
)

// Dimension score bounds.
const (
	ScoreMin = 1
	ScoreMax = 10
)

// Rule names reported in Decision.Rule for auditability.
const (
	RuleContextOverride   = "context_override"
	RuleCategoryRoute     = "category_route"
	RuleRiskEscalation    = "risk_escalation"
	RuleComplexityMapping = "complexity_mapping"
)

// Alternative is a viable non-selected workflow with its suitability score.
type Alternative struct {
	Workflow    Workflow `json:"workflow"`
	Suitability float64  `json:"suitability"`
}

// Decision is the scorer's output for one task.
type Decision struct {
	Workflow     Workflow        `json:"workflow"`
	Rule         string          `json:"rule"`
	Reasoning    string          `json:"reasoning"`
	Confidence   float64         `json:"confidence"`
	Complexity   int             `json:"complexity"`
	Scores       DimensionScores `json:"dimension_scores"`
	Factors      []string        `json:"decision_factors,omitempty"`
	Alternatives []Alternative   `json:"alternatives,omitempty"`
}

// workflowAffinity weights each workflow's preference per dimension, used
// only to rank alternatives for transparency. Positive weights favor high
// scores, negative weights favor low ones.
var workflowAffinity = map[Workflow]map[string]float64{
	WorkflowLightweight:       {DimComplexity: -0.4, DimScope: -0.2, DimRisk: -0.3, DimContextLoad: -0.1, DimUrgency: 0.2},
	WorkflowStandardValidated: {DimComplexity: 0.2, DimScope: 0.1, DimRisk: 0.4, DimContextLoad: 0.0, DimUrgency: -0.1},
	WorkflowPhaseBased:        {DimComplexity: 0.3, DimScope: 0.3, DimRisk: 0.1, DimContextLoad: 0.4, DimUrgency: -0.2},
	WorkflowPRDBased:          {DimComplexity: 0.2, DimScope: 0.2, DimRisk: -0.2, DimContextLoad: 0.1, DimUrgency: -0.3},
	WorkflowStandardsSetup:    {DimComplexity: -0.1, DimScope: 0.1, DimRisk: -0.3, DimContextLoad: -0.1, DimUrgency: -0.2},
}

// Scorer evaluates tasks against one rule version.
type Scorer struct {
	rule *ScoringRule
}

// NewScorer creates a scorer bound to the given rule snapshot.
func NewScorer(rule *ScoringRule) *Scorer {
	if rule == nil {
		rule = DefaultRule()
	}
	return &Scorer{rule: rule}
}

// Rule returns the snapshot this scorer evaluates against.
func (s *Scorer) Rule() *ScoringRule { return s.rule }

// Score produces the baseline decision for the extracted features.
//
// Rule order, highest priority first:
//  1. Context pressure routes to phase_based and short-circuits everything.
//  2. A category with a direct route (e.g. setup) uses it.
//  3. Clipped complexity (with risk escalation for high-risk categories)
//     maps onto the workflow bands.
func (s *Scorer) Score(f features.Features, m features.Metrics) Decision {
	scores := s.dimensionScores(f, m)
	complexity := s.complexity(f)
	scores[DimComplexity] = complexity

	d := Decision{
		Complexity: complexity,
		Scores:     scores,
	}

	traits := s.rule.CategoryTable[f.Category]

	switch {
	case f.ContextPressure:
		d.Workflow = WorkflowPhaseBased
		d.Rule = RuleContextOverride
		d.Confidence = 0.9
		d.Reasoning = fmt.Sprintf(
			"context override: tokens > %d or loaded files > %d, phase-based execution protects the context window",
			features.ContextPressureTokens, features.ContextPressureFiles)

	case traits.RouteTo != "":
		d.Workflow = traits.RouteTo
		d.Rule = RuleCategoryRoute
		d.Confidence = 0.75
		d.Reasoning = fmt.Sprintf("category route: %s tasks run the %s workflow", f.Category, traits.RouteTo)

	default:
		d.Workflow = s.bandWorkflow(complexity, traits)
		d.Confidence = bandConfidence(complexity, s.rule.Thresholds)
		if traits.HighRisk {
			d.Rule = RuleRiskEscalation
			d.Reasoning = fmt.Sprintf(
				"risk escalation: %s is high-risk (+%d complexity), score %d maps to %s",
				f.Category, s.rule.Thresholds.RiskEscalation, complexity, d.Workflow)
		} else {
			d.Rule = RuleComplexityMapping
			d.Reasoning = fmt.Sprintf("complexity mapping: score %d maps to %s", complexity, d.Workflow)
		}
	}

	d.Factors = decisionFactors(scores, d.Workflow)
	d.Alternatives = alternatives(scores, d.Workflow)
	return d
}

// complexity implements clip(1 + signals*weight - simplicity, 1, 10) with
// the high-risk escalation applied before clipping.
func (s *Scorer) complexity(f features.Features) int {
	t := s.rule.Thresholds

	c := 1 + f.ComplexitySignals*t.SignalWeight
	if f.HasAny(s.rule.SimplicityKeys...) {
		c -= t.SimplicityBonus
	}
	if s.rule.CategoryTable[f.Category].HighRisk {
		c += t.RiskEscalation
	}
	return clip(c, ScoreMin, ScoreMax)
}

func (s *Scorer) bandWorkflow(complexity int, traits CategoryTraits) Workflow {
	t := s.rule.Thresholds
	switch {
	case complexity <= t.LightweightMax:
		return WorkflowLightweight
	case complexity <= t.StandardMax:
		if traits.MidBand != "" {
			return traits.MidBand
		}
		return WorkflowStandardValidated
	default:
		return WorkflowPhaseBased
	}
}

func bandConfidence(complexity int, t Thresholds) float64 {
	switch {
	case complexity <= t.LightweightMax:
		return 0.8
	case complexity <= t.StandardMax:
		return 0.7
	default:
		return 0.8
	}
}

// dimensionScores evaluates the declarative weight tables plus the metric
// adjustments that have no text signal.
func (s *Scorer) dimensionScores(f features.Features, m features.Metrics) DimensionScores {
	risk := s.sumWeights(f, DimRisk)
	urgency := s.maxWeight(f, DimUrgency)

	scope := s.sumWeights(f, DimScope)
	switch {
	case m.LoadedFiles > 10:
		scope += 0.2
	case m.LoadedFiles > 5:
		scope += 0.1
	}
	switch {
	case f.WordCount > 100:
		scope += 0.2
	case f.WordCount > 50:
		scope += 0.1
	}

	load := math.Min(0.5, float64(m.Tokens)/25000.0)
	load += math.Min(0.3, float64(m.LoadedFiles)/20.0)
	load += math.Min(0.4, s.sumWeights(f, DimContextLoad))

	return DimensionScores{
		DimRisk:        scale(risk),
		DimScope:       scale(scope),
		DimUrgency:     scale(urgency),
		DimContextLoad: scale(load),
	}
}

func (s *Scorer) sumWeights(f features.Features, dim string) float64 {
	var total float64
	for signal, w := range s.rule.DimensionWeights[dim] {
		if f.Has(signal) {
			total += w
		}
	}
	return total
}

func (s *Scorer) maxWeight(f features.Features, dim string) float64 {
	var top float64
	for signal, w := range s.rule.DimensionWeights[dim] {
		if f.Has(signal) && w > top {
			top = w
		}
	}
	return top
}

// decisionFactors lists the high-impact dimensions behind the choice.
func decisionFactors(scores DimensionScores, w Workflow) []string {
	var factors []string
	for _, dim := range []string{DimComplexity, DimScope, DimRisk, DimContextLoad, DimUrgency} {
		if scores[dim] >= 7 {
			factors = append(factors, fmt.Sprintf("high %s (%d/10)", strings.ReplaceAll(dim, "_", " "), scores[dim]))
		}
	}
	switch w {
	case WorkflowLightweight:
		factors = append(factors, "suitable for streamlined execution")
	case WorkflowStandardValidated:
		factors = append(factors, "requires a validation pass")
	case WorkflowPhaseBased:
		factors = append(factors, "benefits from phased execution")
	case WorkflowPRDBased:
		factors = append(factors, "feature work driven by a requirements doc")
	case WorkflowStandardsSetup:
		factors = append(factors, "establishes project standards first")
	}
	return factors
}

// alternatives ranks the non-selected workflows by affinity-weighted
// suitability and keeps the viable top three.
func alternatives(scores DimensionScores, selected Workflow) []Alternative {
	var alts []Alternative
	for _, w := range Workflows() {
		if w == selected {
			continue
		}
		var sum float64
		for dim, weight := range workflowAffinity[w] {
			normalized := float64(scores[dim]-ScoreMin) / float64(ScoreMax-ScoreMin)
			sum += weight * (normalized - 0.5)
		}
		suitability := clip01(0.5 + sum)
		if suitability > 0.2 {
			alts = append(alts, Alternative{Workflow: w, Suitability: suitability})
		}
	}
	sort.Slice(alts, func(i, j int) bool {
		if alts[i].Suitability != alts[j].Suitability {
			return alts[i].Suitability > alts[j].Suitability
		}
		return alts[i].Workflow < alts[j].Workflow
	})
	if len(alts) > 3 {
		alts = alts[:3]
	}
	return alts
}

// scale maps an accumulated [0,1] signal weight onto the 1-10 score range.
func scale(v float64) int {
	return ScoreMin + int(math.Round(clip01(v)*float64(ScoreMax-ScoreMin)))
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
