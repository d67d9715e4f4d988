// Package engine is the routing facade. It wires the feature extractor,
// the rule-based scorer, and the learning recommender into a single Route
// call, and records every decision in the outcome log.
//
// Decision precedence, highest first:
//
//  1. Context pressure always routes to phase-based execution. Learned
//     history never overrides context protection.
//  2. A confident learned recommendation replaces the rule-based pick.
//  3. The rule-based baseline.
//
// The learning path degrades, never fails: if the outcome store is
// unreadable the baseline decision still goes out.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/aggregate"
	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
	"github.com/fyrsmithlabs/routed/internal/telemetry"
)

// Decision sources reported in responses and metrics.
const (
	SourceBaseline = "baseline"
	SourceLearned  = "learned"
	SourceOverride = "override"
)

// InputValidationError marks a request the caller can fix.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RouteRequest is one task to route.
type RouteRequest struct {
	Task    string           `json:"task"`
	Metrics features.Metrics `json:"metrics"`
}

// RouteResponse is the full routing decision returned to callers. The
// fingerprint is the handle for reporting the outcome later.
type RouteResponse struct {
	Workflow     scoring.Workflow         `json:"workflow"`
	Confidence   float64                  `json:"confidence"`
	Reasoning    string                   `json:"reasoning"`
	Source       string                   `json:"source"`
	Category     features.Category        `json:"category"`
	Complexity   int                      `json:"complexity"`
	Scores       scoring.DimensionScores  `json:"dimension_scores"`
	Factors      []string                 `json:"decision_factors,omitempty"`
	Alternatives []scoring.Alternative    `json:"alternatives,omitempty"`
	Learned      *learning.Recommendation `json:"learned,omitempty"`
	Fingerprint  string                   `json:"fingerprint"`
	RuleVersion  string                   `json:"rule_version"`
}

// Router routes tasks to workflows.
type Router struct {
	rules       *scoring.RuleStore
	store       *outcomes.Store
	recommender *learning.Recommender
	logger      *zap.Logger
}

// New assembles a router from its parts.
func New(rules *scoring.RuleStore, store *outcomes.Store, recommender *learning.Recommender, logger *zap.Logger) (*Router, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if store == nil {
		return nil, fmt.Errorf("outcome store is required")
	}
	if recommender == nil {
		return nil, fmt.Errorf("recommender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{rules: rules, store: store, recommender: recommender, logger: logger}, nil
}

// Route decides the workflow for one task. Task text may be empty; it
// extracts to the generic category and routing proceeds on metrics alone.
func (r *Router) Route(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	start := time.Now()

	if err := req.Metrics.Validate(); err != nil {
		return nil, &InputValidationError{Field: "metrics", Reason: err.Error()}
	}

	rule := r.rules.Active()
	f := features.Extract(req.Task, req.Metrics)
	baseline := scoring.NewScorer(rule).Score(f, req.Metrics)

	resp := &RouteResponse{
		Workflow:     baseline.Workflow,
		Confidence:   baseline.Confidence,
		Reasoning:    baseline.Reasoning,
		Source:       SourceBaseline,
		Category:     f.Category,
		Complexity:   baseline.Complexity,
		Scores:       baseline.Scores,
		Factors:      baseline.Factors,
		Alternatives: baseline.Alternatives,
		Fingerprint:  outcomes.Fingerprint(req.Task, f.Category),
		RuleVersion:  rule.Version,
	}

	if baseline.Rule == scoring.RuleContextOverride {
		resp.Source = SourceOverride
	} else {
		r.applyLearning(ctx, f, resp)
	}

	r.record(ctx, resp)
	telemetry.RecordDecision(string(resp.Workflow), resp.Source, time.Since(start))
	exposeRuleVersion(rule.Version)

	r.logger.Info("routed task",
		zap.String("fingerprint", resp.Fingerprint),
		zap.String("category", string(resp.Category)),
		zap.String("workflow", string(resp.Workflow)),
		zap.String("source", resp.Source),
		zap.Float64("confidence", resp.Confidence),
		zap.Int("complexity", resp.Complexity))

	return resp, nil
}

// applyLearning consults recorded history and, when confident, replaces the
// baseline pick. Store failures only cost the learning signal.
func (r *Router) applyLearning(ctx context.Context, f features.Features, resp *RouteResponse) {
	rec, _, err := r.recommender.Recommend(ctx, f.Category)
	if err != nil {
		r.logger.Warn("learning lookup failed, keeping baseline decision",
			zap.String("category", string(f.Category)), zap.Error(err))
		return
	}
	if rec == nil {
		return
	}

	resp.Learned = rec
	if rec.Workflow == resp.Workflow {
		// History confirms the baseline.
		if rec.Confidence > resp.Confidence {
			resp.Confidence = rec.Confidence
		}
		resp.Reasoning = fmt.Sprintf("%s; confirmed by %d recorded outcomes at %.0f%% success",
			resp.Reasoning, rec.SampleSize, rec.SuccessRate*100)
		return
	}

	resp.Workflow = rec.Workflow
	resp.Confidence = rec.Confidence
	resp.Source = SourceLearned
	resp.Reasoning = fmt.Sprintf("learned override: %d recorded %s tasks succeeded %.0f%% of the time with %s",
		rec.SampleSize, f.Category, rec.SuccessRate*100, rec.Workflow)
}

// record appends the decision to the outcome log. Best effort: routing
// never fails because learning data could not be written.
func (r *Router) record(ctx context.Context, resp *RouteResponse) {
	err := r.store.Record(ctx, &outcomes.DecisionRecord{
		ID:          uuid.NewString(),
		Fingerprint: resp.Fingerprint,
		Category:    resp.Category,
		Scores:      resp.Scores,
		Workflow:    resp.Workflow,
		RuleVersion: resp.RuleVersion,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("failed to record decision", zap.String("fingerprint", resp.Fingerprint), zap.Error(err))
	}
}

// ReportOutcome records how a routed task went.
func (r *Router) ReportOutcome(ctx context.Context, fingerprint string, success bool, durationMinutes int) error {
	if fingerprint == "" {
		return &InputValidationError{Field: "fingerprint", Reason: "must not be empty"}
	}
	if durationMinutes < 0 {
		return &InputValidationError{Field: "duration_minutes", Reason: "must be >= 0"}
	}

	if err := r.store.RecordOutcome(ctx, fingerprint, success, durationMinutes); err != nil {
		return err
	}
	telemetry.RecordOutcome(success)

	r.logger.Info("recorded outcome",
		zap.String("fingerprint", fingerprint),
		zap.Bool("success", success),
		zap.Int("duration_minutes", durationMinutes))
	return nil
}

// StatsResponse is the summary surface for operators.
type StatsResponse struct {
	outcomes.Stats
	RuleVersion string `json:"rule_version"`
}

// Stats summarizes recorded activity and the active rule version.
func (r *Router) Stats(ctx context.Context) (*StatsResponse, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.SkippedRecords > 0 {
		telemetry.CorruptRecordsSkipped.Add(float64(stats.SkippedRecords))
	}
	return &StatsResponse{Stats: *stats, RuleVersion: r.rules.Active().Version}, nil
}

// Aggregate runs the offline aggregation job over the given outcome logs,
// publishing a new scoring rule version when the merged patterns validate
// materially better than the active ones.
func (r *Router) Aggregate(ctx context.Context, cfg aggregate.Config, inputs []string) (*aggregate.Result, error) {
	agg, err := aggregate.New(r.rules, cfg, r.logger)
	if err != nil {
		return nil, err
	}

	result, err := agg.Run(ctx, inputs)
	if err != nil {
		telemetry.RecordAggregation("error")
		return nil, err
	}
	telemetry.RecordAggregation(result.Stats.Outcome)
	return result, nil
}

// exposeRuleVersion publishes the numeric component of a "vNNNN" version,
// 0 for the built-in default.
func exposeRuleVersion(version string) {
	n, err := strconv.Atoi(strings.TrimPrefix(version, "v"))
	if err != nil {
		n = 0
	}
	telemetry.ActiveRuleVersion.Set(float64(n))
}
