// Package aggregate implements the offline batch job that merges outcome
// logs from independent contributors into community-wide success patterns
// and, when the evidence is material, publishes a new scoring rule version.
//
// The run is a state machine:
//
//	IDLE -> LOADING -> DEDUPING -> COMPUTING -> VALIDATING
//	     -> {COMMITTING | REJECTING} -> IDLE
//
// Any failure before COMMITTING aborts back to IDLE with the active rule
// set untouched; a partially computed rule set never becomes active.
// Re-running on unchanged inputs is idempotent: the input content digest is
// recorded in each published version and compared before proposing another.
package aggregate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

// State is a position in the aggregation state machine.
type State string

// State machine positions.
const (
	StateIdle       State = "IDLE"
	StateLoading    State = "LOADING"
	StateDeduping   State = "DEDUPING"
	StateComputing  State = "COMPUTING"
	StateValidating State = "VALIDATING"
	StateCommitting State = "COMMITTING"
	StateRejecting  State = "REJECTING"
)

// Run outcomes reported in the stats summary.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeUnchanged = "unchanged"
)

// Config holds the aggregator tunables. The margin and sample floor are
// empirical knobs, never hard-coded at call sites.
type Config struct {
	// MaterialMargin is the success-rate improvement (in absolute terms)
	// a proposed rule set must show over the active one to be committed.
	// Guards against noise-driven churn.
	MaterialMargin float64 `koanf:"material_margin"`
	// MinSampleSize is the smallest sample a pattern needs to be published.
	MinSampleSize int `koanf:"min_sample_size"`
	// HoldoutEvery reserves every Nth record for validation replay.
	HoldoutEvery int `koanf:"holdout_every"`
	// SmoothingK feeds pattern confidence, matching the recommender.
	SmoothingK int `koanf:"smoothing_k"`
	// ConfidenceThreshold gates learned patterns during validation replay.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
}

// DefaultConfig returns the default aggregator tunables.
func DefaultConfig() Config {
	return Config{
		MaterialMargin:      0.10,
		MinSampleSize:       5,
		HoldoutEvery:        5,
		SmoothingK:          learning.DefaultSmoothingK,
		ConfidenceThreshold: learning.DefaultConfidenceThreshold,
	}
}

// Validate checks the tunables are usable.
func (c Config) Validate() error {
	if c.MaterialMargin < 0 || c.MaterialMargin >= 1 {
		return fmt.Errorf("material_margin must be in [0,1), got %v", c.MaterialMargin)
	}
	if c.MinSampleSize < 1 {
		return fmt.Errorf("min_sample_size must be >= 1, got %d", c.MinSampleSize)
	}
	if c.HoldoutEvery < 2 {
		return fmt.Errorf("holdout_every must be >= 2, got %d", c.HoldoutEvery)
	}
	if c.SmoothingK < 1 {
		return fmt.Errorf("smoothing_k must be >= 1, got %d", c.SmoothingK)
	}
	return nil
}

// Summary is the stats block returned by every run.
type Summary struct {
	Sources        int     `json:"sources"`
	Contributors   int     `json:"contributors"`
	RecordsLoaded  int     `json:"records_loaded"`
	Duplicates     int     `json:"duplicates_removed"`
	SkippedRecords int     `json:"skipped_records"`
	Patterns       int     `json:"patterns"`
	ActiveRate     float64 `json:"active_success_rate"`
	ProposedRate   float64 `json:"proposed_success_rate"`
	Outcome        string  `json:"outcome"`
}

// Result is the output of one aggregation run.
type Result struct {
	// NewRuleVersion is empty when no version was committed.
	NewRuleVersion string  `json:"new_rule_version,omitempty"`
	Stats          Summary `json:"stats_summary"`
	// Report is a human-readable markdown digest of the learned patterns.
	Report string `json:"-"`
}

// Aggregator merges outcome logs and publishes rule versions. It is an
// operator-triggered batch job, never on the routing path; only one run
// executes at a time.
type Aggregator struct {
	rules  *scoring.RuleStore
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates an aggregator that publishes into the given rule store.
func New(rules *scoring.RuleStore, cfg Config, logger *zap.Logger) (*Aggregator, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aggregator config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{rules: rules, cfg: cfg, logger: logger, state: StateIdle}, nil
}

// State returns the current state-machine position.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Aggregator) transition(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.logger.Debug("aggregator state transition", zap.String("state", string(s)))
}

// contribution tags a record with the source it came from so deduplication
// stays per-contributor: the same fingerprint from two users is two events.
type contribution struct {
	source int
	record outcomes.OutcomeRecord
}

// Run executes one full aggregation pass over the given outcome logs.
// Safe to interrupt via ctx at any transition; the active rule set is only
// touched in COMMITTING.
func (a *Aggregator) Run(ctx context.Context, inputs []string) (result *Result, err error) {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return nil, fmt.Errorf("aggregation already in progress (state %s)", a.state)
	}
	a.state = StateLoading
	a.mu.Unlock()

	// Every exit path lands back in IDLE.
	defer a.transition(StateIdle)

	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input logs given")
	}

	summary := Summary{Sources: len(inputs)}

	// LOADING: stream each log, joining decisions with their outcomes.
	contribs, skipped, err := a.load(ctx, inputs, &summary)
	if err != nil {
		return nil, fmt.Errorf("loading failed: %w", err)
	}
	summary.SkippedRecords = skipped

	// DEDUPING: drop exact duplicates per contributor so a re-merged log
	// never double-counts.
	a.transition(StateDeduping)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deduped, digest, duplicates := dedupe(contribs)
	summary.RecordsLoaded = len(deduped)
	summary.Duplicates = duplicates

	active := a.rules.Active()
	if unchanged, err := a.alreadyAggregated(digest, active); err != nil {
		return nil, err
	} else if unchanged {
		summary.Outcome = OutcomeUnchanged
		a.logger.Info("inputs unchanged since last aggregation, no new version", zap.String("digest", digest))
		return &Result{Stats: summary}, nil
	}

	// COMPUTING: sum per-pair counts into success patterns.
	a.transition(StateComputing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patterns := a.compute(deduped)
	summary.Patterns = len(patterns)

	proposed := a.propose(active, patterns, digest)

	// VALIDATING: replay both rule sets against the held-out records.
	a.transition(StateValidating)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	holdout := holdoutSubset(deduped, a.cfg.HoldoutEvery)
	summary.ActiveRate = a.replay(active, holdout)
	summary.ProposedRate = a.replay(proposed, holdout)

	if summary.ProposedRate <= summary.ActiveRate+a.cfg.MaterialMargin {
		a.transition(StateRejecting)
		summary.Outcome = OutcomeRejected
		a.logger.Info("proposed rules rejected, keeping active version",
			zap.Float64("proposed_rate", summary.ProposedRate),
			zap.Float64("active_rate", summary.ActiveRate),
			zap.Float64("material_margin", a.cfg.MaterialMargin))
		return &Result{Stats: summary, Report: renderReport(patterns, summary)}, nil
	}

	// COMMITTING: publish the immutable snapshot, then repoint.
	a.transition(StateCommitting)
	version, err := a.rules.Publish(proposed)
	if err != nil {
		return nil, fmt.Errorf("committing failed: %w", err)
	}
	if err := a.rules.Activate(version); err != nil {
		return nil, fmt.Errorf("activating %s failed: %w", version, err)
	}

	summary.Outcome = OutcomeCommitted
	a.logger.Info("committed new scoring rule version",
		zap.String("version", version),
		zap.Int("patterns", len(patterns)),
		zap.Float64("proposed_rate", summary.ProposedRate),
		zap.Float64("active_rate", summary.ActiveRate))

	return &Result{
		NewRuleVersion: version,
		Stats:          summary,
		Report:         renderReport(patterns, summary),
	}, nil
}

// load reads every contributor log into memory. Cross-contributor dedupe
// and the deterministic holdout split both need the complete record set,
// so the inputs cannot be streamed one at a time.
func (a *Aggregator) load(ctx context.Context, inputs []string, summary *Summary) ([]contribution, int, error) {
	var contribs []contribution
	var skipped int

	for i, path := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		store, err := outcomes.NewStore(path, a.logger)
		if err != nil {
			return nil, 0, fmt.Errorf("open %s: %w", path, err)
		}
		records, s, err := store.Joined(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", path, err)
		}
		skipped += s
		if len(records) > 0 {
			summary.Contributors++
		}
		for _, rec := range records {
			contribs = append(contribs, contribution{source: i, record: rec})
		}
	}
	return contribs, skipped, nil
}

// dedupe removes exact duplicates per contributor and derives the
// order-independent content digest of the surviving set.
func dedupe(contribs []contribution) (kept []contribution, digest string, duplicates int) {
	seen := make(map[string]struct{}, len(contribs))
	keys := make([]string, 0, len(contribs))

	for _, c := range contribs {
		key := fmt.Sprintf("%d|%s|%s|%s|%t|%d|%d",
			c.source,
			c.record.Fingerprint,
			c.record.Category,
			c.record.Workflow,
			c.record.Success,
			c.record.DurationMinutes,
			c.record.ReportedAt.UnixNano(),
		)
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		kept = append(kept, c)
	}

	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return kept, hex.EncodeToString(h.Sum(nil)), duplicates
}

// alreadyAggregated reports whether this input set already produced the
// active or the most recently published version.
func (a *Aggregator) alreadyAggregated(digest string, active *scoring.ScoringRule) (bool, error) {
	if active.SourceDigest == digest {
		return true, nil
	}
	versions, err := a.rules.Versions()
	if err != nil {
		return false, err
	}
	if len(versions) == 0 {
		return false, nil
	}
	latest, err := a.rules.Load(versions[len(versions)-1])
	if err != nil {
		return false, err
	}
	return latest.SourceDigest == digest, nil
}

// compute sums counts per {category, workflow} into success patterns,
// sorted for deterministic output.
func (a *Aggregator) compute(contribs []contribution) []scoring.SuccessPattern {
	type key struct {
		category features.Category
		workflow scoring.Workflow
	}
	type tally struct {
		total     int
		successes int
	}
	tallies := make(map[key]*tally)

	for _, c := range contribs {
		k := key{c.record.Category, c.record.Workflow}
		tl := tallies[k]
		if tl == nil {
			tl = &tally{}
			tallies[k] = tl
		}
		tl.total++
		if c.record.Success {
			tl.successes++
		}
	}

	var patterns []scoring.SuccessPattern
	for k, tl := range tallies {
		if tl.total < a.cfg.MinSampleSize {
			continue
		}
		patterns = append(patterns, scoring.SuccessPattern{
			Category:    k.category,
			Workflow:    k.workflow,
			SampleSize:  tl.total,
			SuccessRate: float64(tl.successes) / float64(tl.total),
			Confidence:  learning.Confidence(tl.total, a.cfg.SmoothingK),
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Category != patterns[j].Category {
			return patterns[i].Category < patterns[j].Category
		}
		return patterns[i].Workflow < patterns[j].Workflow
	})
	return patterns
}

// propose builds the candidate rule set: the active tables with the freshly
// computed patterns swapped in wholesale.
func (a *Aggregator) propose(active *scoring.ScoringRule, patterns []scoring.SuccessPattern, digest string) *scoring.ScoringRule {
	proposed := *active
	proposed.Version = "proposed" // replaced by Publish
	proposed.CreatedAt = time.Now().UTC()
	proposed.SourceDigest = digest
	proposed.Learned = patterns
	return &proposed
}

// replay measures how a rule set would have fared on the held-out records:
// the success rate over records where the rules would have picked the
// workflow that actually ran.
func (a *Aggregator) replay(rule *scoring.ScoringRule, holdout []contribution) float64 {
	matched, successes := 0, 0
	for _, c := range holdout {
		if predict(rule, c.record, a.cfg.ConfidenceThreshold) != c.record.Workflow {
			continue
		}
		matched++
		if c.record.Success {
			successes++
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(successes) / float64(matched)
}

// holdoutSubset reserves every Nth record, after a stable sort so the split
// does not depend on input file order.
func holdoutSubset(contribs []contribution, every int) []contribution {
	sorted := make([]contribution, len(contribs))
	copy(sorted, contribs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].record.Fingerprint != sorted[j].record.Fingerprint {
			return sorted[i].record.Fingerprint < sorted[j].record.Fingerprint
		}
		return sorted[i].record.ReportedAt.Before(sorted[j].record.ReportedAt)
	})

	var holdout []contribution
	for i := every - 1; i < len(sorted); i += every {
		holdout = append(holdout, sorted[i])
	}
	return holdout
}

// predict resolves the workflow a rule set implies for a historical record:
// a confident learned pattern for the category wins, otherwise the recorded
// complexity maps onto the rule's bands.
func predict(rule *scoring.ScoringRule, rec outcomes.OutcomeRecord, threshold float64) scoring.Workflow {
	var best *scoring.SuccessPattern
	for i := range rule.Learned {
		p := &rule.Learned[i]
		if p.Category != rec.Category || p.Confidence < threshold {
			continue
		}
		if best == nil || p.SuccessRate > best.SuccessRate {
			best = p
		}
	}
	if best != nil {
		return best.Workflow
	}

	t := rule.Thresholds
	c := rec.Scores[scoring.DimComplexity]
	switch {
	case c <= t.LightweightMax:
		return scoring.WorkflowLightweight
	case c <= t.StandardMax:
		return scoring.WorkflowStandardValidated
	default:
		return scoring.WorkflowPhaseBased
	}
}
