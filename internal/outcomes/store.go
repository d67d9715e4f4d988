package outcomes

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

// DefaultLogName is the fixed relative file name of the outcome log within
// a data directory.
const DefaultLogName = "decisions.jsonl"

// maxLineBytes bounds a single log line during streaming reads.
const maxLineBytes = 1 << 20

// logLine is the self-describing on-disk envelope. Exactly one of Decision
// or Outcome is set, discriminated by Kind.
type logLine struct {
	Kind     string          `json:"kind"`
	Decision *DecisionRecord `json:"decision,omitempty"`
	Outcome  *outcomeEntry   `json:"outcome,omitempty"`
}

type outcomeEntry struct {
	Fingerprint     string    `json:"fingerprint"`
	Success         bool      `json:"success"`
	DurationMinutes int       `json:"duration_minutes"`
	ReportedAt      time.Time `json:"reported_at"`
}

const (
	kindDecision = "decision"
	kindOutcome  = "outcome"
)

// Store is the append-only outcome log. No operation ever deletes or
// rewrites an existing entry. Each append is a single O_APPEND write of one
// complete line, so concurrent writers from independent sessions never
// interleave within a record and readers never observe a half-written one.
type Store struct {
	path   string
	logger *zap.Logger

	// known caches fingerprints confirmed in this process so repeat
	// outcome reports skip the log scan. A miss still falls back to the
	// file, which other processes may have appended to.
	mu    sync.Mutex
	known map[string]struct{}
}

// NewStore opens the log at path, creating parent directories as needed.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outcome dir: %w", err)
	}
	return &Store{path: path, logger: logger, known: make(map[string]struct{})}, nil
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// Record appends a routing decision.
func (s *Store) Record(ctx context.Context, rec *DecisionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid decision record: %w", err)
	}
	if err := s.append(logLine{Kind: kindDecision, Decision: rec}); err != nil {
		return err
	}
	s.remember(rec.Fingerprint)
	return nil
}

// RecordOutcome appends the reported outcome for a previously recorded
// decision. Fingerprints recorded by this process are confirmed without
// rescanning the log. Unknown fingerprints are rejected; corrupt lines
// encountered while confirming the fingerprint surface as a
// CorruptRecordError only when they prevented confirmation.
func (s *Store) RecordOutcome(ctx context.Context, fingerprint string, success bool, durationMinutes int) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if durationMinutes < 0 {
		return fmt.Errorf("duration_minutes must be >= 0, got %d", durationMinutes)
	}

	if !s.knows(fingerprint) {
		found := false
		skipped, err := s.scan(ctx, func(line logLine) {
			if line.Kind == kindDecision && line.Decision.Fingerprint == fingerprint {
				found = true
			}
		})
		if err != nil {
			return err
		}
		if !found {
			if skipped > 0 {
				return fmt.Errorf("%w %s: %w", ErrUnknownFingerprint, fingerprint, &CorruptRecordError{Skipped: skipped})
			}
			return fmt.Errorf("%w %s", ErrUnknownFingerprint, fingerprint)
		}
		s.remember(fingerprint)
	}

	return s.append(logLine{Kind: kindOutcome, Outcome: &outcomeEntry{
		Fingerprint:     fingerprint,
		Success:         success,
		DurationMinutes: durationMinutes,
		ReportedAt:      time.Now().UTC(),
	}})
}

func (s *Store) knows(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[fingerprint]
	return ok
}

func (s *Store) remember(fingerprint string) {
	s.mu.Lock()
	s.known[fingerprint] = struct{}{}
	s.mu.Unlock()
}

// QuerySimilar returns the completed outcome records for a category, joined
// from decision and outcome lines by fingerprint. The skipped count reports
// corrupt lines passed over during the read.
func (s *Store) QuerySimilar(ctx context.Context, category features.Category) ([]OutcomeRecord, int, error) {
	decisions := make(map[string]DecisionRecord)
	var outcomes []outcomeEntry

	skipped, err := s.scan(ctx, func(line logLine) {
		switch line.Kind {
		case kindDecision:
			if line.Decision.Category == category {
				decisions[line.Decision.Fingerprint] = *line.Decision
			}
		case kindOutcome:
			outcomes = append(outcomes, *line.Outcome)
		}
	})
	if err != nil {
		return nil, 0, err
	}

	var records []OutcomeRecord
	for _, o := range outcomes {
		dec, ok := decisions[o.Fingerprint]
		if !ok {
			continue
		}
		records = append(records, OutcomeRecord{
			DecisionRecord:  dec,
			Success:         o.Success,
			DurationMinutes: o.DurationMinutes,
			ReportedAt:      o.ReportedAt,
		})
	}
	return records, skipped, nil
}

// Joined returns every completed outcome record in the log, joined across
// all categories. Used by the offline aggregator, which treats each log
// file as one contributor.
func (s *Store) Joined(ctx context.Context) ([]OutcomeRecord, int, error) {
	decisions := make(map[string]DecisionRecord)
	var entries []outcomeEntry

	skipped, err := s.scan(ctx, func(line logLine) {
		switch line.Kind {
		case kindDecision:
			decisions[line.Decision.Fingerprint] = *line.Decision
		case kindOutcome:
			entries = append(entries, *line.Outcome)
		}
	})
	if err != nil {
		return nil, 0, err
	}

	var records []OutcomeRecord
	for _, o := range entries {
		dec, ok := decisions[o.Fingerprint]
		if !ok {
			continue
		}
		records = append(records, OutcomeRecord{
			DecisionRecord:  dec,
			Success:         o.Success,
			DurationMinutes: o.DurationMinutes,
			ReportedAt:      o.ReportedAt,
		})
	}
	return records, skipped, nil
}

// Stats summarizes the whole log for reporting.
type Stats struct {
	TotalDecisions int                      `json:"total_decisions"`
	TotalOutcomes  int                      `json:"total_outcomes"`
	Successes      int                      `json:"successes"`
	SuccessRate    float64                  `json:"success_rate"`
	ByWorkflow     map[scoring.Workflow]int `json:"workflow_distribution"`
	SkippedRecords int                      `json:"skipped_records,omitempty"`
}

// Stats computes summary statistics across the full log.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByWorkflow: make(map[scoring.Workflow]int)}

	skipped, err := s.scan(ctx, func(line logLine) {
		switch line.Kind {
		case kindDecision:
			stats.TotalDecisions++
			stats.ByWorkflow[line.Decision.Workflow]++
		case kindOutcome:
			stats.TotalOutcomes++
			if line.Outcome.Success {
				stats.Successes++
			}
		}
	})
	if err != nil {
		return nil, err
	}

	stats.SkippedRecords = skipped
	if stats.TotalOutcomes > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalOutcomes)
	}
	return stats, nil
}

// append writes one complete line with a single O_APPEND write.
func (s *Store) append(line logLine) error {
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode log line: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open outcome log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append outcome log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close outcome log: %w", err)
	}
	return nil
}

// scan streams the log line by line, invoking fn for each well-formed
// record and counting the malformed ones. A missing log is an empty log.
func (s *Store) scan(ctx context.Context, fn func(logLine)) (skipped int, err error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open outcome log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line logLine
		if err := json.Unmarshal(raw, &line); err != nil || !wellFormed(line) {
			skipped++
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("read outcome log: %w", err)
	}

	if skipped > 0 {
		s.logger.Warn("skipped corrupt outcome log records", zap.Int("skipped", skipped), zap.String("path", s.path))
	}
	return skipped, nil
}

func wellFormed(line logLine) bool {
	switch line.Kind {
	case kindDecision:
		return line.Decision != nil && line.Decision.Validate() == nil
	case kindOutcome:
		return line.Outcome != nil && line.Outcome.Fingerprint != ""
	default:
		return false
	}
}
