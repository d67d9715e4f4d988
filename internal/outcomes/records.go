// Package outcomes provides the durable, append-only log of routing
// decisions and their (optionally reported) outcomes.
//
// The log is advisory learning data, not a correctness-critical system of
// record: availability is favored over strict consistency. Appends from
// independent sessions are atomic but unordered, and corrupt lines are
// skipped and counted instead of aborting reads.
package outcomes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

// DecisionRecord captures one routing decision. Created once per routing
// call and immutable thereafter. It carries the task fingerprint, never the
// raw text.
type DecisionRecord struct {
	ID          string                  `json:"id"`
	Fingerprint string                  `json:"fingerprint"`
	Category    features.Category       `json:"category"`
	Scores      scoring.DimensionScores `json:"dimension_scores"`
	Workflow    scoring.Workflow        `json:"workflow_chosen"`
	RuleVersion string                  `json:"rule_version,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Validate rejects records that would poison the log.
func (r *DecisionRecord) Validate() error {
	if r.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if r.Category == "" {
		return fmt.Errorf("category is required")
	}
	if !r.Workflow.Valid() {
		return fmt.Errorf("unknown workflow %q", r.Workflow)
	}
	return nil
}

// OutcomeRecord is a decision joined with its reported outcome. The outcome
// is a separate append keyed by fingerprint; it may never arrive.
type OutcomeRecord struct {
	DecisionRecord
	Success         bool      `json:"success"`
	DurationMinutes int       `json:"duration_minutes"`
	ReportedAt      time.Time `json:"reported_at"`
}

// Fingerprint derives the one-way task identifier from normalized task text
// and its category. It is never reversible to the original text, and no raw
// text is ever persisted alongside it.
func Fingerprint(text string, category features.Category) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized + "\x00" + string(category)))
	return hex.EncodeToString(sum[:8])
}

// CorruptRecordError reports malformed or truncated log entries skipped
// during a read. It is non-fatal: the read continues past bad records and
// the caller decides whether the skipped count matters.
type CorruptRecordError struct {
	Skipped int
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("skipped %d corrupt outcome log record(s)", e.Skipped)
}

// ErrUnknownFingerprint is returned when an outcome references a decision
// that does not exist in the log.
var ErrUnknownFingerprint = fmt.Errorf("no decision recorded for fingerprint")
