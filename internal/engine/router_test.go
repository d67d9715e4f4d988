package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/routed/internal/aggregate"
	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

func newTestRouter(t *testing.T) (*Router, *outcomes.Store) {
	t.Helper()
	dir := t.TempDir()

	rules, err := scoring.NewRuleStore(filepath.Join(dir, "rules"), nil)
	require.NoError(t, err)
	store, err := outcomes.NewStore(filepath.Join(dir, "outcomes", outcomes.DefaultLogName), nil)
	require.NoError(t, err)
	rec, err := learning.NewRecommender(store, learning.DefaultConfig(), nil)
	require.NoError(t, err)
	router, err := New(rules, store, rec, nil)
	require.NoError(t, err)
	return router, store
}

// seedHistory writes n completed outcomes for a category and workflow,
// successes of them successful.
func seedHistory(t *testing.T, store *outcomes.Store, category features.Category, workflow scoring.Workflow, n, successes int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		fp := fmt.Sprintf("seed-%s-%02d", workflow, i)
		require.NoError(t, store.Record(ctx, &outcomes.DecisionRecord{
			ID:          uuid.NewString(),
			Fingerprint: fp,
			Category:    category,
			Scores:      scoring.DimensionScores{scoring.DimComplexity: 5},
			Workflow:    workflow,
			RuleVersion: "builtin",
			Timestamp:   time.Now().UTC(),
		}))
		require.NoError(t, store.RecordOutcome(ctx, fp, i < successes, 30))
	}
}

func TestRoute_SimpleFixGoesLightweight(t *testing.T) {
	router, _ := newTestRouter(t)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "Fix typo in README",
		Metrics: features.Metrics{Tokens: 500, LoadedFiles: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.WorkflowLightweight, resp.Workflow)
	assert.Equal(t, SourceBaseline, resp.Source)
	assert.LessOrEqual(t, resp.Complexity, 3)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.NotEmpty(t, resp.Reasoning)
}

func TestRoute_BroadRiskyRefactorGoesPhaseBased(t *testing.T) {
	router, _ := newTestRouter(t)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "Refactor authentication across all microservices",
		Metrics: features.Metrics{Tokens: 5000, LoadedFiles: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.WorkflowPhaseBased, resp.Workflow)
	assert.Equal(t, features.CategoryAuthentication, resp.Category)
	assert.GreaterOrEqual(t, resp.Complexity, 7)
}

func TestRoute_ContextPressureOverridesEverything(t *testing.T) {
	router, store := newTestRouter(t)

	// Strong contrary history must not beat context protection.
	seedHistory(t, store, features.CategoryUI, scoring.WorkflowLightweight, 20, 20)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "adjust button styling",
		Metrics: features.Metrics{Tokens: 50000, LoadedFiles: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.WorkflowPhaseBased, resp.Workflow)
	assert.Equal(t, SourceOverride, resp.Source)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Nil(t, resp.Learned, "learning is not consulted under context pressure")
}

func TestRoute_ConfidentHistoryOverridesBaseline(t *testing.T) {
	router, store := newTestRouter(t)

	// 10 authentication tasks succeeded with phase_based; the baseline for a
	// modest auth task would be standard_validated.
	seedHistory(t, store, features.CategoryAuthentication, scoring.WorkflowPhaseBased, 10, 9)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "update login page copy",
		Metrics: features.Metrics{Tokens: 2000, LoadedFiles: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.WorkflowPhaseBased, resp.Workflow)
	assert.Equal(t, SourceLearned, resp.Source)
	require.NotNil(t, resp.Learned)
	assert.Equal(t, 10, resp.Learned.SampleSize)
	assert.Contains(t, resp.Reasoning, "learned override")
}

func TestRoute_AgreeingHistoryConfirmsBaseline(t *testing.T) {
	router, store := newTestRouter(t)

	seedHistory(t, store, features.CategoryAuthentication, scoring.WorkflowStandardValidated, 10, 9)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "update login page copy",
		Metrics: features.Metrics{Tokens: 2000, LoadedFiles: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, scoring.WorkflowStandardValidated, resp.Workflow)
	assert.Equal(t, SourceBaseline, resp.Source, "an agreeing recommendation confirms rather than overrides")
	assert.Contains(t, resp.Reasoning, "confirmed by 10 recorded outcomes")
}

func TestRoute_NoHistoryFallsBackToBaseline(t *testing.T) {
	router, _ := newTestRouter(t)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "add pagination to the users endpoint",
		Metrics: features.Metrics{Tokens: 1000, LoadedFiles: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceBaseline, resp.Source)
	assert.Nil(t, resp.Learned)
}

func TestRoute_InputValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	var verr *InputValidationError

	_, err := router.Route(ctx, RouteRequest{Task: "fix bug", Metrics: features.Metrics{Tokens: -1}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "metrics", verr.Field)

	_, err = router.Route(ctx, RouteRequest{Task: "fix bug", Metrics: features.Metrics{LoadedFiles: -1}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "metrics", verr.Field)
}

func TestRoute_EmptyTaskTextIsRoutable(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	resp, err := router.Route(ctx, RouteRequest{
		Task:    "",
		Metrics: features.Metrics{Tokens: 500, LoadedFiles: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, features.CategoryGeneric, resp.Category)
	assert.Equal(t, scoring.WorkflowLightweight, resp.Workflow)
	assert.Equal(t, SourceBaseline, resp.Source)
	assert.NotEmpty(t, resp.Fingerprint)

	// Context pressure still applies when there is no text to read.
	resp, err = router.Route(ctx, RouteRequest{
		Task:    "   ",
		Metrics: features.Metrics{Tokens: 50000, LoadedFiles: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, scoring.WorkflowPhaseBased, resp.Workflow)
	assert.Equal(t, SourceOverride, resp.Source)
}

func TestRoute_DecisionIsRecorded(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	resp, err := router.Route(ctx, RouteRequest{Task: "fix broken link", Metrics: features.Metrics{Tokens: 100}})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDecisions)
	assert.Equal(t, 1, stats.ByWorkflow[resp.Workflow])
}

func TestReportOutcome_RoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	resp, err := router.Route(ctx, RouteRequest{Task: "fix broken link", Metrics: features.Metrics{Tokens: 100}})
	require.NoError(t, err)

	require.NoError(t, router.ReportOutcome(ctx, resp.Fingerprint, true, 12))

	stats, err := router.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalOutcomes)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, "builtin", stats.RuleVersion)
}

func TestReportOutcome_Validation(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	var verr *InputValidationError
	require.ErrorAs(t, router.ReportOutcome(ctx, "", true, 5), &verr)
	require.ErrorAs(t, router.ReportOutcome(ctx, "fp", true, -3), &verr)

	assert.ErrorIs(t, router.ReportOutcome(ctx, "never-routed", true, 5), outcomes.ErrUnknownFingerprint)
}

func TestRoute_AlwaysResolvesToKnownWorkflow(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := context.Background()

	tasks := []string{
		"fix typo",
		"set up project standards and conventions",
		"implement a new feature for multiple teams",
		"migrate the database schema across all services",
		"update checkout billing flow",
		"asdf qwerty zxcv",
		"improve test coverage for the api layer",
		"refactor the entire distributed system architecture",
	}
	for _, task := range tasks {
		resp, err := router.Route(ctx, RouteRequest{Task: task, Metrics: features.Metrics{Tokens: 1000}})
		require.NoError(t, err, task)
		assert.True(t, resp.Workflow.Valid(), "task %q resolved to %q", task, resp.Workflow)
		assert.GreaterOrEqual(t, resp.Complexity, scoring.ScoreMin)
		assert.LessOrEqual(t, resp.Complexity, scoring.ScoreMax)
	}
}

func TestAggregate_ThroughFacade(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	seedHistory(t, store, features.CategoryAPI, scoring.WorkflowStandardValidated, 10, 9)

	result, err := router.Aggregate(ctx, aggregate.DefaultConfig(), []string{store.Path()})
	require.NoError(t, err)
	// Recorded history matches what the active rules already pick, so the
	// proposed patterns cannot clear the material margin.
	assert.Equal(t, aggregate.OutcomeRejected, result.Stats.Outcome)
	assert.Empty(t, result.NewRuleVersion)
	assert.Equal(t, 1, result.Stats.Patterns)

	_, err = router.Aggregate(ctx, aggregate.DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestRoute_SetupTaskRoutesToStandardsSetup(t *testing.T) {
	router, _ := newTestRouter(t)

	resp, err := router.Route(context.Background(), RouteRequest{
		Task:    "bootstrap project conventions",
		Metrics: features.Metrics{Tokens: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, scoring.WorkflowStandardsSetup, resp.Workflow)
	assert.Equal(t, features.CategorySetup, resp.Category)
}
