package learning

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

// fakeSource serves canned outcome records per category.
type fakeSource struct {
	records map[features.Category][]outcomes.OutcomeRecord
	skipped int
	err     error
}

func (f *fakeSource) QuerySimilar(_ context.Context, category features.Category) ([]outcomes.OutcomeRecord, int, error) {
	return f.records[category], f.skipped, f.err
}

func record(category features.Category, workflow scoring.Workflow, success bool) outcomes.OutcomeRecord {
	return outcomes.OutcomeRecord{
		DecisionRecord: outcomes.DecisionRecord{
			Fingerprint: "fp",
			Category:    category,
			Workflow:    workflow,
		},
		Success: success,
	}
}

func newRecommender(t *testing.T, source OutcomeSource) *Recommender {
	t.Helper()
	r, err := NewRecommender(source, DefaultConfig(), nil)
	require.NoError(t, err)
	return r
}

func TestConfidence_Saturating(t *testing.T) {
	assert.Zero(t, Confidence(0, 5))
	assert.InDelta(t, 1.0/6.0, Confidence(1, 5), 1e-9)
	assert.InDelta(t, 0.5, Confidence(5, 5), 1e-9)
	assert.InDelta(t, 2.0/3.0, Confidence(10, 5), 1e-9)
	assert.Less(t, Confidence(1000, 5), 1.0, "confidence approaches but never reaches 1")
}

func TestConfidence_MonotoneInSampleSize(t *testing.T) {
	prev := 0.0
	for n := 0; n <= 100; n++ {
		c := Confidence(n, DefaultSmoothingK)
		assert.GreaterOrEqual(t, c, prev, "n=%d", n)
		prev = c
	}
}

func TestRecommender_ZeroSamplesNeverGuesses(t *testing.T) {
	r := newRecommender(t, &fakeSource{})

	rec, _, err := r.Recommend(context.Background(), features.CategoryDatabase)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecommender_SparseDataDefersToBaseline(t *testing.T) {
	// 3 records: confidence 3/8 = 0.375 < 0.6 threshold.
	src := &fakeSource{records: map[features.Category][]outcomes.OutcomeRecord{
		features.CategoryAPI: {
			record(features.CategoryAPI, scoring.WorkflowLightweight, true),
			record(features.CategoryAPI, scoring.WorkflowLightweight, true),
			record(features.CategoryAPI, scoring.WorkflowLightweight, true),
		},
	}}
	r := newRecommender(t, src)

	rec, _, err := r.Recommend(context.Background(), features.CategoryAPI)
	require.NoError(t, err)
	assert.Nil(t, rec, "a perfect streak over a sparse sample is not evidence")
}

func TestRecommender_RecommendsHighSuccessWorkflow(t *testing.T) {
	// 10 authentication outcomes, 9 successes, all standard_validated:
	// success_rate 0.9, confidence 10/15 ~ 0.667 >= 0.6.
	var recs []outcomes.OutcomeRecord
	for i := 0; i < 10; i++ {
		recs = append(recs, record(features.CategoryAuthentication, scoring.WorkflowStandardValidated, i < 9))
	}
	src := &fakeSource{records: map[features.Category][]outcomes.OutcomeRecord{
		features.CategoryAuthentication: recs,
	}}
	r := newRecommender(t, src)

	rec, _, err := r.Recommend(context.Background(), features.CategoryAuthentication)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, scoring.WorkflowStandardValidated, rec.Workflow)
	assert.InDelta(t, 0.9, rec.SuccessRate, 1e-9)
	assert.GreaterOrEqual(t, rec.Confidence, 0.6)
	assert.Equal(t, 10, rec.SampleSize)
}

func TestRecommender_PicksBestRateAmongConfident(t *testing.T) {
	var recs []outcomes.OutcomeRecord
	// lightweight: 10 samples, 60% success
	for i := 0; i < 10; i++ {
		recs = append(recs, record(features.CategoryUI, scoring.WorkflowLightweight, i < 6))
	}
	// standard_validated: 8 samples, 100% success
	for i := 0; i < 8; i++ {
		recs = append(recs, record(features.CategoryUI, scoring.WorkflowStandardValidated, true))
	}
	src := &fakeSource{records: map[features.Category][]outcomes.OutcomeRecord{features.CategoryUI: recs}}
	r := newRecommender(t, src)

	rec, _, err := r.Recommend(context.Background(), features.CategoryUI)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, scoring.WorkflowStandardValidated, rec.Workflow)
	assert.InDelta(t, 1.0, rec.SuccessRate, 1e-9)
}

func TestRecommender_LowConfidenceWorkflowExcluded(t *testing.T) {
	var recs []outcomes.OutcomeRecord
	// phase_based: 2 samples, perfect, but confidence 2/7 < 0.6
	recs = append(recs,
		record(features.CategoryDatabase, scoring.WorkflowPhaseBased, true),
		record(features.CategoryDatabase, scoring.WorkflowPhaseBased, true),
	)
	// standard_validated: 9 samples, 7 successes, confidence 9/14 > 0.6
	for i := 0; i < 9; i++ {
		recs = append(recs, record(features.CategoryDatabase, scoring.WorkflowStandardValidated, i < 7))
	}
	src := &fakeSource{records: map[features.Category][]outcomes.OutcomeRecord{features.CategoryDatabase: recs}}
	r := newRecommender(t, src)

	rec, _, err := r.Recommend(context.Background(), features.CategoryDatabase)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, scoring.WorkflowStandardValidated, rec.Workflow,
		"the perfect-but-sparse workflow must lose to the confident one")
}

func TestRecommender_PropagatesSkippedCount(t *testing.T) {
	src := &fakeSource{skipped: 3}
	r := newRecommender(t, src)

	rec, skipped, err := r.Recommend(context.Background(), features.CategoryAPI)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 3, skipped)
}

func TestRecommender_SourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("disk on fire")}
	r := newRecommender(t, src)

	_, _, err := r.Recommend(context.Background(), features.CategoryAPI)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	assert.Error(t, Config{SmoothingK: 0, ConfidenceThreshold: 0.6}.Validate())
	assert.Error(t, Config{SmoothingK: 5, ConfidenceThreshold: 0}.Validate())
	assert.Error(t, Config{SmoothingK: 5, ConfidenceThreshold: 1}.Validate())
}
