package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/routed/internal/features"
)

func TestRuleStore_DefaultsToBuiltin(t *testing.T) {
	store, err := NewRuleStore(t.TempDir(), nil)
	require.NoError(t, err)

	active := store.Active()
	require.NotNil(t, active)
	assert.Equal(t, "builtin", active.Version)
}

func TestRuleStore_PublishAssignsMonotonicVersions(t *testing.T) {
	store, err := NewRuleStore(t.TempDir(), nil)
	require.NoError(t, err)

	v1, err := store.Publish(DefaultRule())
	require.NoError(t, err)
	assert.Equal(t, "v0001", v1)

	v2, err := store.Publish(DefaultRule())
	require.NoError(t, err)
	assert.Equal(t, "v0002", v2)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"v0001", "v0002"}, versions)
}

func TestRuleStore_PublishedVersionsAreImmutable(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRuleStore(dir, nil)
	require.NoError(t, err)

	v1, err := store.Publish(DefaultRule())
	require.NoError(t, err)

	// A direct second write of the same version must be impossible.
	_, err = os.OpenFile(filepath.Join(dir, v1+".json"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	assert.Error(t, err)
}

func TestRuleStore_ActivateSwapsPointer(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRuleStore(dir, nil)
	require.NoError(t, err)

	rule := DefaultRule()
	rule.Learned = []SuccessPattern{{
		Category:    features.CategoryAPI,
		Workflow:    WorkflowStandardValidated,
		SampleSize:  12,
		SuccessRate: 0.9,
		Confidence:  0.7,
	}}
	v1, err := store.Publish(rule)
	require.NoError(t, err)
	require.NoError(t, store.Activate(v1))

	assert.Equal(t, v1, store.Active().Version)

	// A fresh store resolves the same pointer from disk.
	reopened, err := NewRuleStore(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, v1, reopened.Active().Version)
	require.Len(t, reopened.Active().Learned, 1)
	assert.Equal(t, features.CategoryAPI, reopened.Active().Learned[0].Category)
}

func TestRuleStore_ActivateUnknownVersionFails(t *testing.T) {
	store, err := NewRuleStore(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Error(t, store.Activate("v9999"))
	assert.Equal(t, "builtin", store.Active().Version, "failed activation must not change the active rule")
}

func TestRuleStore_LoadRoundTrip(t *testing.T) {
	store, err := NewRuleStore(t.TempDir(), nil)
	require.NoError(t, err)

	published := DefaultRule()
	published.SourceDigest = "abc123"
	v1, err := store.Publish(published)
	require.NoError(t, err)

	loaded, err := store.Load(v1)
	require.NoError(t, err)
	assert.Equal(t, v1, loaded.Version)
	assert.Equal(t, "abc123", loaded.SourceDigest)
	assert.Equal(t, published.Thresholds, loaded.Thresholds)
}
