package mcp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/engine"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

func newTestRouter(t *testing.T) *engine.Router {
	t.Helper()
	dir := t.TempDir()

	rules, err := scoring.NewRuleStore(filepath.Join(dir, "rules"), nil)
	require.NoError(t, err)
	store, err := outcomes.NewStore(filepath.Join(dir, "outcomes", outcomes.DefaultLogName), nil)
	require.NoError(t, err)
	rec, err := learning.NewRecommender(store, learning.DefaultConfig(), nil)
	require.NoError(t, err)
	router, err := engine.New(rules, store, rec, nil)
	require.NoError(t, err)
	return router
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(nil, newTestRouter(t))
	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.NotNil(t, srv.mcp)
}

func TestNewServer_RequiresRouter(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestNewServer_NilLoggerDefaults(t *testing.T) {
	cfg := &Config{Name: "routed-test", Version: "0.0.1", Logger: nil}
	srv, err := NewServer(cfg, newTestRouter(t))
	require.NoError(t, err)
	assert.NotNil(t, srv.logger)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "routed", cfg.Name)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.IsType(t, &zap.Logger{}, cfg.Logger)
}
