// Package main implements the routed CLI: an adaptive task-to-workflow
// routing engine with a rule-based baseline that learns from recorded
// outcomes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/config"
	"github.com/fyrsmithlabs/routed/internal/engine"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/logging"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information, set at build time.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "routed",
	Short: "Route tasks to execution workflows",
	Long: `routed decides which execution workflow a task should run, using a
deterministic rule-based baseline blended with patterns learned from
recorded outcomes. Decisions are logged locally; no task text is ever
persisted, only one-way fingerprints.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/routed/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(outcomeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("routed %s\n", version)
	},
}

// app bundles the wired components every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	rules  *scoring.RuleStore
	store  *outcomes.Store
	router *engine.Router
}

// setup loads configuration and wires the engine.
func setup() (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDataDir(cfg); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	rules, err := scoring.NewRuleStore(cfg.Data.RulesDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}
	store, err := outcomes.NewStore(cfg.Data.OutcomeLogPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome store: %w", err)
	}
	recommender, err := learning.NewRecommender(store, cfg.Learning, logger)
	if err != nil {
		return nil, err
	}
	router, err := engine.New(rules, store, recommender, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		rules:  rules,
		store:  store,
		router: router,
	}, nil
}

// close flushes buffered log entries.
func (a *app) close() {
	_ = a.logger.Sync()
}
