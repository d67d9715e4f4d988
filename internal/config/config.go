// Package config provides configuration loading for routed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/routed/internal/aggregate"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/logging"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
)

// Config is the full routed configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Data       DataConfig       `koanf:"data"`
	Learning   learning.Config  `koanf:"learning"`
	Aggregator aggregate.Config `koanf:"aggregator"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// DataConfig locates the on-disk state.
type DataConfig struct {
	// Dir is the root data directory. Outcome logs and rule versions live
	// in fixed subdirectories beneath it.
	Dir string `koanf:"dir"`
}

// OutcomeLogPath returns the decision log location under the data dir.
func (d DataConfig) OutcomeLogPath() string {
	return filepath.Join(d.Dir, "outcomes", outcomes.DefaultLogName)
}

// RulesDir returns the scoring rule directory under the data dir.
func (d DataConfig) RulesDir() string {
	return filepath.Join(d.Dir, "rules")
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8640
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = logging.NewDefaultConfig().Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = logging.NewDefaultConfig().Format
	}

	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaultDataDir()
	}

	if cfg.Learning.SmoothingK == 0 {
		cfg.Learning.SmoothingK = learning.DefaultSmoothingK
	}
	if cfg.Learning.ConfidenceThreshold == 0 {
		cfg.Learning.ConfidenceThreshold = learning.DefaultConfidenceThreshold
	}

	defaults := aggregate.DefaultConfig()
	if cfg.Aggregator.MaterialMargin == 0 {
		cfg.Aggregator.MaterialMargin = defaults.MaterialMargin
	}
	if cfg.Aggregator.MinSampleSize == 0 {
		cfg.Aggregator.MinSampleSize = defaults.MinSampleSize
	}
	if cfg.Aggregator.HoldoutEvery == 0 {
		cfg.Aggregator.HoldoutEvery = defaults.HoldoutEvery
	}
	if cfg.Aggregator.SmoothingK == 0 {
		cfg.Aggregator.SmoothingK = cfg.Learning.SmoothingK
	}
	if cfg.Aggregator.ConfidenceThreshold == 0 {
		cfg.Aggregator.ConfidenceThreshold = cfg.Learning.ConfidenceThreshold
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".routed")
	}
	return filepath.Join(home, ".config", "routed", "data")
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be > 0")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data dir is required")
	}
	if err := c.Learning.Validate(); err != nil {
		return err
	}
	if err := c.Aggregator.Validate(); err != nil {
		return err
	}
	return nil
}
