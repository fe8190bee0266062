// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/rubric"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the slog handler: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`
	// BusyTimeoutMS bounds the wait for the database write lock.
	BusyTimeoutMS int `koanf:"busy_timeout_ms"`
	// OpTimeoutMS bounds every judge-facing operation.
	OpTimeoutMS int `koanf:"op_timeout_ms"`

	// Seed drives every queue permutation of the campaign.
	Seed int64 `koanf:"seed"`
	// RequiredCount is the number of judgments each task needs.
	RequiredCount int `koanf:"required_count"`
	// Judges is the number of judges created when bootstrapping an empty store.
	Judges int `koanf:"judges"`

	// CatalogPath is the YAML manifest listing groups and candidates.
	CatalogPath string `koanf:"catalog_path"`
	// SyncIntervalSec is the period of background reconcile passes; 0 disables them.
	SyncIntervalSec int `koanf:"sync_interval_sec"`
	// SyncQueueSize bounds on-demand reconcile requests.
	SyncQueueSize int `koanf:"sync_queue_size"`

	// ScoreDimensions names the rubric axes in vector order.
	ScoreDimensions []string `koanf:"score_dimensions"`
	ScoreMin        int      `koanf:"score_min"`
	ScoreMax        int      `koanf:"score_max"`

	// AdminToken guards the admin endpoints; empty disables them.
	AdminToken string `koanf:"admin_token"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		Addr:            ":9080",
		DBPath:          "quorum.db",
		BusyTimeoutMS:   5000,
		OpTimeoutMS:     10000,
		Seed:            42,
		RequiredCount:   model.DefaultRequiredCount,
		Judges:          0,
		CatalogPath:     "",
		SyncIntervalSec: 300,
		SyncQueueSize:   8,
		ScoreDimensions: append([]string(nil), rubric.DefaultDimensions...),
		ScoreMin:        1,
		ScoreMax:        5,
	}
}

// Validate checks values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "db_path must not be empty")
	}
	if c.RequiredCount <= 0 {
		problems = append(problems, "required_count must be positive")
	}
	if c.Judges < 0 {
		problems = append(problems, "judges must not be negative")
	}
	if c.SyncIntervalSec < 0 {
		problems = append(problems, "sync_interval_sec must not be negative")
	}
	if c.SyncQueueSize <= 0 {
		problems = append(problems, "sync_queue_size must be positive")
	}
	if c.ScoreMin > c.ScoreMax {
		problems = append(problems, "score_min must not exceed score_max")
	}
	if len(c.ScoreDimensions) == 0 {
		problems = append(problems, "score_dimensions must not be empty")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be json or text", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// BusyTimeout returns BusyTimeoutMS as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// OpTimeout returns OpTimeoutMS as a duration.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMS) * time.Millisecond
}

// SyncInterval returns SyncIntervalSec as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// Rubric builds the score rubric from the configured dimensions and bounds.
func (c *Config) Rubric() *rubric.Rubric {
	return rubric.New(rubric.WithDimensions(c.ScoreDimensions), rubric.WithBounds(c.ScoreMin, c.ScoreMax))
}
