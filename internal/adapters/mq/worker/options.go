package worker

import (
	"time"

	"github.com/okian/quorum/pkg/logger"
)

// Option applies a configuration option to the SyncRunner.
type Option func(*SyncRunner)

// WithName sets the runner name for identification and logging.
func WithName(name string) Option {
	return func(r *SyncRunner) {
		if name != "" {
			r.name = name
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(logger logger.Logger) Option {
	return func(r *SyncRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInterval sets the period between scheduled passes. Zero disables them.
func WithInterval(d time.Duration) Option {
	return func(r *SyncRunner) {
		if d >= 0 {
			r.interval = d
		}
	}
}

// WithScanOnStart runs one pass as soon as Run begins.
func WithScanOnStart(on bool) Option {
	return func(r *SyncRunner) {
		r.onStart = on
	}
}
