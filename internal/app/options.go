package service

import (
	"time"

	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/rubric"
	"github.com/okian/quorum/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the SQLite database file.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithBusyTimeout bounds the wait for the database write lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithOpTimeout bounds every judge-facing operation.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithSyncInterval sets the period of background reconcile passes. Zero
// disables them.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.syncInterval = d
		}
	}
}

// WithSyncQueueSize sets the maximum number of waiting scan requests.
func WithSyncQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSeed sets the campaign seed used when bootstrapping an empty store.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithRequiredCount sets the per-task quota used when bootstrapping.
func WithRequiredCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.requiredCount = n
		}
	}
}

// WithJudgeCount sets how many judges are created when bootstrapping.
func WithJudgeCount(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.judgeCount = n
		}
	}
}

// WithRubric sets the score rubric.
func WithRubric(r *rubric.Rubric) Option {
	return func(s *Service) {
		if r != nil {
			s.rubric = r
		}
	}
}

// WithProvider sets the content source. Without one the campaign starts
// empty and never reconciles.
func WithProvider(p campaign.Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
