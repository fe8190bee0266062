package campaign

import (
	"time"

	"github.com/okian/quorum/internal/domain/rubric"
)

type settings struct {
	now    func() time.Time
	rubric *rubric.Rubric
}

func newSettings(opts []Option) settings {
	s := settings{
		now:    func() time.Time { return time.Now().UTC() },
		rubric: rubric.New(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to the engine components.
type Option func(*settings)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRubric sets the rubric the ledger validates scores against.
func WithRubric(r *rubric.Rubric) Option {
	return func(s *settings) {
		if r != nil {
			s.rubric = r
		}
	}
}
