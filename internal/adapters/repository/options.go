package repository

import "time"

const (
	defaultBusyTimeout           = 5 * time.Second
	defaultMetricsUpdateInterval = 5 * time.Second
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithBusyTimeout bounds how long a transaction waits for the write lock
// before failing with campaign.ErrBusy.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
