// Package repository persists the judging campaign in SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/quorum/internal/adapters/repository/migrations"
	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/pkg/metrics"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store is a SQLite-backed campaign.Store. Write transactions begin
// IMMEDIATE so they take the database write lock up front and serialize;
// read transactions run concurrently against the WAL.
type Store struct {
	sqlDB                 *sql.DB
	busyTimeout           time.Duration
	metricsUpdateInterval time.Duration
}

var _ campaign.Store = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	s := &Store{
		busyTimeout:           defaultBusyTimeout,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	sqlDB, err := sql.Open("sqlite", dsn(filepath.Clean(path), s.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s.sqlDB = sqlDB
	return s, nil
}

func dsn(path string, busy time.Duration) string {
	return fmt.Sprintf(
		"%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path, busy.Milliseconds(),
	)
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return s.sqlDB.PingContext(ctx)
}

// Update runs fn in a write transaction.
func (s *Store) Update(ctx context.Context, fn func(campaign.Tx) error) error {
	return s.run(ctx, "update", nil, fn)
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(campaign.Tx) error) error {
	return s.run(ctx, "view", &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, kind string, opts *sql.TxOptions, fn func(campaign.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreTxLatency(kind, float64(time.Since(start).Microseconds())/1000)
		if errors.Is(err, campaign.ErrBusy) {
			metrics.RecordStoreBusy()
			metrics.RecordErrorByComponent("store", "busy")
		}
	}()

	tx, err := s.sqlDB.BeginTx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("begin %s: %w", kind, err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit %s: %w", kind, err))
	}
	return nil
}

// StartMetricsUpdater publishes campaign gauges from store stats until ctx
// is cancelled.
func (s *Store) StartMetricsUpdater(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.PublishMetrics(ctx)
			}
		}
	}()
}

// PublishMetrics reads stats once and updates the campaign gauges.
func (s *Store) PublishMetrics(ctx context.Context) error {
	return s.View(ctx, func(tx campaign.Tx) error {
		st, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		metrics.UpdateCampaign(metrics.CampaignSnapshot{
			Judges:             st.Judges,
			OpenTasks:          st.OpenTasks,
			CompletedTasks:     st.CompletedTasks,
			RetiredTasks:       st.RetiredTasks,
			Ratings:            st.Ratings,
			PendingAssignments: st.PendingAssignment,
			RequiredRatings:    st.RequiredRatings,
			CurrentRatings:     st.CurrentRatings,
		})
		return nil
	})
}
