// Package service wires the campaign engine to storage, the content source
// and the sync runner, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	scanqueue "github.com/okian/quorum/internal/adapters/mq/queue"
	syncworker "github.com/okian/quorum/internal/adapters/mq/worker"
	repository "github.com/okian/quorum/internal/adapters/repository"
	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/internal/domain/dedupe"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/rubric"
	"github.com/okian/quorum/pkg/logger"
)

const runnerShutdownTimeout = 30 * time.Second

// Service implements the API dependencies for the judging campaign.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     *repository.Store
	scheduler *campaign.Scheduler
	ledger    *campaign.Ledger
	sync      *campaign.Synchronizer
	queue     *scanqueue.InMemoryQueue
	runner    *syncworker.SyncRunner
	provider  campaign.Provider
	requests  dedupe.Deduper // recently seen sync request keys

	// Configuration
	dbPath        string
	busyTimeout   time.Duration
	opTimeout     time.Duration
	syncInterval  time.Duration
	queueSize     int
	seed          int64
	requiredCount int
	judgeCount    int
	rubric        *rubric.Rubric
	now           func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:        "quorum.db",
		busyTimeout:   5 * time.Second,
		opTimeout:     10 * time.Second,
		syncInterval:  5 * time.Minute,
		queueSize:     8,
		seed:          42,
		requiredCount: model.DefaultRequiredCount,
		rubric:        rubric.New(),
		now:           func() time.Time { return time.Now().UTC() },
		requests:      dedupe.NewWindow(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, bootstraps an empty campaign and starts the sync runner.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting quorum service...", logger.String("db_path", s.dbPath))

	store, err := repository.Open(s.dbPath, repository.WithBusyTimeout(s.busyTimeout))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	domainOpts := []campaign.Option{campaign.WithClock(s.now), campaign.WithRubric(s.rubric)}
	s.store = store
	s.scheduler = campaign.NewScheduler(store, domainOpts...)
	s.ledger = campaign.NewLedger(store, campaign.NewTracker(domainOpts...), domainOpts...)
	s.sync = campaign.NewSynchronizer(store, s.provider, domainOpts...)

	fresh, err := s.bootstrap(ctx)
	if err != nil {
		_ = store.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	store.StartMetricsUpdater(runCtx)

	s.queue = scanqueue.NewInMemoryQueue(scanqueue.WithCapacity(s.queueSize))
	runnerOpts := []syncworker.Option{syncworker.WithInterval(s.syncInterval)}
	if s.provider == nil {
		runnerOpts = []syncworker.Option{syncworker.WithInterval(0)}
	} else if !fresh {
		// The content source may have changed while the service was down.
		runnerOpts = append(runnerOpts, syncworker.WithScanOnStart(true))
	}
	s.runner = syncworker.NewSyncRunner(s.sync, s.queue, runnerOpts...)
	go s.runner.Run(runCtx)

	s.started = true
	s.logger.Info(ctx, "quorum service started",
		logger.Duration("sync_interval", s.syncInterval),
		logger.Int("sync_queue_size", s.queueSize),
		logger.Int("dimensions", s.rubric.Size()),
	)
	return nil
}

// bootstrap initializes an empty store from the content source and reports
// whether it did.
func (s *Service) bootstrap(ctx context.Context) (bool, error) {
	c, err := s.scheduler.Campaign(ctx)
	if err == nil {
		s.logger.Info(ctx, "resuming campaign",
			logger.Int64("seed", c.Seed),
			logger.Int("required_count", c.RequiredCount),
			logger.Int64("scan_count", c.ScanCount),
		)
		return false, nil
	}
	if !errors.Is(err, campaign.ErrNotFound) {
		return false, fmt.Errorf("load campaign: %w", err)
	}

	var snap catalog.Snapshot
	if s.provider != nil {
		if snap, err = s.provider.Snapshot(ctx); err != nil {
			return false, fmt.Errorf("read content source: %w", err)
		}
	}
	setup := campaign.Setup{Seed: s.seed, RequiredCount: s.requiredCount, Snapshot: snap}
	for i := range s.judgeCount {
		setup.Judges = append(setup.Judges, campaign.NewJudge{Name: fmt.Sprintf("judge-%02d", i+1), Token: newToken()})
	}
	judges, err := s.scheduler.Initialize(ctx, setup)
	if err != nil {
		return false, err
	}
	s.logger.Info(ctx, "campaign initialized",
		logger.Int64("seed", s.seed),
		logger.Int("required_count", s.requiredCount),
		logger.Int("tasks", len(snap.Entries)),
		logger.Int("judges", len(judges)),
	)
	for _, j := range judges {
		s.logger.Info(ctx, "judge registered", logger.Int64("judge_id", j.ID), logger.String("name", j.Name))
	}
	return true, nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping quorum service...")

	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.runner != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, runnerShutdownTimeout)
		if err := s.runner.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "sync runner did not stop", logger.Error(err))
		}
		cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "error closing store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "quorum service stopped")
}

// Started reports whether Start has completed.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Ready checks that the store answers.
func (s *Service) Ready(ctx context.Context) error {
	if !s.Started() {
		return ErrNotStarted
	}
	return s.store.Ping(ctx)
}

// Rubric returns the rubric submissions are validated against.
func (s *Service) Rubric() *rubric.Rubric { return s.rubric }

// withTimeout bounds one operation.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
