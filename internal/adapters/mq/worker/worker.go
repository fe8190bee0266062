// Package worker runs reconcile passes in the background, on a fixed
// interval and whenever a scan request arrives on the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/pkg/logger"
	"github.com/okian/quorum/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// Scanner performs one reconcile pass against the content source.
type Scanner interface {
	Scan(ctx context.Context) (campaign.Report, error)
}

// Queue defines how the runner receives on-demand requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.ScanRequest
}

// Worker processes scan requests until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the pass in flight, if any.
	Shutdown(ctx context.Context) error
}

// SyncRunner implements Worker for reconcile passes.
type SyncRunner struct {
	scanner  Scanner
	queue    Queue
	name     string
	interval time.Duration
	onStart  bool

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewSyncRunner creates a runner. A nil queue disables on-demand passes and
// a zero interval disables periodic ones.
func NewSyncRunner(scanner Scanner, queue Queue, opts ...Option) *SyncRunner {
	r := &SyncRunner{
		scanner:  scanner,
		queue:    queue,
		name:     "sync",
		interval: defaultInterval,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("sync"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.name != "sync" {
		r.logger = r.logger.Named(r.name)
	}
	return r
}

// Run starts the runner loop.
func (r *SyncRunner) Run(ctx context.Context) {
	defer close(r.done)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	var requests <-chan model.ScanRequest
	if r.queue != nil {
		requests = r.queue.Dequeue(ctx)
	}

	if r.onStart {
		r.pass(ctx, "startup")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-tick:
			r.pass(ctx, "interval")
		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			metrics.RecordQueueDequeue()
			reason := req.Reason
			if reason == "" {
				reason = "request"
			}
			r.pass(ctx, reason, logger.String("request_id", req.ID))
		}
	}
}

// Shutdown gracefully stops the runner.
func (r *SyncRunner) Shutdown(ctx context.Context) error {
	select {
	case <-r.shutdown:
	default:
		close(r.shutdown)
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// pass runs one scan and records its outcome. Failures are logged; the next
// tick or request retries.
func (r *SyncRunner) pass(ctx context.Context, reason string, fields ...logger.Field) {
	start := time.Now()
	rep, err := r.scanner.Scan(ctx)
	metrics.RecordReconcileDuration(float64(time.Since(start).Milliseconds()))

	fields = append(fields, logger.String("reason", reason))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.RecordReconcile("error")
		metrics.RecordErrorByComponent("sync", errorType(err))
		r.logger.Error(ctx, "reconcile pass failed", append(fields, logger.Error(err))...)
		return
	}

	metrics.RecordReconcile("ok")
	metrics.UpdateReconcileLastSuccess(float64(time.Now().Unix()))
	metrics.RecordReconcileChanges("added", rep.Added)
	metrics.RecordReconcileChanges("deleted", rep.Deleted)
	metrics.RecordReconcileChanges("retired", rep.Retired)
	metrics.RecordReconcileChanges("restored", rep.Restored)
	metrics.RecordReconcileChanges("refreshed", rep.Refreshed)

	fields = append(fields,
		logger.Int64("scan_count", rep.ScanCount),
		logger.Int("added", rep.Added),
		logger.Int("deleted", rep.Deleted),
		logger.Int("retired", rep.Retired),
		logger.Int("restored", rep.Restored),
		logger.Int("refreshed", rep.Refreshed),
		logger.Int("reshuffled", rep.Reshuffled),
	)
	if rep.Changed() {
		r.logger.Info(ctx, "reconcile pass applied changes", fields...)
		return
	}
	r.logger.Debug(ctx, "reconcile pass found no changes", fields...)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, campaign.ErrBusy):
		return "busy"
	case errors.Is(err, campaign.ErrInvalidSnapshot):
		return "invalid_snapshot"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "scan_error"
	}
}
