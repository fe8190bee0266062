package service

import (
	"context"
	"errors"

	scanqueue "github.com/okian/quorum/internal/adapters/mq/queue"
	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/pkg/logger"
	"github.com/okian/quorum/pkg/metrics"
)

// Stats returns campaign-wide counters.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	if !s.Started() {
		return model.Stats{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.Stats(ctx)
}

// Campaign returns the campaign row.
func (s *Service) Campaign(ctx context.Context) (model.Campaign, error) {
	if !s.Started() {
		return model.Campaign{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.Campaign(ctx)
}

// SyncRequest asks for a reconcile pass.
type SyncRequest struct {
	// Wait runs the pass inline instead of queueing it.
	Wait   bool
	Reason string
	// Key makes the request idempotent: a key seen recently is not acted on again.
	Key string
}

// SyncResult describes a sync trigger.
type SyncResult struct {
	// Duplicate is set when the request key was already seen.
	Duplicate bool
	// Report is set for a synchronous pass.
	Report *campaign.Report
	// Queued is set for an asynchronous request.
	Queued *scanqueue.Result
}

// TriggerSync runs a reconcile pass now when req.Wait is set, failing with
// ErrReconcileInProgress if one is already running. Otherwise it queues a
// request for the sync runner. A rejected request forgets its key so the
// caller can retry with it.
func (s *Service) TriggerSync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	if !s.Started() {
		return SyncResult{}, ErrNotStarted
	}
	if s.provider == nil {
		return SyncResult{}, ErrSyncDisabled
	}
	if req.Key != "" && s.requests.SeenAndRecord(ctx, req.Key) {
		s.logger.Debug(ctx, "duplicate sync request", logger.String("key", req.Key))
		return SyncResult{Duplicate: true}, nil
	}

	if !req.Wait {
		res, err := s.queue.Enqueue(ctx, model.ScanRequest{ID: req.Key, Reason: req.Reason})
		if err != nil {
			s.forget(ctx, req.Key)
			return SyncResult{}, err
		}
		return SyncResult{Queued: &res}, nil
	}

	rep, err := s.sync.TryScan(ctx)
	switch {
	case errors.Is(err, campaign.ErrReconcileInProgress):
		s.forget(ctx, req.Key)
		metrics.RecordReconcile("skipped")
		return SyncResult{}, err
	case err != nil:
		s.forget(ctx, req.Key)
		metrics.RecordReconcile("error")
		metrics.RecordErrorByComponent("sync", "scan_error")
		s.logger.Error(ctx, "reconcile pass failed", logger.String("reason", req.Reason), logger.Error(err))
		return SyncResult{}, err
	}
	metrics.RecordReconcile("ok")
	s.logger.Info(ctx, "reconcile pass finished",
		logger.String("reason", req.Reason),
		logger.Int64("scan_count", rep.ScanCount),
		logger.Int("added", rep.Added),
		logger.Int("retired", rep.Retired),
		logger.Int("deleted", rep.Deleted),
	)
	return SyncResult{Report: &rep}, nil
}

func (s *Service) forget(ctx context.Context, key string) {
	if key != "" {
		s.requests.Unrecord(ctx, key)
	}
}
