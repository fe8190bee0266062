package campaign

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/ordering"
)

// Report summarises one reconcile pass.
type Report struct {
	ScanCount  int64
	Groups     int
	Added      int
	Deleted    int // removed tasks without ratings
	Retired    int // removed tasks kept alive by ratings
	Restored   int
	Refreshed  int
	Reshuffled int // judges whose pending block was reshuffled
}

// Changed reports whether the pass modified the work pool.
func (r Report) Changed() bool {
	return r.Groups+r.Added+r.Deleted+r.Retired+r.Restored+r.Refreshed > 0
}

// Synchronizer reconciles the work pool against a content provider. At
// most one pass runs at a time.
type Synchronizer struct {
	store    Store
	provider Provider
	sem      chan struct{}
	settings
}

// NewSynchronizer creates a synchronizer reading from provider.
func NewSynchronizer(store Store, provider Provider, opts ...Option) *Synchronizer {
	return &Synchronizer{
		store:    store,
		provider: provider,
		sem:      make(chan struct{}, 1),
		settings: newSettings(opts),
	}
}

// Scan waits for any running pass, fetches a snapshot and reconciles it.
// A provider failure leaves the store untouched.
func (s *Synchronizer) Scan(ctx context.Context) (Report, error) {
	if err := s.acquire(ctx); err != nil {
		return Report{}, err
	}
	defer s.release()
	return s.scanLocked(ctx)
}

// TryScan is Scan that returns ErrReconcileInProgress instead of waiting.
func (s *Synchronizer) TryScan(ctx context.Context) (Report, error) {
	select {
	case s.sem <- struct{}{}:
	default:
		return Report{}, ErrReconcileInProgress
	}
	defer s.release()
	return s.scanLocked(ctx)
}

// Reconcile applies a snapshot directly, waiting for any running pass.
func (s *Synchronizer) Reconcile(ctx context.Context, snap catalog.Snapshot) (Report, error) {
	if err := s.acquire(ctx); err != nil {
		return Report{}, err
	}
	defer s.release()
	return s.reconcileLocked(ctx, snap)
}

func (s *Synchronizer) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) release() { <-s.sem }

func (s *Synchronizer) scanLocked(ctx context.Context) (Report, error) {
	if s.provider == nil {
		return Report{}, fmt.Errorf("scan: no content provider")
	}
	snap, err := s.provider.Snapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read content source: %w", err)
	}
	return s.reconcileLocked(ctx, snap)
}

// reconcileLocked applies the diff in a single transaction.
func (s *Synchronizer) reconcileLocked(ctx context.Context, snap catalog.Snapshot) (Report, error) {
	if err := snap.Validate(); err != nil {
		return Report{}, err
	}
	var rep Report
	err := s.store.Update(ctx, func(tx Tx) error {
		rep = Report{}
		c, err := tx.Campaign(ctx)
		if err != nil {
			return err
		}
		tasks, err := tx.Tasks(ctx)
		if err != nil {
			return err
		}
		groups, err := tx.Groups(ctx)
		if err != nil {
			return err
		}
		plan := catalog.Diff(snap, tasks, groups)
		judges, err := tx.Judges(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		affected := make(map[int64]struct{})

		for _, g := range plan.Groups {
			if err := tx.UpsertGroup(ctx, g); err != nil {
				return err
			}
			rep.Groups++
		}
		for _, e := range plan.Add {
			id, err := tx.InsertTask(ctx, model.Task{
				GroupID:          e.GroupID,
				CandidateID:      e.CandidateID,
				CandidateLocator: e.CandidateLocator,
				RequiredCount:    c.RequiredCount,
			})
			if err != nil {
				return err
			}
			for _, j := range judges {
				if err := appendAssignment(ctx, tx, j.ID, id); err != nil {
					return err
				}
				affected[j.ID] = struct{}{}
			}
			rep.Added++
		}
		for _, t := range plan.Remove {
			raters, err := tx.CountRaters(ctx, t.ID)
			if err != nil {
				return err
			}
			if raters == 0 {
				if err := tx.DeleteTask(ctx, t.ID); err != nil {
					return err
				}
				rep.Deleted++
				continue
			}
			if _, err := tx.DeletePending(ctx, t.ID); err != nil {
				return err
			}
			if err := tx.SetTaskRetired(ctx, t.ID, &now); err != nil {
				return err
			}
			rep.Retired++
		}
		for _, t := range plan.Restore {
			if err := tx.SetTaskRetired(ctx, t.ID, nil); err != nil {
				return err
			}
			rep.Restored++
			if t.Completed {
				continue
			}
			missing, err := tx.JudgesWithoutAssignment(ctx, t.ID)
			if err != nil {
				return err
			}
			for _, jid := range missing {
				if err := appendAssignment(ctx, tx, jid, t.ID); err != nil {
					return err
				}
				affected[jid] = struct{}{}
			}
		}
		for _, r := range plan.Refresh {
			if err := tx.SetTaskLocator(ctx, r.TaskID, r.Locator); err != nil {
				return err
			}
			rep.Refreshed++
		}

		rep.ScanCount, err = tx.IncrementScanCount(ctx)
		if err != nil {
			return err
		}
		seed := int64(ordering.Seed(c.Seed, rep.ScanCount)) //nolint:gosec // bit pattern reuse
		ids := make([]int64, 0, len(affected))
		for id := range affected {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if err := shufflePending(ctx, tx, id, seed); err != nil {
				return err
			}
		}
		rep.Reshuffled = len(ids)
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: %w", err)
	}
	return rep, nil
}
