package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/ordering"
)

// NewJudge describes a judge to register.
type NewJudge struct {
	Name  string
	Token string
}

// Setup holds everything initialize needs.
type Setup struct {
	Seed          int64
	RequiredCount int
	Judges        []NewJudge
	Snapshot      catalog.Snapshot
}

// Item is an assignment with everything a presentation layer renders.
type Item struct {
	Assignment model.Assignment
	Task       model.Task
	Group      model.Group
	Rating     *model.Rating // prior scores, if the judge already rated the task
}

// Scheduler maintains the per-judge ordered queues.
type Scheduler struct {
	store Store
	settings
}

// NewScheduler creates a scheduler over the store.
func NewScheduler(store Store, opts ...Option) *Scheduler {
	return &Scheduler{store: store, settings: newSettings(opts)}
}

// Initialize creates the campaign, its judges and tasks, and one pending
// assignment per (judge, task), each judge's queue permuted by
// hash(seed, judge id).
func (s *Scheduler) Initialize(ctx context.Context, setup Setup) ([]model.Judge, error) {
	if err := setup.Snapshot.Validate(); err != nil {
		return nil, err
	}
	required := setup.RequiredCount
	if required <= 0 {
		required = model.DefaultRequiredCount
	}

	var judges []model.Judge
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, err := tx.Campaign(ctx); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := s.now()
		if err := tx.CreateCampaign(ctx, model.Campaign{Seed: setup.Seed, RequiredCount: required, CreatedAt: now}); err != nil {
			return err
		}
		for _, g := range setup.Snapshot.Groups() {
			if err := tx.UpsertGroup(ctx, g); err != nil {
				return err
			}
		}
		plan := catalog.Diff(setup.Snapshot, nil, nil)
		taskIDs := make([]int64, 0, len(plan.Add))
		for _, e := range plan.Add {
			id, err := tx.InsertTask(ctx, model.Task{
				GroupID:          e.GroupID,
				CandidateID:      e.CandidateID,
				CandidateLocator: e.CandidateLocator,
				RequiredCount:    required,
			})
			if err != nil {
				return err
			}
			taskIDs = append(taskIDs, id)
		}
		for _, nj := range setup.Judges {
			j, err := tx.InsertJudge(ctx, nj.Name, nj.Token, now)
			if err != nil {
				return err
			}
			judges = append(judges, j)
			queue := append([]int64(nil), taskIDs...)
			ordering.Shuffle(queue, setup.Seed, j.ID)
			for order, taskID := range queue {
				if _, err := tx.InsertAssignment(ctx, j.ID, taskID, order); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize campaign: %w", err)
	}
	return judges, nil
}

// ShufflePending re-randomizes the judge's pending assignments and places
// them right after the last finished one. Finished assignments keep their
// display order.
func (s *Scheduler) ShufflePending(ctx context.Context, judgeID, seed int64) error {
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, err := tx.Judge(ctx, judgeID); err != nil {
			return err
		}
		return shufflePending(ctx, tx, judgeID, seed)
	})
	if err != nil {
		return fmt.Errorf("shuffle pending for judge %d: %w", judgeID, err)
	}
	return nil
}

func shufflePending(ctx context.Context, tx Tx, judgeID, seed int64) error {
	all, err := tx.Assignments(ctx, judgeID)
	if err != nil {
		return err
	}
	base := 0
	var pending []model.Assignment
	for _, a := range all {
		if a.Finished {
			if a.DisplayOrder+1 > base {
				base = a.DisplayOrder + 1
			}
			continue
		}
		pending = append(pending, a)
	}
	// Canonical input order keeps the permutation reproducible.
	sort.Slice(pending, func(i, j int) bool { return pending[i].TaskID < pending[j].TaskID })
	perm := ordering.Permutation(seed, judgeID, len(pending))
	for i, p := range perm {
		if err := tx.SetDisplayOrder(ctx, pending[p].ID, base+i); err != nil {
			return err
		}
	}
	return nil
}

// appendAssignment adds a pending assignment at the tail of the judge's queue.
func appendAssignment(ctx context.Context, tx Tx, judgeID, taskID int64) error {
	last, err := tx.MaxDisplayOrder(ctx, judgeID)
	if err != nil {
		return err
	}
	_, err = tx.InsertAssignment(ctx, judgeID, taskID, last+1)
	return err
}

// NextTask returns the judge's next item, or ErrNoWork when the queue is
// exhausted. A pending assignment on a completed task is still served when
// the judge already holds a rating for it.
func (s *Scheduler) NextTask(ctx context.Context, judgeID int64) (Item, error) {
	var item Item
	err := s.store.View(ctx, func(tx Tx) error {
		a, err := tx.NextPending(ctx, judgeID)
		if errors.Is(err, ErrNotFound) {
			return ErrNoWork
		}
		if err != nil {
			return err
		}
		item, err = loadItem(ctx, tx, a)
		return err
	})
	return item, err
}

// PreviousTask returns the judge's finished item with the largest display
// order strictly below the current assignment. A zero current id means the
// judge is past the end of the queue, so the latest finished item is used.
func (s *Scheduler) PreviousTask(ctx context.Context, judgeID, currentID int64) (Item, error) {
	var item Item
	err := s.store.View(ctx, func(tx Tx) error {
		var (
			a   model.Assignment
			err error
		)
		if currentID == 0 {
			a, err = tx.LatestFinished(ctx, judgeID)
		} else {
			var cur model.Assignment
			cur, err = ownAssignment(ctx, tx, judgeID, currentID)
			if err != nil {
				return err
			}
			a, err = tx.PreviousFinished(ctx, judgeID, cur.DisplayOrder)
		}
		if err != nil {
			return err
		}
		item, err = loadItem(ctx, tx, a)
		return err
	})
	return item, err
}

// Item loads one of the judge's assignments for display.
func (s *Scheduler) Item(ctx context.Context, judgeID, assignmentID int64) (Item, error) {
	var item Item
	err := s.store.View(ctx, func(tx Tx) error {
		a, err := ownAssignment(ctx, tx, judgeID, assignmentID)
		if err != nil {
			return err
		}
		item, err = loadItem(ctx, tx, a)
		return err
	})
	return item, err
}

// AddJudge registers a judge mid-campaign with a pending assignment for
// every live task that is still open, shuffled by hash(seed, judge id).
func (s *Scheduler) AddJudge(ctx context.Context, nj NewJudge) (model.Judge, error) {
	var j model.Judge
	err := s.store.Update(ctx, func(tx Tx) error {
		c, err := tx.Campaign(ctx)
		if err != nil {
			return err
		}
		j, err = tx.InsertJudge(ctx, nj.Name, nj.Token, s.now())
		if err != nil {
			return err
		}
		tasks, err := tx.Tasks(ctx)
		if err != nil {
			return err
		}
		order := 0
		for _, t := range tasks {
			if t.Retired() || t.Completed {
				continue
			}
			if _, err := tx.InsertAssignment(ctx, j.ID, t.ID, order); err != nil {
				return err
			}
			order++
		}
		return shufflePending(ctx, tx, j.ID, c.Seed)
	})
	if err != nil {
		return model.Judge{}, fmt.Errorf("add judge: %w", err)
	}
	return j, nil
}

// Progress counts the judge's finished and still-servable pending work.
func (s *Scheduler) Progress(ctx context.Context, judgeID int64) (model.Progress, error) {
	var p model.Progress
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		p, err = tx.Progress(ctx, judgeID)
		return err
	})
	return p, err
}

func ownAssignment(ctx context.Context, tx Tx, judgeID, assignmentID int64) (model.Assignment, error) {
	a, err := tx.Assignment(ctx, assignmentID)
	if err != nil {
		return model.Assignment{}, err
	}
	if a.JudgeID != judgeID {
		return model.Assignment{}, fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
	}
	return a, nil
}

func loadItem(ctx context.Context, tx Tx, a model.Assignment) (Item, error) {
	t, err := tx.Task(ctx, a.TaskID)
	if err != nil {
		return Item{}, err
	}
	g, err := tx.Group(ctx, t.GroupID)
	if err != nil {
		return Item{}, err
	}
	item := Item{Assignment: a, Task: t, Group: g}
	r, err := tx.Rating(ctx, a.JudgeID, a.TaskID)
	switch {
	case err == nil:
		item.Rating = &r
	case !errors.Is(err, ErrNotFound):
		return Item{}, err
	}
	return item, nil
}
