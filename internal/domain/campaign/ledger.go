package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/rubric"
)

// Receipt describes an accepted submission.
type Receipt struct {
	Rating     model.Rating
	Assignment model.Assignment
	Outcome    Outcome
}

// Ledger owns ratings: one per (judge, task), upserted, never deleted.
type Ledger struct {
	store   Store
	tracker *Tracker
	settings
}

// NewLedger creates a ledger that recounts through tracker.
func NewLedger(store Store, tracker *Tracker, opts ...Option) *Ledger {
	if tracker == nil {
		tracker = NewTracker(opts...)
	}
	return &Ledger{store: store, tracker: tracker, settings: newSettings(opts)}
}

// Rubric returns the rubric submissions are validated against.
func (l *Ledger) Rubric() *rubric.Rubric { return l.rubric }

// Submit records the judge's scores for the task, finishes the assignment
// and recounts the task, all in one transaction. Repeating a submit for the
// same pair leaves exactly one rating. When the judge's assignment was
// pruned it returns ErrAlreadySatisfied and changes nothing.
func (l *Ledger) Submit(ctx context.Context, judgeID, taskID int64, scores []int) (Receipt, error) {
	if err := l.rubric.Validate(scores); err != nil {
		return Receipt{}, err
	}
	var rec Receipt
	err := l.store.Update(ctx, func(tx Tx) error {
		a, err := tx.AssignmentFor(ctx, judgeID, taskID)
		if errors.Is(err, ErrNotFound) {
			if _, terr := tx.Task(ctx, taskID); terr != nil {
				return terr
			}
			return ErrAlreadySatisfied
		}
		if err != nil {
			return err
		}
		now := l.now()
		r, err := tx.UpsertRating(ctx, judgeID, taskID, scores, now)
		if err != nil {
			return err
		}
		if err := tx.SetFinished(ctx, a.ID, true, &now); err != nil {
			return err
		}
		a.Finished, a.FinishedAt = true, &now
		out, err := l.tracker.OnJudgmentUpserted(ctx, tx, taskID)
		if err != nil {
			return err
		}
		rec = Receipt{Rating: r, Assignment: a, Outcome: out}
		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("submit judge %d task %d: %w", judgeID, taskID, err)
	}
	return rec, nil
}

// Undo reverts the judge's most recently finished assignment to pending.
// The rating keeps its scores but becomes a draft again.
func (l *Ledger) Undo(ctx context.Context, judgeID, assignmentID int64) (model.Assignment, error) {
	var a model.Assignment
	err := l.store.Update(ctx, func(tx Tx) error {
		var err error
		a, err = ownAssignment(ctx, tx, judgeID, assignmentID)
		if err != nil {
			return err
		}
		if !a.Finished {
			return fmt.Errorf("%w: assignment %d is pending", ErrUndoNotAllowed, a.ID)
		}
		latest, err := tx.LatestFinished(ctx, judgeID)
		if err != nil {
			return err
		}
		if latest.ID != a.ID {
			return fmt.Errorf("%w: assignment %d is not the latest finished", ErrUndoNotAllowed, a.ID)
		}
		if err := tx.SetFinished(ctx, a.ID, false, nil); err != nil {
			return err
		}
		if err := tx.ClearSubmitted(ctx, judgeID, a.TaskID, l.now()); err != nil {
			return err
		}
		a.Finished, a.FinishedAt = false, nil
		return nil
	})
	if err != nil {
		return model.Assignment{}, fmt.Errorf("undo assignment %d: %w", assignmentID, err)
	}
	return a, nil
}
