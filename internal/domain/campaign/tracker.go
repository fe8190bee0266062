package campaign

import (
	"context"
	"fmt"
)

// Outcome is what one recomputation changed.
type Outcome struct {
	TaskID    int64
	Count     int
	Completed bool // task is completed after the call
	Flipped   bool // this call crossed the quota
	Pruned    int  // pending assignments deleted
}

// Tracker derives current_count and completion from stored ratings. It
// holds no state and always runs inside the caller's write transaction.
type Tracker struct {
	settings
}

// NewTracker creates a tracker.
func NewTracker(opts ...Option) *Tracker {
	return &Tracker{settings: newSettings(opts)}
}

// OnJudgmentUpserted recounts distinct raters of the task. The first time
// the count reaches the quota the task is completed and every pending
// assignment whose judge holds no rating is deleted. Completion is never
// reverted.
func (t *Tracker) OnJudgmentUpserted(ctx context.Context, tx Tx, taskID int64) (Outcome, error) {
	task, err := tx.Task(ctx, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load task %d: %w", taskID, err)
	}
	count, err := tx.CountRaters(ctx, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("count raters of task %d: %w", taskID, err)
	}
	out := Outcome{TaskID: taskID, Count: count, Completed: task.Completed}

	// completed must be set before the count reaches the quota or the
	// table check rejects the row.
	if count >= task.RequiredCount && !task.Completed {
		flipped, err := tx.MarkTaskCompleted(ctx, taskID, t.now())
		if err != nil {
			return Outcome{}, fmt.Errorf("complete task %d: %w", taskID, err)
		}
		out.Flipped = flipped
		out.Completed = true
	}
	if count != task.CurrentCount {
		if err := tx.SetTaskCount(ctx, taskID, count); err != nil {
			return Outcome{}, fmt.Errorf("store count of task %d: %w", taskID, err)
		}
	}
	if out.Flipped {
		out.Pruned, err = tx.PrunePending(ctx, taskID)
		if err != nil {
			return Outcome{}, fmt.Errorf("prune task %d: %w", taskID, err)
		}
	}
	return out, nil
}
