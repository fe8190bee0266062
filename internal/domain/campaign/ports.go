// Package campaign implements the assignment and completion-consistency
// engine: per-judge queues, the rating ledger, quota tracking and catalog
// reconciliation. All state lives behind the Store port.
package campaign

import (
	"context"
	"time"

	"github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/internal/domain/model"
)

// Store runs functions inside transactions. Update opens a write
// transaction that serializes with every other writer; View opens a
// read-only one. Returning an error from fn rolls back.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of row operations available inside a transaction. Lookups
// of a single row return ErrNotFound when nothing matches.
type Tx interface {
	Campaign(ctx context.Context) (model.Campaign, error)
	CreateCampaign(ctx context.Context, c model.Campaign) error
	IncrementScanCount(ctx context.Context) (int64, error)

	InsertJudge(ctx context.Context, name, token string, at time.Time) (model.Judge, error)
	Judge(ctx context.Context, id int64) (model.Judge, error)
	JudgeByToken(ctx context.Context, token string) (model.Judge, error)
	Judges(ctx context.Context) ([]model.Judge, error)

	UpsertGroup(ctx context.Context, g model.Group) error
	Group(ctx context.Context, id string) (model.Group, error)
	Groups(ctx context.Context) ([]model.Group, error)

	InsertTask(ctx context.Context, t model.Task) (int64, error)
	Task(ctx context.Context, id int64) (model.Task, error)
	// Tasks lists every task, retired ones included, ordered by id.
	Tasks(ctx context.Context) ([]model.Task, error)
	SetTaskLocator(ctx context.Context, taskID int64, locator string) error
	SetTaskRetired(ctx context.Context, taskID int64, at *time.Time) error
	DeleteTask(ctx context.Context, taskID int64) error
	// CountRaters counts distinct judges holding a rating for the task.
	CountRaters(ctx context.Context, taskID int64) (int, error)
	SetTaskCount(ctx context.Context, taskID int64, count int) error
	// MarkTaskCompleted flips completed once and reports whether it did.
	MarkTaskCompleted(ctx context.Context, taskID int64, at time.Time) (bool, error)

	InsertAssignment(ctx context.Context, judgeID, taskID int64, order int) (int64, error)
	Assignment(ctx context.Context, id int64) (model.Assignment, error)
	AssignmentFor(ctx context.Context, judgeID, taskID int64) (model.Assignment, error)
	// Assignments lists a judge's assignments ordered by display order.
	Assignments(ctx context.Context, judgeID int64) ([]model.Assignment, error)
	// MaxDisplayOrder returns the largest display order of the judge's
	// assignments, or -1 when there are none.
	MaxDisplayOrder(ctx context.Context, judgeID int64) (int, error)
	SetDisplayOrder(ctx context.Context, assignmentID int64, order int) error
	SetFinished(ctx context.Context, assignmentID int64, finished bool, at *time.Time) error
	// NextPending applies the reopen rule: pending assignments whose task
	// is open, or for which the judge already holds a rating.
	NextPending(ctx context.Context, judgeID int64) (model.Assignment, error)
	PreviousFinished(ctx context.Context, judgeID int64, belowOrder int) (model.Assignment, error)
	LatestFinished(ctx context.Context, judgeID int64) (model.Assignment, error)
	// PrunePending deletes pending assignments of the task whose judge has
	// no rating for it.
	PrunePending(ctx context.Context, taskID int64) (int, error)
	DeletePending(ctx context.Context, taskID int64) (int, error)
	// JudgesWithoutAssignment lists judges lacking an assignment for the task.
	JudgesWithoutAssignment(ctx context.Context, taskID int64) ([]int64, error)

	Rating(ctx context.Context, judgeID, taskID int64) (model.Rating, error)
	UpsertRating(ctx context.Context, judgeID, taskID int64, scores []int, at time.Time) (model.Rating, error)
	ClearSubmitted(ctx context.Context, judgeID, taskID int64, at time.Time) error

	Progress(ctx context.Context, judgeID int64) (model.Progress, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// Provider supplies the authoritative content listing for one scan.
type Provider interface {
	Snapshot(ctx context.Context) (catalog.Snapshot, error)
}
