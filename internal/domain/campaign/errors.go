package campaign

import (
	"errors"

	"github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/internal/domain/rubric"
)

var (
	// ErrNotFound reports an unknown judge, task or assignment.
	ErrNotFound = errors.New("not found")
	// ErrAlreadySatisfied reports a submit whose assignment was pruned
	// because the task reached its quota. The caller should fetch the next task.
	ErrAlreadySatisfied = errors.New("task already satisfied")
	// ErrUndoNotAllowed reports an undo on anything but the judge's most
	// recently finished assignment.
	ErrUndoNotAllowed = errors.New("undo not allowed")
	// ErrBusy reports that the store could not acquire a lock in time. Retryable.
	ErrBusy = errors.New("store busy")
	// ErrReconcileInProgress reports a rejected overlapping reconcile pass.
	ErrReconcileInProgress = errors.New("reconcile in progress")
	// ErrAlreadyInitialized reports a second initialize on the same store.
	ErrAlreadyInitialized = errors.New("campaign already initialized")
	// ErrNoWork reports an empty queue: the campaign is complete for the judge.
	ErrNoWork = errors.New("no work")

	ErrInvalidScores   = rubric.ErrInvalidScores
	ErrInvalidSnapshot = catalog.ErrInvalidSnapshot
)
