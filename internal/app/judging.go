package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/pkg/logger"
	"github.com/okian/quorum/pkg/metrics"
)

// TaskView is what a judge sees when asking for work.
type TaskView struct {
	campaign.Item
	Progress model.Progress
	// Complete is set when the judge has nothing left to do; Item is empty.
	Complete bool
}

// Judge resolves an access token.
func (s *Service) Judge(ctx context.Context, token string) (model.Judge, error) {
	if !s.Started() {
		return model.Judge{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.JudgeByToken(ctx, token)
}

// NextTask returns the judge's next item together with their progress.
func (s *Service) NextTask(ctx context.Context, judgeID int64) (TaskView, error) {
	if !s.Started() {
		return TaskView{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var view TaskView
	item, err := s.scheduler.NextTask(ctx, judgeID)
	switch {
	case errors.Is(err, campaign.ErrNoWork):
		metrics.RecordNextTask("complete")
		view.Complete = true
	case err != nil:
		metrics.RecordNextTask("error")
		return TaskView{}, err
	default:
		metrics.RecordNextTask("served")
		view.Item = item
	}
	if view.Progress, err = s.scheduler.Progress(ctx, judgeID); err != nil {
		return TaskView{}, err
	}
	return view, nil
}

// PreviousTask returns the finished item before currentID, or the latest
// finished one when currentID is zero.
func (s *Service) PreviousTask(ctx context.Context, judgeID, currentID int64) (campaign.Item, error) {
	if !s.Started() {
		return campaign.Item{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.PreviousTask(ctx, judgeID, currentID)
}

// Item loads one of the judge's assignments.
func (s *Service) Item(ctx context.Context, judgeID, assignmentID int64) (campaign.Item, error) {
	if !s.Started() {
		return campaign.Item{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.Item(ctx, judgeID, assignmentID)
}

// Submit records the judge's scores for a task.
func (s *Service) Submit(ctx context.Context, judgeID, taskID int64, scores []int) (campaign.Receipt, error) {
	if !s.Started() {
		return campaign.Receipt{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.ledger.Submit(ctx, judgeID, taskID, scores)
	if err != nil {
		outcome := submitOutcome(err)
		metrics.RecordSubmission(outcome)
		if outcome == "error" || outcome == "busy" {
			metrics.RecordErrorByComponent("ledger", outcome)
			s.logger.Error(ctx, "submit failed",
				logger.Int64("judge_id", judgeID),
				logger.Int64("task_id", taskID),
				logger.Error(err),
			)
		}
		return campaign.Receipt{}, err
	}

	metrics.RecordSubmission("accepted")
	if rec.Outcome.Flipped {
		metrics.RecordTaskCompleted()
		metrics.RecordAssignmentsPruned(rec.Outcome.Pruned)
		s.logger.Info(ctx, "task completed",
			logger.Int64("task_id", taskID),
			logger.Int("count", rec.Outcome.Count),
			logger.Int("pruned", rec.Outcome.Pruned),
		)
	}
	s.logger.Debug(ctx, "judgment recorded",
		logger.Int64("judge_id", judgeID),
		logger.Int64("task_id", taskID),
		logger.Int("count", rec.Outcome.Count),
	)
	return rec, nil
}

func submitOutcome(err error) string {
	switch {
	case errors.Is(err, campaign.ErrAlreadySatisfied):
		return "satisfied"
	case errors.Is(err, campaign.ErrInvalidScores):
		return "invalid"
	case errors.Is(err, campaign.ErrNotFound):
		return "not_found"
	case errors.Is(err, campaign.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}

// Undo reverts the judge's latest finished assignment to pending.
func (s *Service) Undo(ctx context.Context, judgeID, assignmentID int64) (model.Assignment, error) {
	if !s.Started() {
		return model.Assignment{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.ledger.Undo(ctx, judgeID, assignmentID)
	switch {
	case errors.Is(err, campaign.ErrUndoNotAllowed):
		metrics.RecordUndo("rejected")
	case err != nil:
		metrics.RecordUndo("error")
	default:
		metrics.RecordUndo("accepted")
		s.logger.Debug(ctx, "judgment reopened",
			logger.Int64("judge_id", judgeID),
			logger.Int64("assignment_id", assignmentID),
		)
	}
	return a, err
}

// Progress returns the judge's done and pending counts.
func (s *Service) Progress(ctx context.Context, judgeID int64) (model.Progress, error) {
	if !s.Started() {
		return model.Progress{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.Progress(ctx, judgeID)
}

// Judges lists every registered judge.
func (s *Service) Judges(ctx context.Context) ([]model.Judge, error) {
	if !s.Started() {
		return nil, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.scheduler.Judges(ctx)
}

// AddJudge registers a judge mid-campaign under a fresh token.
func (s *Service) AddJudge(ctx context.Context, name string) (model.Judge, error) {
	if !s.Started() {
		return model.Judge{}, ErrNotStarted
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	j, err := s.scheduler.AddJudge(ctx, campaign.NewJudge{Name: name, Token: newToken()})
	if err != nil {
		return model.Judge{}, err
	}
	s.logger.Info(ctx, "judge registered", logger.Int64("judge_id", j.ID), logger.String("name", j.Name))
	return j, nil
}

func newToken() string {
	return uuid.NewString()
}
