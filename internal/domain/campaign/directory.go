package campaign

import (
	"context"

	"github.com/okian/quorum/internal/domain/model"
)

// JudgeByToken resolves an access token.
func (s *Scheduler) JudgeByToken(ctx context.Context, token string) (model.Judge, error) {
	var j model.Judge
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		j, err = tx.JudgeByToken(ctx, token)
		return err
	})
	return j, err
}

// Judges lists every registered judge.
func (s *Scheduler) Judges(ctx context.Context) ([]model.Judge, error) {
	var js []model.Judge
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		js, err = tx.Judges(ctx)
		return err
	})
	return js, err
}

// Campaign returns the campaign row, or ErrNotFound before initialize.
func (s *Scheduler) Campaign(ctx context.Context) (model.Campaign, error) {
	var c model.Campaign
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		c, err = tx.Campaign(ctx)
		return err
	})
	return c, err
}

// Stats returns campaign-wide counters.
func (s *Scheduler) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		st, err = tx.Stats(ctx)
		return err
	})
	return st, err
}
