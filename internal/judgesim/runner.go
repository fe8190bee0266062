package judgesim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/quorum/pkg/logger"
)

type counters struct {
	submitted, accepted, satisfied, undone, failed, retried, completed atomic.Int64
}

// Run drives every judge's queue concurrently until each is complete, then
// checks the campaign counters the service reports.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("judgesim")

	log.Info(ctx, "starting judge simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Float64("undoRate", cfg.UndoRate),
		logger.Int("maxSteps", cfg.MaxSteps),
		logger.Bool("verbose", cfg.Verbose),
	)

	var c counters
	client := newHTTPClient(cfg, func() { c.retried.Add(1) })

	if err := client.expect(ctx, "GET", "/healthz", 200, nil, nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	tokens, err := resolveTokens(ctx, client, cfg)
	if err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}
	stats.Judges = len(tokens)
	log.Info(ctx, "driving judges", logger.Int("judges", len(tokens)))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i, tok := range tokens {
		wg.Add(1)
		go func(idx int, token string) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(idx)+1))
			if err := driveJudge(ctx, client, cfg, token, rng, &c); err != nil {
				errOnce.Do(func() { firstErr = err })
				log.Error(ctx, "judge stopped", logger.Int("judge", idx), logger.Error(err))
			}
		}(i, tok)
	}
	wg.Wait()

	stats.Submitted = int(c.submitted.Load())
	stats.Accepted = int(c.accepted.Load())
	stats.Satisfied = int(c.satisfied.Load())
	stats.Undone = int(c.undone.Load())
	stats.Failed = int(c.failed.Load())
	stats.Retried = int(c.retried.Load())
	stats.Completed = int(c.completed.Load())

	if err := client.expect(ctx, "GET", "/stats", 200, nil, &stats.FinalReport); err != nil {
		return stats, fmt.Errorf("fetch stats: %w", err)
	}
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if firstErr != nil {
		return stats, firstErr
	}
	if err := verify(stats, cfg); err != nil {
		return stats, err
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

func resolveTokens(ctx context.Context, client *HTTPClient, cfg *Config) ([]string, error) {
	if len(cfg.Tokens) > 0 {
		return cfg.Tokens, nil
	}
	var judges []judgeEntry
	if err := client.expect(ctx, "GET", "/admin/judges", 200, nil, &judges); err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(judges))
	for _, j := range judges {
		tokens = append(tokens, j.Token)
	}
	return tokens, nil
}

// driveJudge works one judge's queue: fetch, score, submit, and now and then
// undo the submission so the same item comes back.
func driveJudge(ctx context.Context, client *HTTPClient, cfg *Config, token string, rng *rand.Rand, c *counters) error {
	base := "/judges/" + token
	var lastUndone int64
	for steps := 0; cfg.MaxSteps == 0 || steps < cfg.MaxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var next Next
		if err := client.expect(ctx, "GET", base+"/next", 200, nil, &next); err != nil {
			return err
		}
		if next.Status == "complete" || next.Item == nil {
			c.completed.Add(1)
			return nil
		}

		item := next.Item
		body := map[string]any{"task_id": item.TaskID, "scores": randomScores(rng, item.Dimensions)}
		var resp SubmitResponse
		code, err := client.do(ctx, "POST", base+"/submit", body, &resp)
		c.submitted.Add(1)
		if err != nil {
			c.failed.Add(1)
			return err
		}
		if code != 200 {
			c.failed.Add(1)
			return fmt.Errorf("%w: submit task %d returned %d", ErrStatus, item.TaskID, code)
		}
		if resp.Status == "already_satisfied" {
			c.satisfied.Add(1)
			continue
		}
		c.accepted.Add(1)

		if cfg.Verbose {
			logger.Get().Debug(ctx, "judgment submitted",
				logger.String("task", strconv.FormatInt(item.TaskID, 10)),
				logger.Int("done", next.Progress.Done+1),
			)
		}

		if resp.AssignmentID != lastUndone && rng.Float64() < cfg.UndoRate {
			undo := map[string]any{"assignment_id": resp.AssignmentID}
			if err := client.expect(ctx, "POST", base+"/undo", 200, undo, nil); err != nil {
				return err
			}
			lastUndone = resp.AssignmentID
			c.undone.Add(1)
		}
	}
	return nil
}

func randomScores(rng *rand.Rand, dims []Dimension) []int {
	scores := make([]int, len(dims))
	for i, d := range dims {
		scores[i] = d.Min + rng.IntN(d.Max-d.Min+1)
	}
	return scores
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	r := stats.FinalReport
	logger.Get().Info(ctx, "final statistics",
		logger.Int("judges", stats.Judges),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("satisfied", stats.Satisfied),
		logger.Int("undone", stats.Undone),
		logger.Int("failed", stats.Failed),
		logger.Int("busyRetries", stats.Retried),
		logger.Int("tasks", r.Tasks),
		logger.Int("openTasks", r.OpenTasks),
		logger.Int("completedTasks", r.CompletedTasks),
		logger.Float64("coverage", r.Coverage),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("submissionsPerSecond", perSecond),
	)
}
