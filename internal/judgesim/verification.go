package judgesim

import (
	"errors"
	"fmt"
)

// ErrInconsistent reports counters that break the campaign guarantees.
var ErrInconsistent = errors.New("inconsistent campaign state")

// verify checks what must hold after a run. Once every driven judge has
// drained its queue and there are at least required_count of them, no live
// task can still be open.
func verify(stats *Stats, cfg *Config) error {
	r := stats.FinalReport
	if r.Coverage < 0 || r.Coverage > 1 {
		return fmt.Errorf("%w: coverage %.3f outside [0,1]", ErrInconsistent, r.Coverage)
	}
	if r.OpenTasks > r.Tasks {
		return fmt.Errorf("%w: %d open tasks of %d", ErrInconsistent, r.OpenTasks, r.Tasks)
	}
	if cfg.MaxSteps != 0 || len(cfg.Tokens) != 0 {
		return nil
	}
	if stats.Completed == stats.Judges && stats.Judges >= r.RequiredCount && r.OpenTasks != 0 {
		return fmt.Errorf("%w: every judge finished but %d tasks are open", ErrInconsistent, r.OpenTasks)
	}
	return nil
}
