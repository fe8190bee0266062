package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/quorum/internal/adapters/repository"
	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var ctx = context.Background() //nolint:gochecknoglobals // test context

type provider struct {
	mu    sync.Mutex
	snap  catalog.Snapshot
	err   error
	enter chan struct{}
	wait  chan struct{}
}

func (p *provider) Snapshot(context.Context) (catalog.Snapshot, error) {
	if p.enter != nil {
		p.enter <- struct{}{}
		<-p.wait
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.err
}

func (p *provider) set(s catalog.Snapshot) {
	p.mu.Lock()
	p.snap = s
	p.mu.Unlock()
}

type engine struct {
	store     *repository.Store
	scheduler *campaign.Scheduler
	ledger    *campaign.Ledger
	sync      *campaign.Synchronizer
	provider  *provider
}

func newEngine(t *testing.T) *engine {
	store, err := repository.Open(filepath.Join(t.TempDir(), "campaign.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	p := &provider{}
	return &engine{
		store:     store,
		scheduler: campaign.NewScheduler(store),
		ledger:    campaign.NewLedger(store, campaign.NewTracker()),
		sync:      campaign.NewSynchronizer(store, p),
		provider:  p,
	}
}

func snapshot(n int) catalog.Snapshot {
	var s catalog.Snapshot
	for i := 0; i < n; i++ {
		g := fmt.Sprintf("g%02d", i/5)
		s.Entries = append(s.Entries, catalog.Entry{
			GroupID:          g,
			CandidateID:      fmt.Sprintf("c%03d", i),
			PromptText:       "prompt " + g,
			ReferenceLocator: g + "/ref.mp4",
			CandidateLocator: fmt.Sprintf("%s/c%03d.mp4", g, i),
		})
	}
	return s
}

func judges(n int) []campaign.NewJudge {
	out := make([]campaign.NewJudge, n)
	for i := range out {
		out[i] = campaign.NewJudge{Name: fmt.Sprintf("judge-%d", i+1), Token: fmt.Sprintf("tok-%d", i+1)}
	}
	return out
}

func (e *engine) init(t *testing.T, nJudges, nTasks int) []model.Judge {
	js, err := e.scheduler.Initialize(ctx, campaign.Setup{
		Seed:          7,
		RequiredCount: 3,
		Judges:        judges(nJudges),
		Snapshot:      snapshot(nTasks),
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return js
}

func (e *engine) assignments(judgeID int64) []model.Assignment {
	var out []model.Assignment
	_ = e.store.View(ctx, func(tx campaign.Tx) error {
		var err error
		out, err = tx.Assignments(ctx, judgeID)
		return err
	})
	return out
}

func (e *engine) task(id int64) model.Task {
	var tk model.Task
	_ = e.store.View(ctx, func(tx campaign.Tx) error {
		var err error
		tk, err = tx.Task(ctx, id)
		return err
	})
	return tk
}

func (e *engine) stats() model.Stats {
	st, _ := e.scheduler.Stats(ctx)
	return st
}

// submitNext takes the judge's next item and submits neutral scores.
func (e *engine) submitNext(judgeID int64) (campaign.Receipt, error) {
	item, err := e.scheduler.NextTask(ctx, judgeID)
	if err != nil {
		return campaign.Receipt{}, err
	}
	return e.ledger.Submit(ctx, judgeID, item.Task.ID, []int{3, 3, 3, 3})
}

func TestInitialize(t *testing.T) {
	Convey("Given an empty store", t, func() {
		e := newEngine(t)
		js := e.init(t, 3, 12)

		Convey("Every judge gets one pending assignment per task", func() {
			for _, j := range js {
				as := e.assignments(j.ID)
				So(len(as), ShouldEqual, 12)
				for i, a := range as {
					So(a.Finished, ShouldBeFalse)
					So(a.DisplayOrder, ShouldEqual, i)
				}
			}
		})

		Convey("Judges see different orders", func() {
			a, b := e.assignments(js[0].ID), e.assignments(js[1].ID)
			same := true
			for i := range a {
				if a[i].TaskID != b[i].TaskID {
					same = false
				}
			}
			So(same, ShouldBeFalse)
		})

		Convey("The same inputs reproduce the same orders", func() {
			other := newEngine(t)
			ojs := other.init(t, 3, 12)
			for i := range js {
				a, b := e.assignments(js[i].ID), other.assignments(ojs[i].ID)
				for k := range a {
					So(a[k].TaskID, ShouldEqual, b[k].TaskID)
				}
			}
		})

		Convey("A second initialize is rejected", func() {
			_, err := e.scheduler.Initialize(ctx, campaign.Setup{Seed: 7, Judges: judges(1), Snapshot: snapshot(1)})
			So(errors.Is(err, campaign.ErrAlreadyInitialized), ShouldBeTrue)
		})
	})

	Convey("An invalid snapshot is rejected before touching the store", t, func() {
		e := newEngine(t)
		bad := snapshot(2)
		bad.Entries[1] = bad.Entries[0]
		_, err := e.scheduler.Initialize(ctx, campaign.Setup{Seed: 1, Judges: judges(1), Snapshot: bad})
		So(errors.Is(err, campaign.ErrInvalidSnapshot), ShouldBeTrue)
		_, err = e.scheduler.Campaign(ctx)
		So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)
	})
}

func TestQuotaCrossing(t *testing.T) {
	Convey("Scenario A: a task needing three judgments", t, func() {
		e := newEngine(t)
		js := e.init(t, 4, 1)
		taskID := e.assignments(js[0].ID)[0].TaskID
		scores := []int{3, 4, 2, 5}

		_, err := e.ledger.Submit(ctx, js[0].ID, taskID, scores)
		So(err, ShouldBeNil)
		rec, err := e.ledger.Submit(ctx, js[1].ID, taskID, scores)
		So(err, ShouldBeNil)
		So(rec.Outcome.Count, ShouldEqual, 2)
		So(rec.Outcome.Completed, ShouldBeFalse)

		rec, err = e.ledger.Submit(ctx, js[2].ID, taskID, scores)
		So(err, ShouldBeNil)

		Convey("The third submit completes it and prunes the fourth judge", func() {
			So(rec.Outcome.Count, ShouldEqual, 3)
			So(rec.Outcome.Flipped, ShouldBeTrue)
			So(rec.Outcome.Pruned, ShouldEqual, 1)
			tk := e.task(taskID)
			So(tk.Completed, ShouldBeTrue)
			So(tk.CompletedAt, ShouldNotBeNil)
			So(e.assignments(js[3].ID), ShouldBeEmpty)
			for _, j := range js[:3] {
				as := e.assignments(j.ID)
				So(len(as), ShouldEqual, 1)
				So(as[0].Finished, ShouldBeTrue)
			}
		})

		Convey("The fourth judge has no work and a late submit is already satisfied", func() {
			_, err := e.scheduler.NextTask(ctx, js[3].ID)
			So(errors.Is(err, campaign.ErrNoWork), ShouldBeTrue)
			_, err = e.ledger.Submit(ctx, js[3].ID, taskID, scores)
			So(errors.Is(err, campaign.ErrAlreadySatisfied), ShouldBeTrue)
			So(e.task(taskID).CurrentCount, ShouldEqual, 3)
		})

		Convey("Resubmitting is idempotent", func() {
			rec, err := e.ledger.Submit(ctx, js[0].ID, taskID, scores)
			So(err, ShouldBeNil)
			So(rec.Outcome.Count, ShouldEqual, 3)
			So(rec.Outcome.Flipped, ShouldBeFalse)
			So(e.stats().Ratings, ShouldEqual, 3)
		})
	})

	Convey("Submitting to an unknown task is not found", t, func() {
		e := newEngine(t)
		js := e.init(t, 1, 1)
		_, err := e.ledger.Submit(ctx, js[0].ID, 999, []int{1, 1, 1, 1})
		So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)
	})

	Convey("Invalid scores change nothing", t, func() {
		e := newEngine(t)
		js := e.init(t, 1, 1)
		taskID := e.assignments(js[0].ID)[0].TaskID
		_, err := e.ledger.Submit(ctx, js[0].ID, taskID, []int{3, 3, 6, 3})
		So(errors.Is(err, campaign.ErrInvalidScores), ShouldBeTrue)
		So(e.stats().Ratings, ShouldEqual, 0)
		So(e.assignments(js[0].ID)[0].Finished, ShouldBeFalse)
	})
}

func TestConcurrentSubmitsCountOnce(t *testing.T) {
	Convey("Given five judges racing on one task", t, func() {
		e := newEngine(t)
		js := e.init(t, 5, 1)
		taskID := e.assignments(js[0].ID)[0].TaskID

		var wg sync.WaitGroup
		errs := make([]error, len(js))
		flips := make([]bool, len(js))
		for i, j := range js {
			wg.Add(1)
			go func(i int, judgeID int64) {
				defer wg.Done()
				rec, err := e.ledger.Submit(ctx, judgeID, taskID, []int{2, 2, 2, 2})
				errs[i], flips[i] = err, rec.Outcome.Flipped
			}(i, j.ID)
		}
		wg.Wait()

		Convey("Exactly three are accepted and exactly one flips completion", func() {
			accepted, satisfied, flipped := 0, 0, 0
			for i, err := range errs {
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, campaign.ErrAlreadySatisfied):
					satisfied++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
				if flips[i] {
					flipped++
				}
			}
			So(accepted, ShouldEqual, 3)
			So(satisfied, ShouldEqual, 2)
			So(flipped, ShouldEqual, 1)
			tk := e.task(taskID)
			So(tk.CurrentCount, ShouldEqual, 3)
			So(tk.Completed, ShouldBeTrue)
		})
	})
}

func TestReopenRule(t *testing.T) {
	Convey("Given a judge who undid a submission", t, func() {
		e := newEngine(t)
		js := e.init(t, 4, 1)
		taskID := e.assignments(js[0].ID)[0].TaskID

		rec, err := e.ledger.Submit(ctx, js[0].ID, taskID, []int{1, 2, 3, 4})
		So(err, ShouldBeNil)
		_, err = e.ledger.Undo(ctx, js[0].ID, rec.Assignment.ID)
		So(err, ShouldBeNil)

		Convey("When the others complete the task", func() {
			_, err := e.ledger.Submit(ctx, js[1].ID, taskID, []int{1, 1, 1, 1})
			So(err, ShouldBeNil)
			rec, err := e.ledger.Submit(ctx, js[2].ID, taskID, []int{1, 1, 1, 1})
			So(err, ShouldBeNil)
			So(rec.Outcome.Flipped, ShouldBeTrue)

			Convey("The undoing judge keeps the task with prior scores", func() {
				item, err := e.scheduler.NextTask(ctx, js[0].ID)
				So(err, ShouldBeNil)
				So(item.Task.ID, ShouldEqual, taskID)
				So(item.Task.Completed, ShouldBeTrue)
				So(item.Rating, ShouldNotBeNil)
				So(item.Rating.Scores, ShouldResemble, []int{1, 2, 3, 4})
				So(item.Rating.Draft(), ShouldBeTrue)
				p, err := e.scheduler.Progress(ctx, js[0].ID)
				So(err, ShouldBeNil)
				So(p, ShouldResemble, model.Progress{Done: 0, Pending: 1})
			})

			Convey("The judge without a rating lost the assignment", func() {
				So(e.assignments(js[3].ID), ShouldBeEmpty)
			})
		})
	})
}

func TestUndo(t *testing.T) {
	Convey("Scenario B: undo then resubmit", t, func() {
		e := newEngine(t)
		js := e.init(t, 1, 5)
		j := js[0].ID

		first, err := e.submitNext(j)
		So(err, ShouldBeNil)
		second, err := e.submitNext(j)
		So(err, ShouldBeNil)
		_, err = e.ledger.Submit(ctx, j, second.Assignment.TaskID, []int{3, 4, 2, 5})
		So(err, ShouldBeNil)

		Convey("Only the latest finished assignment can be undone", func() {
			_, err := e.ledger.Undo(ctx, j, first.Assignment.ID)
			So(errors.Is(err, campaign.ErrUndoNotAllowed), ShouldBeTrue)
		})

		Convey("A pending assignment cannot be undone", func() {
			next, err := e.scheduler.NextTask(ctx, j)
			So(err, ShouldBeNil)
			_, err = e.ledger.Undo(ctx, j, next.Assignment.ID)
			So(errors.Is(err, campaign.ErrUndoNotAllowed), ShouldBeTrue)
		})

		Convey("Another judge's assignment is not found", func() {
			_, err := e.ledger.Undo(ctx, j+100, second.Assignment.ID)
			So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)
		})

		Convey("Undoing the latest keeps the scores as a draft", func() {
			a, err := e.ledger.Undo(ctx, j, second.Assignment.ID)
			So(err, ShouldBeNil)
			So(a.Finished, ShouldBeFalse)

			item, err := e.scheduler.NextTask(ctx, j)
			So(err, ShouldBeNil)
			So(item.Assignment.ID, ShouldEqual, second.Assignment.ID)
			So(item.Rating.Scores, ShouldResemble, []int{3, 4, 2, 5})
			So(item.Rating.SubmittedAt, ShouldBeNil)

			Convey("And resubmitting overwrites the single rating", func() {
				rec, err := e.ledger.Submit(ctx, j, item.Task.ID, []int{4, 4, 3, 5})
				So(err, ShouldBeNil)
				So(rec.Rating.Scores, ShouldResemble, []int{4, 4, 3, 5})
				So(rec.Rating.SubmittedAt, ShouldNotBeNil)
				So(e.stats().Ratings, ShouldEqual, 2)
				So(e.task(item.Task.ID).CurrentCount, ShouldEqual, 1)
			})
		})

		Convey("Previous steps back through finished items", func() {
			next, err := e.scheduler.NextTask(ctx, j)
			So(err, ShouldBeNil)
			prev, err := e.scheduler.PreviousTask(ctx, j, next.Assignment.ID)
			So(err, ShouldBeNil)
			So(prev.Assignment.ID, ShouldEqual, second.Assignment.ID)
			prev, err = e.scheduler.PreviousTask(ctx, j, prev.Assignment.ID)
			So(err, ShouldBeNil)
			So(prev.Assignment.ID, ShouldEqual, first.Assignment.ID)
			_, err = e.scheduler.PreviousTask(ctx, j, prev.Assignment.ID)
			So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)

			latest, err := e.scheduler.PreviousTask(ctx, j, 0)
			So(err, ShouldBeNil)
			So(latest.Assignment.ID, ShouldEqual, second.Assignment.ID)
		})
	})
}

func TestShufflePending(t *testing.T) {
	Convey("Given a judge with finished and pending work", t, func() {
		e := newEngine(t)
		js := e.init(t, 1, 20)
		j := js[0].ID
		for i := 0; i < 5; i++ {
			_, err := e.submitNext(j)
			So(err, ShouldBeNil)
		}
		before := e.assignments(j)

		So(e.scheduler.ShufflePending(ctx, j, 99), ShouldBeNil)
		after := e.assignments(j)

		Convey("Finished assignments keep their display order", func() {
			for i := 0; i < 5; i++ {
				So(after[i].ID, ShouldEqual, before[i].ID)
				So(after[i].DisplayOrder, ShouldEqual, before[i].DisplayOrder)
				So(after[i].Finished, ShouldBeTrue)
			}
		})

		Convey("Pending assignments follow as one contiguous block", func() {
			for i := 5; i < 20; i++ {
				So(after[i].Finished, ShouldBeFalse)
				So(after[i].DisplayOrder, ShouldEqual, i)
			}
		})

		Convey("The same seed gives the same order", func() {
			So(e.scheduler.ShufflePending(ctx, j, 99), ShouldBeNil)
			again := e.assignments(j)
			for i := range again {
				So(again[i].ID, ShouldEqual, after[i].ID)
			}
		})

		Convey("An unknown judge is not found", func() {
			err := e.scheduler.ShufflePending(ctx, 12345, 1)
			So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestAddJudge(t *testing.T) {
	Convey("Given a campaign with one completed task", t, func() {
		e := newEngine(t)
		js := e.init(t, 3, 4)
		taskID := e.assignments(js[0].ID)[0].TaskID
		for _, j := range js {
			_, err := e.ledger.Submit(ctx, j.ID, taskID, []int{5, 5, 5, 5})
			So(err, ShouldBeNil)
		}

		j, err := e.scheduler.AddJudge(ctx, campaign.NewJudge{Name: "late", Token: "late-token"})
		So(err, ShouldBeNil)

		Convey("The new judge is queued for every open task", func() {
			as := e.assignments(j.ID)
			So(len(as), ShouldEqual, 3)
			for _, a := range as {
				So(a.TaskID, ShouldNotEqual, taskID)
			}
			got, err := e.scheduler.JudgeByToken(ctx, "late-token")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, j.ID)
		})
	})
}

func TestReconcile(t *testing.T) {
	Convey("Scenario C: an addition mid-campaign", t, func() {
		e := newEngine(t)
		js := e.init(t, 3, 50)
		for _, j := range js {
			for i := 0; i < 10; i++ {
				_, err := e.submitNext(j.ID)
				So(err, ShouldBeNil)
			}
		}
		before := make(map[int64][]model.Assignment)
		for _, j := range js {
			before[j.ID] = e.assignments(j.ID)
		}

		rep, err := e.sync.Reconcile(ctx, snapshot(51))
		So(err, ShouldBeNil)
		So(rep.Added, ShouldEqual, 1)
		So(rep.Reshuffled, ShouldEqual, 3)
		So(rep.ScanCount, ShouldEqual, int64(1))

		Convey("Each queue grows by one and finished entries keep their order", func() {
			for _, j := range js {
				after := e.assignments(j.ID)
				So(len(after), ShouldEqual, 51)
				pending := 0
				for _, a := range after {
					if !a.Finished {
						pending++
					}
				}
				So(pending, ShouldEqual, 41)
				for i := 0; i < 10; i++ {
					So(after[i].ID, ShouldEqual, before[j.ID][i].ID)
					So(after[i].DisplayOrder, ShouldEqual, before[j.ID][i].DisplayOrder)
				}
			}
		})

		Convey("Reconciling the same listing again changes nothing", func() {
			rep, err := e.sync.Reconcile(ctx, snapshot(51))
			So(err, ShouldBeNil)
			So(rep.Changed(), ShouldBeFalse)
			So(rep.ScanCount, ShouldEqual, int64(2))
		})
	})

	Convey("Scenario D: soft removal", t, func() {
		e := newEngine(t)
		js := e.init(t, 2, 3)
		snap := snapshot(3)
		var rated, unrated model.Task
		_ = e.store.View(ctx, func(tx campaign.Tx) error {
			ts, _ := tx.Tasks(ctx)
			rated, unrated = ts[0], ts[1]
			return nil
		})
		_, err := e.ledger.Submit(ctx, js[0].ID, rated.ID, []int{2, 2, 2, 2})
		So(err, ShouldBeNil)

		rep, err := e.sync.Reconcile(ctx, catalog.Snapshot{Entries: snap.Entries[2:]})
		So(err, ShouldBeNil)
		So(rep.Deleted, ShouldEqual, 1)
		So(rep.Retired, ShouldEqual, 1)

		Convey("The unrated task vanishes with its assignments", func() {
			err := e.store.View(ctx, func(tx campaign.Tx) error {
				_, err := tx.Task(ctx, unrated.ID)
				return err
			})
			So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)
			for _, j := range js {
				for _, a := range e.assignments(j.ID) {
					So(a.TaskID, ShouldNotEqual, unrated.ID)
				}
			}
		})

		Convey("The rated task survives with only finished assignments", func() {
			tk := e.task(rated.ID)
			So(tk.Retired(), ShouldBeTrue)
			So(tk.CurrentCount, ShouldEqual, 1)
			So(len(e.assignments(js[0].ID)), ShouldEqual, 2)
			for _, a := range e.assignments(js[1].ID) {
				So(a.TaskID, ShouldNotEqual, rated.ID)
			}
		})

		Convey("Undoing the rated judgment after removal keeps it reachable", func() {
			var undone int64
			for _, a := range e.assignments(js[0].ID) {
				if a.TaskID == rated.ID {
					undone = a.ID
				}
			}
			a, err := e.ledger.Undo(ctx, js[0].ID, undone)
			So(err, ShouldBeNil)
			So(a.Finished, ShouldBeFalse)

			p, err := e.scheduler.Progress(ctx, js[0].ID)
			So(err, ShouldBeNil)
			So(p, ShouldResemble, model.Progress{Done: 0, Pending: 2})

			served := make(map[int64]bool)
			for i := 0; i < 3; i++ {
				item, err := e.scheduler.NextTask(ctx, js[0].ID)
				if errors.Is(err, campaign.ErrNoWork) {
					break
				}
				So(err, ShouldBeNil)
				served[item.Task.ID] = true
				if item.Task.ID == rated.ID {
					So(item.Rating, ShouldNotBeNil)
					So(item.Rating.Scores, ShouldResemble, []int{2, 2, 2, 2})
				}
				_, err = e.ledger.Submit(ctx, js[0].ID, item.Task.ID, []int{4, 4, 4, 4})
				So(err, ShouldBeNil)
			}
			So(served[rated.ID], ShouldBeTrue)

			tk := e.task(rated.ID)
			So(tk.Retired(), ShouldBeTrue)
			So(tk.CurrentCount, ShouldEqual, 1)
		})

		Convey("When the rated task reappears it is restored", func() {
			rep, err := e.sync.Reconcile(ctx, catalog.Snapshot{Entries: append([]catalog.Entry{snap.Entries[0]}, snap.Entries[2:]...)})
			So(err, ShouldBeNil)
			So(rep.Restored, ShouldEqual, 1)
			So(e.task(rated.ID).Retired(), ShouldBeFalse)
			found := false
			for _, a := range e.assignments(js[1].ID) {
				if a.TaskID == rated.ID {
					found = !a.Finished
				}
			}
			So(found, ShouldBeTrue)
		})
	})

	Convey("A changed locator is refreshed in place", t, func() {
		e := newEngine(t)
		e.init(t, 1, 2)
		snap := snapshot(2)
		snap.Entries[0].CandidateLocator = "moved.mp4"
		rep, err := e.sync.Reconcile(ctx, snap)
		So(err, ShouldBeNil)
		So(rep.Refreshed, ShouldEqual, 1)
		So(rep.Reshuffled, ShouldEqual, 0)
	})
}

// failingTx fails the last step of a reconcile pass.
type failingTx struct{ campaign.Tx }

func (failingTx) IncrementScanCount(context.Context) (int64, error) {
	return 0, errors.New("disk full")
}

type failingStore struct{ *repository.Store }

func (s failingStore) Update(ctx context.Context, fn func(campaign.Tx) error) error {
	return s.Store.Update(ctx, func(tx campaign.Tx) error { return fn(failingTx{tx}) })
}

func TestReconcileIsAllOrNothing(t *testing.T) {
	Convey("Given a pass that fails after applying changes", t, func() {
		e := newEngine(t)
		e.init(t, 2, 5)
		before := e.stats()

		s := campaign.NewSynchronizer(failingStore{e.store}, e.provider)
		_, err := s.Reconcile(ctx, snapshot(8))
		So(err, ShouldNotBeNil)

		Convey("The store is exactly as before", func() {
			So(e.stats(), ShouldResemble, before)
			c, err := e.scheduler.Campaign(ctx)
			So(err, ShouldBeNil)
			So(c.ScanCount, ShouldEqual, int64(0))
		})
	})

	Convey("Given a content source that cannot be read", t, func() {
		e := newEngine(t)
		e.init(t, 1, 3)
		before := e.stats()
		e.provider.err = errors.New("mount gone")

		_, err := e.sync.Scan(ctx)
		So(err, ShouldNotBeNil)
		So(e.stats(), ShouldResemble, before)
	})
}

func TestScanSerialization(t *testing.T) {
	Convey("Given a scan blocked inside the provider", t, func() {
		e := newEngine(t)
		e.init(t, 1, 2)
		e.provider.set(snapshot(3))
		e.provider.enter = make(chan struct{})
		e.provider.wait = make(chan struct{})

		done := make(chan error, 1)
		go func() {
			_, err := e.sync.Scan(ctx)
			done <- err
		}()
		<-e.provider.enter

		Convey("TryScan is rejected and a waiting Scan honours its deadline", func() {
			_, err := e.sync.TryScan(ctx)
			So(errors.Is(err, campaign.ErrReconcileInProgress), ShouldBeTrue)

			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err = e.sync.Scan(short)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)

			close(e.provider.wait)
			So(<-done, ShouldBeNil)
			So(e.stats().Tasks, ShouldEqual, 3)
		})
	})
}
