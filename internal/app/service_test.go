package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/quorum/internal/adapters/catalog"
	service "github.com/okian/quorum/internal/app"
	"github.com/okian/quorum/internal/domain/campaign"
	domain "github.com/okian/quorum/internal/domain/catalog"
	"github.com/okian/quorum/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var neutral = []int{3, 3, 3, 3}

func snapshot(candidates ...string) domain.Snapshot {
	var snap domain.Snapshot
	for _, c := range candidates {
		snap.Entries = append(snap.Entries, domain.Entry{
			GroupID:          "g01",
			CandidateID:      c,
			PromptText:       "a red fox running through snow",
			ReferenceLocator: "refs/g01.mp4",
			CandidateLocator: "g01/" + c + ".mp4",
		})
	}
	return snap
}

func newService(t *testing.T, provider campaign.Provider, judges int) *service.Service {
	opts := []service.Option{
		service.WithDBPath(filepath.Join(t.TempDir(), "quorum.db")),
		service.WithSyncInterval(0),
		service.WithJudgeCount(judges),
		service.WithSeed(7),
	}
	if provider != nil {
		opts = append(opts, service.WithProvider(provider))
	}
	return service.New(opts...)
}

func TestService_NotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Then every operation reports ErrNotStarted", func() {
			_, err := svc.NextTask(ctx, 1)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Stats(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.Ready(ctx), service.ErrNotStarted), ShouldBeTrue)
			So(svc.Started(), ShouldBeFalse)
		})

		Convey("Then Stop is a no-op", func() {
			So(func() { svc.Stop() }, ShouldNotPanic)
		})
	})
}

func TestService_Bootstrap(t *testing.T) {
	Convey("Given an empty store and a content source with three candidates", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		provider := catalog.NewStaticProvider(snapshot("a", "b", "c"))
		svc := newService(t, provider, 2)
		defer svc.Stop()

		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then judges get tokens and full queues", func() {
			judges, err := svc.Judges(ctx)
			So(err, ShouldBeNil)
			So(len(judges), ShouldEqual, 2)
			So(judges[0].Name, ShouldEqual, "judge-01")
			So(judges[0].Token, ShouldNotBeBlank)

			j, err := svc.Judge(ctx, judges[1].Token)
			So(err, ShouldBeNil)
			So(j.ID, ShouldEqual, judges[1].ID)

			p, err := svc.Progress(ctx, j.ID)
			So(err, ShouldBeNil)
			So(p.Pending, ShouldEqual, 3)
			So(p.Done, ShouldEqual, 0)
		})

		Convey("Then an unknown token is not found", func() {
			_, err := svc.Judge(ctx, "nope")
			So(errors.Is(err, campaign.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then stats describe the pool", func() {
			st, err := svc.Stats(ctx)
			So(err, ShouldBeNil)
			So(st.Judges, ShouldEqual, 2)
			So(st.Tasks, ShouldEqual, 3)
			So(st.OpenTasks, ShouldEqual, 3)
			So(st.PendingAssignment, ShouldEqual, 6)
			So(svc.Ready(ctx), ShouldBeNil)
		})
	})
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestService_BootstrapKeepsTokensOutOfLogs(t *testing.T) {
	Convey("Given a service logging to a buffer", t, func() {
		out := &lockedBuffer{}
		So(logger.Init(logger.WithWriter(out)), ShouldBeNil)
		logger.SetLevel(slog.LevelDebug)
		defer func() { _ = logger.Init() }()

		ctx := context.Background()
		svc := service.New(
			service.WithDBPath(filepath.Join(t.TempDir(), "quorum.db")),
			service.WithSyncInterval(0),
			service.WithJudgeCount(3),
			service.WithProvider(catalog.NewStaticProvider(snapshot("a", "b"))),
			service.WithLogger(logger.Get()),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Then judges are logged without their access tokens", func() {
			judges, err := svc.Judges(ctx)
			So(err, ShouldBeNil)
			So(judges, ShouldHaveLength, 3)
			logs := out.String()
			So(strings.Count(logs, "judge registered"), ShouldEqual, 3)
			for _, j := range judges {
				So(j.Token, ShouldNotBeEmpty)
				So(logs, ShouldNotContainSubstring, j.Token)
			}
		})
	})
}

func TestService_Judging(t *testing.T) {
	Convey("Given a started campaign with four judges", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := newService(t, catalog.NewStaticProvider(snapshot("a", "b")), 4)
		defer svc.Stop()
		So(svc.Start(ctx), ShouldBeNil)

		judges, err := svc.Judges(ctx)
		So(err, ShouldBeNil)
		first, err := svc.NextTask(ctx, judges[0].ID)
		So(err, ShouldBeNil)
		So(first.Complete, ShouldBeFalse)
		So(first.Group.PromptText, ShouldEqual, "a red fox running through snow")
		taskID := first.Task.ID

		Convey("When three judges submit the same task", func() {
			var last campaign.Receipt
			for _, j := range judges[:3] {
				last, err = svc.Submit(ctx, j.ID, taskID, neutral)
				So(err, ShouldBeNil)
			}

			Convey("Then the third submission completes it", func() {
				So(last.Outcome.Flipped, ShouldBeTrue)
				So(last.Outcome.Count, ShouldEqual, 3)
			})

			Convey("Then the fourth judge is told the task is satisfied", func() {
				_, err := svc.Submit(ctx, judges[3].ID, taskID, neutral)
				So(errors.Is(err, campaign.ErrAlreadySatisfied), ShouldBeTrue)

				p, err := svc.Progress(ctx, judges[3].ID)
				So(err, ShouldBeNil)
				So(p.Pending, ShouldEqual, 1)
			})
		})

		Convey("When scores fall outside the rubric", func() {
			_, err := svc.Submit(ctx, judges[0].ID, taskID, []int{9, 3, 3, 3})

			Convey("Then the submission is rejected", func() {
				So(errors.Is(err, campaign.ErrInvalidScores), ShouldBeTrue)
			})
		})

		Convey("When a judge submits and undoes", func() {
			rec, err := svc.Submit(ctx, judges[0].ID, taskID, []int{1, 2, 3, 4})
			So(err, ShouldBeNil)

			prev, err := svc.PreviousTask(ctx, judges[0].ID, 0)
			So(err, ShouldBeNil)
			So(prev.Assignment.ID, ShouldEqual, rec.Assignment.ID)

			a, err := svc.Undo(ctx, judges[0].ID, rec.Assignment.ID)
			So(err, ShouldBeNil)
			So(a.Finished, ShouldBeFalse)

			Convey("Then the task is served again with the earlier scores", func() {
				next, err := svc.NextTask(ctx, judges[0].ID)
				So(err, ShouldBeNil)
				So(next.Task.ID, ShouldEqual, taskID)
				So(next.Rating, ShouldNotBeNil)
				So(next.Rating.Scores, ShouldResemble, []int{1, 2, 3, 4})
				So(next.Rating.Draft(), ShouldBeTrue)
			})

			Convey("Then a second undo is refused", func() {
				_, err := svc.Undo(ctx, judges[0].ID, rec.Assignment.ID)
				So(errors.Is(err, campaign.ErrUndoNotAllowed), ShouldBeTrue)
			})
		})

		Convey("When a judge finishes every task", func() {
			for {
				view, err := svc.NextTask(ctx, judges[1].ID)
				So(err, ShouldBeNil)
				if view.Complete {
					So(view.Progress.Done, ShouldEqual, 2)
					So(view.Progress.Pending, ShouldEqual, 0)
					break
				}
				_, err = svc.Submit(ctx, judges[1].ID, view.Task.ID, neutral)
				So(err, ShouldBeNil)
			}
		})

		Convey("When a judge joins mid-campaign", func() {
			j, err := svc.AddJudge(ctx, "late")
			So(err, ShouldBeNil)
			So(j.Token, ShouldNotBeBlank)

			p, err := svc.Progress(ctx, j.ID)
			So(err, ShouldBeNil)
			So(p.Pending, ShouldEqual, 2)
		})
	})
}

func TestService_Sync(t *testing.T) {
	Convey("Given a started campaign backed by a changing content source", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		provider := catalog.NewStaticProvider(snapshot("a"))
		svc := newService(t, provider, 1)
		defer svc.Stop()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a candidate appears and a synchronous sync runs", func() {
			provider.Set(snapshot("a", "b"))
			res, err := svc.TriggerSync(ctx, service.SyncRequest{Wait: true, Reason: "test"})

			Convey("Then the new task is added", func() {
				So(err, ShouldBeNil)
				So(res.Report, ShouldNotBeNil)
				So(res.Report.Added, ShouldEqual, 1)
				So(res.Report.ScanCount, ShouldEqual, int64(1))

				st, err := svc.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.Tasks, ShouldEqual, 2)
			})
		})

		Convey("When a sync is queued", func() {
			res, err := svc.TriggerSync(ctx, service.SyncRequest{Reason: "test"})

			Convey("Then the request is accepted", func() {
				So(err, ShouldBeNil)
				So(res.Queued, ShouldNotBeNil)
				So(res.Queued.Request.ID, ShouldNotBeBlank)
			})
		})

		Convey("When the same keyed request arrives twice", func() {
			first, err := svc.TriggerSync(ctx, service.SyncRequest{Wait: true, Key: "req-1"})
			So(err, ShouldBeNil)
			second, err := svc.TriggerSync(ctx, service.SyncRequest{Wait: true, Key: "req-1"})

			Convey("Then only the first runs a pass", func() {
				So(err, ShouldBeNil)
				So(first.Report, ShouldNotBeNil)
				So(second.Duplicate, ShouldBeTrue)
				So(second.Report, ShouldBeNil)

				c, err := svc.Campaign(ctx)
				So(err, ShouldBeNil)
				So(c.ScanCount, ShouldEqual, int64(1))
			})
		})
	})

	Convey("Given a service without a content source", t, func() {
		ctx := context.Background()
		svc := newService(t, nil, 1)
		defer svc.Stop()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then sync requests are refused", func() {
			_, err := svc.TriggerSync(ctx, service.SyncRequest{Wait: true, Reason: "test"})
			So(errors.Is(err, service.ErrSyncDisabled), ShouldBeTrue)
		})
	})
}

func TestService_Restart(t *testing.T) {
	Convey("Given a campaign that was stopped", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		path := filepath.Join(t.TempDir(), "quorum.db")
		open := func() *service.Service {
			return service.New(
				service.WithDBPath(path),
				service.WithSyncInterval(0),
				service.WithJudgeCount(2),
			)
		}

		svc := open()
		So(svc.Start(ctx), ShouldBeNil)
		before, err := svc.Judges(ctx)
		So(err, ShouldBeNil)
		svc.Stop()
		So(svc.Started(), ShouldBeFalse)

		Convey("When it starts again", func() {
			again := open()
			So(again.Start(ctx), ShouldBeNil)
			defer again.Stop()

			Convey("Then the judges are resumed, not recreated", func() {
				after, err := again.Judges(ctx)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
			})
		})
	})
}
