package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/quorum/internal/config"
	"github.com/okian/quorum/pkg/logger"
	"github.com/okian/quorum/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

const catalogYAML = `
groups:
  - id: g01
    prompt: a red fox running through snow
    reference: refs/g01.mp4
    candidates:
      - id: model-a
        locator: g01/model-a.mp4
      - id: model-b
        locator: g01/model-b.mp4
`

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		_ = logger.Init()

		convey.Convey("When testing configuration loading", func() {
			t.Setenv("QUORUM_ADDR", ":8080")
			t.Setenv("QUORUM_SYNC_QUEUE_SIZE", "4")
			t.Setenv("QUORUM_JUDGES", "3")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.SyncQueueSize, convey.ShouldEqual, 4)
				convey.So(cfg.Judges, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When testing invalid configuration", func() {
			t.Setenv("QUORUM_REQUIRED_COUNT", "0")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a configured service with a catalog", t, func() {
		_ = logger.Init()
		dir := t.TempDir()
		catalogPath := filepath.Join(dir, "catalog.yaml")
		convey.So(os.WriteFile(catalogPath, []byte(catalogYAML), 0o600), convey.ShouldBeNil)

		cfg := config.New()
		cfg.DBPath = filepath.Join(dir, "quorum.db")
		cfg.CatalogPath = catalogPath
		cfg.Judges = 2
		cfg.SyncIntervalSec = 0
		cfg.AdminToken = "s3cret"

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		svc := newService(cfg, logger.Get())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, cfg, svc)

		convey.Convey("Then health, stats and admin routes answer", func() {
			for _, tc := range []struct {
				path string
				code int
			}{
				{"/healthz", http.StatusOK},
				{"/stats", http.StatusOK},
				{"/metrics", http.StatusOK},
				{"/admin/judges", http.StatusOK},
			} {
				req := httptest.NewRequest(http.MethodGet, tc.path, nil)
				req.Header.Set("X-Admin-Token", cfg.AdminToken)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, tc.code)
			}
		})

		convey.Convey("Then a judge can fetch work", func() {
			judges, err := svc.Judges(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(judges), convey.ShouldEqual, 2)

			req := httptest.NewRequest(http.MethodGet, "/judges/"+judges[0].Token+"/next", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When testing system metrics update", func() {
			convey.So(func() {
				updateSystemMetrics()
			}, convey.ShouldNotPanic)
		})
	})
}
