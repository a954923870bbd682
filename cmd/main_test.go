package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/config"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.SimulateProvider = true
	cfg.SimLatencyMinMS, cfg.SimLatencyMaxMS = 0, 1
	cfg.SweepSchedule = ""
	return cfg
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		t.Setenv(config.EnvPrefix+"ADDR", ":8088")
		t.Setenv(config.EnvPrefix+"QUEUE_SIZE", "64")
		t.Setenv(config.EnvPrefix+"WORKER_COUNT", "3")

		convey.Convey("Then it loads over the defaults", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8088")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
		})
	})

	convey.Convey("Given an invalid address", t, func() {
		t.Setenv(config.EnvPrefix+"ADDR", "")

		convey.Convey("Then loading fails", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestWire(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given the memory store and the simulated provider", t, func() {
		c, err := wire(ctx, testConfig(), logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = c.Close() }()

		convey.Convey("Then a match runs to the end", func() {
			m, err := c.engine.CreateMatch(ctx, "arena", nil)
			convey.So(err, convey.ShouldBeNil)
			for m.Status != match.StatusEnded {
				res, err := c.engine.Advance(ctx, m.ID)
				convey.So(err, convey.ShouldBeNil)
				m = res.Match
			}
			convey.So(m.Champion, convey.ShouldNotBeEmpty)
		})
	})

	convey.Convey("Given the sqlite store", t, func() {
		cfg := testConfig()
		cfg.Store = config.StoreSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "gauntlet.db")
		c, err := wire(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then matches persist and the store closes", func() {
			m, err := c.engine.CreateMatch(ctx, "arena", nil)
			convey.So(err, convey.ShouldBeNil)
			got, err := c.engine.GetMatch(ctx, m.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got.Status, convey.ShouldEqual, match.StatusWaiting)
			convey.So(c.Close(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an unreachable redis", t, func() {
		cfg := testConfig()
		cfg.RedisAddr = "127.0.0.1:1"

		convey.Convey("Then wiring fails", func() {
			c, err := wire(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(c, convey.ShouldBeNil)
		})
	})
}

func TestNewMux(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given the application mux", t, func() {
		c, err := wire(ctx, testConfig(), logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = c.Close() }()
		mux := newMux(ctx, c.engine)

		for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/api-docs", "/artifacts"} {
			convey.Convey("Then GET "+path+" is served", func() {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		}
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		c, err := wire(context.Background(), testConfig(), logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = c.Close() }()

		convey.Convey("Then single updates do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(context.Background(), c.engine) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops return when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, c.engine)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}
