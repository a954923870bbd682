package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/gauntlet/internal/config"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.RoundCount, convey.ShouldEqual, match.MaxRounds)
			convey.So(cfg.PayoutMultipliers, convey.ShouldResemble, map[int]float64{1: 2.0, 2: 1.0, 3: 0.5})
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the derived settings follow the fields", func() {
			convey.So(cfg.Flow(), convey.ShouldResemble, match.DefaultFlow())
			convey.So(cfg.ClaimTTL().Seconds(), convey.ShouldEqual, 120)
			convey.So(cfg.ProviderTimeout().Milliseconds(), convey.ShouldEqual, 2000)
			lo, hi := cfg.SimLatency()
			convey.So(lo < hi, convey.ShouldBeTrue)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":          func(c *config.Config) { c.Addr = "" },
			"unknown store":       func(c *config.Config) { c.Store = "postgres" },
			"sqlite without path": func(c *config.Config) { c.Store, c.SQLitePath = config.StoreSQLite, "" },
			"no workers":          func(c *config.Config) { c.WorkerCount = 0 },
			"too many rounds":     func(c *config.Config) { c.RoundCount = 6 },
			"one seat":            func(c *config.Config) { c.Seats = 1 },
			"tiny bracket":        func(c *config.Config) { c.FinalistsByReputation, c.FinalistsByHot = 1, 0 },
			"inverted latency":    func(c *config.Config) { c.SimLatencyMinMS, c.SimLatencyMaxMS = 100, 10 },
			"failure rate":        func(c *config.Config) { c.SimFailureRate = 1.5 },
			"negative multiplier": func(c *config.Config) { c.PayoutMultipliers = map[int]float64{1: -1} },
			"no clash rounds":     func(c *config.Config) { c.ClashRounds = 0 },
			"unsorted buckets":    func(c *config.Config) { c.MetricsBuckets = []float64{10, 5} },
		}

		for name, mutate := range cases {
			convey.Convey("Then "+name+" is reported as invalid config", func() {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfig_MetricsOptions(t *testing.T) {
	convey.Convey("Given renamed metrics settings", t, func() {
		cfg := config.New()
		cfg.MetricsNamespace, cfg.MetricsSubsystem = "arena", "core"
		cfg.MetricsBuckets = []float64{5, 50, 500}
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("Then a manager built from them uses the names", func() {
			registry := prometheus.NewRegistry()
			metrics.NewManager(append(cfg.MetricsOptions(), metrics.WithPrometheusRegistry(registry))...)
			families, err := registry.Gather()
			convey.So(err, convey.ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			convey.So(names, convey.ShouldContain, "arena_core_system_goroutine_count")
		})
	})
}
