package simulation_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/adapters/http/api"
	"github.com/okian/gauntlet/internal/adapters/repository"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/simulation"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newServer() *httptest.Server {
	e := service.New(repository.NewMemoryStore(),
		service.WithLogger(logger.Nop()),
		service.WithCollector(decision.NewCollector(decision.WithLogger(logger.Nop()))),
		service.WithSweepSchedule(""),
	)
	mux := http.NewServeMux()
	api.NewServer(e, e.Ledger(), e).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func config(url string) *simulation.Config {
	return &simulation.Config{
		BaseURL:  url,
		Matches:  3,
		Workers:  2,
		Bettors:  4,
		Stake:    100,
		Balance:  1000,
		Triggers: 4,
		Timeout:  5 * time.Second,
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service", t, func() {
		srv := newServer()
		defer srv.Close()

		Convey("When matches are simulated with duplicate triggers", func() {
			stats, err := simulation.Run(ctx, config(srv.URL))

			Convey("Then every match is played and verified", func() {
				So(err, ShouldBeNil)
				So(stats.MatchesPlayed, ShouldEqual, 3)
				So(stats.MatchesVerified, ShouldEqual, 3)
				So(stats.Stages, ShouldEqual, 3*(1+match.MaxRounds+3))
				So(stats.Bets, ShouldEqual, 3*4)
				So(stats.Gifts, ShouldEqual, 3*4)
				So(stats.Conflicts, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When bettors cannot afford any artifact", func() {
			cfg := config(srv.URL)
			cfg.Matches, cfg.Balance, cfg.Stake = 1, 100, 100
			stats, err := simulation.Run(ctx, cfg)

			Convey("Then gifts are skipped and balances still add up", func() {
				So(err, ShouldBeNil)
				So(stats.Gifts, ShouldEqual, 0)
				So(stats.MatchesVerified, ShouldEqual, 1)
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		srv := newServer()
		url := srv.URL
		srv.Close()

		Convey("Then the run fails its health check", func() {
			_, err := simulation.Run(ctx, config(url))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an invalid config", t, func() {
		cfg := config("http://127.0.0.1:1")
		cfg.Triggers = 0

		Convey("Then it is rejected before any request", func() {
			stats, err := simulation.Run(ctx, cfg)
			So(err, ShouldNotBeNil)
			So(stats, ShouldBeNil)
		})
	})
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	Convey("Given a client of a running service", t, func() {
		srv := newServer()
		defer srv.Close()
		c := simulation.NewClient(srv.URL, 5*time.Second)

		Convey("Then API errors carry the status and code", func() {
			_, err := c.Summary(ctx, "ghost")
			var apiErr *simulation.APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusNotFound)
			So(apiErr.Code, ShouldEqual, "not_found")
		})

		Convey("Then a created match can be triggered from waiting", func() {
			m, err := c.CreateMatch(ctx, "arena")
			So(err, ShouldBeNil)
			res, err := c.Advance(ctx, m.ID, match.StatusWaiting)
			So(err, ShouldBeNil)
			So(res.Advanced, ShouldBeTrue)
			So(res.Match.Status, ShouldEqual, match.StatusCountdown)
		})
	})
}
