package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/adapters/provider"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// agentServer accepts one bearer token and issues "fresh" on refresh.
func agentServer(token *atomic.Value, hits *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/decide", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+token.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req decision.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(decision.Response{
			Action:   model.ActionAttack,
			TargetID: req.Others[0].ID,
			Flavor:   "for " + req.Entrant.ID,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		token.Store("fresh")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "fresh"})
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return httptest.NewServer(mux)
}

func request() decision.Request {
	return decision.Request{
		MatchID: "m1",
		Entrant: model.Entrant{ID: "h1"},
		Others:  []model.Entrant{{ID: "h2"}},
		Allowed: model.RoundActions,
	}
}

func TestHTTPProvider(t *testing.T) {
	ctx := context.Background()

	Convey("Given a remote agent endpoint", t, func() {
		var token atomic.Value
		token.Store("good")
		var hits atomic.Int32
		srv := agentServer(&token, &hits)
		defer srv.Close()

		Convey("When the credential is valid", func() {
			p := provider.NewHTTPProvider(srv.URL+"/decide", provider.WithToken("good"), provider.WithHTTPLogger(logger.Nop()))
			resp, err := p.Decide(ctx, request())

			Convey("Then the decoded response is returned", func() {
				So(err, ShouldBeNil)
				So(resp.Action, ShouldEqual, model.ActionAttack)
				So(resp.TargetID, ShouldEqual, "h2")
				So(resp.Flavor, ShouldEqual, "for h1")
			})
		})

		Convey("When the credential is stale", func() {
			token.Store("rotated")
			p := provider.NewHTTPProvider(srv.URL+"/decide",
				provider.WithToken("stale"),
				provider.WithRefreshURL(srv.URL+"/token"),
				provider.WithHTTPLogger(logger.Nop()),
			)
			_, err := p.Decide(ctx, request())

			Convey("Then the call is unauthorized until the credential is refreshed", func() {
				So(errors.Is(err, provider.ErrUnauthorized), ShouldBeTrue)
				So(p.RefreshCredential(ctx), ShouldBeNil)
				_, err := p.Decide(ctx, request())
				So(err, ShouldBeNil)
			})
		})

		Convey("When driven by the collector with a stale credential", func() {
			token.Store("rotated")
			p := provider.NewHTTPProvider(srv.URL+"/decide",
				provider.WithToken("stale"),
				provider.WithRefreshURL(srv.URL+"/token"),
				provider.WithHTTPLogger(logger.Nop()),
			)
			c := decision.NewCollector(decision.WithProvider(p), decision.WithLogger(logger.Nop()))
			got := c.Collect(ctx, decision.RoundRequest{
				MatchID:  "m1",
				Seed:     1,
				Round:    1,
				Entrants: []model.Entrant{{ID: "h1", HP: 100, MaxHP: 100}, {ID: "h2", HP: 100, MaxHP: 100}},
			})

			Convey("Then each entrant refreshes once and gets the provider's answer", func() {
				So(got[0].Source, ShouldEqual, model.SourceProvider)
				So(got[1].Source, ShouldEqual, model.SourceProvider)
			})
		})

		Convey("When the upstream fails", func() {
			p := provider.NewHTTPProvider(srv.URL+"/broken", provider.WithHTTPLogger(logger.Nop()))
			_, err := p.Decide(ctx, request())

			Convey("Then an upstream error is returned", func() {
				So(errors.Is(err, provider.ErrUpstream), ShouldBeTrue)
				So(errors.Is(err, provider.ErrUnauthorized), ShouldBeFalse)
			})
		})

		Convey("When no refresh endpoint is configured", func() {
			p := provider.NewHTTPProvider(srv.URL + "/decide")

			Convey("Then refreshing fails", func() {
				So(errors.Is(p.RefreshCredential(ctx), provider.ErrNoRefresh), ShouldBeTrue)
			})
		})
	})
}

func TestSimulatedProvider(t *testing.T) {
	Convey("Given a fast simulated provider", t, func() {
		p := provider.NewSimulatedProvider(provider.WithLatencyRange(time.Millisecond, 2*time.Millisecond))

		Convey("Then it answers with allowed actions and valid targets", func() {
			for i := 0; i < 20; i++ {
				resp, err := p.Decide(context.Background(), request())
				So(err, ShouldBeNil)
				So(model.RoundActions, ShouldContain, resp.Action)
				if resp.Action.NeedsTarget() {
					So(resp.TargetID, ShouldEqual, "h2")
				}
			}
		})
	})

	Convey("Given a simulated provider that always fails", t, func() {
		p := provider.NewSimulatedProvider(
			provider.WithLatencyRange(0, time.Millisecond),
			provider.WithFailureRate(1),
		)

		Convey("Then every call fails", func() {
			_, err := p.Decide(context.Background(), request())
			So(errors.Is(err, provider.ErrSimulated), ShouldBeTrue)
		})
	})

	Convey("Given a slow simulated provider", t, func() {
		p := provider.NewSimulatedProvider(provider.WithLatencyRange(time.Second, 2*time.Second))

		Convey("Then a caller deadline cuts the call short", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_, err := p.Decide(ctx, request())
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}
