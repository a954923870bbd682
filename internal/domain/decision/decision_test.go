package decision_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// mockProvider answers per entrant and counts calls.
type mockProvider struct {
	mu       sync.Mutex
	calls    map[string]int
	slow     map[string]bool
	failures int32 // calls that fail before succeeding
	action   model.Action
}

func newMockProvider() *mockProvider {
	return &mockProvider{calls: make(map[string]int), slow: make(map[string]bool), action: model.ActionRest}
}

func (m *mockProvider) Decide(ctx context.Context, req decision.Request) (decision.Response, error) {
	m.mu.Lock()
	m.calls[req.Entrant.ID]++
	slow := m.slow[req.Entrant.ID]
	m.mu.Unlock()
	if slow {
		<-ctx.Done()
		return decision.Response{}, ctx.Err()
	}
	if atomic.AddInt32(&m.failures, -1) >= 0 {
		return decision.Response{}, errors.New("unauthorized")
	}
	return decision.Response{Action: m.action, Flavor: "ok"}, nil
}

func (m *mockProvider) callsFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

// refreshingProvider adds credential refresh.
type refreshingProvider struct {
	*mockProvider
	refreshes  int32
	refreshErr error
}

func (r *refreshingProvider) RefreshCredential(context.Context) error {
	atomic.AddInt32(&r.refreshes, 1)
	return r.refreshErr
}

func humans(n int) []model.Entrant {
	out := make([]model.Entrant, n)
	for i := range out {
		out[i] = model.Entrant{ID: fmt.Sprintf("h%d", i+1), HP: 100, MaxHP: 100}
	}
	return out
}

func bots(n int) []model.Entrant {
	out := make([]model.Entrant, n)
	for i := range out {
		out[i] = model.Entrant{ID: fmt.Sprintf("b%d", i+1), Bot: true, HP: 100, MaxHP: 100, Reputation: i}
	}
	return out
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	Convey("Given a collector with a healthy provider", t, func() {
		p := newMockProvider()
		c := decision.NewCollector(decision.WithProvider(p), decision.WithLogger(logger.Nop()))

		Convey("When collecting for humans and bots", func() {
			roster := append(humans(2), bots(2)...)
			roster = append(roster, model.Entrant{ID: "dead", HP: 0, MaxHP: 100, Eliminated: true})
			got := c.Collect(ctx, decision.RoundRequest{MatchID: "m1", Seed: 1, Stage: "round_1", Round: 1, Entrants: roster})

			Convey("Then one decision per alive entrant comes back in roster order", func() {
				So(len(got), ShouldEqual, 4)
				So(got[0].EntrantID, ShouldEqual, "h1")
				So(got[0].Source, ShouldEqual, model.SourceProvider)
				So(got[0].Action, ShouldEqual, model.ActionRest)
				So(got[2].Source, ShouldEqual, model.SourceBot)
				So(p.callsFor("b1"), ShouldEqual, 0)
				So(p.callsFor("dead"), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a provider that hangs for one entrant", t, func() {
		p := newMockProvider()
		p.slow["h1"] = true
		c := decision.NewCollector(
			decision.WithProvider(p),
			decision.WithTimeout(50*time.Millisecond),
			decision.WithLogger(logger.Nop()),
		)

		Convey("When collecting for many entrants", func() {
			start := time.Now()
			got := c.Collect(ctx, decision.RoundRequest{MatchID: "m1", Seed: 1, Round: 1, Entrants: humans(20)})
			elapsed := time.Since(start)

			Convey("Then the hanging entrant falls back and nobody waits beyond the bound", func() {
				So(got[0].Source, ShouldEqual, model.SourceFallback)
				for _, d := range got[1:] {
					So(d.Source, ShouldEqual, model.SourceProvider)
				}
				So(elapsed, ShouldBeLessThan, time.Second)
			})
		})
	})

	Convey("Given a provider that fails once and can refresh", t, func() {
		p := &refreshingProvider{mockProvider: newMockProvider()}
		p.failures = 1
		c := decision.NewCollector(decision.WithProvider(p), decision.WithLogger(logger.Nop()))

		Convey("When collecting for one human", func() {
			got := c.Collect(ctx, decision.RoundRequest{MatchID: "m1", Seed: 1, Round: 1, Entrants: humans(1)})

			Convey("Then the credential is refreshed and the retry is used", func() {
				So(got[0].Source, ShouldEqual, model.SourceProvider)
				So(atomic.LoadInt32(&p.refreshes), ShouldEqual, 1)
				So(p.callsFor("h1"), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a provider that keeps failing", t, func() {
		p := &refreshingProvider{mockProvider: newMockProvider()}
		p.failures = 100

		c := decision.NewCollector(decision.WithProvider(p), decision.WithLogger(logger.Nop()))

		Convey("When collecting twice with the same seed", func() {
			req := decision.RoundRequest{MatchID: "m1", Seed: 9, Stage: "round_2", Round: 2, Entrants: humans(3)}
			first := c.Collect(ctx, req)
			second := c.Collect(ctx, req)

			Convey("Then it retries exactly once and the fallback replays identically", func() {
				So(p.callsFor("h1"), ShouldEqual, 4)
				So(atomic.LoadInt32(&p.refreshes), ShouldEqual, 6)
				So(first[0].Source, ShouldEqual, model.SourceFallback)
				So(first, ShouldResemble, second)
			})
		})
	})

	Convey("Given a provider whose refresh fails", t, func() {
		p := &refreshingProvider{mockProvider: newMockProvider(), refreshErr: errors.New("denied")}
		p.failures = 1
		c := decision.NewCollector(decision.WithProvider(p), decision.WithLogger(logger.Nop()))

		Convey("Then no retry is attempted and the fallback is used", func() {
			got := c.Collect(ctx, decision.RoundRequest{MatchID: "m1", Seed: 1, Entrants: humans(1)})
			So(got[0].Source, ShouldEqual, model.SourceFallback)
			So(p.callsFor("h1"), ShouldEqual, 1)
		})
	})

	Convey("Given a provider answering with an unknown action", t, func() {
		p := newMockProvider()
		p.action = "dance"
		c := decision.NewCollector(decision.WithProvider(p), decision.WithLogger(logger.Nop()))

		Convey("Then the answer is rejected in favour of the fallback", func() {
			got := c.Collect(ctx, decision.RoundRequest{MatchID: "m1", Seed: 1, Entrants: humans(1)})
			So(got[0].Source, ShouldEqual, model.SourceFallback)
			So(got[0].Action.Valid(), ShouldBeTrue)
		})
	})
}

func TestCollectMoves(t *testing.T) {
	Convey("Given bots in a bracket exchange", t, func() {
		c := decision.NewCollector(decision.WithLogger(logger.Nop()))
		pair := bots(2)
		req := decision.MoveRequest{MatchID: "m1", Seed: 5, Stage: "final_bracket", Round: 1, A: pair[0], B: pair[1], HPA: 100, HPB: 20}

		Convey("Then moves come from the bracket set and replay identically", func() {
			a, b := c.CollectMoves(context.Background(), req)
			So(model.BracketMoves, ShouldContain, a)
			So(model.BracketMoves, ShouldContain, b)
			a2, b2 := c.CollectMoves(context.Background(), req)
			So(a2, ShouldEqual, a)
			So(b2, ShouldEqual, b)
		})
	})
}

func TestBotPolicy(t *testing.T) {
	Convey("Given the bot policy", t, func() {
		p := decision.NewBotPolicy()

		Convey("Then archetypes are stable per match", func() {
			So(decision.ArchetypeOf("m1", "b1"), ShouldEqual, decision.ArchetypeOf("m1", "b1"))
			seen := map[decision.Archetype]bool{}
			for i := 0; i < 50; i++ {
				seen[decision.ArchetypeOf("m1", fmt.Sprintf("b%d", i))] = true
			}
			So(len(seen), ShouldBeGreaterThan, 1)
		})

		Convey("Then decisions are valid and never target self or betray without an ally", func() {
			roster := bots(5)
			for seed := uint64(0); seed < 100; seed++ {
				req := decision.Request{MatchID: "m1", Entrant: roster[0], Others: roster[1:], Allowed: model.RoundActions}
				d := p.Decide(combat.NewRNG(seed), req)
				So(d.Action.Valid(), ShouldBeTrue)
				So(d.Action, ShouldNotEqual, model.ActionBetray)
				So(d.TargetID, ShouldNotEqual, "b1")
				So(d.Source, ShouldEqual, model.SourceBot)
				if d.Action.NeedsTarget() {
					So(d.TargetID, ShouldNotBeEmpty)
				}
			}
		})

		Convey("Then a lone bot never picks a targeted action", func() {
			for seed := uint64(0); seed < 30; seed++ {
				d := p.Decide(combat.NewRNG(seed), decision.Request{MatchID: "m1", Entrant: bots(1)[0], Allowed: model.RoundActions})
				So(d.Action.NeedsTarget(), ShouldBeFalse)
			}
		})
	})
}
