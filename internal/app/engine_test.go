package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gauntlet/internal/adapters/repository"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var errInjected = errors.New("injected snapshot failure")

// flakyStore fails PutSnapshot for one stage a set number of times.
type flakyStore struct {
	*repository.MemoryStore
	stage match.Status
	fails int32
}

func (s *flakyStore) PutSnapshot(ctx context.Context, snap model.Snapshot) (model.Snapshot, bool, error) {
	if snap.Stage == s.stage && atomic.AddInt32(&s.fails, -1) >= 0 {
		return model.Snapshot{}, false, errInjected
	}
	return s.MemoryStore.PutSnapshot(ctx, snap)
}

// recorder collects published snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (r *recorder) PublishSnapshot(_ context.Context, snap model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func newEngine(store repository.Store, opts ...service.Option) *service.Engine {
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithCollector(decision.NewCollector(decision.WithLogger(logger.Nop()))),
		service.WithSeedSource(func() (uint64, error) { return 42, nil }),
		service.WithSweepSchedule(""),
		service.WithRetryDelay(time.Millisecond),
	}
	return service.New(store, append(base, opts...)...)
}

func advanceTo(ctx context.Context, e *service.Engine, id string, target match.Status) match.Match {
	for {
		m, err := e.GetMatch(ctx, id)
		So(err, ShouldBeNil)
		if m.Status == target {
			return m
		}
		_, err = e.Advance(ctx, id)
		So(err, ShouldBeNil)
	}
}

func TestCreateMatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine", t, func() {
		store := repository.NewMemoryStore()
		e := newEngine(store)

		Convey("When a match is created with one human", func() {
			m, err := e.CreateMatch(ctx, "arena", []model.Entrant{{ID: "alice"}})
			So(err, ShouldBeNil)

			Convey("Then it waits with a full roster and a roster snapshot", func() {
				So(m.Status, ShouldEqual, match.StatusWaiting)
				So(m.Seed, ShouldEqual, 42)
				entrants, err := store.ListEntrants(ctx, m.ID)
				So(err, ShouldBeNil)
				So(len(entrants), ShouldEqual, 8)
				So(entrants[0].ID, ShouldEqual, "alice")
				snap, err := store.GetSnapshot(ctx, m.ID, match.StatusWaiting)
				So(err, ShouldBeNil)
				So(len(snap.Entrants), ShouldEqual, 8)
			})
		})

		Convey("When two humans share an id", func() {
			_, err := e.CreateMatch(ctx, "arena", []model.Entrant{{ID: "a"}, {ID: "a"}})

			Convey("Then the match is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()

	Convey("Given a match in intro", t, func() {
		store := repository.NewMemoryStore()
		notes := &recorder{}
		e := newEngine(store, service.WithNotifier(notes))
		m, err := e.CreateMatch(ctx, "arena", nil)
		So(err, ShouldBeNil)
		advanceTo(ctx, e, m.ID, match.StatusIntro)

		Convey("When many callers advance from intro at once", func() {
			const callers = 32
			var (
				wg       sync.WaitGroup
				advanced int32
				failures int32
			)
			results := make([]service.Result, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := e.AdvanceFrom(ctx, m.ID, match.StatusIntro)
					if err != nil {
						atomic.AddInt32(&failures, 1)
						return
					}
					if res.Advanced {
						atomic.AddInt32(&advanced, 1)
					}
					results[i] = res
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one caller advances and one snapshot exists", func() {
				So(failures, ShouldEqual, 0)
				So(advanced, ShouldEqual, 1)
				got, err := e.GetMatch(ctx, m.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, match.StatusRound1)
				snaps, err := store.ListSnapshots(ctx, m.ID)
				So(err, ShouldBeNil)
				So(len(snaps), ShouldEqual, 2)
				So(snaps[1].Stage, ShouldEqual, match.StatusRound1)
				So(notes.count(), ShouldEqual, 1)
			})

			Convey("Then every caller that saw the output saw the same events", func() {
				stored, err := store.GetSnapshot(ctx, m.ID, match.StatusRound1)
				So(err, ShouldBeNil)
				for _, res := range results {
					So(res.Stage, ShouldEqual, match.StatusRound1)
					if res.Snapshot != nil {
						So(res.Snapshot.Events, ShouldResemble, stored.Events)
					}
				}
			})
		})

		Convey("When the same step is triggered again after it completed", func() {
			first, err := e.AdvanceFrom(ctx, m.ID, match.StatusIntro)
			So(err, ShouldBeNil)
			again, err := e.AdvanceFrom(ctx, m.ID, match.StatusIntro)
			So(err, ShouldBeNil)

			Convey("Then the stored result is returned without moving further", func() {
				So(first.Advanced, ShouldBeTrue)
				So(again.Advanced, ShouldBeFalse)
				So(again.Conflict, ShouldBeTrue)
				So(again.Snapshot.Events, ShouldResemble, first.Snapshot.Events)
				got, _ := e.GetMatch(ctx, m.ID)
				So(got.Status, ShouldEqual, match.StatusRound1)
			})
		})

		Convey("When advancing from a status the match has not reached", func() {
			_, err := e.AdvanceFrom(ctx, m.ID, match.StatusRound3)

			Convey("Then the transition is invalid", func() {
				So(errors.Is(err, service.ErrInvalidTransition), ShouldBeTrue)
			})
		})
	})

	Convey("Given a match played to the end", t, func() {
		store := repository.NewMemoryStore()
		e := newEngine(store)
		m, err := e.CreateMatch(ctx, "arena", []model.Entrant{{ID: "alice"}})
		So(err, ShouldBeNil)

		var visited []match.Status
		for {
			res, err := e.Advance(ctx, m.ID)
			if errors.Is(err, service.ErrMatchEnded) {
				break
			}
			So(err, ShouldBeNil)
			visited = append(visited, res.Match.Status)
		}

		Convey("Then it walked the whole lifecycle", func() {
			path, ok := match.DefaultFlow().Path(match.StatusWaiting, match.StatusEnded)
			So(ok, ShouldBeTrue)
			So(visited, ShouldResemble, path)
		})

		Convey("Then a champion is recorded and every stage has one snapshot", func() {
			got, err := e.GetMatch(ctx, m.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, match.StatusEnded)
			So(got.Champion, ShouldNotBeEmpty)
			snaps, err := store.ListSnapshots(ctx, m.ID)
			So(err, ShouldBeNil)
			So(len(snaps), ShouldEqual, 1+match.MaxRounds+3)
			for _, s := range snaps {
				for _, en := range s.Entrants {
					So(en.HP, ShouldBeBetweenOrEqual, 0, en.MaxHP)
				}
			}
			final, err := store.GetSnapshot(ctx, m.ID, match.StatusFinalBracket)
			So(err, ShouldBeNil)
			So(final.Bracket.Champion, ShouldEqual, got.Champion)
			ending, err := store.GetSnapshot(ctx, m.ID, match.StatusEnding)
			So(err, ShouldBeNil)
			So(ending.Settlement, ShouldNotBeNil)
			So(len(ending.Settlement.Standings), ShouldEqual, 3)
		})

		Convey("Then the event log mirrors the snapshots", func() {
			snap, err := store.GetSnapshot(ctx, m.ID, match.StatusRound2)
			So(err, ShouldBeNil)
			events, err := store.ListEvents(ctx, m.ID, match.StatusRound2)
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, len(snap.Events))
		})

		Convey("Then a replay reproduces every stage", func() {
			report, err := e.Replay(ctx, m.ID)
			So(err, ShouldBeNil)
			So(report.Consistent, ShouldBeTrue)
			So(len(report.Stages), ShouldEqual, match.MaxRounds+3)
		})

		Convey("Then the summary reflects the last stage", func() {
			s, err := e.Summary(ctx, m.ID)
			So(err, ShouldBeNil)
			So(s.Stage, ShouldEqual, match.StatusEnding)
			So(len(s.Entrants), ShouldEqual, 8)
			So(len(s.Rankings), ShouldEqual, 8)
			So(len(s.Recent), ShouldBeLessThanOrEqualTo, 20)
		})
	})

	Convey("Given a match without enough entrants", t, func() {
		store := repository.NewMemoryStore()
		So(store.CreateMatch(ctx, match.Match{ID: "lonely", Status: match.StatusWaiting}), ShouldBeNil)
		e := newEngine(store)

		Convey("Then the countdown is refused as a data integrity error", func() {
			_, err := e.Advance(ctx, "lonely")
			So(errors.Is(err, service.ErrDataIntegrity), ShouldBeTrue)
			got, _ := store.GetMatch(ctx, "lonely")
			So(got.Status, ShouldEqual, match.StatusWaiting)
		})
	})
}

func TestResume(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store that fails to persist round 1 once", t, func() {
		store := &flakyStore{MemoryStore: repository.NewMemoryStore(), stage: match.StatusRound1, fails: 1}
		e := newEngine(store)
		m, err := e.CreateMatch(ctx, "arena", nil)
		So(err, ShouldBeNil)
		advanceTo(ctx, e, m.ID, match.StatusIntro)

		Convey("When the advance fails after claiming the transition", func() {
			_, err := e.Advance(ctx, m.ID)
			So(errors.Is(err, errInjected), ShouldBeTrue)
			got, _ := e.GetMatch(ctx, m.ID)
			So(got.Status, ShouldEqual, match.StatusRound1)

			Convey("Then the retry computes the missing output without moving on", func() {
				res, err := e.Advance(ctx, m.ID)
				So(err, ShouldBeNil)
				So(res.Resumed, ShouldBeTrue)
				So(res.Snapshot, ShouldNotBeNil)
				So(res.Match.Status, ShouldEqual, match.StatusRound1)

				next, err := e.Advance(ctx, m.ID)
				So(err, ShouldBeNil)
				So(next.Match.Status, ShouldEqual, match.StatusRound2)
			})
		})
	})
}

func TestReset(t *testing.T) {
	ctx := context.Background()

	Convey("Given a match in countdown", t, func() {
		e := newEngine(repository.NewMemoryStore())
		m, err := e.CreateMatch(ctx, "arena", nil)
		So(err, ShouldBeNil)
		advanceTo(ctx, e, m.ID, match.StatusCountdown)

		Convey("Then reset returns it to waiting once", func() {
			got, err := e.Reset(ctx, m.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, match.StatusWaiting)

			_, err = e.Reset(ctx, m.ID)
			So(errors.Is(err, service.ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestWagersThroughTheMatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bettor backing every entrant", t, func() {
		store := repository.NewMemoryStore()
		e := newEngine(store)
		m, err := e.CreateMatch(ctx, "arena", nil)
		So(err, ShouldBeNil)
		advanceTo(ctx, e, m.ID, match.StatusIntro)

		_, err = e.Ledger().OpenAccount(ctx, "alice", false, 10000)
		So(err, ShouldBeNil)
		entrants, err := store.ListEntrants(ctx, m.ID)
		So(err, ShouldBeNil)
		for _, en := range entrants {
			_, _, err := e.Ledger().PlaceBet(ctx, m.ID, "alice", en.ID, 100)
			So(err, ShouldBeNil)
		}

		Convey("When the match ends", func() {
			advanceTo(ctx, e, m.ID, match.StatusEnded)

			Convey("Then the top three pay out 200, 100 and 50", func() {
				acc, err := store.GetAccount(ctx, "alice")
				So(err, ShouldBeNil)
				So(acc.Balance, ShouldEqual, 10000-800+200+100+50)

				ending, err := store.GetSnapshot(ctx, m.ID, match.StatusEnding)
				So(err, ShouldBeNil)
				var paid int64
				for _, p := range ending.Settlement.Payouts {
					paid += p.Amount
				}
				So(paid, ShouldEqual, 350)
				So(len(ending.Events), ShouldEqual, 3)
			})
		})
	})
}
