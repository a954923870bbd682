// Package storetest holds the behaviour every repository.Store
// implementation must share, run from each implementation's tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory builds a fresh, empty store for one test case.
type Factory func(t *testing.T) repository.Store

// Run exercises the atomic guarantees every Store must give.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	Convey("Given a store with one match in intro", t, func() {
		s := newStore(t)
		So(s.CreateMatch(ctx, match.Match{ID: "m1", Status: match.StatusIntro, Seed: 7}), ShouldBeNil)

		Convey("Then creating it again is a duplicate", func() {
			err := s.CreateMatch(ctx, match.Match{ID: "m1"})
			So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
		})

		Convey("Then unknown matches are not found", func() {
			_, err := s.GetMatch(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When many callers race the same transition", func() {
			var wins, conflicts int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.TransitionStatus(ctx, "m1", []match.Status{match.StatusIntro}, match.StatusRound1)
					switch {
					case err == nil:
						atomic.AddInt32(&wins, 1)
					case errors.Is(err, repository.ErrTransitionConflict):
						atomic.AddInt32(&conflicts, 1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins and the round counter follows", func() {
				So(wins, ShouldEqual, 1)
				So(conflicts, ShouldEqual, 31)
				m, err := s.GetMatch(ctx, "m1")
				So(err, ShouldBeNil)
				So(m.Status, ShouldEqual, match.StatusRound1)
				So(m.Round, ShouldEqual, 1)
				So(m.Seed, ShouldEqual, uint64(7))
			})
		})

		Convey("When the champion is set twice", func() {
			So(s.SetChampion(ctx, "m1", "a"), ShouldBeNil)
			So(s.SetChampion(ctx, "m1", "b"), ShouldBeNil)

			Convey("Then the first value is kept", func() {
				m, _ := s.GetMatch(ctx, "m1")
				So(m.Champion, ShouldEqual, "a")
			})
		})

		Convey("When entrants are upserted", func() {
			So(s.PutEntrants(ctx, "m1", []model.Entrant{{ID: "a", HP: 10, MaxHP: 10}, {ID: "b", HP: 5, MaxHP: 10}}), ShouldBeNil)
			So(s.PutEntrants(ctx, "m1", []model.Entrant{{ID: "b", HP: 1, MaxHP: 10, Techniques: []string{"x"}}}), ShouldBeNil)

			Convey("Then insertion order is kept and values replaced", func() {
				got, err := s.ListEntrants(ctx, "m1")
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].ID, ShouldEqual, "a")
				So(got[1].HP, ShouldEqual, 1)
				So(got[1].Techniques, ShouldResemble, []string{"x"})
			})
		})

		Convey("When the same event batch is appended twice", func() {
			first := []model.Event{{Seq: 1, Type: model.EventAttack, ActorID: "a", TargetID: "b", Text: "hit"}}
			ok1, err1 := s.AppendEvents(ctx, "m1", match.StatusRound1, first)
			ok2, err2 := s.AppendEvents(ctx, "m1", match.StatusRound1, []model.Event{{Seq: 1, Text: "other"}})

			Convey("Then only the first batch is kept", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(ok1, ShouldBeTrue)
				So(ok2, ShouldBeFalse)
				got, _ := s.ListEvents(ctx, "m1", match.StatusRound1)
				So(len(got), ShouldEqual, 1)
				So(got[0].Text, ShouldEqual, "hit")
			})
		})

		Convey("When many callers store a snapshot for the same stage", func() {
			var created int32
			var wg sync.WaitGroup
			results := make([]model.Snapshot, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					snap := model.Snapshot{
						MatchID:  "m1",
						Stage:    match.StatusRound1,
						Round:    1,
						Entrants: []model.Entrant{{ID: "a", HP: i, MaxHP: 100}},
						Events:   []model.Event{{Seq: 1, Text: fmt.Sprintf("writer %d", i)}},
					}
					stored, ok, err := s.PutSnapshot(ctx, snap)
					if err == nil && ok {
						atomic.AddInt32(&created, 1)
					}
					results[i] = stored
				}(i)
			}
			wg.Wait()

			Convey("Then one write wins and every caller sees it", func() {
				So(created, ShouldEqual, 1)
				got, err := s.GetSnapshot(ctx, "m1", match.StatusRound1)
				So(err, ShouldBeNil)
				for _, r := range results {
					So(r.Events[0].Text, ShouldEqual, got.Events[0].Text)
				}
				all, _ := s.ListSnapshots(ctx, "m1")
				So(len(all), ShouldEqual, 1)
			})
		})

		Convey("Then a missing snapshot is not found", func() {
			_, err := s.GetSnapshot(ctx, "m1", match.StatusRound2)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an account with 100 credits", t, func() {
		s := newStore(t)
		So(s.CreateMatch(ctx, match.Match{ID: "m1", Status: match.StatusIntro}), ShouldBeNil)
		So(s.CreateMatch(ctx, match.Match{ID: "m2", Status: match.StatusArtifactSelection}), ShouldBeNil)
		_, err := s.EnsureAccount(ctx, model.Account{ID: "alice", Balance: 100})
		So(err, ShouldBeNil)

		Convey("Then ensuring it again keeps the balance", func() {
			a, err := s.EnsureAccount(ctx, model.Account{ID: "alice", Balance: 5})
			So(err, ShouldBeNil)
			So(a.Balance, ShouldEqual, 100)
		})

		Convey("When a bet is placed", func() {
			bal, err := s.PlaceBet(ctx, model.Bet{ID: "b1", MatchID: "m1", BettorID: "alice", EntrantID: "e1", Amount: 40}, match.StatusIntro)

			Convey("Then the balance is debited and the bet recorded", func() {
				So(err, ShouldBeNil)
				So(bal, ShouldEqual, 60)
				bets, _ := s.ListBets(ctx, "m1")
				So(len(bets), ShouldEqual, 1)
				So(bets[0].Settled, ShouldBeFalse)
			})

			Convey("Then a second bet on the same entrant is a duplicate and costs nothing", func() {
				_, err := s.PlaceBet(ctx, model.Bet{ID: "b2", MatchID: "m1", BettorID: "alice", EntrantID: "e1", Amount: 10}, match.StatusIntro)
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
				a, _ := s.GetAccount(ctx, "alice")
				So(a.Balance, ShouldEqual, 60)
			})

			Convey("Then an unaffordable bet fails distinctly", func() {
				_, err := s.PlaceBet(ctx, model.Bet{ID: "b3", MatchID: "m1", BettorID: "alice", EntrantID: "e2", Amount: 61}, match.StatusIntro)
				So(errors.Is(err, repository.ErrInsufficientFunds), ShouldBeTrue)
				bets, _ := s.ListBets(ctx, "m1")
				So(len(bets), ShouldEqual, 1)
			})

			Convey("Then settling twice credits once", func() {
				ok, err := s.SettleBet(ctx, "b1", 80, true)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				ok, err = s.SettleBet(ctx, "b1", 80, true)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				a, _ := s.GetAccount(ctx, "alice")
				So(a.Balance, ShouldEqual, 140)
			})
		})

		Convey("When many bets race for the balance", func() {
			var wg sync.WaitGroup
			var placed int32
			for i := 0; i < 25; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.PlaceBet(ctx, model.Bet{
						ID:        fmt.Sprintf("race-%d", i),
						MatchID:   "m1",
						BettorID:  "alice",
						EntrantID: fmt.Sprintf("e%d", i),
						Amount:    10,
					}, match.StatusIntro)
					if err == nil {
						atomic.AddInt32(&placed, 1)
					}
				}(i)
			}
			wg.Wait()

			Convey("Then the balance never goes negative and debits match recorded amounts", func() {
				So(placed, ShouldEqual, 10)
				a, _ := s.GetAccount(ctx, "alice")
				So(a.Balance, ShouldEqual, 0)
				bets, _ := s.ListBets(ctx, "m1")
				var sum int64
				for _, b := range bets {
					sum += b.Amount
				}
				So(sum, ShouldEqual, 100)
			})
		})

		Convey("When a gift is placed twice in one match", func() {
			_, err1 := s.PlaceGift(ctx, model.ArtifactGift{ID: "g1", MatchID: "m2", BettorID: "alice", EntrantID: "e1", ArtifactID: "blade", Amount: 30}, match.StatusArtifactSelection)
			_, err2 := s.PlaceGift(ctx, model.ArtifactGift{ID: "g2", MatchID: "m2", BettorID: "alice", EntrantID: "e2", ArtifactID: "blade", Amount: 30}, match.StatusArtifactSelection)

			Convey("Then the second is a duplicate", func() {
				So(err1, ShouldBeNil)
				So(errors.Is(err2, repository.ErrDuplicate), ShouldBeTrue)
				a, _ := s.GetAccount(ctx, "alice")
				So(a.Balance, ShouldEqual, 70)
			})

			Convey("Then settling without credit leaves the balance", func() {
				ok, err := s.SettleGift(ctx, "g1", 45, false)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				gifts, _ := s.ListGifts(ctx, "m2")
				So(gifts[0].Payout, ShouldEqual, 45)
				a, _ := s.GetAccount(ctx, "alice")
				So(a.Balance, ShouldEqual, 70)
			})
		})

		Convey("When the match has left the wager window", func() {
			_, err := s.TransitionStatus(ctx, "m1", []match.Status{match.StatusIntro}, match.StatusRound1)
			So(err, ShouldBeNil)
			_, betErr := s.PlaceBet(ctx, model.Bet{ID: "late", MatchID: "m1", BettorID: "alice", EntrantID: "e1", Amount: 10}, match.StatusIntro)
			_, giftErr := s.PlaceGift(ctx, model.ArtifactGift{ID: "late", MatchID: "m1", BettorID: "alice", EntrantID: "e1", ArtifactID: "blade", Amount: 30}, match.StatusArtifactSelection)

			Convey("Then wagers are refused without a debit", func() {
				So(errors.Is(betErr, repository.ErrWindowClosed), ShouldBeTrue)
				So(errors.Is(giftErr, repository.ErrWindowClosed), ShouldBeTrue)
				a, _ := s.GetAccount(ctx, "alice")
				So(a.Balance, ShouldEqual, 100)
				bets, _ := s.ListBets(ctx, "m1")
				So(bets, ShouldBeEmpty)
				gifts, _ := s.ListGifts(ctx, "m1")
				So(gifts, ShouldBeEmpty)
			})
		})

		Convey("Then wagers on an unknown match are not found", func() {
			_, err := s.PlaceBet(ctx, model.Bet{ID: "x", MatchID: "ghost", BettorID: "alice", EntrantID: "e1", Amount: 10}, match.StatusIntro)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then debits beyond the balance are rejected", func() {
			_, err := s.DebitBalance(ctx, "alice", 101)
			So(errors.Is(err, repository.ErrInsufficientFunds), ShouldBeTrue)
			bal, err := s.CreditBalance(ctx, "alice", 5)
			So(err, ShouldBeNil)
			So(bal, ShouldEqual, 105)
		})
	})

	Convey("Given stored jobs", t, func() {
		s := newStore(t)
		So(s.PutJob(ctx, model.Job{ID: "j1", MatchID: "m1", Target: match.StatusEnded, State: model.JobPending}), ShouldBeNil)
		So(s.PutJob(ctx, model.Job{ID: "j2", MatchID: "m2", Target: match.StatusEnded, State: model.JobDone}), ShouldBeNil)

		Convey("Then they can be filtered by state", func() {
			pending, err := s.ListJobs(ctx, model.JobPending, model.JobRunning)
			So(err, ShouldBeNil)
			So(len(pending), ShouldEqual, 1)
			So(pending[0].ID, ShouldEqual, "j1")

			all, _ := s.ListJobs(ctx)
			So(len(all), ShouldEqual, 2)
		})

		Convey("Then updates replace progress", func() {
			j, _ := s.GetJob(ctx, "j1")
			j.Progress = match.StatusRound2
			So(s.PutJob(ctx, j), ShouldBeNil)
			again, _ := s.GetJob(ctx, "j1")
			So(again.Progress, ShouldEqual, match.StatusRound2)
		})
	})
}
