package match_test

import (
	"errors"
	"testing"

	"github.com/okian/gauntlet/internal/domain/match"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTransitionTable(t *testing.T) {
	Convey("Given the default flow", t, func() {
		flow := match.DefaultFlow()

		Convey("Then walking forward visits every status exactly once in order", func() {
			path, ok := flow.Path(match.StatusWaiting, match.StatusEnded)
			So(ok, ShouldBeTrue)
			So(path, ShouldResemble, match.All[1:])
		})

		Convey("Then every pair is allowed only if it is an adjacent forward step", func() {
			for i, from := range match.All {
				for j, to := range match.All {
					want := j == i+1
					So(flow.Allowed(from, to), ShouldEqual, want)
				}
			}
		})

		Convey("Then ended has no successor", func() {
			_, _, ok := flow.Next(match.StatusEnded)
			So(ok, ShouldBeFalse)
		})

		Convey("Then the next step from intro is round_1 expecting intro", func() {
			next, priors, ok := flow.Next(match.StatusIntro)
			So(ok, ShouldBeTrue)
			So(next, ShouldEqual, match.StatusRound1)
			So(priors, ShouldResemble, []match.Status{match.StatusIntro})
		})
	})

	Convey("Given a flow without the artifact window and three rounds", t, func() {
		flow := match.Flow{Rounds: 3, ArtifactWindow: false}

		Convey("Then round_3 leads to the semifinal and the semifinal to the final", func() {
			next, _, ok := flow.Next(match.StatusRound3)
			So(ok, ShouldBeTrue)
			So(next, ShouldEqual, match.StatusSemifinalBracket)

			next, _, ok = flow.Next(match.StatusSemifinalBracket)
			So(ok, ShouldBeTrue)
			So(next, ShouldEqual, match.StatusFinalBracket)
		})

		Convey("Then artifact_selection is unreachable", func() {
			_, ok := flow.Path(match.StatusWaiting, match.StatusArtifactSelection)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an out of range round count", t, func() {
		flow := match.Flow{Rounds: 9, ArtifactWindow: true}

		Convey("Then it falls back to five rounds", func() {
			next, _, _ := flow.Next(match.StatusRound4)
			So(next, ShouldEqual, match.StatusRound5)
		})
	})
}

func TestStatusHelpers(t *testing.T) {
	Convey("Given statuses", t, func() {
		Convey("Then round helpers recognise only the five rounds", func() {
			So(match.Round(3), ShouldEqual, match.StatusRound3)
			So(match.StatusRound3.RoundNumber(), ShouldEqual, 3)
			So(match.StatusIntro.IsRound(), ShouldBeFalse)
			So(match.Status("round_6").IsRound(), ShouldBeFalse)
		})

		Convey("Then only computing stages have outputs", func() {
			So(match.StatusRound1.HasOutput(), ShouldBeTrue)
			So(match.StatusSemifinalBracket.HasOutput(), ShouldBeTrue)
			So(match.StatusFinalBracket.HasOutput(), ShouldBeTrue)
			So(match.StatusEnding.HasOutput(), ShouldBeTrue)
			So(match.StatusIntro.HasOutput(), ShouldBeFalse)
			So(match.StatusArtifactSelection.HasOutput(), ShouldBeFalse)
			So(match.StatusEnded.HasOutput(), ShouldBeFalse)
		})

		Convey("Then parse rejects unknown values", func() {
			st, err := match.Parse(" intro ")
			So(err, ShouldBeNil)
			So(st, ShouldEqual, match.StatusIntro)

			_, err = match.Parse("processing")
			So(errors.Is(err, match.ErrUnknownStatus), ShouldBeTrue)
		})

		Convey("Then ordering follows the lifecycle", func() {
			So(match.StatusIntro.Before(match.StatusRound1), ShouldBeTrue)
			So(match.StatusEnded.Before(match.StatusWaiting), ShouldBeFalse)
			So(match.StageKey("m1", match.StatusRound2), ShouldEqual, "m1:round_2")
		})
	})
}
