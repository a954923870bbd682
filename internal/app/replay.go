package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/okian/gauntlet/internal/domain/bracket"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
)

// StageReplay is the verdict for one stored stage.
type StageReplay struct {
	Stage      match.Status `json:"stage"`
	Consistent bool         `json:"consistent"`
	Detail     string       `json:"detail,omitempty"`
}

// ReplayReport lists the verdict of every stage a match has produced.
type ReplayReport struct {
	MatchID    string        `json:"match_id"`
	Consistent bool          `json:"consistent"`
	Stages     []StageReplay `json:"stages"`
}

// replayed is the part of a snapshot a replay recomputes.
type replayed struct {
	Entrants []model.Entrant      `json:"entrants"`
	Events   []model.Event        `json:"events"`
	Rankings []model.Ranking      `json:"rankings"`
	Bracket  *model.BracketResult `json:"bracket,omitempty"`
}

// Replay re-resolves every stored stage from its predecessor snapshot and
// the recorded decisions and moves, and reports whether the stored output
// is reproduced. No provider is called and nothing is written.
func (e *Engine) Replay(ctx context.Context, id string) (ReplayReport, error) {
	m, err := e.store.GetMatch(ctx, id)
	if err != nil {
		return ReplayReport{}, err
	}
	snaps, err := e.store.ListSnapshots(ctx, id)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("snapshots: %w", err)
	}
	if len(snaps) == 0 || snaps[0].Stage != match.StatusWaiting {
		return ReplayReport{}, fmt.Errorf("match %s has no roster snapshot: %w", id, ErrDataIntegrity)
	}

	report := ReplayReport{MatchID: id, Consistent: true}
	byStage := map[match.Status]model.Snapshot{match.StatusWaiting: snaps[0]}
	for i := 1; i < len(snaps); i++ {
		prev, snap := snaps[i-1], snaps[i]
		byStage[snap.Stage] = snap
		verdict := StageReplay{Stage: snap.Stage}

		got, err := e.replayStage(ctx, m, prev, snap, byStage)
		if err != nil {
			verdict.Detail = err.Error()
		} else {
			verdict.Consistent, verdict.Detail = same(got, replayed{
				Entrants: snap.Entrants,
				Events:   snap.Events,
				Rankings: snap.Rankings,
				Bracket:  snap.Bracket,
			})
		}
		if !verdict.Consistent {
			report.Consistent = false
			e.log.Warn(ctx, "replay diverged",
				logger.String("match_id", id),
				logger.String("stage", string(snap.Stage)),
				logger.String("detail", verdict.Detail),
			)
		}
		report.Stages = append(report.Stages, verdict)
	}
	return report, nil
}

func (e *Engine) replayStage(ctx context.Context, m match.Match, prev, snap model.Snapshot, byStage map[match.Status]model.Snapshot) (replayed, error) {
	rng := stageRNG(m, snap.Stage)
	switch {
	case snap.Stage.IsRound():
		out := e.rounds.Resolve(rng, roundInput(snap.Stage.RoundNumber(), prev, snap.Decisions))
		return replayed{Entrants: out.Entrants, Events: out.Events, Rankings: out.Rankings}, nil

	case snap.Stage == match.StatusSemifinalBracket, snap.Stage == match.StatusFinalBracket:
		if snap.Bracket == nil {
			return replayed{}, fmt.Errorf("%s snapshot has no bracket: %w", snap.Stage, ErrDataIntegrity)
		}
		in := bracket.Input{Entrants: prev.Entrants, Mover: recordedMoves(snap.Bracket.Pairings)}
		var (
			out bracket.Output
			err error
		)
		if snap.Stage == match.StatusSemifinalBracket {
			out, err = e.brackets.Semifinal(ctx, rng, in)
		} else {
			semi, ok := byStage[match.StatusSemifinalBracket]
			if !ok || semi.Bracket == nil {
				return replayed{}, fmt.Errorf("final without semifinal: %w", ErrDataIntegrity)
			}
			in.Seeds = semi.Bracket.Advancing
			in.Effects = recordedEffects(snap.Bracket.Pairings)
			out, err = e.brackets.Final(ctx, rng, in)
		}
		if err != nil {
			return replayed{}, err
		}
		result := out.Result
		return replayed{Entrants: out.Entrants, Events: out.Events, Rankings: model.Rank(out.Entrants), Bracket: &result}, nil

	case snap.Stage == match.StatusEnding:
		// Payouts depend on ledger state, so only the standings are recomputed.
		return replayed{Entrants: prev.Entrants, Events: snap.Events, Rankings: model.Rank(prev.Entrants)}, nil

	default:
		return replayed{}, fmt.Errorf("stage %s has no output: %w", snap.Stage, ErrInvalidTransition)
	}
}

// same compares through the JSON encoding, the form snapshots are stored in.
func same(got, want replayed) (bool, string) {
	a, err := json.Marshal(got)
	if err != nil {
		return false, err.Error()
	}
	b, err := json.Marshal(want)
	if err != nil {
		return false, err.Error()
	}
	if bytes.Equal(a, b) {
		return true, ""
	}
	switch {
	case len(got.Events) != len(want.Events):
		return false, fmt.Sprintf("%d events replayed, %d stored", len(got.Events), len(want.Events))
	default:
		return false, "replayed output differs from stored snapshot"
	}
}

// recordedMoves plays back the moves stored on each pairing.
func recordedMoves(pairings []model.Pairing) bracket.Mover {
	moves := make(map[string]model.ClashRound)
	for _, p := range pairings {
		for _, r := range p.Rounds {
			moves[moveKey(p.A, p.B, r.Round)] = r
		}
	}
	return bracket.MoverFunc(func(_ context.Context, c bracket.Clash) (model.Action, model.Action, error) {
		r, ok := moves[moveKey(c.A.ID, c.B.ID, c.Round)]
		if !ok {
			return "", "", fmt.Errorf("no recorded move for %s vs %s round %d: %w", c.A.ID, c.B.ID, c.Round, ErrDataIntegrity)
		}
		return r.MoveA, r.MoveB, nil
	})
}

func recordedEffects(pairings []model.Pairing) map[string]model.EffectVector {
	out := make(map[string]model.EffectVector)
	for _, p := range pairings {
		out[p.A] = p.EffectsA
		if p.B != "" {
			out[p.B] = p.EffectsB
		}
	}
	return out
}

func moveKey(a, b string, round int) string {
	return a + "|" + b + "|" + strconv.Itoa(round)
}
