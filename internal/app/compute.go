package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/bracket"
	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/round"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
)

// compute produces the output of stage for m. The stage claim keeps
// concurrent callers from resolving twice; PutSnapshot keeps the stored
// output single even when a claim expires mid-computation.
func (e *Engine) compute(ctx context.Context, m match.Match, stage match.Status) (Result, error) {
	res := Result{Match: m, Stage: stage}
	if snap, err := e.store.GetSnapshot(ctx, m.ID, stage); err == nil {
		metrics.RecordSnapshotReused()
		res.Snapshot = &snap
		return res, e.repair(ctx, m, snap)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return res, fmt.Errorf("stage snapshot: %w", err)
	}

	key := match.StageKey(m.ID, stage)
	held, err := e.claims.SeenAndRecord(ctx, key)
	if err != nil {
		return res, fmt.Errorf("claim %s: %w", key, err)
	}
	if held {
		return e.observed(ctx, m, stage)
	}
	defer func() {
		if err := e.claims.Unrecord(context.WithoutCancel(ctx), key); err != nil {
			e.log.Warn(ctx, "failed to release stage claim", logger.String("key", key), logger.Error(err))
		}
	}()

	start := time.Now()
	snap, err := e.resolve(ctx, m, stage)
	if err != nil {
		metrics.RecordStageFailure(string(stage))
		e.log.Error(ctx, "stage resolution failed",
			logger.String("match_id", m.ID),
			logger.String("stage", string(stage)),
			logger.Error(err),
		)
		return res, err
	}
	stored, created, err := e.store.PutSnapshot(ctx, snap)
	if err != nil {
		metrics.RecordStageFailure(string(stage))
		return res, fmt.Errorf("store snapshot: %w", err)
	}
	metrics.RecordStageLatency(string(stage), float64(time.Since(start).Microseconds())/1000)
	if created {
		metrics.RecordSnapshotWritten()
	} else {
		metrics.RecordSnapshotReused()
	}
	if err := e.project(ctx, stored); err != nil {
		return res, err
	}
	if created {
		e.publish(ctx, stored)
	}

	if current, err := e.store.GetMatch(ctx, m.ID); err == nil {
		res.Match = current
	}
	res.Snapshot = &stored
	e.log.Info(ctx, "stage resolved",
		logger.String("match_id", m.ID),
		logger.String("stage", string(stage)),
		logger.Int("events", len(stored.Events)),
		logger.Bool("created", created),
		logger.Int64("took_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

// project writes the snapshot into the event log, the entrant records and
// the match champion. Every write is idempotent.
func (e *Engine) project(ctx context.Context, snap model.Snapshot) error {
	if snap.Bracket != nil && snap.Bracket.Champion != "" {
		if err := e.store.SetChampion(ctx, snap.MatchID, snap.Bracket.Champion); err != nil {
			return fmt.Errorf("set champion: %w", err)
		}
	}
	if err := e.store.PutEntrants(ctx, snap.MatchID, snap.Entrants); err != nil {
		return fmt.Errorf("project entrants: %w", err)
	}
	if _, err := e.store.AppendEvents(ctx, snap.MatchID, snap.Stage, snap.Events); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}

// repair re-projects a snapshot whose projection was interrupted. The event
// batch is written last, so its presence marks a complete projection.
func (e *Engine) repair(ctx context.Context, m match.Match, snap model.Snapshot) error {
	if len(snap.Events) == 0 {
		return nil
	}
	events, err := e.store.ListEvents(ctx, m.ID, snap.Stage)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) > 0 {
		return nil
	}
	e.log.Warn(ctx, "repairing interrupted projection",
		logger.String("match_id", m.ID),
		logger.String("stage", string(snap.Stage)),
	)
	return e.project(ctx, snap)
}

func (e *Engine) publish(ctx context.Context, snap model.Snapshot) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.PublishSnapshot(ctx, snap); err != nil {
		e.log.Warn(ctx, "failed to publish snapshot",
			logger.String("match_id", snap.MatchID),
			logger.String("stage", string(snap.Stage)),
			logger.Error(err),
		)
	}
}

// resolve computes the snapshot of stage from the previous stage's output.
func (e *Engine) resolve(ctx context.Context, m match.Match, stage match.Status) (model.Snapshot, error) {
	prev, err := e.input(ctx, m.ID, stage)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap := model.Snapshot{MatchID: m.ID, Stage: stage, Round: prev.Round}
	rng := stageRNG(m, stage)

	switch {
	case stage.IsRound():
		n := stage.RoundNumber()
		decisions := e.collector.Collect(ctx, decision.RoundRequest{
			MatchID:  m.ID,
			Seed:     m.Seed,
			Stage:    string(stage),
			Round:    n,
			Entrants: prev.Entrants,
			Recent:   prev.Events,
		})
		out := e.rounds.Resolve(rng, roundInput(n, prev, decisions))
		snap.Round = n
		snap.Entrants, snap.Events, snap.Rankings, snap.Decisions = out.Entrants, out.Events, out.Rankings, out.Decisions
		metrics.RecordEliminations(countEvents(out.Events, model.EventEliminated))

	case stage == match.StatusSemifinalBracket:
		out, err := e.brackets.Semifinal(ctx, rng, bracket.Input{Entrants: prev.Entrants, Mover: e.mover(m, stage)})
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("semifinal: %w", err)
		}
		setBracket(&snap, out)

	case stage == match.StatusFinalBracket:
		seeds, err := e.finalists(ctx, m.ID)
		if err != nil {
			return model.Snapshot{}, err
		}
		effects, err := e.ledger.Effects(ctx, m.ID)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("artifact effects: %w", err)
		}
		out, err := e.brackets.Final(ctx, rng, bracket.Input{
			Entrants: prev.Entrants,
			Seeds:    seeds,
			Effects:  effects,
			Mover:    e.mover(m, stage),
		})
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("final: %w", err)
		}
		setBracket(&snap, out)

	case stage == match.StatusEnding:
		if prev.Bracket == nil || prev.Bracket.Champion == "" {
			return model.Snapshot{}, fmt.Errorf("match %s final has no champion: %w", m.ID, ErrDataIntegrity)
		}
		settlement, err := e.ledger.Settle(ctx, m.ID, prev.Entrants, prev.Bracket.Champion)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("settle: %w", err)
		}
		snap.Entrants = prev.Entrants
		snap.Rankings = model.Rank(prev.Entrants)
		snap.Events = payoutEvents(settlement)
		snap.Settlement = &settlement

	default:
		return model.Snapshot{}, fmt.Errorf("stage %s has no output: %w", stage, ErrInvalidTransition)
	}
	return snap, nil
}

// input returns the snapshot a stage is computed from: the closest earlier
// stage with output, or the starting roster.
func (e *Engine) input(ctx context.Context, matchID string, stage match.Status) (model.Snapshot, error) {
	from := match.StatusWaiting
	path, ok := e.flow.Path(match.StatusWaiting, stage)
	if !ok || len(path) == 0 {
		return model.Snapshot{}, fmt.Errorf("stage %s is not part of the flow: %w", stage, ErrInvalidTransition)
	}
	for _, s := range path[:len(path)-1] {
		if s.HasOutput() {
			from = s
		}
	}
	snap, err := e.store.GetSnapshot(ctx, matchID, from)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Snapshot{}, fmt.Errorf("match %s has no %s snapshot: %w", matchID, from, ErrDataIntegrity)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%s snapshot: %w", from, err)
	}
	return snap, nil
}

func (e *Engine) finalists(ctx context.Context, matchID string) ([]string, error) {
	semi, err := e.store.GetSnapshot(ctx, matchID, match.StatusSemifinalBracket)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && semi.Bracket == nil) {
		return nil, fmt.Errorf("match %s has no semifinal result: %w", matchID, ErrDataIntegrity)
	}
	if err != nil {
		return nil, fmt.Errorf("semifinal snapshot: %w", err)
	}
	return semi.Bracket.Advancing, nil
}

// mover asks the collector for both fighters' moves of each exchange.
func (e *Engine) mover(m match.Match, stage match.Status) bracket.Mover {
	return bracket.MoverFunc(func(ctx context.Context, c bracket.Clash) (model.Action, model.Action, error) {
		a, b := e.collector.CollectMoves(ctx, decision.MoveRequest{
			MatchID: m.ID,
			Seed:    m.Seed,
			Stage:   string(stage) + "/" + c.A.ID + "-" + c.B.ID,
			Round:   c.Round,
			A:       c.A,
			B:       c.B,
			HPA:     c.HPA,
			HPB:     c.HPB,
		})
		return a, b, nil
	})
}

// stageRNG is the resolution stream of one stage. Replays derive the same.
func stageRNG(m match.Match, stage match.Status) combat.RNG {
	return combat.NewRNG(m.Seed, "stage", m.ID, string(stage))
}

func roundInput(n int, prev model.Snapshot, decisions []model.Decision) round.Input {
	in := round.Input{Round: n, Entrants: prev.Entrants, Decisions: decisions}
	if prev.Stage.IsRound() {
		in.History = round.AttackHistory(prev.Events)
	}
	return in
}

func setBracket(snap *model.Snapshot, out bracket.Output) {
	result := out.Result
	snap.Entrants = out.Entrants
	snap.Events = out.Events
	snap.Rankings = model.Rank(out.Entrants)
	snap.Bracket = &result
}

func payoutEvents(s model.Settlement) []model.Event {
	var out []model.Event
	for _, p := range s.Payouts {
		if p.Amount <= 0 {
			continue
		}
		out = append(out, model.Event{
			Seq:      len(out) + 1,
			Type:     model.EventPayout,
			ActorID:  p.BettorID,
			Text:     fmt.Sprintf("%s collects %d from a %s", p.BettorID, p.Amount, p.Kind),
			Priority: model.PrioritySettlement,
		})
	}
	return out
}

func countEvents(events []model.Event, t model.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
