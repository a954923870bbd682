// Package bracket resolves the knockout stages: finalist selection,
// cross-seeded pairing and fixed-length clashes.
package bracket

import (
	"context"
	"fmt"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/model"
)

// Default bracket tuning.
const (
	defaultByReputation = 2
	defaultByHot        = 2
	defaultClashRounds  = 3
	defaultAdvanceRep   = 5
	defaultChampionRep  = 10
)

// Tie-break rules recorded on each pairing.
const (
	TieBreakHP         = "hp"
	TieBreakReputation = "reputation"
	TieBreakID         = "id"
	TieBreakBye        = "bye"
)

// Clash is the context a mover sees before each exchange.
type Clash struct {
	Round int
	A, B  model.Entrant
	HPA   int
	HPB   int
}

// Mover chooses both fighters' moves for one exchange.
type Mover interface {
	Moves(ctx context.Context, c Clash) (model.Action, model.Action, error)
}

// MoverFunc adapts a function to Mover.
type MoverFunc func(ctx context.Context, c Clash) (model.Action, model.Action, error)

// Moves implements Mover.
func (f MoverFunc) Moves(ctx context.Context, c Clash) (model.Action, model.Action, error) {
	return f(ctx, c)
}

// Input is one bracket stage.
type Input struct {
	Entrants []model.Entrant
	// Seeds are the entrants entering the stage in slot order.
	Seeds []string
	// Effects holds each seed's merged artifact effects.
	Effects map[string]model.EffectVector
	// Final marks the stage that crowns the champion.
	Final bool
	Mover Mover
}

// Output is a resolved bracket stage.
type Output struct {
	Entrants []model.Entrant
	Events   []model.Event
	Result   model.BracketResult
}

// Resolver runs bracket stages. It is safe for concurrent use.
type Resolver struct {
	byReputation int
	byHot        int
	clashRounds  int
	advanceRep   int
	championRep  int
}

// NewResolver creates a resolver with default bracket size and clash length.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		byReputation: defaultByReputation,
		byHot:        defaultByHot,
		clashRounds:  defaultClashRounds,
		advanceRep:   defaultAdvanceRep,
		championRep:  defaultChampionRep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Size is the number of bracket slots, rounded up to an even count.
func (r *Resolver) Size() int {
	n := r.byReputation + r.byHot
	if n%2 == 1 {
		n++
	}
	return n
}

// Semifinal selects finalists from the roster and plays the first stage.
func (r *Resolver) Semifinal(ctx context.Context, rng combat.RNG, in Input) (Output, error) {
	in.Seeds = r.SelectFinalists(in.Entrants)
	in.Final = false
	return r.Run(ctx, rng, in, r.Size())
}

// Final plays the deciding pairing between the semifinal winners.
func (r *Resolver) Final(ctx context.Context, rng combat.RNG, in Input) (Output, error) {
	if len(in.Seeds) == 0 {
		in.Seeds = r.SelectFinalists(in.Entrants)
		if len(in.Seeds) > 2 {
			in.Seeds = in.Seeds[:2]
		}
	}
	in.Final = true
	return r.Run(ctx, rng, in, 2)
}

// Run plays every pairing of a stage of the given slot count.
func (r *Resolver) Run(ctx context.Context, rng combat.RNG, in Input, size int) (Output, error) {
	roster := model.CloneEntrants(in.Entrants)
	idx := model.IndexEntrants(roster)
	for _, id := range in.Seeds {
		if _, ok := idx[id]; !ok {
			return Output{}, fmt.Errorf("seed %q: %w", id, ErrUnknownEntrant)
		}
	}

	out := Output{Result: model.BracketResult{Entrants: append([]string(nil), in.Seeds...)}}
	emit := func(ev model.Event) {
		ev.Priority = model.PriorityBracket
		out.Events = append(out.Events, ev)
	}

	for _, p := range Pair(in.Seeds, size) {
		p.EffectsA = in.Effects[p.A].Bounded()
		if p.Bye {
			p.Winner, p.TieBreak = p.A, TieBreakBye
			emit(model.Event{Type: model.EventBye, ActorID: p.A, Text: fmt.Sprintf("%s advances on a bye", p.A)})
		} else {
			p.EffectsB = in.Effects[p.B].Bounded()
			var err error
			p, err = r.clash(ctx, rng, roster[idx[p.A]], roster[idx[p.B]], p, in.Mover)
			if err != nil {
				return Output{}, err
			}
			a, b := &roster[idx[p.A]], &roster[idx[p.B]]
			last := p.Rounds[len(p.Rounds)-1]
			beforeA, beforeB := a.HP, b.HP
			a.HP, b.HP = last.HPA, last.HPB
			a.ClampHP()
			b.ClampHP()
			loser := p.B
			if p.Winner == p.B {
				loser = p.A
			}
			emit(model.Event{
				Type:     model.EventClash,
				ActorID:  p.Winner,
				TargetID: loser,
				Text:     fmt.Sprintf("%s defeats %s after %d exchanges (%s)", p.Winner, loser, len(p.Rounds), p.TieBreak),
				Deltas:   []model.Delta{{EntrantID: p.A, HP: a.HP - beforeA}, {EntrantID: p.B, HP: b.HP - beforeB}},
			})
			roster[idx[loser]].Eliminated = true
			emit(model.Event{Type: model.EventEliminated, ActorID: p.Winner, TargetID: loser, Text: fmt.Sprintf("%s is knocked out", loser)})
		}
		w := &roster[idx[p.Winner]]
		w.Reputation += r.advanceRep
		emit(model.Event{
			Type:    model.EventAdvance,
			ActorID: p.Winner,
			Text:    fmt.Sprintf("%s advances", p.Winner),
			Deltas:  []model.Delta{{EntrantID: p.Winner, Reputation: r.advanceRep}},
		})
		out.Result.Pairings = append(out.Result.Pairings, p)
		out.Result.Advancing = append(out.Result.Advancing, p.Winner)
	}

	if in.Final && len(out.Result.Advancing) > 0 {
		champ := out.Result.Advancing[0]
		out.Result.Champion = champ
		roster[idx[champ]].Reputation += r.championRep
		emit(model.Event{
			Type:    model.EventChampion,
			ActorID: champ,
			Text:    fmt.Sprintf("%s is crowned champion", champ),
			Deltas:  []model.Delta{{EntrantID: champ, Reputation: r.championRep}},
		})
	}
	for i := range out.Events {
		out.Events[i].Seq = i + 1
	}
	out.Entrants = roster
	return out, nil
}

// clash plays a fixed number of exchanges from fresh HP, stopping early when
// either side drops to zero. Each fighter may use its ultimate once.
func (r *Resolver) clash(ctx context.Context, rng combat.RNG, a, b model.Entrant, p model.Pairing, mover Mover) (model.Pairing, error) {
	fa := combat.FighterOf(a, p.EffectsA)
	fb := combat.FighterOf(b, p.EffectsB)
	hpA := a.MaxHP + fa.Effects.HP
	hpB := b.MaxHP + fb.Effects.HP
	usedA, usedB := false, false

	for n := 1; n <= r.clashRounds; n++ {
		moveA, moveB := model.ActionAttack, model.ActionAttack
		if mover != nil {
			var err error
			moveA, moveB, err = mover.Moves(ctx, Clash{Round: n, A: a, B: b, HPA: hpA, HPB: hpB})
			if err != nil {
				return p, fmt.Errorf("moves %s vs %s round %d: %w", a.ID, b.ID, n, err)
			}
		}
		moveA, usedA = normalizeMove(moveA, usedA)
		moveB, usedB = normalizeMove(moveB, usedB)

		x := combat.Exchange(rng, fa, moveA, fb, moveB)
		hpA = max(hpA-x.DamageToA, 0)
		hpB = max(hpB-x.DamageToB, 0)
		p.Rounds = append(p.Rounds, model.ClashRound{
			Round:     n,
			MoveA:     moveA,
			MoveB:     moveB,
			DamageToA: x.DamageToA,
			DamageToB: x.DamageToB,
			HPA:       hpA,
			HPB:       hpB,
			Narrative: x.Narrative,
		})
		if hpA == 0 || hpB == 0 {
			break
		}
	}
	p.Winner, p.TieBreak = decide(a, b, hpA, hpB)
	return p, nil
}

// decide picks the winner by remaining HP, then reputation, then the
// lexicographically smaller entrant id.
func decide(a, b model.Entrant, hpA, hpB int) (string, string) {
	switch {
	case hpA != hpB:
		if hpA > hpB {
			return a.ID, TieBreakHP
		}
		return b.ID, TieBreakHP
	case a.Reputation != b.Reputation:
		if a.Reputation > b.Reputation {
			return a.ID, TieBreakReputation
		}
		return b.ID, TieBreakReputation
	default:
		if a.ID < b.ID {
			return a.ID, TieBreakID
		}
		return b.ID, TieBreakID
	}
}

func normalizeMove(m model.Action, ultimateUsed bool) (model.Action, bool) {
	switch m {
	case model.ActionAttack, model.ActionDefend, model.ActionBluff:
		return m, ultimateUsed
	case model.ActionUltimate:
		if ultimateUsed {
			return model.ActionAttack, true
		}
		return m, true
	default:
		return model.ActionAttack, ultimateUsed
	}
}
