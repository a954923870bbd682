package decision

import (
	"hash/fnv"
	"sort"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/model"
)

// Archetype is a bot personality.
type Archetype string

// Bot archetypes.
const (
	Aggressor   Archetype = "aggressor"
	Schemer     Archetype = "schemer"
	Survivor    Archetype = "survivor"
	Opportunist Archetype = "opportunist"
)

// Archetypes lists every personality in assignment order.
var Archetypes = []Archetype{Aggressor, Schemer, Survivor, Opportunist}

var scavengeObjects = []string{"medkit", "rations", "weapon_cache", "map"}

const lowHPPercent = 35

type weights map[model.Action]int

var defaultRoundWeights = map[Archetype]weights{
	Aggressor: {
		model.ActionAttack: 40, model.ActionUltimate: 20, model.ActionBluff: 10,
		model.ActionDefend: 5, model.ActionScavenge: 10, model.ActionAlly: 5,
		model.ActionBetray: 5, model.ActionRest: 5,
	},
	Schemer: {
		model.ActionAttack: 10, model.ActionBluff: 15, model.ActionAlly: 30,
		model.ActionBetray: 20, model.ActionScavenge: 10, model.ActionDefend: 5,
		model.ActionHide: 10,
	},
	Survivor: {
		model.ActionAttack: 10, model.ActionDefend: 25, model.ActionRest: 25,
		model.ActionHide: 20, model.ActionScavenge: 15, model.ActionAlly: 5,
	},
	Opportunist: {
		model.ActionAttack: 25, model.ActionUltimate: 10, model.ActionBluff: 15,
		model.ActionScavenge: 20, model.ActionAlly: 10, model.ActionBetray: 10,
		model.ActionDefend: 10,
	},
}

var defaultMoveWeights = map[Archetype]weights{
	Aggressor:   {model.ActionAttack: 45, model.ActionUltimate: 30, model.ActionBluff: 10, model.ActionDefend: 15},
	Schemer:     {model.ActionAttack: 20, model.ActionUltimate: 15, model.ActionBluff: 45, model.ActionDefend: 20},
	Survivor:    {model.ActionAttack: 25, model.ActionUltimate: 15, model.ActionBluff: 15, model.ActionDefend: 45},
	Opportunist: {model.ActionAttack: 30, model.ActionUltimate: 25, model.ActionBluff: 25, model.ActionDefend: 20},
}

// BotPolicy is the pure heuristic for bot entrants: a function of the
// archetype assigned per match, the round context and a seeded RNG.
type BotPolicy struct {
	rounds map[Archetype]weights
	moves  map[Archetype]weights
}

// NewBotPolicy returns the default heuristic.
func NewBotPolicy() *BotPolicy {
	return &BotPolicy{rounds: defaultRoundWeights, moves: defaultMoveWeights}
}

// ArchetypeOf assigns a stable archetype to an entrant within a match.
func ArchetypeOf(matchID, entrantID string) Archetype {
	h := fnv.New32a()
	_, _ = h.Write([]byte(matchID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(entrantID))
	return Archetypes[h.Sum32()%uint32(len(Archetypes))]
}

// Decide picks a bot's action. It performs no I/O.
func (p *BotPolicy) Decide(rng combat.RNG, req Request) model.Decision {
	arch := ArchetypeOf(req.MatchID, req.Entrant.ID)
	self := req.Entrant
	table := p.rounds[arch]
	if req.OpponentID != "" {
		table = p.moves[arch]
	}
	w := make(weights, len(table))
	for a, n := range table {
		if allowed(a, req.Allowed) {
			w[a] = n
		}
	}

	low := self.MaxHP > 0 && self.HP*100/self.MaxHP < lowHPPercent
	if low {
		w[model.ActionDefend] += 20
		if allowed(model.ActionRest, req.Allowed) {
			w[model.ActionRest] += 30
		}
		if allowed(model.ActionUltimate, req.Allowed) && req.OpponentID != "" {
			w[model.ActionUltimate] += 20
		}
	}
	if self.AllyID == "" {
		delete(w, model.ActionBetray)
	}
	if len(req.Others) == 0 {
		for a := range w {
			if a.NeedsTarget() {
				delete(w, a)
			}
		}
	}

	d := model.Decision{EntrantID: self.ID, Action: weighted(rng, w), Source: model.SourceBot}
	if d.Action.NeedsTarget() {
		d.TargetID = p.target(rng, arch, d.Action, req)
	}
	if d.Action == model.ActionScavenge {
		d.Object = combat.Pick(rng, scavengeObjects)
	}
	return d
}

// target applies the archetype's preference: aggressors hunt the weakest,
// opportunists the most reputable, schemers court the most reputable and
// betray their ally, everyone else picks at random.
func (p *BotPolicy) target(rng combat.RNG, arch Archetype, a model.Action, req Request) string {
	if req.OpponentID != "" {
		return req.OpponentID
	}
	if a == model.ActionBetray && req.Entrant.AllyID != "" {
		return req.Entrant.AllyID
	}
	others := append([]model.Entrant(nil), req.Others...)
	switch {
	case arch == Aggressor && a.IsOffensive():
		sort.SliceStable(others, func(i, j int) bool {
			if others[i].HP != others[j].HP {
				return others[i].HP < others[j].HP
			}
			return others[i].ID < others[j].ID
		})
		return others[0].ID
	case arch == Opportunist || (arch == Schemer && a == model.ActionAlly):
		sort.SliceStable(others, func(i, j int) bool {
			if others[i].Reputation != others[j].Reputation {
				return others[i].Reputation > others[j].Reputation
			}
			return others[i].ID < others[j].ID
		})
		return others[0].ID
	default:
		return combat.Pick(rng, others).ID
	}
}

// weighted draws an action proportionally to its weight. Keys are visited
// in a fixed order so the draw only depends on the RNG.
func weighted(rng combat.RNG, w weights) model.Action {
	total := 0
	keys := make([]model.Action, 0, len(w))
	for a, n := range w {
		if n > 0 {
			keys = append(keys, a)
			total += n
		}
	}
	if total == 0 {
		return model.ActionDefend
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	roll := rng.IntN(total)
	for _, a := range keys {
		roll -= w[a]
		if roll < 0 {
			return a
		}
	}
	return keys[len(keys)-1]
}
