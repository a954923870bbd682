// Package round resolves one elimination round: it turns the collected
// decisions into an ordered event list and the updated roster.
package round

import (
	"fmt"
	"sort"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/model"
)

// Default resolver tuning.
const (
	defaultEncounterChance = 0.15
	defaultObject          = ObjectRations

	allianceFormedRep   = 2
	allianceProposedRep = 1
	betrayalMaxTransfer = 5
	betrayalHot         = 5
	betrayalMorality    = 10
	failedBetrayalRep   = -1
	hitRep              = 1
	wantedHitRep        = 2
	counterRep          = 1
	bluffCaughtRep      = -1
	restBaseHP          = 5
	eliminationRep      = 3
)

// Input is everything a round needs. It is not mutated.
type Input struct {
	Round     int
	Entrants  []model.Entrant
	Decisions []model.Decision
	// History maps an entrant to the ids that attacked it last round.
	History map[string][]string
}

// Output is the resolved round.
type Output struct {
	Entrants  []model.Entrant
	Events    []model.Event
	Rankings  []model.Ranking
	Decisions []model.Decision
}

// Resolver applies the round rules. It holds only immutable tables and is
// safe for concurrent use.
type Resolver struct {
	encounterChance float64
	encounters      []Encounter
	resources       map[string]Resource
}

// NewResolver creates a resolver with the default tables.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		encounterChance: defaultEncounterChance,
		encounters:      DefaultEncounters,
		resources:       DefaultResources,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs every phase in priority order over a copy of the roster.
func (r *Resolver) Resolve(rng combat.RNG, in Input) Output {
	s := newState(rng, in.Entrants)
	decisions := s.normalize(in.Decisions)

	r.encounter(s)
	r.scramble(s, decisions)
	alliances(s, decisions)
	betrayals(s, decisions)
	fight(s, decisions, in.History)
	recovery(s, decisions)
	eliminate(s)

	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Priority < s.events[j].Priority
	})
	for i := range s.events {
		s.events[i].Seq = i + 1
	}
	return Output{
		Entrants:  s.roster,
		Events:    s.events,
		Rankings:  model.Rank(s.roster),
		Decisions: decisions,
	}
}

// AttackHistory rebuilds the revenge history from a round's events.
func AttackHistory(events []model.Event) map[string][]string {
	h := make(map[string][]string)
	for _, ev := range events {
		if ev.Type != model.EventAttack || ev.ActorID == "" || ev.TargetID == "" {
			continue
		}
		h[ev.TargetID] = appendUnique(h[ev.TargetID], ev.ActorID)
	}
	return h
}

type state struct {
	rng     combat.RNG
	roster  []model.Entrant
	idx     map[string]int
	alive   map[string]bool
	ordered []string
	events  []model.Event
}

func newState(rng combat.RNG, entrants []model.Entrant) *state {
	s := &state{
		rng:    rng,
		roster: model.CloneEntrants(entrants),
		alive:  make(map[string]bool, len(entrants)),
	}
	s.idx = model.IndexEntrants(s.roster)
	for i := range s.roster {
		s.roster[i].ClampHP()
		if s.roster[i].Alive() {
			s.alive[s.roster[i].ID] = true
			s.ordered = append(s.ordered, s.roster[i].ID)
		}
	}
	sort.Strings(s.ordered)
	return s
}

func (s *state) get(id string) *model.Entrant {
	i, ok := s.idx[id]
	if !ok {
		return nil
	}
	return &s.roster[i]
}

// targetable reports whether id can be targeted by actor this round.
func (s *state) targetable(actor, id string) bool {
	return id != "" && id != actor && s.alive[id]
}

// normalize returns one decision per alive entrant in id order. Missing
// decisions become defend; invalid targets degrade to defend.
func (s *state) normalize(in []model.Decision) []model.Decision {
	byID := make(map[string]model.Decision, len(in))
	for _, d := range in {
		if s.alive[d.EntrantID] {
			byID[d.EntrantID] = d
		}
	}
	out := make([]model.Decision, 0, len(s.ordered))
	for _, id := range s.ordered {
		d, ok := byID[id]
		if !ok {
			d = model.Decision{EntrantID: id, Action: model.ActionDefend, Source: model.SourceFallback}
		}
		if !d.Action.Valid() || (d.Action.NeedsTarget() && !s.targetable(id, d.TargetID)) {
			d.Action = model.ActionDefend
			d.TargetID = ""
		}
		if !d.Action.NeedsTarget() {
			d.TargetID = ""
		}
		out = append(out, d)
	}
	return out
}

func (s *state) emit(ev model.Event) {
	s.events = append(s.events, ev)
}

// change applies a delta to one entrant and returns it with the HP actually applied.
func (s *state) change(id string, hp, rep, hot int) model.Delta {
	e := s.get(id)
	if e == nil {
		return model.Delta{EntrantID: id}
	}
	applied := e.Heal(hp)
	e.Reputation += rep
	e.Hot += hot
	if e.Hot < 0 {
		hot -= e.Hot
		e.Hot = 0
	}
	return model.Delta{EntrantID: id, HP: applied, Reputation: rep, Hot: hot}
}

func (r *Resolver) encounter(s *state) {
	if len(r.encounters) == 0 {
		return
	}
	for _, id := range s.ordered {
		if !combat.Chance(s.rng, r.encounterChance) {
			continue
		}
		enc := combat.Pick(s.rng, r.encounters)
		s.emit(model.Event{
			Type:     model.EventEncounter,
			ActorID:  id,
			Text:     fmt.Sprintf(enc.Text, id),
			Deltas:   []model.Delta{s.change(id, enc.HP, enc.Reputation, enc.Hot)},
			Priority: model.PriorityEncounter,
		})
	}
}

// scramble settles contention among entrants scavenging the same object.
// Highest agility plus luck plus a d6 wins; ties go to the smaller id.
func (r *Resolver) scramble(s *state, decisions []model.Decision) {
	contenders := make(map[string][]string)
	for _, d := range decisions {
		if d.Action != model.ActionScavenge {
			continue
		}
		obj := d.Object
		if _, ok := r.resources[obj]; !ok {
			obj = defaultObject
		}
		contenders[obj] = append(contenders[obj], d.EntrantID)
	}
	objects := make([]string, 0, len(contenders))
	for obj := range contenders {
		objects = append(objects, obj)
	}
	sort.Strings(objects)

	for _, obj := range objects {
		ids := contenders[obj]
		winner, best := "", -1
		for _, id := range ids {
			e := s.get(id)
			if e.HP <= 0 {
				continue
			}
			score := e.Stats.Agility + e.Stats.Luck + s.rng.IntN(6)
			if score > best || (score == best && id < winner) {
				winner, best = id, score
			}
		}
		if winner == "" {
			continue
		}
		res := r.resources[obj]
		w := s.get(winner)
		w.Credit += res.Credit
		if res.Technique != "" {
			w.Learn(res.Technique)
		}
		var losers []string
		for _, id := range ids {
			if id != winner {
				losers = append(losers, id)
			}
		}
		text := fmt.Sprintf("%s grabs the %s", winner, obj)
		if len(losers) > 0 {
			text = fmt.Sprintf("%s wins the scramble for the %s", winner, obj)
		}
		s.emit(model.Event{
			Type:     model.EventScramble,
			ActorID:  winner,
			Others:   losers,
			Text:     text,
			Deltas:   []model.Delta{s.change(winner, res.HP, res.Reputation, res.Hot)},
			Priority: model.PriorityScramble,
		})
	}
}

// alliances forms mutual proposals and records one-sided ones.
func alliances(s *state, decisions []model.Decision) {
	wants := make(map[string]string)
	for _, d := range decisions {
		if d.Action == model.ActionAlly {
			wants[d.EntrantID] = d.TargetID
		}
	}
	done := make(map[string]bool)
	for _, d := range decisions {
		a, b := d.EntrantID, d.TargetID
		if d.Action != model.ActionAlly || done[a] {
			continue
		}
		ea, eb := s.get(a), s.get(b)
		free := (ea.AllyID == "" || ea.AllyID == b) && (eb.AllyID == "" || eb.AllyID == a)
		if wants[b] == a && free && !done[b] {
			done[a], done[b] = true, true
			ea.AllyID, eb.AllyID = b, a
			s.emit(model.Event{
				Type:     model.EventAllianceFormed,
				ActorID:  a,
				TargetID: b,
				Text:     fmt.Sprintf("%s and %s shake on an alliance", a, b),
				Deltas: []model.Delta{
					s.change(a, 0, allianceFormedRep, 0),
					s.change(b, 0, allianceFormedRep, 0),
				},
				Priority: model.PriorityAlliance,
			})
			continue
		}
		done[a] = true
		s.emit(model.Event{
			Type:     model.EventAllianceProposed,
			ActorID:  a,
			TargetID: b,
			Text:     fmt.Sprintf("%s offers %s an alliance", a, b),
			Deltas:   []model.Delta{s.change(a, 0, allianceProposedRep, 0)},
			Priority: model.PriorityAlliance,
		})
	}
}

// betrayals transfer reputation from victim to betrayer and dissolve the alliance.
func betrayals(s *state, decisions []model.Decision) {
	for _, d := range decisions {
		if d.Action != model.ActionBetray {
			continue
		}
		a, b := d.EntrantID, d.TargetID
		ea, eb := s.get(a), s.get(b)
		if ea.AllyID != b {
			s.emit(model.Event{
				Type:     model.EventBetrayalFailed,
				ActorID:  a,
				TargetID: b,
				Text:     fmt.Sprintf("%s tries to stab %s in the back, but they were never allies", a, b),
				Deltas:   []model.Delta{s.change(a, 0, failedBetrayalRep, 0)},
				Priority: model.PriorityBetrayal,
			})
			continue
		}
		transfer := min(max(eb.Reputation, 0), betrayalMaxTransfer)
		ea.AllyID, eb.AllyID = "", ""
		ea.Morality -= betrayalMorality
		s.emit(model.Event{
			Type:     model.EventBetrayal,
			ActorID:  a,
			TargetID: b,
			Text:     fmt.Sprintf("%s betrays %s and takes %d reputation", a, b, transfer),
			Deltas: []model.Delta{
				s.change(a, 0, transfer, betrayalHot),
				s.change(b, 0, -transfer, 0),
			},
			Priority: model.PriorityBetrayal,
		})
	}
}

// mostWanted returns the single highest-reputation alive entrant, or "" on a tie or when nobody has reputation.
func mostWanted(s *state) string {
	top, best, tie := "", 0, false
	for _, id := range s.ordered {
		rep := s.get(id).Reputation
		switch {
		case rep > best:
			top, best, tie = id, rep, false
		case rep == best && rep > 0:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return top
}

// fight resolves offensive decisions grouped by defender in id order.
func fight(s *state, decisions []model.Decision, history map[string][]string) {
	byDefender := make(map[string][]model.Decision)
	stance := make(map[string]model.Action, len(decisions))
	for _, d := range decisions {
		stance[d.EntrantID] = d.Action
		if d.Action.IsOffensive() {
			byDefender[d.TargetID] = append(byDefender[d.TargetID], d)
		}
	}
	defenders := make([]string, 0, len(byDefender))
	for id := range byDefender {
		defenders = append(defenders, id)
	}
	sort.Strings(defenders)
	wanted := mostWanted(s)
	wantedFlagged := false

	for _, defID := range defenders {
		strikes := byDefender[defID]
		gang := len(strikes)
		if gang > 1 {
			ids := make([]string, 0, gang)
			for _, d := range strikes {
				ids = append(ids, d.EntrantID)
			}
			s.emit(model.Event{
				Type:     model.EventGangUp,
				TargetID: defID,
				Others:   ids,
				Text:     fmt.Sprintf("%d entrants gang up on %s", gang, defID),
				Priority: model.PriorityCombat,
			})
		}
		if defID == wanted && !wantedFlagged {
			wantedFlagged = true
			s.emit(model.Event{
				Type:     model.EventWanted,
				TargetID: defID,
				Text:     fmt.Sprintf("%s is the most wanted entrant in the arena", defID),
				Deltas:   []model.Delta{s.change(defID, 0, 0, 1)},
				Priority: model.PriorityCombat,
			})
		}
		for _, d := range strikes {
			def := s.get(defID)
			if def.HP <= 0 {
				break
			}
			att := s.get(d.EntrantID)
			if att.HP <= 0 {
				continue
			}
			revenge := contains(history[d.EntrantID], defID)
			if revenge {
				s.emit(model.Event{
					Type:     model.EventRevenge,
					ActorID:  att.ID,
					TargetID: defID,
					Text:     fmt.Sprintf("%s comes back for revenge on %s", att.ID, defID),
					Priority: model.PriorityCombat,
				})
			}
			defStance := stance[defID]
			o := combat.Damage(s.rng, combat.Strike{
				Attacker:  combat.FighterOf(*att, model.EffectVector{}),
				Defender:  combat.FighterOf(*def, model.EffectVector{}),
				Move:      d.Action,
				GangSize:  gang,
				Wanted:    defID == wanted,
				Revenge:   revenge,
				Defending: defStance == model.ActionDefend || defStance == model.ActionHide,
			})
			if o.BluffDetected {
				s.emit(model.Event{
					Type:     model.EventBluffCaught,
					ActorID:  att.ID,
					TargetID: defID,
					Text:     o.Narrative,
					Deltas: []model.Delta{
						s.change(defID, -o.Damage, 0, 0),
						s.change(att.ID, 0, bluffCaughtRep, 0),
					},
					Priority: model.PriorityCombat,
				})
				continue
			}
			rep := hitRep
			if defID == wanted {
				rep = wantedHitRep
			}
			s.emit(model.Event{
				Type:     model.EventAttack,
				ActorID:  att.ID,
				TargetID: defID,
				Text:     o.Narrative,
				Deltas: []model.Delta{
					s.change(defID, -o.Damage, 0, 0),
					s.change(att.ID, 0, rep, 1),
				},
				Priority: model.PriorityCombat,
			})
			if o.Countered && def.HP > 0 {
				s.emit(model.Event{
					Type:     model.EventCounter,
					ActorID:  defID,
					TargetID: att.ID,
					Text:     fmt.Sprintf("%s counters %s for %d", defID, att.ID, o.CounterDamage),
					Deltas: []model.Delta{
						s.change(att.ID, -o.CounterDamage, 0, 0),
						s.change(defID, 0, counterRep, 0),
					},
					Priority: model.PriorityCombat,
				})
			}
		}
	}
}

// recovery handles the non-violent actions of entrants still standing.
func recovery(s *state, decisions []model.Decision) {
	for _, d := range decisions {
		e := s.get(d.EntrantID)
		if e.HP <= 0 {
			continue
		}
		switch d.Action {
		case model.ActionRest:
			heal := restBaseHP + e.Stats.Stamina/2
			s.emit(model.Event{
				Type:     model.EventRecover,
				ActorID:  e.ID,
				Text:     fmt.Sprintf("%s catches their breath", e.ID),
				Deltas:   []model.Delta{s.change(e.ID, heal, 0, 0)},
				Priority: model.PriorityRecovery,
			})
		case model.ActionHide:
			s.emit(model.Event{
				Type:     model.EventHide,
				ActorID:  e.ID,
				Text:     fmt.Sprintf("%s lies low", e.ID),
				Deltas:   []model.Delta{s.change(e.ID, 0, 0, -1)},
				Priority: model.PriorityRecovery,
			})
		}
	}
}

// eliminate marks every entrant at 0 HP and credits whoever landed the last hit.
func eliminate(s *state) {
	lastHit := make(map[string]string)
	for _, ev := range s.events {
		if (ev.Type == model.EventAttack || ev.Type == model.EventCounter) && ev.TargetID != "" {
			lastHit[ev.TargetID] = ev.ActorID
		}
	}
	for _, id := range s.ordered {
		e := s.get(id)
		if e.HP > 0 {
			continue
		}
		e.Eliminated = true
		if e.AllyID != "" {
			if ally := s.get(e.AllyID); ally != nil && ally.AllyID == id {
				ally.AllyID = ""
			}
			e.AllyID = ""
		}
		ev := model.Event{
			Type:     model.EventEliminated,
			ActorID:  lastHit[id],
			TargetID: id,
			Text:     fmt.Sprintf("%s is eliminated", id),
			Priority: model.PriorityElimination,
		}
		if killer := lastHit[id]; killer != "" && killer != id && s.get(killer).HP > 0 {
			ev.Text = fmt.Sprintf("%s eliminates %s", killer, id)
			ev.Deltas = []model.Delta{s.change(killer, 0, eliminationRep, 0)}
		}
		s.emit(ev)
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}
