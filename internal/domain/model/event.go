package model

// EventType tags what happened in an event.
type EventType string

// Event types.
const (
	EventEncounter        EventType = "encounter"
	EventScramble         EventType = "scramble"
	EventAllianceProposed EventType = "alliance_proposed"
	EventAllianceFormed   EventType = "alliance_formed"
	EventBetrayal         EventType = "betrayal"
	EventBetrayalFailed   EventType = "betrayal_failed"
	EventGangUp           EventType = "gang_up"
	EventAttack           EventType = "attack"
	EventCounter          EventType = "counter"
	EventBluffCaught      EventType = "bluff_caught"
	EventRevenge          EventType = "revenge"
	EventWanted           EventType = "wanted"
	EventRecover          EventType = "recover"
	EventHide             EventType = "hide"
	EventDefend           EventType = "defend"
	EventEliminated       EventType = "eliminated"
	EventClash            EventType = "clash"
	EventBye              EventType = "bye"
	EventAdvance          EventType = "advance"
	EventChampion         EventType = "champion"
	EventPayout           EventType = "payout"
)

// Event priorities; lower resolves and displays first within a stage.
const (
	PriorityEncounter   = 10
	PriorityScramble    = 20
	PriorityAlliance    = 30
	PriorityBetrayal    = 40
	PriorityCombat      = 50
	PriorityRecovery    = 60
	PriorityElimination = 70
	PriorityBracket     = 80
	PrioritySettlement  = 90
)

// Event is an immutable fact emitted while resolving a stage.
type Event struct {
	// Seq orders events within a stage, starting at 1.
	Seq      int       `json:"seq"`
	Type     EventType `json:"type"`
	ActorID  string    `json:"actor_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	// Others lists additional participants, e.g. the rest of a gang-up.
	Others   []string `json:"others,omitempty"`
	Text     string   `json:"text"`
	Deltas   []Delta  `json:"deltas,omitempty"`
	Priority int      `json:"priority"`
}

// Delta is the numeric change one event applied to one entrant.
type Delta struct {
	EntrantID  string `json:"entrant_id"`
	HP         int    `json:"hp,omitempty"`
	Reputation int    `json:"reputation,omitempty"`
	Hot        int    `json:"hot,omitempty"`
}

// Apply folds the event's deltas into a roster indexed by entrant id.
// HP stays within [0, MaxHP].
func (ev Event) Apply(entrants []Entrant, idx map[string]int) {
	for _, d := range ev.Deltas {
		i, ok := idx[d.EntrantID]
		if !ok {
			continue
		}
		entrants[i].Heal(d.HP)
		entrants[i].Reputation += d.Reputation
		entrants[i].Hot += d.Hot
	}
}
