package model

// Action is what an entrant chose to do for one round or clash exchange.
type Action string

// Round actions.
const (
	ActionAttack   Action = "attack"
	ActionDefend   Action = "defend"
	ActionUltimate Action = "ultimate"
	ActionBluff    Action = "bluff"
	ActionScavenge Action = "scavenge"
	ActionAlly     Action = "ally"
	ActionBetray   Action = "betray"
	ActionRest     Action = "rest"
	ActionHide     Action = "hide"
)

// RoundActions lists every action accepted during elimination rounds.
var RoundActions = []Action{
	ActionAttack, ActionDefend, ActionUltimate, ActionBluff,
	ActionScavenge, ActionAlly, ActionBetray, ActionRest, ActionHide,
}

// BracketMoves is the four-move set of bracket clashes.
var BracketMoves = []Action{ActionAttack, ActionDefend, ActionUltimate, ActionBluff}

// IsOffensive reports whether the action strikes a target.
func (a Action) IsOffensive() bool {
	return a == ActionAttack || a == ActionUltimate || a == ActionBluff
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range RoundActions {
		if a == known {
			return true
		}
	}
	return false
}

// NeedsTarget reports whether the action refers to another entrant.
func (a Action) NeedsTarget() bool {
	return a.IsOffensive() || a == ActionAlly || a == ActionBetray
}

// DecisionSource records where a decision came from.
type DecisionSource string

// Decision sources.
const (
	SourceBot      DecisionSource = "bot"
	SourceProvider DecisionSource = "provider"
	SourceFallback DecisionSource = "fallback"
)

// Decision is one entrant's choice for a round. It is consumed by the round
// resolver and kept only inside the snapshot for audit.
type Decision struct {
	EntrantID string         `json:"entrant_id"`
	Action    Action         `json:"action"`
	TargetID  string         `json:"target_id,omitempty"`
	Object    string         `json:"object,omitempty"`
	Flavor    string         `json:"flavor,omitempty"`
	Source    DecisionSource `json:"source"`
}
