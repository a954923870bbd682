package model

import (
	"sort"
	"time"

	"github.com/okian/gauntlet/internal/domain/match"
)

// Ranking is one row of the derived standings.
type Ranking struct {
	Rank       int    `json:"rank"`
	EntrantID  string `json:"entrant_id"`
	Reputation int    `json:"reputation"`
	Hot        int    `json:"hot"`
	Eliminated bool   `json:"eliminated"`
}

// Rank orders entrants by reputation desc, hot desc, then id asc.
func Rank(entrants []Entrant) []Ranking {
	sorted := make([]Entrant, len(entrants))
	copy(sorted, entrants)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		if a.Hot != b.Hot {
			return a.Hot > b.Hot
		}
		return a.ID < b.ID
	})
	out := make([]Ranking, len(sorted))
	for i, e := range sorted {
		out[i] = Ranking{
			Rank:       i + 1,
			EntrantID:  e.ID,
			Reputation: e.Reputation,
			Hot:        e.Hot,
			Eliminated: e.Eliminated,
		}
	}
	return out
}

// ClashRound records one exchange of a bracket pairing.
type ClashRound struct {
	Round     int      `json:"round"`
	MoveA     Action   `json:"move_a"`
	MoveB     Action   `json:"move_b"`
	DamageToA int      `json:"damage_to_a"`
	DamageToB int      `json:"damage_to_b"`
	HPA       int      `json:"hp_a"`
	HPB       int      `json:"hp_b"`
	Narrative []string `json:"narrative"`
}

// Pairing is one bracket match-up. B is empty for a bye.
type Pairing struct {
	A        string       `json:"a"`
	B        string       `json:"b,omitempty"`
	Bye      bool         `json:"bye"`
	EffectsA EffectVector `json:"effects_a"`
	EffectsB EffectVector `json:"effects_b"`
	Rounds   []ClashRound `json:"rounds,omitempty"`
	Winner   string       `json:"winner"`
	// TieBreak names the rule that decided the winner: hp, reputation, id or bye.
	TieBreak string `json:"tie_break"`
}

// BracketResult is the output of a semifinal or final stage.
type BracketResult struct {
	// Entrants lists who entered the stage, in seed order.
	Entrants []string  `json:"entrants"`
	Pairings []Pairing `json:"pairings"`
	// Advancing lists the winners; after the semifinal these are the declared finalists.
	Advancing []string `json:"advancing"`
	Champion  string   `json:"champion,omitempty"`
}

// Settlement summarises the payouts made at match end.
type Settlement struct {
	Standings []string `json:"standings"`
	Payouts   []Payout `json:"payouts"`
}

// Payout is one settled wager.
type Payout struct {
	WagerID  string `json:"wager_id"`
	BettorID string `json:"bettor_id"`
	Kind     string `json:"kind"` // bet or gift
	Rank     int    `json:"rank,omitempty"`
	Amount   int64  `json:"amount"`
	Credited bool   `json:"credited"`
}

// Snapshot is the write-once output of one stage: the state after the stage,
// the events that produced it and the derived rankings.
type Snapshot struct {
	MatchID    string         `json:"match_id"`
	Stage      match.Status   `json:"stage"`
	Round      int            `json:"round"`
	Entrants   []Entrant      `json:"entrants"`
	Events     []Event        `json:"events"`
	Rankings   []Ranking      `json:"rankings"`
	Decisions  []Decision     `json:"decisions,omitempty"`
	Bracket    *BracketResult `json:"bracket,omitempty"`
	Settlement *Settlement    `json:"settlement,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
