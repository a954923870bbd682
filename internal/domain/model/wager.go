package model

import "time"

// Account holds the spendable balance of a bettor. Accounts outlive matches.
type Account struct {
	ID      string `json:"id"`
	Bot     bool   `json:"bot"`
	Balance int64  `json:"balance"`
}

// Bet is a wager on one entrant of a match. At most one per (match, bettor, entrant).
type Bet struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	BettorID  string    `json:"bettor_id"`
	EntrantID string    `json:"entrant_id"`
	Amount    int64     `json:"amount"`
	Settled   bool      `json:"settled"`
	Payout    int64     `json:"payout"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact is a purchasable consumable granting an additive combat modifier.
type Artifact struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Price            int64        `json:"price"`
	PayoutMultiplier float64      `json:"payout_multiplier"`
	Effects          EffectVector `json:"effects"`
}

// ArtifactGift is one artifact sent to a finalist. At most one per (match, bettor).
type ArtifactGift struct {
	ID         string    `json:"id"`
	MatchID    string    `json:"match_id"`
	BettorID   string    `json:"bettor_id"`
	EntrantID  string    `json:"entrant_id"`
	ArtifactID string    `json:"artifact_id"`
	Amount     int64     `json:"amount"`
	Settled    bool      `json:"settled"`
	Payout     int64     `json:"payout"`
	CreatedAt  time.Time `json:"created_at"`
}
