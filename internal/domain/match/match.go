package match

import "time"

// Match is the canonical record the state machine guards.
type Match struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Theme  string `json:"theme"`
	// Round is the last elimination round entered, 0 before round_1.
	Round int `json:"round"`
	// Champion is empty until the final bracket resolves.
	Champion string `json:"champion,omitempty"`
	// Seed roots every random stream of the match so stages replay identically.
	Seed      uint64    `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageKey identifies a stage output scoped to a match, used for
// idempotency claims and snapshot lookups.
func StageKey(matchID string, stage Status) string {
	return matchID + ":" + string(stage)
}
