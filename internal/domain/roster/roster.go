// Package roster validates a match's entrants and seats bots in empty slots.
package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/model"
)

// Defaults for seating.
const (
	DefaultSeats = 8
	MinEntrants  = 2
	DefaultMaxHP = 100
	// StatMin and StatMax bound every generated stat.
	StatMin = 1
	StatMax = 10
)

// Roster errors.
var (
	ErrInvalidEntrant   = errors.New("invalid entrant")
	ErrDuplicateEntrant = errors.New("duplicate entrant")
	ErrTooManyEntrants  = errors.New("roster exceeds seat count")
	ErrTooFewEntrants   = errors.New("roster below minimum size")
)

var botNames = []string{
	"Ash", "Briar", "Cinder", "Dune", "Ember", "Flint", "Gale", "Hex",
	"Iris", "Jinx", "Kestrel", "Lark", "Moss", "Nyx", "Onyx", "Pike",
}

// Fill validates humans and seats generated bots until seats is reached.
// Bot stats, names and ids derive from (seed, matchID), so the same inputs
// always produce the same roster.
func Fill(matchID string, seed uint64, humans []model.Entrant, seats int) ([]model.Entrant, error) {
	if seats <= 0 {
		seats = DefaultSeats
	}
	if len(humans) > seats {
		return nil, fmt.Errorf("%d entrants for %d seats: %w", len(humans), seats, ErrTooManyEntrants)
	}
	seen := make(map[string]bool, seats)
	out := make([]model.Entrant, 0, seats)
	for _, e := range humans {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("entrant without id: %w", ErrInvalidEntrant)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entrant %s: %w", e.ID, ErrDuplicateEntrant)
		}
		seen[e.ID] = true
		out = append(out, ready(e))
	}

	rng := combat.NewRNG(seed, "roster", matchID)
	for n := 1; len(out) < seats; n++ {
		id := fmt.Sprintf("bot-%d", n)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, ready(model.Entrant{
			ID:    id,
			Name:  combat.Pick(rng, botNames) + " " + id[4:],
			Bot:   true,
			Stats: RandomStats(rng),
		}))
	}
	if len(out) < MinEntrants {
		return nil, fmt.Errorf("%d entrants: %w", len(out), ErrTooFewEntrants)
	}
	return out, nil
}

// RandomStats draws every stat uniformly from [StatMin, StatMax].
func RandomStats(rng combat.RNG) model.Stats {
	draw := func() int { return StatMin + rng.IntN(StatMax-StatMin+1) }
	return model.Stats{
		Strength: draw(),
		Agility:  draw(),
		Wisdom:   draw(),
		Charisma: draw(),
		Stamina:  draw(),
		Luck:     draw(),
	}
}

// ready resets the match-scoped fields of an entrant.
func ready(e model.Entrant) model.Entrant {
	if e.Name == "" {
		e.Name = e.ID
	}
	if e.MaxHP <= 0 {
		e.MaxHP = DefaultMaxHP
	}
	e.HP = e.MaxHP
	e.Eliminated = false
	e.AllyID = ""
	return e
}
