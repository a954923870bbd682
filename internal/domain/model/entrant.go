// Package model contains the domain records passed between the engine's layers.
package model

// Stats are the six fixed attributes of an entrant.
type Stats struct {
	Strength int `json:"strength"`
	Agility  int `json:"agility"`
	Wisdom   int `json:"wisdom"`
	Charisma int `json:"charisma"`
	Stamina  int `json:"stamina"`
	Luck     int `json:"luck"`
}

// Entrant is a tournament participant as seen by one match.
type Entrant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Bot        bool   `json:"bot"`
	Stats      Stats  `json:"stats"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	Reputation int    `json:"reputation"`
	Hot        int    `json:"hot"`
	Morality   int    `json:"morality"`
	Credit     int    `json:"credit"`
	// AllyID is the entrant this one is allied with, empty when unallied.
	AllyID     string   `json:"ally_id,omitempty"`
	Eliminated bool     `json:"eliminated"`
	Techniques []string `json:"techniques,omitempty"`
}

// Alive reports whether the entrant can still act and be targeted.
func (e *Entrant) Alive() bool {
	return !e.Eliminated && e.HP > 0
}

// Heal adds delta HP (negative to damage), keeping 0 <= HP <= MaxHP.
// It returns the delta actually applied.
func (e *Entrant) Heal(delta int) int {
	before := e.HP
	e.HP += delta
	e.ClampHP()
	return e.HP - before
}

// ClampHP enforces 0 <= HP <= MaxHP.
func (e *Entrant) ClampHP() {
	if e.MaxHP < 0 {
		e.MaxHP = 0
	}
	if e.HP > e.MaxHP {
		e.HP = e.MaxHP
	}
	if e.HP < 0 {
		e.HP = 0
	}
}

// Learn records a technique once.
func (e *Entrant) Learn(technique string) {
	for _, t := range e.Techniques {
		if t == technique {
			return
		}
	}
	e.Techniques = append(e.Techniques, technique)
}

// Clone returns a deep copy safe to mutate.
func (e Entrant) Clone() Entrant {
	if e.Techniques != nil {
		e.Techniques = append([]string(nil), e.Techniques...)
	}
	return e
}

// CloneEntrants deep-copies a roster.
func CloneEntrants(in []Entrant) []Entrant {
	out := make([]Entrant, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// IndexEntrants maps entrant id to its position in the slice.
func IndexEntrants(in []Entrant) map[string]int {
	idx := make(map[string]int, len(in))
	for i := range in {
		idx[in[i].ID] = i
	}
	return idx
}
