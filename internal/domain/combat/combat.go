// Package combat implements the damage model shared by elimination rounds and
// bracket clashes. Every function is pure given its RNG, so a fixed seed
// reproduces damage and narrative exactly.
package combat

import (
	"fmt"
	"math"

	"github.com/okian/gauntlet/internal/domain/model"
)

// Tuning constants of the damage model.
const (
	MinDamage           = 2
	BaseDamage          = 6
	BaseUltimateFactor  = 1.5
	BluffSuccessFactor  = 1.3
	AdvantageFactor     = 1.25
	DefendFactor        = 0.5
	GangDefensePerExtra = 2
	WantedBonus         = 3
	RevengeBonus        = 4
	LuckSpread          = 0.1
)

// Fighter is the combat view of an entrant.
type Fighter struct {
	ID      string
	Stats   model.Stats
	Credit  int
	Effects model.EffectVector
}

// FighterOf builds a fighter from an entrant and its merged effects.
func FighterOf(e model.Entrant, fx model.EffectVector) Fighter {
	return Fighter{ID: e.ID, Stats: e.Stats, Credit: e.Credit, Effects: fx.Bounded()}
}

// Strike is one attacker hitting one defender.
type Strike struct {
	Attacker Fighter
	Defender Fighter
	Move     model.Action
	// GangSize counts every attacker on the same defender this round, 1 for a duel.
	GangSize  int
	Wanted    bool
	Revenge   bool
	Defending bool
	Advantage bool
}

// Outcome is the resolved result of a strike.
type Outcome struct {
	Damage        int
	CounterDamage int
	Countered     bool
	BluffDetected bool
	Narrative     string
}

// Damage resolves a strike. Draw order is fixed: outcome roll, luck roll,
// narrative pick, so equal inputs and seeds give equal outcomes.
func Damage(rng RNG, s Strike) Outcome {
	att, def := s.Attacker, s.Defender
	base := float64(BaseDamage + att.Stats.Strength)
	switch s.Move {
	case model.ActionUltimate:
		base *= BaseUltimateFactor + float64(att.Effects.Ultimate)/100
	case model.ActionBluff:
		base = float64(BaseDamage + att.Stats.Charisma)
	}

	dmg := base + float64(att.Effects.Attack) - float64(def.Effects.Defense) - float64(def.Stats.Stamina)/3
	if s.GangSize > 1 {
		dmg -= float64(GangDefensePerExtra * (s.GangSize - 1))
	}
	if s.Wanted {
		dmg += WantedBonus
	}
	if s.Revenge {
		dmg += RevengeBonus
	}
	if s.Advantage {
		dmg *= AdvantageFactor
	}

	var out Outcome
	if s.Move == model.ActionBluff {
		if Chance(rng, BluffDetection(def, att.Effects.Bluff)) {
			out.BluffDetected = true
			dmg = MinDamage
		} else {
			dmg *= BluffSuccessFactor
		}
	} else {
		if s.Defending {
			dmg *= DefendFactor
		}
		if Chance(rng, CounterChance(def, s.Defending)) {
			out.Countered = true
			dmg /= 2
			out.CounterDamage = MinDamage + def.Stats.Strength/2
		}
	}

	if dr := def.Effects.DamageReduction; dr > 0 {
		dmg *= float64(100-dr) / 100
	}
	if dmg < MinDamage {
		dmg = MinDamage
	}
	luck := LuckFactor(rng)
	out.Damage = int(math.Round(dmg * luck))
	if out.CounterDamage > 0 {
		out.CounterDamage = int(math.Round(float64(out.CounterDamage) * luck))
	}
	out.Narrative = narrate(rng, s, out)
	return out
}

// BluffDetection is the probability the defender sees through a bluff. It
// grows with wisdom and credit and shrinks with the bluffer's artifacts.
func BluffDetection(def Fighter, bluffBoost int) float64 {
	p := 0.2 + float64(def.Stats.Wisdom)*0.02 + float64(def.Credit)*0.005 - float64(bluffBoost)/100
	return clampF(p, 0.05, 0.95)
}

// CounterChance is the probability the defender turns a strike around.
func CounterChance(def Fighter, defending bool) float64 {
	p := 0.1 + float64(def.Stats.Agility)*0.01
	if defending {
		p += 0.15
	}
	return clampF(p, 0, 0.6)
}

// LuckFactor draws the final multiplier in [1-LuckSpread, 1+LuckSpread).
func LuckFactor(rng RNG) float64 {
	return 1 - LuckSpread + rng.Float64()*2*LuckSpread
}

// Beats reports whether move a has the upper hand over move b:
// ultimate beats attack, attack beats bluff, bluff beats ultimate and defend.
func Beats(a, b model.Action) bool {
	switch a {
	case model.ActionUltimate:
		return b == model.ActionAttack
	case model.ActionAttack:
		return b == model.ActionBluff
	case model.ActionBluff:
		return b == model.ActionUltimate || b == model.ActionDefend
	default:
		return false
	}
}

// ExchangeResult is one simultaneous clash round.
type ExchangeResult struct {
	DamageToA int
	DamageToB int
	Narrative []string
}

// Exchange resolves both fighters acting at once with their chosen moves.
// A defending side deals no damage but halves non-bluff strikes.
func Exchange(rng RNG, a Fighter, moveA model.Action, b Fighter, moveB model.Action) ExchangeResult {
	var res ExchangeResult
	if moveA == model.ActionDefend && moveB == model.ActionDefend {
		res.Narrative = append(res.Narrative, fmt.Sprintf("%s and %s circle each other, neither committing", a.ID, b.ID))
		return res
	}
	if moveA.IsOffensive() {
		o := Damage(rng, Strike{
			Attacker:  a,
			Defender:  b,
			Move:      moveA,
			GangSize:  1,
			Defending: moveB == model.ActionDefend && moveA != model.ActionBluff,
			Advantage: Beats(moveA, moveB),
		})
		res.DamageToB += o.Damage
		res.DamageToA += o.CounterDamage
		res.Narrative = append(res.Narrative, o.Narrative)
	}
	if moveB.IsOffensive() {
		o := Damage(rng, Strike{
			Attacker:  b,
			Defender:  a,
			Move:      moveB,
			GangSize:  1,
			Defending: moveA == model.ActionDefend && moveB != model.ActionBluff,
			Advantage: Beats(moveB, moveA),
		})
		res.DamageToA += o.Damage
		res.DamageToB += o.CounterDamage
		res.Narrative = append(res.Narrative, o.Narrative)
	}
	return res
}

func clampF(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
