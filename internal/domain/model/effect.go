package model

// Natural bounds of a merged effect vector.
const (
	MaxDamageReduction = 75 // percent
	MaxBoost           = 100
)

// EffectVector is the additive combat modifier an artifact grants.
// The zero value is the identity of Combine.
type EffectVector struct {
	Attack   int `json:"attack"`
	Defense  int `json:"defense"`
	HP       int `json:"hp"`
	Ultimate int `json:"ultimate"` // percent added to the ultimate multiplier
	Bluff    int `json:"bluff"`    // percent subtracted from bluff detection
	// DamageReduction is a percent cut to incoming damage.
	DamageReduction int `json:"damage_reduction"`
}

// Combine returns the component-wise sum. It is associative and
// commutative, so gifts can be merged in any order.
func (v EffectVector) Combine(o EffectVector) EffectVector {
	return EffectVector{
		Attack:          v.Attack + o.Attack,
		Defense:         v.Defense + o.Defense,
		HP:              v.HP + o.HP,
		Ultimate:        v.Ultimate + o.Ultimate,
		Bluff:           v.Bluff + o.Bluff,
		DamageReduction: v.DamageReduction + o.DamageReduction,
	}
}

// Bounded clamps every component to its natural range. Apply it after
// merging, never between merges.
func (v EffectVector) Bounded() EffectVector {
	return EffectVector{
		Attack:          clamp(v.Attack, 0, MaxBoost),
		Defense:         clamp(v.Defense, 0, MaxBoost),
		HP:              clamp(v.HP, 0, MaxBoost),
		Ultimate:        clamp(v.Ultimate, 0, MaxBoost),
		Bluff:           clamp(v.Bluff, 0, MaxBoost),
		DamageReduction: clamp(v.DamageReduction, 0, MaxDamageReduction),
	}
}

// IsZero reports whether the vector carries no effect.
func (v EffectVector) IsZero() bool {
	return v == EffectVector{}
}

// MergeEffects folds any number of vectors.
func MergeEffects(vs ...EffectVector) EffectVector {
	var out EffectVector
	for _, v := range vs {
		out = out.Combine(v)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
