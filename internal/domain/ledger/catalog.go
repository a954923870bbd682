package ledger

import "github.com/okian/gauntlet/internal/domain/model"

// DefaultMultipliers pays double for the winner, the stake for second and
// half for third.
var DefaultMultipliers = map[int]float64{1: 2.0, 2: 1.0, 3: 0.5}

// DefaultCatalog is the artifact shop offered during artifact selection.
var DefaultCatalog = []model.Artifact{
	{ID: "blade", Name: "Serrated Blade", Price: 50, PayoutMultiplier: 3.0, Effects: model.EffectVector{Attack: 15}},
	{ID: "aegis", Name: "Aegis Plate", Price: 50, PayoutMultiplier: 3.0, Effects: model.EffectVector{Defense: 15}},
	{ID: "elixir", Name: "Vital Elixir", Price: 40, PayoutMultiplier: 2.5, Effects: model.EffectVector{HP: 30}},
	{ID: "crown", Name: "Storm Crown", Price: 80, PayoutMultiplier: 4.0, Effects: model.EffectVector{Ultimate: 20}},
	{ID: "mask", Name: "Liar's Mask", Price: 30, PayoutMultiplier: 2.0, Effects: model.EffectVector{Bluff: 25}},
	{ID: "ward", Name: "Rune Ward", Price: 60, PayoutMultiplier: 3.0, Effects: model.EffectVector{DamageReduction: 25}},
}
