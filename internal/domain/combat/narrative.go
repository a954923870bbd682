package combat

import (
	"fmt"

	"github.com/okian/gauntlet/internal/domain/model"
)

var strikeTemplates = map[model.Action][]string{
	model.ActionAttack: {
		"%s lunges at %s for %d",
		"%s lands a heavy blow on %s for %d",
		"%s catches %s off balance for %d",
	},
	model.ActionUltimate: {
		"%s unleashes a signature move on %s for %d",
		"%s goes all in against %s for %d",
	},
	model.ActionBluff: {
		"%s feints and slips past %s for %d",
		"%s fakes a retreat and punishes %s for %d",
	},
}

var (
	counterTemplates = []string{
		"%s reads it and strikes back at %s for %d",
		"%s turns the momentum on %s for %d",
	}
	detectedTemplates = []string{
		"%s sees through %s's bluff",
		"%s does not buy %s's act",
	}
)

func narrate(rng RNG, s Strike, o Outcome) string {
	att, def := s.Attacker.ID, s.Defender.ID
	if o.BluffDetected {
		return fmt.Sprintf(Pick(rng, detectedTemplates), def, att)
	}
	templates, ok := strikeTemplates[s.Move]
	if !ok {
		templates = strikeTemplates[model.ActionAttack]
	}
	text := fmt.Sprintf(Pick(rng, templates), att, def, o.Damage)
	if o.Countered {
		text += "; " + fmt.Sprintf(Pick(rng, counterTemplates), def, att, o.CounterDamage)
	}
	return text
}
