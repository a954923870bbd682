package bracket

import (
	"sort"

	"github.com/okian/gauntlet/internal/domain/model"
)

// SelectFinalists returns the bracket seeds in slot order: the top entrants
// by reputation, then the top by hot among the rest, then reputation
// backfill until the bracket is full or candidates run out. Only surviving
// entrants qualify unless nobody survived.
func (r *Resolver) SelectFinalists(entrants []model.Entrant) []string {
	pool := make([]model.Entrant, 0, len(entrants))
	for _, e := range entrants {
		if !e.Eliminated {
			pool = append(pool, e)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, entrants...)
	}
	size := r.Size()

	byRep := append([]model.Entrant(nil), pool...)
	sort.SliceStable(byRep, func(i, j int) bool {
		a, b := byRep[i], byRep[j]
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		if a.Hot != b.Hot {
			return a.Hot > b.Hot
		}
		return a.ID < b.ID
	})
	byHot := append([]model.Entrant(nil), pool...)
	sort.SliceStable(byHot, func(i, j int) bool {
		a, b := byHot[i], byHot[j]
		if a.Hot != b.Hot {
			return a.Hot > b.Hot
		}
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		return a.ID < b.ID
	})

	picked := make(map[string]bool, size)
	seeds := make([]string, 0, size)
	take := func(from []model.Entrant, n int) {
		for _, e := range from {
			if n == 0 || len(seeds) == size {
				return
			}
			if picked[e.ID] {
				continue
			}
			picked[e.ID] = true
			seeds = append(seeds, e.ID)
			n--
		}
	}
	take(byRep, r.byReputation)
	take(byHot, r.byHot)
	take(byRep, size)
	return seeds
}

// Pair cross-seeds a bracket of the given size: slot i meets slot size-1-i.
// A missing opponent is a bye.
func Pair(seeds []string, size int) []model.Pairing {
	var out []model.Pairing
	for i := 0; i < size/2; i++ {
		if i >= len(seeds) {
			break
		}
		p := model.Pairing{A: seeds[i]}
		if j := size - 1 - i; j < len(seeds) {
			p.B = seeds[j]
		} else {
			p.Bye = true
		}
		out = append(out, p)
	}
	return out
}
