package round

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithEncounterChance sets the per-entrant probability of a random encounter.
func WithEncounterChance(p float64) Option {
	return func(r *Resolver) {
		if p >= 0 && p <= 1 {
			r.encounterChance = p
		}
	}
}

// WithEncounters replaces the random encounter table.
func WithEncounters(table []Encounter) Option {
	return func(r *Resolver) {
		if len(table) > 0 {
			r.encounters = append([]Encounter(nil), table...)
		}
	}
}

// WithResources replaces the scavenge resource table.
func WithResources(resources map[string]Resource) Option {
	return func(r *Resolver) {
		if len(resources) > 0 {
			r.resources = make(map[string]Resource, len(resources))
			for k, v := range resources {
				r.resources[k] = v
			}
		}
	}
}
