package round

// Encounter is one entry of the random encounter table.
type Encounter struct {
	Name       string
	Text       string // formatted with the entrant id
	HP         int
	Reputation int
	Hot        int
}

// Resource is what an entrant gains by winning a scramble for an object.
type Resource struct {
	HP         int
	Reputation int
	Hot        int
	Credit     int
	Technique  string
}

// Default objects contested by scavenging entrants.
const (
	ObjectMedkit      = "medkit"
	ObjectRations     = "rations"
	ObjectWeaponCache = "weapon_cache"
	ObjectMap         = "map"
)

// DefaultEncounters is the fixed random encounter table.
var DefaultEncounters = []Encounter{
	{Name: "storm", Text: "%s is caught in a sudden storm", HP: -8},
	{Name: "trap", Text: "%s steps into a snare", HP: -12, Hot: 1},
	{Name: "cache", Text: "%s stumbles on a hidden cache", HP: 10},
	{Name: "crowd", Text: "the crowd chants for %s", Reputation: 2, Hot: 3},
	{Name: "sponsor", Text: "a sponsor drops a gift for %s", HP: 6, Reputation: 1},
	{Name: "beast", Text: "%s fends off a wild beast", HP: -6, Reputation: 3},
}

// DefaultResources maps scavenge objects to their rewards.
var DefaultResources = map[string]Resource{
	ObjectMedkit:      {HP: 15},
	ObjectRations:     {HP: 8},
	ObjectWeaponCache: {Reputation: 2, Technique: "armed"},
	ObjectMap:         {Credit: 5, Technique: "scouted"},
}
