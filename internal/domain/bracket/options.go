package bracket

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithFinalists sets how many seeds come from reputation and how many from hot.
func WithFinalists(byReputation, byHot int) Option {
	return func(r *Resolver) {
		if byReputation >= 1 && byHot >= 0 {
			r.byReputation = byReputation
			r.byHot = byHot
		}
	}
}

// WithClashRounds sets the fixed number of exchanges per pairing.
func WithClashRounds(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.clashRounds = n
		}
	}
}

// WithAdvanceBonus sets the reputation granted for winning a pairing.
func WithAdvanceBonus(rep int) Option {
	return func(r *Resolver) {
		if rep >= 0 {
			r.advanceRep = rep
		}
	}
}

// WithChampionBonus sets the reputation granted to the champion.
func WithChampionBonus(rep int) Option {
	return func(r *Resolver) {
		if rep >= 0 {
			r.championRep = rep
		}
	}
}
