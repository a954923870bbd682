package ledger

import (
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithCatalog replaces the artifact catalog.
func WithCatalog(artifacts []model.Artifact) Option {
	return func(l *Ledger) {
		if len(artifacts) == 0 {
			return
		}
		l.catalog = make(map[string]model.Artifact, len(artifacts))
		l.order = l.order[:0]
		for _, a := range artifacts {
			l.catalog[a.ID] = a
			l.order = append(l.order, a.ID)
		}
	}
}

// WithMultipliers sets the payout multiplier per finishing rank.
func WithMultipliers(m map[int]float64) Option {
	return func(l *Ledger) {
		if len(m) > 0 {
			l.multipliers = m
		}
	}
}

// WithIDGenerator sets the wager id source.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}
