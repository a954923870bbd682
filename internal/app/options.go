package service

import (
	"time"

	"github.com/okian/gauntlet/internal/domain/bracket"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/dedupe"
	"github.com/okian/gauntlet/internal/domain/ledger"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/round"
	"github.com/okian/gauntlet/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithFlow sets the round count and artifact window of new advances.
func WithFlow(flow match.Flow) Option {
	return func(e *Engine) {
		e.flow = flow
	}
}

// WithCollector sets the decision collector.
func WithCollector(c *decision.Collector) Option {
	return func(e *Engine) {
		if c != nil {
			e.collector = c
		}
	}
}

// WithRoundResolver sets the elimination round rules.
func WithRoundResolver(r *round.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.rounds = r
		}
	}
}

// WithBracketResolver sets the bracket rules.
func WithBracketResolver(r *bracket.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.brackets = r
		}
	}
}

// WithLedger sets the wager ledger. It must share the engine's store.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) {
		if l != nil {
			e.ledger = l
		}
	}
}

// WithDeduper sets the stage claim store, e.g. a Redis-backed one when
// several engine processes share a database.
func WithDeduper(d dedupe.Deduper) Option {
	return func(e *Engine) {
		if d != nil {
			e.claims = d
		}
	}
}

// WithNotifier publishes every newly written snapshot.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithSeats sets the roster size bots are filled up to.
func WithSeats(seats int) Option {
	return func(e *Engine) {
		if seats > 0 {
			e.seats = seats
		}
	}
}

// WithSeedSource sets how new matches draw their RNG seed.
func WithSeedSource(fn func() (uint64, error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.seed = fn
		}
	}
}

// WithIDGenerator sets how match and job ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(count int) Option {
	return func(e *Engine) {
		if count > 0 {
			e.workerCount = count
		}
	}
}

// WithQueueSize sets the job queue capacity.
func WithQueueSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.queueSize = size
		}
	}
}

// WithSweepSchedule sets the cron expression of the unfinished-job sweeper.
// An empty expression disables the sweeper.
func WithSweepSchedule(schedule string) Option {
	return func(e *Engine) {
		e.sweepSchedule = schedule
	}
}

// WithMaxJobAttempts bounds how often a failing job is retried.
func WithMaxJobAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause before a job re-reads a stage another
// caller is still computing.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
