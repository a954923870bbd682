// Package service orchestrates matches: it guards every phase advance with a
// conditional status write, computes each stage's output exactly once and
// runs resumable batch jobs on a worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/okian/gauntlet/internal/adapters/mq/queue"
	"github.com/okian/gauntlet/internal/adapters/mq/worker"
	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/bracket"
	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/dedupe"
	"github.com/okian/gauntlet/internal/domain/ledger"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/roster"
	"github.com/okian/gauntlet/internal/domain/round"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
)

const (
	defaultQueueSize     = 1024
	defaultSweepSchedule = "@every 10s"
	defaultMaxAttempts   = 5
	defaultRetryDelay    = 50 * time.Millisecond
	defaultClaimTTL      = 2 * time.Minute
	recentEvents         = 20
)

// Notifier receives every snapshot the engine writes.
type Notifier interface {
	PublishSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Result describes what one advance call observed.
type Result struct {
	Match match.Match `json:"match"`
	// Stage is the status whose output Snapshot holds, if any.
	Stage    match.Status    `json:"stage"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
	// Advanced is set for the caller whose conditional write moved the status.
	Advanced bool `json:"advanced"`
	// Resumed is set when a missing output of the current status was computed.
	Resumed bool `json:"resumed"`
	// Conflict is set when another caller won the transition.
	Conflict bool `json:"conflict"`
	// Pending is set when another caller is still computing the output.
	Pending bool `json:"pending"`
}

// Summary is the polling read model of a match.
type Summary struct {
	Match    match.Match     `json:"match"`
	Stage    match.Status    `json:"stage"`
	Entrants []model.Entrant `json:"entrants"`
	Rankings []model.Ranking `json:"rankings"`
	Recent   []model.Event   `json:"recent_events"`
}

// Engine implements the match lifecycle on top of a repository.Store.
type Engine struct {
	store     repository.Store
	flow      match.Flow
	collector *decision.Collector
	rounds    *round.Resolver
	brackets  *bracket.Resolver
	ledger    *ledger.Ledger
	claims    dedupe.Deduper
	notifier  Notifier
	seats     int
	seed      func() (uint64, error)
	newID     func() string
	log       logger.Logger

	// Jobs
	mu            sync.Mutex
	workerCount   int
	queueSize     int
	sweepSchedule string
	maxAttempts   int
	retryDelay    time.Duration
	queue         *queue.InMemoryQueue
	pool          *worker.Pool
	sweeper       *cron.Cron
	active        map[string]struct{}
	started       bool
}

// New constructs an Engine over store with default rules.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		flow:          match.DefaultFlow(),
		collector:     decision.NewCollector(),
		rounds:        round.NewResolver(),
		brackets:      bracket.NewResolver(),
		claims:        dedupe.NewInMemoryDeduper(dedupe.WithTTL(defaultClaimTTL)),
		seats:         roster.DefaultSeats,
		seed:          combat.NewSeed,
		newID:         uuid.NewString,
		log:           logger.Get().Named("engine"),
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		sweepSchedule: defaultSweepSchedule,
		maxAttempts:   defaultMaxAttempts,
		retryDelay:    defaultRetryDelay,
		active:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ledger == nil {
		e.ledger = ledger.New(store, ledger.WithLogger(e.log.Named("ledger")))
	}
	return e
}

// Ledger exposes the wager ledger bound to the engine's store.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Flow returns the lifecycle the engine advances along.
func (e *Engine) Flow() match.Flow { return e.flow }

// CreateMatch seats humans, fills the rest with bots and stores the match in
// waiting. The starting roster is kept as the waiting snapshot so every
// later stage can be recomputed from snapshots alone.
func (e *Engine) CreateMatch(ctx context.Context, theme string, humans []model.Entrant) (match.Match, error) {
	seed, err := e.seed()
	if err != nil {
		return match.Match{}, fmt.Errorf("seed: %w", err)
	}
	m := match.Match{ID: e.newID(), Status: match.StatusWaiting, Theme: theme, Seed: seed}
	entrants, err := roster.Fill(m.ID, seed, humans, e.seats)
	if err != nil {
		return match.Match{}, err
	}
	if err := e.store.CreateMatch(ctx, m); err != nil {
		return match.Match{}, fmt.Errorf("create match: %w", err)
	}
	if err := e.store.PutEntrants(ctx, m.ID, entrants); err != nil {
		return match.Match{}, fmt.Errorf("store roster: %w", err)
	}
	if _, _, err := e.store.PutSnapshot(ctx, model.Snapshot{
		MatchID:  m.ID,
		Stage:    match.StatusWaiting,
		Entrants: entrants,
		Rankings: model.Rank(entrants),
	}); err != nil {
		return match.Match{}, fmt.Errorf("store roster snapshot: %w", err)
	}
	e.log.Info(ctx, "match created",
		logger.String("match_id", m.ID),
		logger.Int("entrants", len(entrants)),
	)
	return e.store.GetMatch(ctx, m.ID)
}

// GetMatch returns the stored match.
func (e *Engine) GetMatch(ctx context.Context, id string) (match.Match, error) {
	return e.store.GetMatch(ctx, id)
}

// ListMatches returns every stored match.
func (e *Engine) ListMatches(ctx context.Context) ([]match.Match, error) {
	return e.store.ListMatches(ctx)
}

// Snapshots returns every stage output of a match in lifecycle order.
func (e *Engine) Snapshots(ctx context.Context, id string) ([]model.Snapshot, error) {
	if _, err := e.store.GetMatch(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListSnapshots(ctx, id)
}

// Advance moves the match one step forward from whatever status it is in.
func (e *Engine) Advance(ctx context.Context, id string) (Result, error) {
	return e.advance(ctx, id, "")
}

// AdvanceFrom moves the match forward only if it is currently in from.
// Repeating the call after another caller moved the match returns that
// caller's result instead of advancing again, which makes duplicate
// triggers for the same step harmless.
func (e *Engine) AdvanceFrom(ctx context.Context, id string, from match.Status) (Result, error) {
	return e.advance(ctx, id, from)
}

func (e *Engine) advance(ctx context.Context, id string, from match.Status) (Result, error) {
	m, err := e.store.GetMatch(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if from != "" && from != m.Status {
		if next, _, ok := e.flow.Next(from); ok && from.Before(m.Status) {
			return e.observed(ctx, m, next)
		}
		return Result{Match: m}, fmt.Errorf("match %s is %s, not %s: %w", id, m.Status, from, ErrInvalidTransition)
	}

	// A status whose output is missing is finished before anything moves on.
	if m.Status.HasOutput() {
		snap, err := e.store.GetSnapshot(ctx, id, m.Status)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			e.log.Warn(ctx, "resuming stage without output",
				logger.String("match_id", id),
				logger.String("stage", string(m.Status)),
			)
			res, err := e.compute(ctx, m, m.Status)
			res.Resumed = true
			return res, err
		case err != nil:
			return Result{}, fmt.Errorf("stage snapshot: %w", err)
		}
		if err := e.repair(ctx, m, snap); err != nil {
			return Result{}, err
		}
	}
	return e.step(ctx, m, m.Status)
}

// step performs the guarded transition out of cur and computes the output
// of the new status when it has one.
func (e *Engine) step(ctx context.Context, m match.Match, cur match.Status) (Result, error) {
	if cur.IsFinal() {
		return Result{Match: m}, fmt.Errorf("match %s: %w", m.ID, ErrMatchEnded)
	}
	next, priors, ok := e.flow.Next(cur)
	if !ok {
		return Result{Match: m}, fmt.Errorf("no transition out of %s: %w", cur, ErrInvalidTransition)
	}
	if next == match.StatusCountdown {
		entrants, err := e.store.ListEntrants(ctx, m.ID)
		if err != nil {
			return Result{}, fmt.Errorf("roster: %w", err)
		}
		if len(entrants) < roster.MinEntrants {
			return Result{Match: m}, fmt.Errorf("match %s has %d entrants: %w", m.ID, len(entrants), ErrDataIntegrity)
		}
	}

	moved, err := e.store.TransitionStatus(ctx, m.ID, priors, next)
	if errors.Is(err, repository.ErrTransitionConflict) {
		metrics.RecordTransitionConflict(string(next))
		e.log.Debug(ctx, "transition lost to another caller",
			logger.String("match_id", m.ID),
			logger.String("to", string(next)),
		)
		current, err := e.store.GetMatch(ctx, m.ID)
		if err != nil {
			return Result{}, err
		}
		return e.observed(ctx, current, next)
	}
	if err != nil {
		return Result{}, fmt.Errorf("transition to %s: %w", next, err)
	}
	metrics.RecordTransition(string(next))
	e.log.Info(ctx, "match advanced",
		logger.String("match_id", m.ID),
		logger.String("from", string(cur)),
		logger.String("to", string(next)),
	)

	if !next.HasOutput() {
		return Result{Match: moved, Stage: next, Advanced: true}, nil
	}
	res, err := e.compute(ctx, moved, next)
	res.Advanced = true
	return res, err
}

// observed reports the output of stage that another caller produced.
func (e *Engine) observed(ctx context.Context, m match.Match, stage match.Status) (Result, error) {
	res := Result{Match: m, Stage: stage, Conflict: true}
	if !stage.HasOutput() {
		return res, nil
	}
	snap, err := e.store.GetSnapshot(ctx, m.ID, stage)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res.Pending = true
		return res, nil
	case err != nil:
		return Result{}, fmt.Errorf("stage snapshot: %w", err)
	}
	res.Snapshot = &snap
	return res, nil
}

// Reset returns a match that has not reached its first round to waiting.
func (e *Engine) Reset(ctx context.Context, id string) (match.Match, error) {
	m, err := e.store.TransitionStatus(ctx, id, match.ResetPriors, match.StatusWaiting)
	if errors.Is(err, repository.ErrTransitionConflict) {
		return m, fmt.Errorf("reset %s from %s: %w", id, m.Status, ErrInvalidTransition)
	}
	if err != nil {
		return match.Match{}, err
	}
	metrics.RecordTransition(string(match.StatusWaiting))
	e.log.Info(ctx, "match reset", logger.String("match_id", id))
	return m, nil
}

// Summary builds the read model from the latest snapshot.
func (e *Engine) Summary(ctx context.Context, id string) (Summary, error) {
	m, err := e.store.GetMatch(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	snaps, err := e.store.ListSnapshots(ctx, id)
	if err != nil {
		return Summary{}, fmt.Errorf("snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return Summary{}, fmt.Errorf("match %s has no roster snapshot: %w", id, ErrDataIntegrity)
	}
	last := snaps[len(snaps)-1]
	s := Summary{Match: m, Stage: last.Stage, Entrants: last.Entrants, Rankings: last.Rankings}
	for i := len(snaps) - 1; i >= 0 && len(s.Recent) < recentEvents; i-- {
		evs := snaps[i].Events
		take := min(recentEvents-len(s.Recent), len(evs))
		s.Recent = append(append([]model.Event(nil), evs[len(evs)-take:]...), s.Recent...)
	}
	return s, nil
}

// Stats returns engine statistics for monitoring.
func (e *Engine) Stats(ctx context.Context) map[string]any {
	e.mu.Lock()
	stats := map[string]any{
		"started":     e.started,
		"workerCount": e.workerCount,
		"queueSize":   e.queueSize,
		"activeJobs":  len(e.active),
	}
	if e.started {
		n := e.queue.Len()
		stats["queueLength"] = n
		metrics.UpdateJobQueueSize(n)
	}
	e.mu.Unlock()

	stats["claims"] = e.claims.Size()
	if matches, err := e.store.ListMatches(ctx); err == nil {
		stats["matches"] = len(matches)
	}
	return stats
}
