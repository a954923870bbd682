// Package repository defines the engine's storage contract and an in-memory
// implementation. Every mutation that other callers may race on is a single
// atomic conditional operation of the store.
package repository

import (
	"context"

	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
)

// MatchStore owns the canonical match status.
type MatchStore interface {
	// CreateMatch inserts a new match. Returns ErrDuplicate if the id exists.
	CreateMatch(ctx context.Context, m match.Match) error
	// GetMatch returns ErrNotFound for unknown ids.
	GetMatch(ctx context.Context, id string) (match.Match, error)
	// ListMatches returns every match ordered by creation time.
	ListMatches(ctx context.Context) ([]match.Match, error)
	// TransitionStatus moves the match to next only if its current status is
	// one of expected. Returns ErrTransitionConflict otherwise.
	TransitionStatus(ctx context.Context, id string, expected []match.Status, next match.Status) (match.Match, error)
	// SetChampion records the champion once; later calls keep the first value.
	SetChampion(ctx context.Context, id, entrantID string) error
}

// EntrantStore holds the roster of a match.
type EntrantStore interface {
	// PutEntrants upserts entrants scoped to a match.
	PutEntrants(ctx context.Context, matchID string, entrants []model.Entrant) error
	// ListEntrants returns the roster in insertion order.
	ListEntrants(ctx context.Context, matchID string) ([]model.Entrant, error)
}

// EventStore is the append-only event log.
type EventStore interface {
	// AppendEvents writes a stage's batch once. It reports false when the
	// batch already exists and leaves it untouched.
	AppendEvents(ctx context.Context, matchID string, stage match.Status, events []model.Event) (bool, error)
	// ListEvents returns a stage's batch in sequence order.
	ListEvents(ctx context.Context, matchID string, stage match.Status) ([]model.Event, error)
}

// SnapshotStore keeps the write-once stage snapshots.
type SnapshotStore interface {
	// PutSnapshot inserts the snapshot if none exists for (match, stage) and
	// returns whichever snapshot is stored; created is false for the loser.
	PutSnapshot(ctx context.Context, snap model.Snapshot) (stored model.Snapshot, created bool, err error)
	// GetSnapshot returns ErrNotFound when the stage has no snapshot yet.
	GetSnapshot(ctx context.Context, matchID string, stage match.Status) (model.Snapshot, error)
	// ListSnapshots returns every snapshot of a match in lifecycle order.
	ListSnapshots(ctx context.Context, matchID string) ([]model.Snapshot, error)
}

// LedgerStore owns balances and wagers.
type LedgerStore interface {
	// EnsureAccount creates the account if absent and returns the stored one.
	EnsureAccount(ctx context.Context, a model.Account) (model.Account, error)
	GetAccount(ctx context.Context, id string) (model.Account, error)
	// CreditBalance adds amount and returns the new balance.
	CreditBalance(ctx context.Context, id string, amount int64) (int64, error)
	// DebitBalance subtracts amount only if the balance covers it.
	// Returns ErrInsufficientFunds otherwise.
	DebitBalance(ctx context.Context, id string, amount int64) (int64, error)

	// PlaceBet debits the bettor and records the bet in one atomic step, only
	// while the match status is window. Returns ErrWindowClosed otherwise,
	// ErrDuplicate for a second bet on the same (match, bettor, entrant) and
	// ErrInsufficientFunds when the balance does not cover the amount.
	PlaceBet(ctx context.Context, bet model.Bet, window match.Status) (balance int64, err error)
	ListBets(ctx context.Context, matchID string) ([]model.Bet, error)
	// SettleBet flips the settled flag from false to true, records the payout
	// and, when credit is set, credits the bettor in the same step. It
	// reports false when the bet was already settled.
	SettleBet(ctx context.Context, betID string, payout int64, credit bool) (bool, error)

	// PlaceGift is PlaceBet for artifact gifts, unique per (match, bettor).
	PlaceGift(ctx context.Context, gift model.ArtifactGift, window match.Status) (balance int64, err error)
	ListGifts(ctx context.Context, matchID string) ([]model.ArtifactGift, error)
	SettleGift(ctx context.Context, giftID string, payout int64, credit bool) (bool, error)
}

// JobStore persists resumable batch jobs.
type JobStore interface {
	PutJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, id string) (model.Job, error)
	// ListJobs returns jobs in any of the given states, oldest first.
	ListJobs(ctx context.Context, states ...model.JobState) ([]model.Job, error)
}

// Store is everything the engine persists.
type Store interface {
	MatchStore
	EntrantStore
	EventStore
	SnapshotStore
	LedgerStore
	JobStore
}
