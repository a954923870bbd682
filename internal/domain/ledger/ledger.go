// Package ledger accepts bets and artifact gifts and settles them when a
// match ends. Balance changes are delegated to atomic store operations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
)

// Wager kinds recorded on payouts.
const (
	KindBet  = "bet"
	KindGift = "gift"
)

// Store is the subset of persistence the ledger needs.
type Store interface {
	repository.MatchStore
	repository.EntrantStore
	repository.SnapshotStore
	repository.LedgerStore
}

// Ledger is the wager service of the engine.
type Ledger struct {
	store       Store
	catalog     map[string]model.Artifact
	order       []string
	multipliers map[int]float64
	newID       func() string
	log         logger.Logger
}

// New creates a ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		multipliers: DefaultMultipliers,
		newID:       uuid.NewString,
		log:         logger.Get().Named("ledger"),
	}
	WithCatalog(DefaultCatalog)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Catalog returns the artifacts on offer in catalog order.
func (l *Ledger) Catalog() []model.Artifact {
	out := make([]model.Artifact, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.catalog[id])
	}
	return out
}

// OpenAccount creates a bettor account with an opening balance, or returns
// the existing one unchanged.
func (l *Ledger) OpenAccount(ctx context.Context, id string, bot bool, balance int64) (model.Account, error) {
	if balance < 0 {
		return model.Account{}, fmt.Errorf("opening balance %d: %w", balance, ErrInvalidAmount)
	}
	acc, err := l.store.EnsureAccount(ctx, model.Account{ID: id, Bot: bot, Balance: balance})
	if err != nil {
		return model.Account{}, fmt.Errorf("open account %s: %w", id, err)
	}
	return acc, nil
}

// Account returns a bettor's account.
func (l *Ledger) Account(ctx context.Context, id string) (model.Account, error) {
	acc, err := l.store.GetAccount(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, fmt.Errorf("%w: %w", ErrUnknownAccount, err)
	}
	return acc, err
}

// PlaceBet stakes amount on entrantID. It is accepted only during intro; the
// store checks the status in the same step as the debit, so a bet racing the
// intro transition is either placed before it or rejected.
// The returned balance is the bettor's balance after the debit.
func (l *Ledger) PlaceBet(ctx context.Context, matchID, bettorID, entrantID string, amount int64) (model.Bet, int64, error) {
	if amount <= 0 {
		metrics.RecordWagerRejected("invalid_amount")
		return model.Bet{}, 0, fmt.Errorf("bet %d: %w", amount, ErrInvalidAmount)
	}
	if err := l.requireStatus(ctx, matchID, match.StatusIntro); err != nil {
		return model.Bet{}, 0, err
	}
	entrants, err := l.store.ListEntrants(ctx, matchID)
	if err != nil {
		return model.Bet{}, 0, fmt.Errorf("list entrants: %w", err)
	}
	if _, ok := model.IndexEntrants(entrants)[entrantID]; !ok {
		metrics.RecordWagerRejected("unknown_entrant")
		return model.Bet{}, 0, fmt.Errorf("entrant %s: %w", entrantID, ErrUnknownEntrant)
	}

	bet := model.Bet{ID: l.newID(), MatchID: matchID, BettorID: bettorID, EntrantID: entrantID, Amount: amount}
	balance, err := l.store.PlaceBet(ctx, bet, match.StatusIntro)
	if err != nil {
		return model.Bet{}, balance, l.rejected(err)
	}
	metrics.RecordBetPlaced(amount)
	l.log.Info(ctx, "bet placed",
		logger.String("match_id", matchID),
		logger.String("bettor_id", bettorID),
		logger.String("entrant_id", entrantID),
		logger.Int64("amount", amount),
		logger.Int64("balance", balance),
	)
	return bet, balance, nil
}

// GiftArtifact buys artifactID for a declared finalist. It is accepted only
// while the artifact selection window is open.
func (l *Ledger) GiftArtifact(ctx context.Context, matchID, bettorID, entrantID, artifactID string) (model.ArtifactGift, int64, error) {
	art, ok := l.catalog[artifactID]
	if !ok {
		metrics.RecordWagerRejected("unknown_artifact")
		return model.ArtifactGift{}, 0, fmt.Errorf("artifact %s: %w", artifactID, ErrUnknownArtifact)
	}
	if err := l.requireStatus(ctx, matchID, match.StatusArtifactSelection); err != nil {
		return model.ArtifactGift{}, 0, err
	}
	finalists, err := l.Finalists(ctx, matchID)
	if err != nil {
		return model.ArtifactGift{}, 0, err
	}
	if !slices.Contains(finalists, entrantID) {
		metrics.RecordWagerRejected("not_finalist")
		return model.ArtifactGift{}, 0, fmt.Errorf("entrant %s: %w", entrantID, ErrNotFinalist)
	}

	gift := model.ArtifactGift{
		ID:         l.newID(),
		MatchID:    matchID,
		BettorID:   bettorID,
		EntrantID:  entrantID,
		ArtifactID: art.ID,
		Amount:     art.Price,
	}
	balance, err := l.store.PlaceGift(ctx, gift, match.StatusArtifactSelection)
	if err != nil {
		return model.ArtifactGift{}, balance, l.rejected(err)
	}
	metrics.RecordGiftPlaced(art.Price)
	l.log.Info(ctx, "artifact gifted",
		logger.String("match_id", matchID),
		logger.String("bettor_id", bettorID),
		logger.String("entrant_id", entrantID),
		logger.String("artifact_id", art.ID),
		logger.Int64("balance", balance),
	)
	return gift, balance, nil
}

// Finalists returns the entrants declared by the semifinal bracket.
func (l *Ledger) Finalists(ctx context.Context, matchID string) ([]string, error) {
	snap, err := l.store.GetSnapshot(ctx, matchID, match.StatusSemifinalBracket)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("semifinal snapshot: %w", err)
	}
	if snap.Bracket == nil {
		return nil, nil
	}
	return snap.Bracket.Advancing, nil
}

// Effects merges every gift's artifact effects per receiving entrant. The
// sums are unbounded; fighters clamp them when they enter a clash.
func (l *Ledger) Effects(ctx context.Context, matchID string) (map[string]model.EffectVector, error) {
	gifts, err := l.store.ListGifts(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	out := make(map[string]model.EffectVector)
	for _, g := range gifts {
		art, ok := l.catalog[g.ArtifactID]
		if !ok {
			l.log.Warn(ctx, "gift references unknown artifact",
				logger.String("gift_id", g.ID), logger.String("artifact_id", g.ArtifactID))
			continue
		}
		out[g.EntrantID] = out[g.EntrantID].Combine(art.Effects)
	}
	return out, nil
}

// Settle pays out every unsettled wager of a match. Bets on the top three by
// final reputation pay floor(amount * multiplier); gifts on the champion pay
// floor(price * artifact multiplier). Only human bettors are credited. Each
// wager is flipped to settled exactly once, so calling Settle again credits
// nothing and reports the same payouts.
func (l *Ledger) Settle(ctx context.Context, matchID string, entrants []model.Entrant, champion string) (model.Settlement, error) {
	rankings := model.Rank(entrants)
	var st model.Settlement
	rankOf := make(map[string]int, 3)
	for i := 0; i < len(rankings) && i < 3; i++ {
		st.Standings = append(st.Standings, rankings[i].EntrantID)
		rankOf[rankings[i].EntrantID] = rankings[i].Rank
	}

	bets, err := l.store.ListBets(ctx, matchID)
	if err != nil {
		return model.Settlement{}, fmt.Errorf("list bets: %w", err)
	}
	humans := make(map[string]bool)
	for _, b := range bets {
		rank := rankOf[b.EntrantID]
		amount := int64(0)
		if m, ok := l.multipliers[rank]; ok && rank > 0 {
			amount = int64(math.Floor(float64(b.Amount) * m))
		}
		credit, err := l.isHuman(ctx, humans, b.BettorID)
		if err != nil {
			return model.Settlement{}, err
		}
		fresh, err := l.store.SettleBet(ctx, b.ID, amount, credit)
		if err != nil {
			return model.Settlement{}, fmt.Errorf("settle bet %s: %w", b.ID, err)
		}
		if !fresh && b.Settled {
			amount = b.Payout
		}
		l.paid(fresh, credit, amount)
		st.Payouts = append(st.Payouts, model.Payout{
			WagerID: b.ID, BettorID: b.BettorID, Kind: KindBet, Rank: rank,
			Amount: amount, Credited: credit && amount > 0,
		})
	}

	gifts, err := l.store.ListGifts(ctx, matchID)
	if err != nil {
		return model.Settlement{}, fmt.Errorf("list gifts: %w", err)
	}
	for _, g := range gifts {
		amount := int64(0)
		if art, ok := l.catalog[g.ArtifactID]; ok && champion != "" && g.EntrantID == champion {
			amount = int64(math.Floor(float64(g.Amount) * art.PayoutMultiplier))
		}
		credit, err := l.isHuman(ctx, humans, g.BettorID)
		if err != nil {
			return model.Settlement{}, err
		}
		fresh, err := l.store.SettleGift(ctx, g.ID, amount, credit)
		if err != nil {
			return model.Settlement{}, fmt.Errorf("settle gift %s: %w", g.ID, err)
		}
		if !fresh && g.Settled {
			amount = g.Payout
		}
		l.paid(fresh, credit, amount)
		st.Payouts = append(st.Payouts, model.Payout{
			WagerID: g.ID, BettorID: g.BettorID, Kind: KindGift, Rank: rankOf[g.EntrantID],
			Amount: amount, Credited: credit && amount > 0,
		})
	}

	l.log.Info(ctx, "wagers settled",
		logger.String("match_id", matchID),
		logger.Int("bets", len(bets)),
		logger.Int("gifts", len(gifts)),
		logger.Any("standings", st.Standings),
	)
	return st, nil
}

func (l *Ledger) paid(fresh, credit bool, amount int64) {
	if fresh && credit && amount > 0 {
		metrics.RecordPayout(amount)
	}
}

// isHuman reports whether the bettor's account is credited on settlement.
func (l *Ledger) isHuman(ctx context.Context, cache map[string]bool, bettorID string) (bool, error) {
	if human, ok := cache[bettorID]; ok {
		return human, nil
	}
	acc, err := l.store.GetAccount(ctx, bettorID)
	if err != nil {
		return false, fmt.Errorf("bettor %s: %w", bettorID, err)
	}
	cache[bettorID] = !acc.Bot
	return !acc.Bot, nil
}

// requireStatus rejects early, before the store repeats the check atomically.
func (l *Ledger) requireStatus(ctx context.Context, matchID string, want match.Status) error {
	m, err := l.store.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("get match: %w", err)
	}
	if m.Status != want {
		metrics.RecordWagerRejected("window_closed")
		return fmt.Errorf("match %s is %s, wagers need %s: %w", matchID, m.Status, want, ErrWindowClosed)
	}
	return nil
}

// rejected maps store failures onto the ledger's caller-facing errors.
func (l *Ledger) rejected(err error) error {
	switch {
	case errors.Is(err, repository.ErrWindowClosed):
		metrics.RecordWagerRejected("window_closed")
		return fmt.Errorf("%w: %w", ErrWindowClosed, err)
	case errors.Is(err, repository.ErrInsufficientFunds):
		metrics.RecordWagerRejected("insufficient_funds")
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case errors.Is(err, repository.ErrDuplicate):
		metrics.RecordWagerRejected("duplicate")
		return fmt.Errorf("%w: %w", ErrDuplicateAction, err)
	case errors.Is(err, repository.ErrNotFound):
		metrics.RecordWagerRejected("unknown_account")
		return fmt.Errorf("%w: %w", ErrUnknownAccount, err)
	case errors.Is(err, repository.ErrInvalidAmount):
		metrics.RecordWagerRejected("invalid_amount")
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	default:
		return fmt.Errorf("place wager: %w", err)
	}
}
