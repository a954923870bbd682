package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
)

// MemoryStore implements Store with mutex-guarded maps. Each method holds
// the lock for its whole body, which makes every conditional write atomic.
type MemoryStore struct {
	mu sync.Mutex

	matches   map[string]match.Match
	entrants  map[string][]model.Entrant
	events    map[string][]model.Event
	snapshots map[string]model.Snapshot
	accounts  map[string]model.Account
	bets      map[string]model.Bet
	betKeys   map[string]string
	gifts     map[string]model.ArtifactGift
	giftKeys  map[string]string
	jobs      map[string]model.Job

	now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		matches:   make(map[string]match.Match),
		entrants:  make(map[string][]model.Entrant),
		events:    make(map[string][]model.Event),
		snapshots: make(map[string]model.Snapshot),
		accounts:  make(map[string]model.Account),
		bets:      make(map[string]model.Bet),
		betKeys:   make(map[string]string),
		gifts:     make(map[string]model.ArtifactGift),
		giftKeys:  make(map[string]string),
		jobs:      make(map[string]model.Job),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

// CreateMatch implements MatchStore.
func (s *MemoryStore) CreateMatch(ctx context.Context, m match.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s: %w", m.ID, ErrDuplicate)
	}
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.matches[m.ID] = m
	return nil
}

// GetMatch implements MatchStore.
func (s *MemoryStore) GetMatch(ctx context.Context, id string) (match.Match, error) {
	if err := ctx.Err(); err != nil {
		return match.Match{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return match.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m, nil
}

// ListMatches implements MatchStore.
func (s *MemoryStore) ListMatches(ctx context.Context) ([]match.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]match.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// TransitionStatus implements MatchStore.
func (s *MemoryStore) TransitionStatus(ctx context.Context, id string, expected []match.Status, next match.Status) (match.Match, error) {
	if err := ctx.Err(); err != nil {
		return match.Match{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return match.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if !slices.Contains(expected, m.Status) {
		return m, fmt.Errorf("match %s is %s, want one of %v: %w", id, m.Status, expected, ErrTransitionConflict)
	}
	applyTransition(&m, next, s.now().UTC())
	s.matches[id] = m
	return m, nil
}

// applyTransition updates the derived match fields for a status change.
func applyTransition(m *match.Match, next match.Status, now time.Time) {
	m.Status = next
	m.UpdatedAt = now
	if n := next.RoundNumber(); n > 0 {
		m.Round = n
	}
	if next == match.StatusWaiting {
		m.Round = 0
		m.Champion = ""
	}
}

// SetChampion implements MatchStore.
func (s *MemoryStore) SetChampion(ctx context.Context, id, entrantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if m.Champion == "" {
		m.Champion = entrantID
		m.UpdatedAt = s.now().UTC()
		s.matches[id] = m
	}
	return nil
}

// PutEntrants implements EntrantStore.
func (s *MemoryStore) PutEntrants(ctx context.Context, matchID string, entrants []model.Entrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.entrants[matchID]
	idx := model.IndexEntrants(current)
	for _, e := range entrants {
		if i, ok := idx[e.ID]; ok {
			current[i] = e.Clone()
			continue
		}
		idx[e.ID] = len(current)
		current = append(current, e.Clone())
	}
	s.entrants[matchID] = current
	return nil
}

// ListEntrants implements EntrantStore.
func (s *MemoryStore) ListEntrants(ctx context.Context, matchID string) ([]model.Entrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneEntrants(s.entrants[matchID]), nil
}

// AppendEvents implements EventStore.
func (s *MemoryStore) AppendEvents(ctx context.Context, matchID string, stage match.Status, events []model.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := match.StageKey(matchID, stage)
	if _, ok := s.events[key]; ok {
		return false, nil
	}
	s.events[key] = append([]model.Event{}, events...)
	return true, nil
}

// ListEvents implements EventStore.
func (s *MemoryStore) ListEvents(ctx context.Context, matchID string, stage match.Status) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events[match.StageKey(matchID, stage)]...), nil
}

// PutSnapshot implements SnapshotStore.
func (s *MemoryStore) PutSnapshot(ctx context.Context, snap model.Snapshot) (model.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := match.StageKey(snap.MatchID, snap.Stage)
	if existing, ok := s.snapshots[key]; ok {
		return cloneSnapshot(existing), false, nil
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now().UTC()
	}
	s.snapshots[key] = cloneSnapshot(snap)
	return cloneSnapshot(snap), true, nil
}

// GetSnapshot implements SnapshotStore.
func (s *MemoryStore) GetSnapshot(ctx context.Context, matchID string, stage match.Status) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[match.StageKey(matchID, stage)]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("snapshot %s/%s: %w", matchID, stage, ErrNotFound)
	}
	return cloneSnapshot(snap), nil
}

// ListSnapshots implements SnapshotStore.
func (s *MemoryStore) ListSnapshots(ctx context.Context, matchID string) ([]model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Snapshot
	for _, st := range match.All {
		if snap, ok := s.snapshots[match.StageKey(matchID, st)]; ok {
			out = append(out, cloneSnapshot(snap))
		}
	}
	return out, nil
}

// EnsureAccount implements LedgerStore.
func (s *MemoryStore) EnsureAccount(ctx context.Context, a model.Account) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	if a.Balance < 0 {
		return model.Account{}, fmt.Errorf("account %s: %w", a.ID, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.accounts[a.ID]; ok {
		return existing, nil
	}
	s.accounts[a.ID] = a
	return a, nil
}

// GetAccount implements LedgerStore.
func (s *MemoryStore) GetAccount(ctx context.Context, id string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// CreditBalance implements LedgerStore.
func (s *MemoryStore) CreditBalance(ctx context.Context, id string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("credit %d: %w", amount, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditLocked(id, amount)
}

func (s *MemoryStore) creditLocked(id string, amount int64) (int64, error) {
	a, ok := s.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	a.Balance += amount
	s.accounts[id] = a
	return a.Balance, nil
}

// DebitBalance implements LedgerStore.
func (s *MemoryStore) DebitBalance(ctx context.Context, id string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d: %w", amount, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debitLocked(id, amount)
}

func (s *MemoryStore) debitLocked(id string, amount int64) (int64, error) {
	a, ok := s.accounts[id]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if a.Balance < amount {
		return a.Balance, fmt.Errorf("account %s has %d, needs %d: %w", id, a.Balance, amount, ErrInsufficientFunds)
	}
	a.Balance -= amount
	s.accounts[id] = a
	return a.Balance, nil
}

func betKey(matchID, bettorID, entrantID string) string {
	return matchID + "|" + bettorID + "|" + entrantID
}

func giftKey(matchID, bettorID string) string {
	return matchID + "|" + bettorID
}

func (s *MemoryStore) inWindowLocked(matchID string, window match.Status) error {
	m, ok := s.matches[matchID]
	if !ok {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if m.Status != window {
		return fmt.Errorf("match %s is %s, not %s: %w", matchID, m.Status, window, ErrWindowClosed)
	}
	return nil
}

// PlaceBet implements LedgerStore.
func (s *MemoryStore) PlaceBet(ctx context.Context, bet model.Bet, window match.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if bet.Amount <= 0 {
		return 0, fmt.Errorf("bet %d: %w", bet.Amount, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inWindowLocked(bet.MatchID, window); err != nil {
		return 0, err
	}
	key := betKey(bet.MatchID, bet.BettorID, bet.EntrantID)
	if _, ok := s.betKeys[key]; ok {
		return 0, fmt.Errorf("bet %s: %w", key, ErrDuplicate)
	}
	if _, ok := s.bets[bet.ID]; ok {
		return 0, fmt.Errorf("bet %s: %w", bet.ID, ErrDuplicate)
	}
	balance, err := s.debitLocked(bet.BettorID, bet.Amount)
	if err != nil {
		return balance, err
	}
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = s.now().UTC()
	}
	bet.Settled, bet.Payout = false, 0
	s.bets[bet.ID] = bet
	s.betKeys[key] = bet.ID
	return balance, nil
}

// ListBets implements LedgerStore.
func (s *MemoryStore) ListBets(ctx context.Context, matchID string) ([]model.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bet
	for _, b := range s.bets {
		if b.MatchID == matchID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SettleBet implements LedgerStore.
func (s *MemoryStore) SettleBet(ctx context.Context, betID string, payout int64, credit bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if payout < 0 {
		return false, fmt.Errorf("payout %d: %w", payout, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betID]
	if !ok {
		return false, fmt.Errorf("bet %s: %w", betID, ErrNotFound)
	}
	if b.Settled {
		return false, nil
	}
	if credit && payout > 0 {
		if _, err := s.creditLocked(b.BettorID, payout); err != nil {
			return false, err
		}
	}
	b.Settled, b.Payout = true, payout
	s.bets[betID] = b
	return true, nil
}

// PlaceGift implements LedgerStore.
func (s *MemoryStore) PlaceGift(ctx context.Context, gift model.ArtifactGift, window match.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if gift.Amount <= 0 {
		return 0, fmt.Errorf("gift %d: %w", gift.Amount, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inWindowLocked(gift.MatchID, window); err != nil {
		return 0, err
	}
	key := giftKey(gift.MatchID, gift.BettorID)
	if _, ok := s.giftKeys[key]; ok {
		return 0, fmt.Errorf("gift %s: %w", key, ErrDuplicate)
	}
	if _, ok := s.gifts[gift.ID]; ok {
		return 0, fmt.Errorf("gift %s: %w", gift.ID, ErrDuplicate)
	}
	balance, err := s.debitLocked(gift.BettorID, gift.Amount)
	if err != nil {
		return balance, err
	}
	if gift.CreatedAt.IsZero() {
		gift.CreatedAt = s.now().UTC()
	}
	gift.Settled, gift.Payout = false, 0
	s.gifts[gift.ID] = gift
	s.giftKeys[key] = gift.ID
	return balance, nil
}

// ListGifts implements LedgerStore.
func (s *MemoryStore) ListGifts(ctx context.Context, matchID string) ([]model.ArtifactGift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ArtifactGift
	for _, g := range s.gifts {
		if g.MatchID == matchID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SettleGift implements LedgerStore.
func (s *MemoryStore) SettleGift(ctx context.Context, giftID string, payout int64, credit bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if payout < 0 {
		return false, fmt.Errorf("payout %d: %w", payout, ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gifts[giftID]
	if !ok {
		return false, fmt.Errorf("gift %s: %w", giftID, ErrNotFound)
	}
	if g.Settled {
		return false, nil
	}
	if credit && payout > 0 {
		if _, err := s.creditLocked(g.BettorID, payout); err != nil {
			return false, err
		}
	}
	g.Settled, g.Payout = true, payout
	s.gifts[giftID] = g
	return true, nil
}

// PutJob implements JobStore.
func (s *MemoryStore) PutJob(ctx context.Context, job model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

// GetJob implements JobStore.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	if err := ctx.Err(); err != nil {
		return model.Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j, nil
}

// ListJobs implements JobStore.
func (s *MemoryStore) ListJobs(ctx context.Context, states ...model.JobState) ([]model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Job
	for _, j := range s.jobs {
		if len(states) == 0 || slices.Contains(states, j.State) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneSnapshot(s model.Snapshot) model.Snapshot {
	s.Entrants = model.CloneEntrants(s.Entrants)
	s.Events = append([]model.Event(nil), s.Events...)
	s.Rankings = append([]model.Ranking(nil), s.Rankings...)
	s.Decisions = append([]model.Decision(nil), s.Decisions...)
	if s.Bracket != nil {
		b := *s.Bracket
		b.Pairings = append([]model.Pairing(nil), b.Pairings...)
		s.Bracket = &b
	}
	if s.Settlement != nil {
		st := *s.Settlement
		st.Payouts = append([]model.Payout(nil), st.Payouts...)
		s.Settlement = &st
	}
	return s
}
