package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureAccount implements repository.LedgerStore.
func (s *Store) EnsureAccount(ctx context.Context, a model.Account) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	if a.Balance < 0 {
		return model.Account{}, fmt.Errorf("account %s: %w", a.ID, repository.ErrInvalidAmount)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (id, bot, balance) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		a.ID, boolInt(a.Bot), a.Balance,
	); err != nil {
		return model.Account{}, fmt.Errorf("ensure account: %w", err)
	}
	return s.GetAccount(ctx, a.ID)
}

// GetAccount implements repository.LedgerStore.
func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	var (
		a   = model.Account{ID: id}
		bot int
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT bot, balance FROM accounts WHERE id = ?`, id).Scan(&bot, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.Bot = bot == 1
	return a, nil
}

// CreditBalance implements repository.LedgerStore.
func (s *Store) CreditBalance(ctx context.Context, id string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("credit %d: %w", amount, repository.ErrInvalidAmount)
	}
	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = credit(ctx, tx, id, amount)
		return err
	})
	return balance, err
}

func credit(ctx context.Context, q execer, id string, amount int64) (int64, error) {
	res, err := q.ExecContext(ctx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, amount, id)
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	} else if n == 0 {
		return 0, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	return balanceOf(ctx, q, id)
}

func balanceOf(ctx context.Context, q execer, id string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// debit subtracts amount only when the balance covers it.
func debit(ctx context.Context, q execer, id string, amount int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ?`, amount, id, amount)
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	balance, err := balanceOf(ctx, q, id)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return balance, fmt.Errorf("account %s has %d, needs %d: %w", id, balance, amount, repository.ErrInsufficientFunds)
	}
	return balance, nil
}

// DebitBalance implements repository.LedgerStore.
func (s *Store) DebitBalance(ctx context.Context, id string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d: %w", amount, repository.ErrInvalidAmount)
	}
	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = debit(ctx, tx, id, amount)
		return err
	})
	return balance, err
}

// PlaceBet implements repository.LedgerStore.
func (s *Store) PlaceBet(ctx context.Context, bet model.Bet, window match.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if bet.Amount <= 0 {
		return 0, fmt.Errorf("bet %d: %w", bet.Amount, repository.ErrInvalidAmount)
	}
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = s.now().UTC()
	}
	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := inWindow(ctx, tx, bet.MatchID, window); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO bets (id, match_id, bettor_id, entrant_id, amount, settled, payout, created_at)
VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
			bet.ID, bet.MatchID, bet.BettorID, bet.EntrantID, bet.Amount, millis(bet.CreatedAt),
		)
		if isConstraintError(err) {
			return fmt.Errorf("bet %s|%s|%s: %w", bet.MatchID, bet.BettorID, bet.EntrantID, repository.ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		balance, err = debit(ctx, tx, bet.BettorID, bet.Amount)
		return err
	})
	return balance, err
}

// inWindow reads the match status inside the wager's transaction.
func inWindow(ctx context.Context, q execer, matchID string, window match.Status) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM matches WHERE id = ?`, matchID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("match %s: %w", matchID, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read match status: %w", err)
	}
	if match.Status(status) != window {
		return fmt.Errorf("match %s is %s, not %s: %w", matchID, status, window, repository.ErrWindowClosed)
	}
	return nil
}

const betColumns = `id, match_id, bettor_id, entrant_id, amount, settled, payout, created_at`

// ListBets implements repository.LedgerStore.
func (s *Store) ListBets(ctx context.Context, matchID string) ([]model.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE match_id = ? ORDER BY created_at, id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()
	var out []model.Bet
	for rows.Next() {
		var (
			b       model.Bet
			settled int
			created int64
		)
		if err := rows.Scan(&b.ID, &b.MatchID, &b.BettorID, &b.EntrantID, &b.Amount, &settled, &b.Payout, &created); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		b.Settled = settled == 1
		b.CreatedAt = fromMillis(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SettleBet implements repository.LedgerStore.
func (s *Store) SettleBet(ctx context.Context, betID string, payout int64, credit bool) (bool, error) {
	return s.settle(ctx, "bets", betID, payout, credit)
}

// settle flips settled from 0 to 1 and credits the bettor in one transaction.
func (s *Store) settle(ctx context.Context, table, id string, payout int64, doCredit bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if payout < 0 {
		return false, fmt.Errorf("payout %d: %w", payout, repository.ErrInvalidAmount)
	}
	kind := strings.TrimSuffix(table, "s")
	settled := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var bettor string
		err := tx.QueryRowContext(ctx, `SELECT bettor_id FROM `+table+` WHERE id = ?`, id).Scan(&bettor)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", kind, err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET settled = 1, payout = ? WHERE id = ? AND settled = 0`, payout, id)
		if err != nil {
			return fmt.Errorf("settle %s: %w", kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("settle %s: %w", kind, err)
		}
		if n == 0 {
			return nil
		}
		if doCredit && payout > 0 {
			if _, err := credit(ctx, tx, bettor, payout); err != nil {
				return err
			}
		}
		settled = true
		return nil
	})
	return settled, err
}

// PlaceGift implements repository.LedgerStore.
func (s *Store) PlaceGift(ctx context.Context, gift model.ArtifactGift, window match.Status) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if gift.Amount <= 0 {
		return 0, fmt.Errorf("gift %d: %w", gift.Amount, repository.ErrInvalidAmount)
	}
	if gift.CreatedAt.IsZero() {
		gift.CreatedAt = s.now().UTC()
	}
	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := inWindow(ctx, tx, gift.MatchID, window); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO gifts (id, match_id, bettor_id, entrant_id, artifact_id, amount, settled, payout, created_at)
VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)`,
			gift.ID, gift.MatchID, gift.BettorID, gift.EntrantID, gift.ArtifactID, gift.Amount, millis(gift.CreatedAt),
		)
		if isConstraintError(err) {
			return fmt.Errorf("gift %s|%s: %w", gift.MatchID, gift.BettorID, repository.ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert gift: %w", err)
		}
		balance, err = debit(ctx, tx, gift.BettorID, gift.Amount)
		return err
	})
	return balance, err
}

// ListGifts implements repository.LedgerStore.
func (s *Store) ListGifts(ctx context.Context, matchID string) ([]model.ArtifactGift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, match_id, bettor_id, entrant_id, artifact_id, amount, settled, payout, created_at
FROM gifts WHERE match_id = ? ORDER BY created_at, id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	defer rows.Close()
	var out []model.ArtifactGift
	for rows.Next() {
		var (
			g       model.ArtifactGift
			settled int
			created int64
		)
		if err := rows.Scan(&g.ID, &g.MatchID, &g.BettorID, &g.EntrantID, &g.ArtifactID, &g.Amount, &settled, &g.Payout, &created); err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		g.Settled = settled == 1
		g.CreatedAt = fromMillis(created)
		out = append(out, g)
	}
	return out, rows.Err()
}

// SettleGift implements repository.LedgerStore.
func (s *Store) SettleGift(ctx context.Context, giftID string, payout int64, credit bool) (bool, error) {
	return s.settle(ctx, "gifts", giftID, payout, credit)
}
