package simulation

import (
	"context"
	"fmt"

	"github.com/okian/gauntlet/internal/domain/match"
)

// verify checks the stored outcome of an ended match: one snapshot per
// stage in lifecycle order, a champion, a consistent replay, and bettor
// balances that add up to stakes and credited payouts.
func (p *player) verify(ctx context.Context, id string) error {
	s, err := p.client.Summary(ctx, id)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if s.Match.Status != match.StatusEnded || s.Match.Champion == "" {
		return fmt.Errorf("match %s is %s with champion %q: %w", id, s.Match.Status, s.Match.Champion, ErrVerification)
	}

	snaps, err := p.client.Snapshots(ctx, id)
	if err != nil {
		return fmt.Errorf("snapshots: %w", err)
	}
	if len(snaps) == 0 || snaps[0].Stage != match.StatusWaiting {
		return fmt.Errorf("match %s has no roster snapshot: %w", id, ErrVerification)
	}
	for i := 1; i < len(snaps); i++ {
		if !snaps[i-1].Stage.Before(snaps[i].Stage) {
			return fmt.Errorf("match %s: snapshot %s after %s: %w", id, snaps[i].Stage, snaps[i-1].Stage, ErrVerification)
		}
	}
	last := snaps[len(snaps)-1]
	if last.Stage != match.StatusEnding || last.Settlement == nil {
		return fmt.Errorf("match %s ends without settlement: %w", id, ErrVerification)
	}
	p.out.Stages = len(snaps)

	report, err := p.client.Replay(ctx, id)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !report.Consistent {
		return fmt.Errorf("match %s replay diverged: %w", id, ErrVerification)
	}

	credited := make(map[string]int64)
	for _, pay := range last.Settlement.Payouts {
		if pay.Credited {
			credited[pay.BettorID] += pay.Amount
			p.out.Payouts += pay.Amount
		}
	}
	for _, w := range p.bettors {
		acc, err := p.client.Account(ctx, w.id)
		if err != nil {
			return fmt.Errorf("account %s: %w", w.id, err)
		}
		want := p.cfg.Balance - w.spent + credited[w.id]
		if acc.Balance != want {
			return fmt.Errorf("bettor %s holds %d, want %d: %w", w.id, acc.Balance, want, ErrVerification)
		}
	}
	p.out.Champion = s.Match.Champion
	return nil
}
