package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
)

// pendingBackoff spaces re-triggers while another caller computes a stage.
const pendingBackoff = 5 * time.Millisecond

// maxTriggers bounds the triggers spent on one match.
const maxTriggers = 1000

// wallet tracks what a bettor spent so the final balance can be checked.
type wallet struct {
	id    string
	spent int64
}

// player plays one match through the API.
type player struct {
	client  *Client
	cfg     *Config
	log     logger.Logger
	bettors []*wallet
	catalog []model.Artifact
	out     Outcome
}

// play drives a fresh match from waiting to ended, betting during intro and
// gifting during artifact selection, then verifies the stored outcome.
func play(ctx context.Context, client *Client, cfg *Config, catalog []model.Artifact, n int) (Outcome, error) {
	p := &player{client: client, cfg: cfg, catalog: catalog, log: logger.Get().Named("simulation")}
	m, err := client.CreateMatch(ctx, fmt.Sprintf("simulation-%d", n))
	if err != nil {
		return Outcome{}, fmt.Errorf("create match: %w", err)
	}
	p.out.MatchID = m.ID

	for i := range cfg.Bettors {
		id := fmt.Sprintf("sim-%s-%d", m.ID, i)
		if _, err := client.OpenAccount(ctx, id, cfg.Balance); err != nil {
			return p.out, fmt.Errorf("open account %s: %w", id, err)
		}
		p.bettors = append(p.bettors, &wallet{id: id})
	}

	status, bet, gifted := m.Status, false, false
	for status != match.StatusEnded {
		if p.out.Triggers > maxTriggers {
			return p.out, fmt.Errorf("match %s stuck at %s: %w", m.ID, status, ErrVerification)
		}
		switch {
		case status == match.StatusIntro && !bet:
			if err := p.placeBets(ctx, m.ID); err != nil {
				return p.out, err
			}
			bet = true
		case status == match.StatusArtifactSelection && !gifted:
			if err := p.giftFinalists(ctx, m.ID); err != nil {
				return p.out, err
			}
			gifted = true
		}

		results, err := p.trigger(ctx, m.ID, status)
		if err != nil {
			return p.out, err
		}
		next := status
		for _, r := range results {
			if next.Before(r.Match.Status) {
				next = r.Match.Status
			}
		}
		if next == status {
			time.Sleep(pendingBackoff)
			s, err := client.Summary(ctx, m.ID)
			if err != nil {
				return p.out, fmt.Errorf("summary: %w", err)
			}
			next = s.Match.Status
		}
		if cfg.Verbose {
			p.log.Info(ctx, "stage reached",
				logger.String("match_id", m.ID),
				logger.String("status", string(next)),
			)
		}
		status = next
	}

	if err := p.verify(ctx, m.ID); err != nil {
		return p.out, err
	}
	return p.out, nil
}

// trigger fires cfg.Triggers concurrent triggers for leaving from. At most
// one of them may report the transition as its own.
func (p *player) trigger(ctx context.Context, id string, from match.Status) ([]service.Result, error) {
	results := make([]service.Result, p.cfg.Triggers)
	errs := make([]error, p.cfg.Triggers)
	var wg sync.WaitGroup
	for i := range p.cfg.Triggers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.client.Advance(ctx, id, from)
		}()
	}
	wg.Wait()

	advanced := 0
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("advance %s from %s: %w", id, from, err)
		}
		p.out.Triggers++
		if results[i].Advanced {
			advanced++
		}
		if results[i].Conflict {
			p.out.Conflicts++
		}
	}
	if advanced > 1 {
		return nil, fmt.Errorf("match %s: %d triggers advanced from %s: %w", id, advanced, from, ErrVerification)
	}
	return results, nil
}

// placeBets has bettor i stake on the i-th entrant of the roster.
func (p *player) placeBets(ctx context.Context, id string) error {
	if p.cfg.Stake == 0 || len(p.bettors) == 0 {
		return nil
	}
	s, err := p.client.Summary(ctx, id)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if len(s.Entrants) == 0 {
		return fmt.Errorf("match %s has no entrants: %w", id, ErrVerification)
	}
	for i, w := range p.bettors {
		entrant := s.Entrants[i%len(s.Entrants)].ID
		if err := p.client.PlaceBet(ctx, id, w.id, entrant, p.cfg.Stake); err != nil {
			return fmt.Errorf("bet by %s: %w", w.id, err)
		}
		w.spent += p.cfg.Stake
		p.out.Bets++
	}
	return nil
}

// giftFinalists has bettor i gift the i-th artifact to a finalist when the
// balance covers it.
func (p *player) giftFinalists(ctx context.Context, id string) error {
	if len(p.catalog) == 0 || len(p.bettors) == 0 {
		return nil
	}
	snaps, err := p.client.Snapshots(ctx, id)
	if err != nil {
		return fmt.Errorf("snapshots: %w", err)
	}
	var finalists []string
	for _, s := range snaps {
		if s.Stage == match.StatusSemifinalBracket && s.Bracket != nil {
			finalists = s.Bracket.Advancing
		}
	}
	if len(finalists) == 0 {
		return fmt.Errorf("match %s has no finalists: %w", id, ErrVerification)
	}
	for i, w := range p.bettors {
		art := p.catalog[i%len(p.catalog)]
		if p.cfg.Balance-w.spent < art.Price {
			continue
		}
		if err := p.client.Gift(ctx, id, w.id, finalists[i%len(finalists)], art.ID); err != nil {
			return fmt.Errorf("gift by %s: %w", w.id, err)
		}
		w.spent += art.Price
		p.out.Gifts++
	}
	return nil
}
