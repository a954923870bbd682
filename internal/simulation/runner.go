package simulation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gauntlet/pkg/logger"
)

// Run plays cfg.Matches matches, cfg.Workers at a time, and verifies each.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	log := logger.Get().Named("simulation")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting match simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("matches", cfg.Matches),
		logger.Int("workers", cfg.Workers),
		logger.Int("bettors", cfg.Bettors),
		logger.Int("triggers", cfg.Triggers),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	catalog, err := client.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifact catalog: %w", err)
	}

	outcomes := make([]Outcome, cfg.Matches)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Matches {
		g.Go(func() error {
			out, err := play(gctx, client, cfg, catalog, i)
			outcomes[i] = out
			if err != nil {
				return fmt.Errorf("match %d (%s): %w", i, out.MatchID, err)
			}
			log.Info(gctx, "match verified",
				logger.String("match_id", out.MatchID),
				logger.String("champion", out.Champion),
				logger.Int("stages", out.Stages),
			)
			return nil
		})
	}
	runErr := g.Wait()

	for _, out := range outcomes {
		if out.MatchID == "" {
			continue
		}
		stats.MatchesPlayed++
		if out.Champion != "" {
			stats.MatchesVerified++
		}
		stats.Stages += out.Stages
		stats.Triggers += out.Triggers
		stats.Conflicts += out.Conflicts
		stats.Bets += out.Bets
		stats.Gifts += out.Gifts
		stats.Payouts += out.Payouts
	}
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if runErr != nil {
		return stats, runErr
	}
	return stats, nil
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var matchesPerSecond float64
	if stats.Duration > 0 {
		matchesPerSecond = float64(stats.MatchesVerified) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("matchesPlayed", stats.MatchesPlayed),
		logger.Int("matchesVerified", stats.MatchesVerified),
		logger.Int("stages", stats.Stages),
		logger.Int("triggers", stats.Triggers),
		logger.Int("conflicts", stats.Conflicts),
		logger.Int("bets", stats.Bets),
		logger.Int("gifts", stats.Gifts),
		logger.Int64("payouts", stats.Payouts),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("matchesPerSecond", matchesPerSecond),
	)
}
