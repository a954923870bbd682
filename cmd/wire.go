package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/okian/gauntlet/internal/adapters/claims"
	"github.com/okian/gauntlet/internal/adapters/notify"
	"github.com/okian/gauntlet/internal/adapters/provider"
	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/adapters/repository/sqlite"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/config"
	"github.com/okian/gauntlet/internal/domain/bracket"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/dedupe"
	"github.com/okian/gauntlet/internal/domain/ledger"
	"github.com/okian/gauntlet/pkg/logger"
)

// components is the wired engine plus the resources it holds open.
type components struct {
	engine  *service.Engine
	closers []func() error
}

// Close releases resources in reverse acquisition order.
func (c *components) Close() error {
	var errs []error
	for _, fn := range slices.Backward(c.closers) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// wire builds the engine and its adapters from cfg.
func wire(ctx context.Context, cfg *config.Config, log logger.Logger) (*components, error) {
	c := &components{}
	fail := func(err error) (*components, error) {
		_ = c.Close()
		return nil, err
	}

	var store repository.Store
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("open store: %w", err))
		}
		c.closers = append(c.closers, db.Close)
		store = db
	default:
		store = repository.NewMemoryStore()
	}
	log.Info(ctx, "store ready", logger.String("store", cfg.Store))

	var deduper dedupe.Deduper
	if cfg.RedisAddr != "" {
		rdb, err := claims.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fail(fmt.Errorf("connect claims: %w", err))
		}
		c.closers = append(c.closers, rdb.Close)
		deduper = claims.NewRedisDeduper(rdb,
			claims.WithTTL(cfg.ClaimTTL()),
			claims.WithLogger(log.Named("claims")),
		)
		log.Info(ctx, "stage claims on redis", logger.String("addr", cfg.RedisAddr))
	} else {
		deduper = dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(cfg.DedupeSize),
			dedupe.WithTTL(cfg.ClaimTTL()),
		)
	}

	opts := []service.Option{
		service.WithLogger(log.Named("engine")),
		service.WithFlow(cfg.Flow()),
		service.WithSeats(cfg.Seats),
		service.WithDeduper(deduper),
		service.WithCollector(collector(cfg, log)),
		service.WithBracketResolver(bracket.NewResolver(
			bracket.WithFinalists(cfg.FinalistsByReputation, cfg.FinalistsByHot),
			bracket.WithClashRounds(cfg.ClashRounds),
		)),
		service.WithLedger(ledger.New(store,
			ledger.WithMultipliers(cfg.PayoutMultipliers),
			ledger.WithLogger(log.Named("ledger")),
		)),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithSweepSchedule(cfg.SweepSchedule),
		service.WithMaxJobAttempts(cfg.MaxJobAttempts),
	}

	if cfg.NATSURL != "" {
		conn, err := notify.Connect(cfg.NATSURL)
		if err != nil {
			return fail(fmt.Errorf("connect notifier: %w", err))
		}
		pub := notify.NewPublisher(conn)
		c.closers = append(c.closers, pub.Close)
		opts = append(opts, service.WithNotifier(pub))
		log.Info(ctx, "publishing snapshots to nats", logger.String("url", cfg.NATSURL))
	}

	c.engine = service.New(store, opts...)
	return c, nil
}

// collector picks the decision provider: simulated, remote, or none. Without
// a provider bots still follow the bot policy and humans get the random
// fallback action.
func collector(cfg *config.Config, log logger.Logger) *decision.Collector {
	opts := []decision.Option{
		decision.WithTimeout(cfg.ProviderTimeout()),
		decision.WithConcurrency(cfg.DecisionConcurrency),
		decision.WithLogger(log.Named("decision")),
	}
	switch {
	case cfg.SimulateProvider:
		lo, hi := cfg.SimLatency()
		opts = append(opts, decision.WithProvider(provider.NewSimulatedProvider(
			provider.WithLatencyRange(lo, hi),
			provider.WithFailureRate(cfg.SimFailureRate),
		)))
	case cfg.ProviderURL != "":
		opts = append(opts, decision.WithProvider(provider.NewHTTPProvider(cfg.ProviderURL,
			provider.WithHTTPClient(&http.Client{Timeout: cfg.ProviderTimeout()}),
			provider.WithToken(cfg.ProviderToken),
			provider.WithRefreshURL(cfg.ProviderRefreshURL),
			provider.WithHTTPLogger(log.Named("provider")),
		)))
	}
	return decision.NewCollector(opts...)
}
