// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config holding every default; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/pkg/metrics"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize bounds the in-memory stage claim cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the persistence backend: memory or sqlite.
	Store      string `koanf:"store"`
	SQLitePath string `koanf:"sqlite_path"`

	// RedisAddr enables shared stage claims across processes when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	ClaimTTLMS    int    `koanf:"claim_ttl_ms"`

	// NATSURL enables snapshot notifications when set.
	NATSURL string `koanf:"nats_url"`

	// ProviderURL points at the remote decision provider for human entrants.
	ProviderURL        string `koanf:"provider_url"`
	ProviderToken      string `koanf:"provider_token"`
	ProviderRefreshURL string `koanf:"provider_refresh_url"`
	ProviderTimeoutMS  int    `koanf:"provider_timeout_ms"`

	// SimulateProvider answers human decisions in-process when no URL is set.
	SimulateProvider bool    `koanf:"simulate_provider"`
	SimLatencyMinMS  int     `koanf:"sim_latency_min_ms"`
	SimLatencyMaxMS  int     `koanf:"sim_latency_max_ms"`
	SimFailureRate   float64 `koanf:"sim_failure_rate"`

	// DecisionConcurrency caps concurrent provider calls per round.
	DecisionConcurrency int `koanf:"decision_concurrency"`

	// Seats is the roster size bots fill up to.
	Seats int `koanf:"seats"`

	// RoundCount is the number of elimination rounds, 1..5.
	RoundCount int `koanf:"round_count"`

	FinalistsByReputation int  `koanf:"finalists_by_reputation"`
	FinalistsByHot        int  `koanf:"finalists_by_hot"`
	ClashRounds           int  `koanf:"clash_rounds"`
	ArtifactWindow        bool `koanf:"artifact_window"`

	// PayoutMultipliers maps a final rank to its bet multiplier.
	PayoutMultipliers map[int]float64 `koanf:"payout_multipliers"`

	// SweepSchedule is the cron expression of the unfinished-job sweeper.
	SweepSchedule  string `koanf:"sweep_schedule"`
	MaxJobAttempts int    `koanf:"max_job_attempts"`

	// Metrics naming and latency buckets, in milliseconds.
	MetricsEnabled   bool      `koanf:"metrics_enabled"`
	MetricsNamespace string    `koanf:"metrics_namespace"`
	MetricsSubsystem string    `koanf:"metrics_subsystem"`
	MetricsBuckets   []float64 `koanf:"metrics_buckets"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		WorkerCount:           runtime.NumCPU(),
		QueueSize:             1024,
		DedupeSize:            10_000,
		Store:                 StoreMemory,
		SQLitePath:            "gauntlet.db",
		ClaimTTLMS:            120_000,
		ProviderTimeoutMS:     2_000,
		SimLatencyMinMS:       20,
		SimLatencyMaxMS:       80,
		DecisionConcurrency:   16,
		Seats:                 8,
		RoundCount:            match.MaxRounds,
		FinalistsByReputation: 2,
		FinalistsByHot:        2,
		ClashRounds:           3,
		ArtifactWindow:        true,
		PayoutMultipliers:     map[int]float64{1: 2.0, 2: 1.0, 3: 0.5},
		SweepSchedule:         "@every 10s",
		MaxJobAttempts:        5,
		MetricsEnabled:        true,
		MetricsNamespace:      "gauntlet",
		MetricsSubsystem:      "engine",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreSQLite:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StoreSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite store needs sqlite_path", ErrInvalidConfig)
	case c.WorkerCount < 1 || c.QueueSize < 1 || c.DedupeSize < 1:
		return fmt.Errorf("%w: worker_count, queue_size and dedupe_size must be positive", ErrInvalidConfig)
	case c.ClaimTTLMS <= 0 || c.ProviderTimeoutMS <= 0:
		return fmt.Errorf("%w: claim_ttl_ms and provider_timeout_ms must be positive", ErrInvalidConfig)
	case c.SimLatencyMinMS < 0 || c.SimLatencyMaxMS < c.SimLatencyMinMS:
		return fmt.Errorf("%w: sim latency range %d..%d", ErrInvalidConfig, c.SimLatencyMinMS, c.SimLatencyMaxMS)
	case c.SimFailureRate < 0 || c.SimFailureRate > 1:
		return fmt.Errorf("%w: sim_failure_rate %v outside [0,1]", ErrInvalidConfig, c.SimFailureRate)
	case c.RoundCount < 1 || c.RoundCount > match.MaxRounds:
		return fmt.Errorf("%w: round_count %d outside 1..%d", ErrInvalidConfig, c.RoundCount, match.MaxRounds)
	case c.Seats < 2:
		return fmt.Errorf("%w: seats %d below 2", ErrInvalidConfig, c.Seats)
	case c.FinalistsByReputation < 0 || c.FinalistsByHot < 0 || c.FinalistsByReputation+c.FinalistsByHot < 2:
		return fmt.Errorf("%w: bracket needs at least two finalists", ErrInvalidConfig)
	case c.ClashRounds < 1:
		return fmt.Errorf("%w: clash_rounds must be positive", ErrInvalidConfig)
	}
	for i, b := range c.MetricsBuckets {
		if b <= 0 || (i > 0 && b <= c.MetricsBuckets[i-1]) {
			return fmt.Errorf("%w: metrics_buckets must be positive and increasing", ErrInvalidConfig)
		}
	}
	for rank, m := range c.PayoutMultipliers {
		if rank < 1 || m < 0 {
			return fmt.Errorf("%w: payout multiplier %d=%v", ErrInvalidConfig, rank, m)
		}
	}
	return nil
}

// Flow returns the lifecycle shape the settings describe.
func (c *Config) Flow() match.Flow {
	return match.Flow{Rounds: c.RoundCount, ArtifactWindow: c.ArtifactWindow}
}

// ClaimTTL is the lease of a stage claim.
func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLMS) * time.Millisecond
}

// ProviderTimeout bounds each decision provider call.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMS) * time.Millisecond
}

// SimLatency returns the simulated provider latency range.
func (c *Config) SimLatency() (time.Duration, time.Duration) {
	return time.Duration(c.SimLatencyMinMS) * time.Millisecond, time.Duration(c.SimLatencyMaxMS) * time.Millisecond
}

// MetricsOptions returns the metrics manager settings.
func (c *Config) MetricsOptions() []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(c.MetricsEnabled),
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithHistogramBuckets(c.MetricsBuckets),
	}
}
