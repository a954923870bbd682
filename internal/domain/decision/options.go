package decision

import (
	"time"

	"github.com/okian/gauntlet/pkg/logger"
)

// Option applies a configuration option to the Collector.
type Option func(*Collector)

// WithProvider sets the remote decision provider for human entrants.
func WithProvider(p Provider) Option {
	return func(c *Collector) {
		c.provider = p
	}
}

// WithBotPolicy replaces the bot heuristic.
func WithBotPolicy(p *BotPolicy) Option {
	return func(c *Collector) {
		if p != nil {
			c.bots = p
		}
	}
}

// WithTimeout bounds every provider call and credential refresh.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConcurrency caps in-flight provider calls per collection.
func WithConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets a custom logger for the collector.
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}
