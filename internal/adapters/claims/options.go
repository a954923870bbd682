package claims

import (
	"time"

	"github.com/okian/gauntlet/pkg/logger"
)

// Option applies a configuration option to the RedisDeduper.
type Option func(*RedisDeduper)

// WithTTL sets the claim lease.
func WithTTL(ttl time.Duration) Option {
	return func(d *RedisDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(d *RedisDeduper) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(d *RedisDeduper) {
		if log != nil {
			d.log = log
		}
	}
}
