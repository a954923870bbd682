// Package claims provides a Redis-backed dedupe.Deduper so several engine
// processes share one set of (match, stage) compute claims.
package claims

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/gauntlet/internal/domain/dedupe"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisDeduper holds claims as keys written with SET NX PX. The expiry is a
// lease: a process that dies mid-compute frees the stage once it lapses.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	held   atomic.Int64
	log    logger.Logger
}

var _ dedupe.Deduper = (*RedisDeduper)(nil)

// NewRedisDeduper wraps an existing client.
func NewRedisDeduper(client *redis.Client, opts ...Option) *RedisDeduper {
	d := &RedisDeduper{
		client: client,
		prefix: "gauntlet:claim:",
		ttl:    30 * time.Second,
		log:    logger.Get().Named("claims"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects to addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Key returns the Redis key guarding a claim.
func (d *RedisDeduper) Key(key string) string {
	return d.prefix + key
}

// SeenAndRecord implements dedupe.Deduper.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.Key(key), time.Now().UTC().UnixMilli(), d.ttl).Result()
	if err != nil {
		metrics.RecordClaim("error")
		d.log.Error(ctx, "claim failed", logger.String("key", key), logger.Error(err))
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		metrics.RecordClaim("held")
		return true, nil
	}
	d.held.Add(1)
	metrics.RecordClaim("won")
	return false, nil
}

// Unrecord implements dedupe.Deduper.
func (d *RedisDeduper) Unrecord(ctx context.Context, key string) error {
	n, err := d.client.Del(ctx, d.Key(key)).Result()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if n > 0 {
		d.held.Add(-1)
	}
	return nil
}

// Size reports the claims this process won and has not released. Claims
// that lapsed in Redis are still counted.
func (d *RedisDeduper) Size() int64 {
	return d.held.Load()
}
