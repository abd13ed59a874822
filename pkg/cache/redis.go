package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// DialRedis connects and pings, returning an error if the server is unreachable.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// Redis stores each entry as a JSON string that expires after the TTL.
//
// Key schema:
//
//	search:{normalized query}
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

func searchKey(query string) string { return "search:" + NormalizeKey(query) }

func (c *Redis) Get(ctx context.Context, query string) (*Entry, bool) {
	data, err := c.rdb.Get(ctx, searchKey(query)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache: redis get failed", slog.String("query", query), slog.String("error", err.Error()))
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("cache: failed to unmarshal entry", slog.String("query", query), slog.String("error", err.Error()))
		return nil, false
	}
	return &entry, true
}

func (c *Redis) Set(ctx context.Context, query string, entry Entry) error {
	entry.Query = NormalizeKey(query)
	entry.StoredAt = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal %q: %w", entry.Query, err)
	}
	if err := c.rdb.Set(ctx, searchKey(query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %q: %w", entry.Query, err)
	}
	return nil
}

// Close is a no-op: the client is shared with the rate limiter and closed
// by whoever dialed it.
func (c *Redis) Close() error {
	return nil
}

var _ Cache = (*Redis)(nil)
