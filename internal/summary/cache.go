package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "summary:ver"

// Cache stores computed summaries in Redis behind a version counter. Writers
// bump the counter instead of hunting down every cached window, so a single
// INCR invalidates all cached summaries at once. Bumping is tied to document
// writes, not a TTL, so readers never see a pre-write figure after a writer
// returned.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewCache builds a Cache instance.
func NewCache(client *redis.Client, logger *slog.Logger, ttl time.Duration) *Cache {
	return &Cache{client: client, logger: logger, ttl: ttl}
}

// Bump invalidates every cached summary by advancing the version counter.
func (c *Cache) Bump(ctx context.Context) error {
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("summary: bump cache version: %w", err)
	}
	return nil
}

// Get returns the cached summary for the window, if the current version has
// one. Redis failures degrade to a miss.
func (c *Cache) Get(ctx context.Context, from, to time.Time) (*PeriodSummary, bool) {
	key, err := c.key(ctx, from, to)
	if err != nil {
		c.logger.Warn("summary cache key", slog.Any("error", err))
		return nil, false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("summary cache read", slog.Any("error", err))
		}
		return nil, false
	}

	var s PeriodSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		c.logger.Warn("summary cache decode", slog.Any("error", err))
		return nil, false
	}
	return &s, true
}

// Set stores the summary under the current version. Failures are logged and
// swallowed: the cache is an accelerator, never a source of truth.
func (c *Cache) Set(ctx context.Context, s PeriodSummary) {
	key, err := c.key(ctx, s.From, s.To)
	if err != nil {
		c.logger.Warn("summary cache key", slog.Any("error", err))
		return
	}

	raw, err := json.Marshal(s)
	if err != nil {
		c.logger.Warn("summary cache encode", slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("summary cache write", slog.Any("error", err))
	}
}

func (c *Cache) key(ctx context.Context, from, to time.Time) (string, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("summary:v%d:%s:%s", ver, from.Format("2006-01-02"), to.Format("2006-01-02")), nil
}
