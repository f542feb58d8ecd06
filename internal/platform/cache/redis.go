// Package cache constructs the Redis client backing the permission cache.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client. A failed ping is logged but not fatal: the
// cache is a performance layer, and the resolver works without it.
func New(ctx context.Context, addr string, db int, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil && logger != nil {
		logger.Warn("platform/cache: ping", slog.Any("error", err))
	}

	return client
}
