package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
)

const (
	catalogVersionKey = "authz:ver:catalog"
	userVersionPrefix = "authz:ver:user:"
	entryKeyPrefix    = "authz:perm:"
	// InvalidateChannel carries invalidation signals published by the
	// permission store owner.
	InvalidateChannel = "authz.invalidate"
)

// CacheEntry is the resolved state stored per (user, context) key.
type CacheEntry struct {
	Permissions PermissionSet `json:"permissions"`
	User        UserInfo      `json:"user"`
	ResolvedAt  time.Time     `json:"resolved_at"`
}

// Cache is the invalidation-aware permission cache. Redis holds the shared
// entries behind monotonic version stamps; a ristretto layer keeps decoded
// entries hot in-process. The cache is a pure optimization: every method is
// safe to call with a broken or absent backend, and failures degrade to
// misses rather than errors.
type Cache struct {
	client *redis.Client
	local  *ristretto.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache constructs a Cache with the given TTL.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("authz: ristretto: %w", err)
	}
	return &Cache{client: client, local: local, ttl: ttl, logger: logger}, nil
}

// TTL exposes the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached entry for (userID, scope) when present and current.
// Any backend failure reports a miss.
func (c *Cache) Get(ctx context.Context, userID int64, scope Context) (CacheEntry, bool) {
	if c == nil || c.client == nil {
		return CacheEntry{}, false
	}
	key, err := c.entryKey(ctx, userID, scope)
	if err != nil {
		c.warn("cache key", err)
		return CacheEntry{}, false
	}
	// Entries under a superseded version are unreachable by construction,
	// so the local layer never needs explicit invalidation.
	if cached, ok := c.local.Get(key); ok {
		if entry, ok := cached.(CacheEntry); ok {
			return entry, true
		}
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.warn("cache get", err)
		}
		return CacheEntry{}, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		c.warn("cache decode", err)
		return CacheEntry{}, false
	}
	c.admitLocal(key, entry, int64(len(payload)))
	return entry, true
}

// admitLocal mirrors the entry into the process-local layer for the rest of
// its lifetime, measured from ResolvedAt. A re-read near expiry must not
// extend how long the entry stays servable, so entries past their lifetime
// are not admitted at all.
func (c *Cache) admitLocal(key string, entry CacheEntry, cost int64) {
	remaining := c.ttl - time.Since(entry.ResolvedAt)
	if remaining <= 0 {
		return
	}
	c.local.SetWithTTL(key, entry, cost, remaining)
}

// Put stores the entry under the current version stamps. Best effort.
func (c *Cache) Put(ctx context.Context, userID int64, scope Context, entry CacheEntry) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.entryKey(ctx, userID, scope)
	if err != nil {
		c.warn("cache key", err)
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		c.warn("cache encode", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.warn("cache put", err)
		return
	}
	c.admitLocal(key, entry, int64(len(payload)))
}

// InvalidateUser bumps the user's version stamp so every cached entry for
// that user misses on the next read. Used when a role assignment changes.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, userVersionPrefix+strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("authz: invalidate user %d: %w", userID, err)
	}
	return nil
}

// InvalidateCatalog bumps the global catalog version, invalidating every
// entry. Used when role or permission definitions change; over-invalidation
// is acceptable, under-invalidation is not.
func (c *Cache) InvalidateCatalog(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, catalogVersionKey).Err(); err != nil {
		return fmt.Errorf("authz: invalidate catalog: %w", err)
	}
	return nil
}

// ListenForInvalidation subscribes to the invalidation channel and applies
// bumps published by the permission store owner. Payloads: "user:<id>" or
// "catalog".
func (c *Cache) ListenForInvalidation(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	pubsub := c.client.Subscribe(ctx, InvalidateChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.applySignal(ctx, msg.Payload)
			}
		}
	}()
}

func (c *Cache) applySignal(ctx context.Context, payload string) {
	switch {
	case payload == "catalog":
		if err := c.InvalidateCatalog(ctx); err != nil {
			c.warn("invalidate signal", err)
		}
	case strings.HasPrefix(payload, "user:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(payload, "user:"), 10, 64)
		if err != nil {
			c.warn("invalidate signal", fmt.Errorf("bad payload %q", payload))
			return
		}
		if err := c.InvalidateUser(ctx, id); err != nil {
			c.warn("invalidate signal", err)
		}
	default:
		c.warn("invalidate signal", fmt.Errorf("unknown payload %q", payload))
	}
}

// entryKey composes the versioned entry key. The version reads happen before
// the entry read, so an invalidation that completes before a read always
// forces that read to miss.
func (c *Cache) entryKey(ctx context.Context, userID int64, scope Context) (string, error) {
	userVer, err := c.version(ctx, userVersionPrefix+strconv.FormatInt(userID, 10))
	if err != nil {
		return "", err
	}
	catalogVer, err := c.version(ctx, catalogVersionKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d:%s:u%d:c%d", entryKeyPrefix, userID, scope.String(), userVer, catalogVer), nil
}

func (c *Cache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}
