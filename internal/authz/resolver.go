package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/proteamcare/access-engine/internal/shared"
)

// CacheStats receives cache hit/miss counts from the resolver. Implemented
// by the observability package; nil disables recording.
type CacheStats interface {
	CacheHit()
	CacheMiss()
}

// Resolver computes the effective permission set of a user inside a
// requested context. Resolution is pure except for cache population; the
// cache is consulted first and any cache failure falls through to the store.
type Resolver struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	stats  CacheStats
	group  singleflight.Group
	now    func() time.Time
}

// NewResolver constructs a Resolver. cache and stats may be nil.
func NewResolver(store Store, cache *Cache, logger *slog.Logger, stats CacheStats) *Resolver {
	return &Resolver{
		store:  store,
		cache:  cache,
		logger: logger,
		stats:  stats,
		now:    time.Now,
	}
}

type resolved struct {
	set  PermissionSet
	user UserInfo
}

// Resolve returns the granted permission set and user snapshot for the exact
// (kind, id) tuple. A user with no matching assignments gets an empty set,
// not an error. System admins get the full active permission catalog; the
// caller is responsible for auditing when the admin inspects another user.
func (r *Resolver) Resolve(ctx context.Context, userID int64, scope Context) (PermissionSet, UserInfo, error) {
	if err := scope.Validate(); err != nil {
		return PermissionSet{}, UserInfo{}, err
	}

	if entry, ok := r.cache.Get(ctx, userID, scope); ok {
		if r.stats != nil {
			r.stats.CacheHit()
		}
		return entry.Permissions, entry.User, nil
	}
	if r.stats != nil {
		r.stats.CacheMiss()
	}

	// Collapse concurrent misses for the same key into one store round trip.
	key := fmt.Sprintf("%d:%s", userID, scope.String())
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolveFromStore(ctx, userID, scope)
	})
	select {
	case <-ctx.Done():
		return PermissionSet{}, UserInfo{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return PermissionSet{}, UserInfo{}, res.Err
		}
		out := res.Val.(resolved)
		return out.set, out.user, nil
	}
}

// ActiveAssignments returns the user's assignments that are active right
// now, across all contexts. Consumed by the isolation engine.
func (r *Resolver) ActiveAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	assignments, err := r.store.ListAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	active := assignments[:0]
	for _, a := range assignments {
		if a.ActiveAt(now) {
			active = append(active, a)
		}
	}
	return active, nil
}

func (r *Resolver) resolveFromStore(ctx context.Context, userID int64, scope Context) (resolved, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return resolved{}, err
	}
	if !user.IsActive {
		return resolved{}, fmt.Errorf("authz: user %d: %w", userID, shared.ErrUserInactive)
	}

	var set PermissionSet
	if user.IsSystemAdmin {
		names, err := r.store.ListActivePermissions(ctx)
		if err != nil {
			return resolved{}, err
		}
		set = NewPermissionSet(names...)
	} else {
		assignments, err := r.store.ListAssignments(ctx, userID)
		if err != nil {
			return resolved{}, err
		}
		now := r.now()
		var names []string
		for _, a := range assignments {
			// Exact context match only; a company-level assignment grants
			// nothing at system or establishment level.
			if a.Scope != scope || !a.ActiveAt(now) {
				continue
			}
			names = append(names, a.Permissions...)
		}
		set = NewPermissionSet(names...)
	}

	r.cache.Put(ctx, userID, scope, CacheEntry{
		Permissions: set,
		User:        user,
		ResolvedAt:  r.now().UTC(),
	})
	return resolved{set: set, user: user}, nil
}
