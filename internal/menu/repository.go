package menu

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogSource provides the full flat menu catalog.
type CatalogSource interface {
	ListNodes(ctx context.Context) ([]Node, error)
}

// PGRepository reads the menu catalog from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ CatalogSource = (*PGRepository)(nil)

// ListNodes returns every catalog entry, visibility flags included, in
// deterministic order. Filtering is the builder's job.
func (r *PGRepository) ListNodes(ctx context.Context) ([]Node, error) {
	const query = `
		SELECT id, parent_id, name, slug, COALESCE(permission_name, ''),
		       level, sort_order, is_active, is_visible, dev_only,
		       company_specific, establishment_specific
		FROM menu_nodes
		ORDER BY level, sort_order, name, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("menu: list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Name, &n.Slug, &n.Permission,
			&n.Level, &n.SortOrder, &n.IsActive, &n.IsVisible, &n.DevOnly,
			&n.CompanySpecific, &n.EstablishmentSpecific); err != nil {
			return nil, fmt.Errorf("menu: scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("menu: list nodes: %w", err)
	}
	return nodes, nil
}

const catalogKey = "menu:catalog"

// CachedCatalog keeps the catalog snapshot hot in-process. The catalog is
// cached independently of permission state; staleness here only delays menu
// edits, never permission changes.
type CachedCatalog struct {
	source CatalogSource
	local  *ristretto.Cache
	ttl    time.Duration
}

// NewCachedCatalog wraps a CatalogSource with a ristretto snapshot cache.
func NewCachedCatalog(source CatalogSource, ttl time.Duration) (*CachedCatalog, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("menu: ristretto: %w", err)
	}
	return &CachedCatalog{source: source, local: local, ttl: ttl}, nil
}

var _ CatalogSource = (*CachedCatalog)(nil)

// ListNodes returns the cached snapshot, loading through on miss.
func (c *CachedCatalog) ListNodes(ctx context.Context) ([]Node, error) {
	if cached, ok := c.local.Get(catalogKey); ok {
		if nodes, ok := cached.([]Node); ok {
			return nodes, nil
		}
	}
	nodes, err := c.source.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	c.local.SetWithTTL(catalogKey, nodes, int64(len(nodes)+1), c.ttl)
	return nodes, nil
}

// Invalidate drops the snapshot so the next read reloads the catalog.
func (c *CachedCatalog) Invalidate() {
	c.local.Del(catalogKey)
}
