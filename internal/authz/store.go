package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proteamcare/access-engine/internal/shared"
)

// Store is the read-only query interface to the permission store. The store
// itself is owned by an external system; this engine never mutates it.
type Store interface {
	// GetUser returns the user snapshot or shared.ErrUserNotFound.
	GetUser(ctx context.Context, userID int64) (UserInfo, error)
	// ListAssignments returns the user's active role assignments with joined
	// role metadata and active permission names, across all contexts.
	ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error)
	// ListActivePermissions returns the full active permission catalog,
	// sorted by name.
	ListActivePermissions(ctx context.Context) ([]string, error)
}

// PGStore implements Store against PostgreSQL.
type PGStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPGStore constructs a PGStore. Every query runs under the given timeout
// so a slow store surfaces as shared.ErrStoreUnavailable instead of hanging.
func NewPGStore(pool *pgxpool.Pool, timeout time.Duration) *PGStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PGStore{pool: pool, timeout: timeout}
}

var _ Store = (*PGStore)(nil)

// GetUser fetches the user snapshot by ID.
func (s *PGStore) GetUser(ctx context.Context, userID int64) (UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const query = `SELECT id, email, name, is_system_admin, is_active FROM users WHERE id = $1`
	var user UserInfo
	err := s.pool.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.Name, &user.IsSystemAdmin, &user.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserInfo{}, fmt.Errorf("authz: user %d: %w", userID, shared.ErrUserNotFound)
		}
		return UserInfo{}, mapStoreErr("get user", err)
	}
	return user, nil
}

// ListAssignments returns one RoleAssignment per active assignment row, with
// the role's active permission names aggregated.
func (s *PGStore) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const query = `
		SELECT ra.id, ra.role_id, r.name, r.level,
		       ra.context_type, COALESCE(ra.context_id, 0),
		       CASE
		           WHEN ra.context_type = 'company' THEN ra.context_id
		           WHEN ra.context_type = 'establishment' THEN e.company_id
		           ELSE 0
		       END AS company_id,
		       ra.status, ra.valid_from, ra.valid_until,
		       p.name
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		LEFT JOIN establishments e ON ra.context_type = 'establishment' AND e.id = ra.context_id
		LEFT JOIN role_permissions rp ON rp.role_id = ra.role_id
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.is_active
		WHERE ra.user_id = $1 AND ra.status = 'active'
		ORDER BY ra.id, p.name`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapStoreErr("list assignments", err)
	}
	defer rows.Close()

	var (
		assignments []RoleAssignment
		currentID   int64
	)
	for rows.Next() {
		var (
			id         int64
			a          RoleAssignment
			scopeKind  string
			companyID  *int64
			validUntil *time.Time
			perm       *string
		)
		if err := rows.Scan(&id, &a.RoleID, &a.RoleName, &a.RoleLevel, &scopeKind, &a.Scope.ID, &companyID, &a.Status, &a.ValidFrom, &validUntil, &perm); err != nil {
			return nil, mapStoreErr("scan assignment", err)
		}
		a.Scope.Kind = ContextKind(strings.ToLower(scopeKind))
		if companyID != nil {
			a.CompanyID = *companyID
		}
		if validUntil != nil {
			a.ValidUntil = *validUntil
		}
		if id != currentID || len(assignments) == 0 {
			currentID = id
			assignments = append(assignments, a)
		}
		if perm != nil {
			last := &assignments[len(assignments)-1]
			last.Permissions = append(last.Permissions, *perm)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreErr("list assignments", err)
	}
	return assignments, nil
}

// ListActivePermissions returns every active permission name.
func (s *PGStore) ListActivePermissions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT name FROM permissions WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, mapStoreErr("list permissions", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapStoreErr("scan permission", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreErr("list permissions", err)
	}
	return names, nil
}

// mapStoreErr folds infrastructure failures into shared.ErrStoreUnavailable
// so callers can distinguish transient store trouble from authorization
// outcomes. Anything else bubbles up wrapped.
func mapStoreErr(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08"):
		return fmt.Errorf("authz: %s: %v: %w", op, err, shared.ErrStoreUnavailable)
	default:
		return fmt.Errorf("authz: %s: %w", op, err)
	}
}
