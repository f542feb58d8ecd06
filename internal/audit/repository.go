package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proteamcare/access-engine/internal/authz"
)

// Repository persists and queries audit records. Records are write-once;
// there is no update or delete path.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	Query(ctx context.Context, filter Filter) ([]Record, PagingInfo, error)
}

// PGRepository implements Repository against PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// Insert appends one record.
func (r *PGRepository) Insert(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO audit_records (id, actor_id, target_id, context_type, context_id, action, decision, source_ip, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.ActorID, rec.TargetID,
		string(rec.Scope.Kind), rec.Scope.ID,
		rec.Action, rec.Decision, rec.SourceIP, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first, windowed.
func (r *PGRepository) Query(ctx context.Context, filter Filter) ([]Record, PagingInfo, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	const query = `
		SELECT id, actor_id, target_id, context_type, context_id, action, decision, source_ip, occurred_at
		FROM audit_records
		WHERE ($1::bigint = 0 OR actor_id = $1)
		  AND ($2::bigint = 0 OR target_id = $2)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at < $4)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $5 LIMIT $6`

	rows, err := r.pool.Query(ctx, query,
		filter.ActorID, filter.TargetID,
		nullableTime(filter.From), nullableTime(filter.To),
		offset, pageSize+1)
	if err != nil {
		return nil, PagingInfo{}, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			kind     string
			sourceIP *string
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.TargetID, &kind, &rec.Scope.ID, &rec.Action, &rec.Decision, &sourceIP, &rec.OccurredAt); err != nil {
			return nil, PagingInfo{}, fmt.Errorf("audit: scan: %w", err)
		}
		rec.Scope.Kind = authz.ContextKind(kind)
		if sourceIP != nil {
			rec.SourceIP = *sourceIP
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, PagingInfo{}, fmt.Errorf("audit: query: %w", err)
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: len(records) > pageSize}
	if paging.HasNext {
		records = records[:pageSize]
	}
	return records, paging, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
