package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/proteamcare/access-engine/internal/shared"
)

// Enqueuer submits an audit record for asynchronous persistence. Implemented
// by the jobs client; nil disables the async path.
type Enqueuer interface {
	EnqueueAuditWrite(ctx context.Context, rec Record) error
}

// Recorder writes audit records. Security-sensitive accesses (impersonation
// reads, unrestricted predicates) go through Record, which is durable before
// it returns. Routine self reads go through RecordAsync, which enqueues and
// falls back to a synchronous write when the queue is unavailable, so a
// record is never silently dropped.
type Recorder struct {
	repo     Repository
	enqueuer Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(repo Repository, enqueuer Enqueuer, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, enqueuer: enqueuer, logger: logger, now: time.Now}
}

// Record durably persists the record before returning.
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if r == nil || r.repo == nil {
		return errors.New("audit: recorder not configured")
	}
	r.fill(ctx, &rec)
	return r.repo.Insert(ctx, rec)
}

// RecordAsync enqueues the record for background persistence.
func (r *Recorder) RecordAsync(ctx context.Context, rec Record) {
	if r == nil || r.repo == nil {
		return
	}
	r.fill(ctx, &rec)
	if r.enqueuer != nil {
		if err := r.enqueuer.EnqueueAuditWrite(ctx, rec); err == nil {
			return
		} else if r.logger != nil {
			r.logger.Warn("audit enqueue, falling back to sync", slog.Any("error", err))
		}
	}
	if err := r.repo.Insert(ctx, rec); err != nil && r.logger != nil {
		r.logger.Error("audit write", slog.Any("error", err), slog.String("action", rec.Action))
	}
}

func (r *Recorder) fill(ctx context.Context, rec *Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = r.now().UTC()
	}
	if rec.SourceIP == "" {
		rec.SourceIP = shared.ClientIPFromContext(ctx)
	}
	if rec.TargetID == 0 {
		rec.TargetID = rec.ActorID
	}
}

// Reader serves audit queries. Storage is the external collaborator; this is
// interface-level access only.
type Reader struct {
	repo Repository
}

// NewReader constructs a Reader.
func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

// Query returns records matching the filter with paging info.
func (r *Reader) Query(ctx context.Context, filter Filter) ([]Record, PagingInfo, error) {
	if r == nil || r.repo == nil {
		return nil, PagingInfo{}, errors.New("audit: reader not configured")
	}
	return r.repo.Query(ctx, filter)
}
