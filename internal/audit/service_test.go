package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/proteamcare/access-engine/internal/authz"
	"github.com/proteamcare/access-engine/internal/shared"
)

type memRepo struct {
	records   []Record
	insertErr error
}

func (m *memRepo) Insert(ctx context.Context, rec Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memRepo) Query(ctx context.Context, filter Filter) ([]Record, PagingInfo, error) {
	return m.records, PagingInfo{Page: filter.Page, PageSize: filter.PageSize}, nil
}

type memEnqueuer struct {
	records []Record
	err     error
}

func (m *memEnqueuer) EnqueueAuditWrite(ctx context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func TestRecordFillsDefaults(t *testing.T) {
	repo := &memRepo{}
	recorder := NewRecorder(repo, nil, slog.Default())
	recorder.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	ctx := shared.ContextWithClientIP(context.Background(), "203.0.113.9")
	err := recorder.Record(ctx, Record{
		ActorID:  10,
		Scope:    authz.CompanyContext(65),
		Action:   ActionResolvePermissions,
		Decision: DecisionAllow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.records))
	}
	rec := repo.records[0]
	if rec.ID == uuid.Nil {
		t.Fatalf("record ID not assigned")
	}
	if rec.TargetID != 10 {
		t.Fatalf("target should default to the actor, got %d", rec.TargetID)
	}
	if rec.SourceIP != "203.0.113.9" {
		t.Fatalf("source IP not taken from context: %q", rec.SourceIP)
	}
	if !rec.OccurredAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", rec.OccurredAt)
	}
}

func TestRecordSurfacesInsertFailure(t *testing.T) {
	repo := &memRepo{insertErr: errors.New("db down")}
	recorder := NewRecorder(repo, nil, slog.Default())

	err := recorder.Record(context.Background(), Record{ActorID: 1, Action: ActionIsolationBuild})
	if err == nil {
		t.Fatalf("durable record must fail loudly")
	}
}

func TestRecordAsyncPrefersQueue(t *testing.T) {
	repo := &memRepo{}
	queue := &memEnqueuer{}
	recorder := NewRecorder(repo, queue, slog.Default())

	recorder.RecordAsync(context.Background(), Record{ActorID: 10, Action: ActionMenuResolve})
	if len(queue.records) != 1 {
		t.Fatalf("expected enqueued record, got %d", len(queue.records))
	}
	if len(repo.records) != 0 {
		t.Fatalf("sync path used despite a healthy queue")
	}
}

func TestRecordAsyncFallsBackToSync(t *testing.T) {
	repo := &memRepo{}
	queue := &memEnqueuer{err: errors.New("broker down")}
	recorder := NewRecorder(repo, queue, slog.Default())

	recorder.RecordAsync(context.Background(), Record{ActorID: 10, Action: ActionMenuResolve})
	if len(repo.records) != 1 {
		t.Fatalf("expected sync fallback write, got %d", len(repo.records))
	}
}

func TestRecordAsyncWithoutQueue(t *testing.T) {
	repo := &memRepo{}
	recorder := NewRecorder(repo, nil, slog.Default())

	recorder.RecordAsync(context.Background(), Record{ActorID: 10, Action: ActionMenuResolve})
	if len(repo.records) != 1 {
		t.Fatalf("expected direct write without a queue, got %d", len(repo.records))
	}
}

func TestReaderQuery(t *testing.T) {
	repo := &memRepo{records: []Record{{ActorID: 1}, {ActorID: 2}}}
	reader := NewReader(repo)

	records, paging, err := reader.Query(context.Background(), Filter{Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || paging.Page != 2 {
		t.Fatalf("unexpected result: %d records, paging %+v", len(records), paging)
	}
}
