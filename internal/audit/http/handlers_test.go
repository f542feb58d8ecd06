package audithttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proteamcare/access-engine/internal/audit"
	"github.com/proteamcare/access-engine/internal/shared"
)

type memRepo struct {
	records []audit.Record
	filter  audit.Filter
}

func (m *memRepo) Insert(ctx context.Context, rec audit.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memRepo) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, audit.PagingInfo, error) {
	m.filter = filter
	return m.records, audit.PagingInfo{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func serve(t *testing.T, repo *memRepo, actorID int64, target string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewHandler(slog.Default(), audit.NewReader(repo))
	router := chi.NewRouter()
	handler.MountRoutes(router)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if actorID > 0 {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actorID))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestQueryParsesFilter(t *testing.T) {
	repo := &memRepo{records: []audit.Record{{ActorID: 10, Action: audit.ActionMenuResolve}}}

	rr := serve(t, repo, 1, "/audit?actor_id=10&target_id=42&from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z&page=2&page_size=25")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if repo.filter.ActorID != 10 || repo.filter.TargetID != 42 {
		t.Fatalf("id filters not parsed: %+v", repo.filter)
	}
	if repo.filter.Page != 2 || repo.filter.PageSize != 25 {
		t.Fatalf("paging not parsed: %+v", repo.filter)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !repo.filter.From.Equal(want) {
		t.Fatalf("from not parsed: %v", repo.filter.From)
	}

	var resp struct {
		Records []audit.Record   `json:"records"`
		Paging  audit.PagingInfo `json:"paging"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 || resp.Paging.Page != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestQueryEmptyResultIsArray(t *testing.T) {
	rr := serve(t, &memRepo{}, 1, "/audit")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(resp["records"]) != "[]" {
		t.Fatalf("records must encode as [], got %s", resp["records"])
	}
}

func TestQueryRequiresActor(t *testing.T) {
	rr := serve(t, &memRepo{}, 0, "/audit")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d", rr.Code)
	}
}

func TestQueryIgnoresMalformedTimes(t *testing.T) {
	repo := &memRepo{}
	rr := serve(t, repo, 1, "/audit?from=yesterday")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !repo.filter.From.IsZero() {
		t.Fatalf("malformed time should be ignored, got %v", repo.filter.From)
	}
}
