package menu

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/proteamcare/access-engine/internal/audit"
	"github.com/proteamcare/access-engine/internal/authz"
)

type stubStore struct {
	user        authz.UserInfo
	assignments []authz.RoleAssignment
}

func (s *stubStore) GetUser(ctx context.Context, userID int64) (authz.UserInfo, error) {
	return s.user, nil
}

func (s *stubStore) ListAssignments(ctx context.Context, userID int64) ([]authz.RoleAssignment, error) {
	return s.assignments, nil
}

func (s *stubStore) ListActivePermissions(ctx context.Context) ([]string, error) {
	return nil, nil
}

type stubCatalog struct {
	nodes []Node
	err   error
	calls int
}

func (s *stubCatalog) ListNodes(ctx context.Context) ([]Node, error) {
	s.calls++
	return s.nodes, s.err
}

type memAuditRepo struct {
	records   []audit.Record
	insertErr error
}

func (m *memAuditRepo) Insert(ctx context.Context, rec audit.Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memAuditRepo) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, audit.PagingInfo, error) {
	return m.records, audit.PagingInfo{}, nil
}

func newTestService(t *testing.T, store authz.Store, catalog CatalogSource, repo audit.Repository, devEnabled bool) *Service {
	t.Helper()
	resolver := authz.NewResolver(store, nil, slog.Default(), nil)
	recorder := audit.NewRecorder(repo, nil, slog.Default())
	return NewService(resolver, catalog, recorder, devEnabled, slog.Default())
}

func TestGetMenuTreeSelfRead(t *testing.T) {
	store := &stubStore{
		user: authz.UserInfo{ID: 10, IsActive: true},
		assignments: []authz.RoleAssignment{{
			Scope:       authz.CompanyContext(65),
			CompanyID:   65,
			Status:      authz.AssignmentActive,
			Permissions: []string{"home_care.view"},
		}},
	}
	catalog := &stubCatalog{nodes: []Node{
		{ID: 1, Name: "Dashboard", Slug: "dashboard", IsActive: true, IsVisible: true},
		{ID: 2, Name: "Home Care", Slug: "home-care", Permission: "home_care.view", SortOrder: 1, IsActive: true, IsVisible: true, CompanySpecific: true},
	}}
	repo := &memAuditRepo{}
	svc := newTestService(t, store, catalog, repo, false)

	tree, err := svc.GetMenuTree(context.Background(), 10, 10, authz.CompanyContext(65), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected 2 roots, got %v", slugs(tree))
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(repo.records))
	}
	rec := repo.records[0]
	if rec.Action != audit.ActionMenuResolve || rec.ActorID != 10 || rec.TargetID != 10 {
		t.Fatalf("unexpected audit record: %+v", rec)
	}
}

func TestGetMenuTreeImpersonationRequiresDurableAudit(t *testing.T) {
	store := &stubStore{user: authz.UserInfo{ID: 10, IsActive: true}}
	catalog := &stubCatalog{}
	repo := &memAuditRepo{insertErr: errors.New("db down")}
	svc := newTestService(t, store, catalog, repo, false)

	// Actor 1 inspecting user 10: the audit write failure aborts the read.
	_, err := svc.GetMenuTree(context.Background(), 1, 10, authz.SystemContext(), false)
	if err == nil {
		t.Fatalf("expected error when the audit record cannot be persisted")
	}

	// A self read with the same failing repo still succeeds.
	if _, err := svc.GetMenuTree(context.Background(), 10, 10, authz.SystemContext(), false); err != nil {
		t.Fatalf("self read should not depend on the async audit path: %v", err)
	}
}

func TestGetMenuTreeDevDisabledByDeployment(t *testing.T) {
	store := &stubStore{user: authz.UserInfo{ID: 1, IsActive: true, IsSystemAdmin: true}}
	catalog := &stubCatalog{nodes: []Node{
		{ID: 1, Name: "Dev Tools", Slug: "dev-tools", IsActive: true, IsVisible: true, DevOnly: true},
	}}
	repo := &memAuditRepo{}

	svc := newTestService(t, store, catalog, repo, false)
	tree, err := svc.GetMenuTree(context.Background(), 1, 1, authz.SystemContext(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree) != 0 {
		t.Fatalf("dev nodes must stay hidden when the deployment switch is off")
	}

	svc = newTestService(t, store, catalog, repo, true)
	tree, err = svc.GetMenuTree(context.Background(), 1, 1, authz.SystemContext(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree) != 1 {
		t.Fatalf("admin in system scope should see dev nodes when enabled")
	}
}

func TestGetMenuTreeCatalogError(t *testing.T) {
	store := &stubStore{user: authz.UserInfo{ID: 10, IsActive: true}}
	catalog := &stubCatalog{err: errors.New("catalog query failed")}
	svc := newTestService(t, store, catalog, &memAuditRepo{}, false)

	if _, err := svc.GetMenuTree(context.Background(), 10, 10, authz.SystemContext(), false); err == nil {
		t.Fatalf("expected catalog error to surface")
	}
}

func TestCachedCatalogSnapshots(t *testing.T) {
	source := &stubCatalog{nodes: []Node{{ID: 1, Name: "Dashboard", Slug: "dashboard", IsActive: true, IsVisible: true}}}
	cached, err := NewCachedCatalog(source, 0)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ctx := context.Background()

	if _, err := cached.ListNodes(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected 1 source read, got %d", source.calls)
	}

	// ristretto admission is buffered; drain it before asserting on hits.
	cached.local.Wait()

	if _, err := cached.ListNodes(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected snapshot hit, source read %d times", source.calls)
	}

	cached.Invalidate()
	if _, err := cached.ListNodes(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected reload after invalidation, source read %d times", source.calls)
	}
}
