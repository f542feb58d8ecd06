package authz

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/proteamcare/access-engine/internal/shared"
)

func TestParseContext(t *testing.T) {
	cases := []struct {
		name    string
		kind    string
		id      int64
		want    Context
		wantErr bool
	}{
		{name: "system", kind: "system", id: 0, want: SystemContext()},
		{name: "company", kind: "company", id: 65, want: CompanyContext(65)},
		{name: "establishment", kind: "establishment", id: 7, want: EstablishmentContext(7)},
		{name: "case insensitive", kind: "  Company ", id: 65, want: CompanyContext(65)},
		{name: "system with id", kind: "system", id: 3, wantErr: true},
		{name: "company without id", kind: "company", id: 0, wantErr: true},
		{name: "negative id", kind: "establishment", id: -1, wantErr: true},
		{name: "unknown kind", kind: "tenant", id: 1, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseContext(tc.kind, tc.id)
			if tc.wantErr {
				if !errors.Is(err, shared.ErrInvalidContext) {
					t.Fatalf("expected ErrInvalidContext, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestContextString(t *testing.T) {
	if got := SystemContext().String(); got != "system" {
		t.Fatalf("expected system, got %q", got)
	}
	if got := CompanyContext(65).String(); got != "company:65" {
		t.Fatalf("expected company:65, got %q", got)
	}
	if got := EstablishmentContext(12).String(); got != "establishment:12" {
		t.Fatalf("expected establishment:12, got %q", got)
	}
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet("companies.view", "users.edit", "companies.view", " ", "a.b")
	if set.Len() != 3 {
		t.Fatalf("expected 3 unique permissions, got %d", set.Len())
	}
	if !set.Has("companies.view") || !set.Has("a.b") {
		t.Fatalf("expected granted names to be present")
	}
	if set.Has("users.delete") {
		t.Fatalf("users.delete should not be granted")
	}
	names := set.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}

	// Mutating the returned slice must not affect the set.
	names[0] = "zzz"
	if !set.Has("a.b") {
		t.Fatalf("set mutated through Names copy")
	}
}

func TestPermissionSetJSON(t *testing.T) {
	set := NewPermissionSet("b", "a")
	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `["a","b"]` {
		t.Fatalf("expected sorted array, got %s", payload)
	}

	var empty PermissionSet
	payload, err = json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(payload) == "null" {
		// The wire shape is always an array so consumers can range safely.
		t.Fatalf("empty set must not encode as null")
	}

	var decoded PermissionSet
	if err := json.Unmarshal([]byte(`["x","x","y"]`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Len() != 2 || !decoded.Has("x") {
		t.Fatalf("unexpected decoded set: %v", decoded.Names())
	}
}

func TestRoleAssignmentActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := RoleAssignment{Status: AssignmentActive}

	if !base.ActiveAt(now) {
		t.Fatalf("assignment without window should be active")
	}

	withWindow := base
	withWindow.ValidFrom = now.Add(-time.Hour)
	withWindow.ValidUntil = now.Add(time.Hour)
	if !withWindow.ActiveAt(now) {
		t.Fatalf("assignment inside window should be active")
	}
	if withWindow.ActiveAt(now.Add(2 * time.Hour)) {
		t.Fatalf("assignment past ValidUntil should be inactive")
	}
	if withWindow.ActiveAt(now.Add(-2 * time.Hour)) {
		t.Fatalf("assignment before ValidFrom should be inactive")
	}
	if withWindow.ActiveAt(withWindow.ValidUntil) {
		t.Fatalf("ValidUntil is exclusive")
	}

	suspended := withWindow
	suspended.Status = AssignmentInactive
	if suspended.ActiveAt(now) {
		t.Fatalf("inactive assignment should never be active")
	}
}
