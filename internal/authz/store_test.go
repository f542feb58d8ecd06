package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/proteamcare/access-engine/internal/shared"
)

func TestMapStoreErrInfrastructureFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"query deadline", context.DeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded)},
		{"connection failure", &pgconn.PgError{Code: "08006", Message: "connection failure"}},
		{"cannot connect", &pgconn.PgError{Code: "08001", Message: "sqlclient unable to establish sqlconnection"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapStoreErr("get user", tc.err)
			if !errors.Is(mapped, shared.ErrStoreUnavailable) {
				t.Fatalf("expected ErrStoreUnavailable, got %v", mapped)
			}
		})
	}
}

func TestMapStoreErrKeepsQueryErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"constraint violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}},
		{"scan failure", errors.New("cannot scan NULL into int64")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapStoreErr("list assignments", tc.err)
			if errors.Is(mapped, shared.ErrStoreUnavailable) {
				t.Fatalf("%v must not be folded into ErrStoreUnavailable", tc.err)
			}
			if !errors.Is(mapped, tc.err) {
				t.Fatalf("original error lost: %v", mapped)
			}
		})
	}
}
