package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/proteamcare/access-engine/internal/authz"
)

// Actions recorded by the engine.
const (
	ActionResolvePermissions = "permissions.resolve"
	ActionMenuResolve        = "menu.resolve"
	ActionIsolationBuild     = "isolation.build"
	ActionCacheInvalidate    = "cache.invalidate"
)

// Decisions attached to records.
const (
	DecisionAllow        = "allow"
	DecisionDeny         = "deny"
	DecisionUnrestricted = "unrestricted"
	DecisionViolation    = "violation"
)

// Record is an immutable, append-only audit entry. TargetID equals ActorID
// for self reads and differs when one user inspects another's view.
type Record struct {
	ID         uuid.UUID     `json:"id"`
	ActorID    int64         `json:"actor_id"`
	TargetID   int64         `json:"target_id"`
	Scope      authz.Context `json:"scope"`
	Action     string        `json:"action"`
	Decision   string        `json:"decision"`
	SourceIP   string        `json:"source_ip,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Filter narrows audit queries. Zero fields are ignored.
type Filter struct {
	ActorID  int64
	TargetID int64
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo describes the result window of a query.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}
