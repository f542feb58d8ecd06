package authz

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/proteamcare/access-engine/internal/shared"
)

// ContextKind enumerates the three scope levels permissions are evaluated against.
type ContextKind string

const (
	KindSystem        ContextKind = "system"
	KindCompany       ContextKind = "company"
	KindEstablishment ContextKind = "establishment"
)

// Valid reports whether the kind is one of the enumerated values.
func (k ContextKind) Valid() bool {
	switch k {
	case KindSystem, KindCompany, KindEstablishment:
		return true
	}
	return false
}

// Context is the scope tuple authorization decisions are made against.
// System scope carries no ID; company and establishment scopes carry the tenant ID.
type Context struct {
	Kind ContextKind `json:"kind"`
	ID   int64       `json:"id,omitempty"`
}

// SystemContext returns the global scope.
func SystemContext() Context {
	return Context{Kind: KindSystem}
}

// CompanyContext returns a company-level scope.
func CompanyContext(id int64) Context {
	return Context{Kind: KindCompany, ID: id}
}

// EstablishmentContext returns an establishment-level scope.
func EstablishmentContext(id int64) Context {
	return Context{Kind: KindEstablishment, ID: id}
}

// ParseContext builds a Context from raw request input.
func ParseContext(kind string, id int64) (Context, error) {
	c := Context{Kind: ContextKind(strings.ToLower(strings.TrimSpace(kind))), ID: id}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return c, nil
}

// Validate enforces the context tuple invariant: system scope has no ID,
// company and establishment scopes require a positive one.
func (c Context) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("authz: context kind %q: %w", c.Kind, shared.ErrInvalidContext)
	}
	if c.Kind == KindSystem {
		if c.ID != 0 {
			return fmt.Errorf("authz: system context must not carry an id: %w", shared.ErrInvalidContext)
		}
		return nil
	}
	if c.ID <= 0 {
		return fmt.Errorf("authz: %s context requires a positive id: %w", c.Kind, shared.ErrInvalidContext)
	}
	return nil
}

// IsSystem reports whether the context is the global scope.
func (c Context) IsSystem() bool {
	return c.Kind == KindSystem
}

// String renders the tuple for cache keys and log fields.
func (c Context) String() string {
	if c.Kind == KindSystem {
		return string(KindSystem)
	}
	return string(c.Kind) + ":" + strconv.FormatInt(c.ID, 10)
}

// UserInfo is the read-only user snapshot consumed by authorization decisions.
type UserInfo struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	IsSystemAdmin bool   `json:"is_system_admin"`
	IsActive      bool   `json:"is_active"`
}

// AssignmentStatus is the lifecycle state of a role assignment.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentInactive AssignmentStatus = "inactive"
)

// RoleAssignment binds a user to a role within exactly one context.
// RoleLevel is carried for display and tie-breaking only; it is never an
// authorization input.
type RoleAssignment struct {
	RoleID    int64
	RoleName  string
	RoleLevel int
	Scope     Context
	// CompanyID is the owning company of the assignment scope: the scope ID
	// itself for company assignments, the establishment's parent company for
	// establishment assignments, zero for system assignments.
	CompanyID   int64
	Status      AssignmentStatus
	ValidFrom   time.Time
	ValidUntil  time.Time
	Permissions []string
}

// ActiveAt reports whether the assignment is active and inside its validity window.
func (a RoleAssignment) ActiveAt(t time.Time) bool {
	if a.Status != AssignmentActive {
		return false
	}
	if !a.ValidFrom.IsZero() && t.Before(a.ValidFrom) {
		return false
	}
	if !a.ValidUntil.IsZero() && !t.Before(a.ValidUntil) {
		return false
	}
	return true
}

// PermissionSet is a deduplicated, sorted set of permission names.
// The sorted representation keeps resolver output byte-identical for
// identical inputs.
type PermissionSet struct {
	names []string
}

// NewPermissionSet builds a set from the given names, dropping duplicates
// and empty entries.
func NewPermissionSet(names ...string) PermissionSet {
	unique := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		unique[n] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for n := range unique {
		out = append(out, n)
	}
	slices.Sort(out)
	return PermissionSet{names: out}
}

// Has reports whether the named permission is granted.
func (s PermissionSet) Has(name string) bool {
	_, found := slices.BinarySearch(s.names, name)
	return found
}

// Names returns the sorted permission names. The returned slice is a copy.
func (s PermissionSet) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of granted permissions.
func (s PermissionSet) Len() int {
	return len(s.names)
}

// IsEmpty reports whether no permission is granted.
func (s PermissionSet) IsEmpty() bool {
	return len(s.names) == 0
}

// MarshalJSON encodes the set as a sorted JSON array. An empty set encodes
// as [] so consumers can range without a nil check.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	if s.names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.names)
}

// UnmarshalJSON decodes a JSON array, normalizing through NewPermissionSet.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewPermissionSet(names...)
	return nil
}
