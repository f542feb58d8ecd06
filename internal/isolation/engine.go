package isolation

import (
	"fmt"
	"strings"

	"github.com/proteamcare/access-engine/internal/authz"
	"github.com/proteamcare/access-engine/internal/shared"
)

// ResourceKind names a tenant-scoped resource family downstream queries
// operate on.
type ResourceKind string

const (
	ResourceCompanies      ResourceKind = "companies"
	ResourceEstablishments ResourceKind = "establishments"
	ResourceContracts      ResourceKind = "contracts"
	ResourceInvoices       ResourceKind = "invoices"
	ResourcePatients       ResourceKind = "patients"
)

// scopedToEstablishment marks resource kinds whose rows belong to a single
// establishment rather than to the company as a whole.
var scopedToEstablishment = map[ResourceKind]bool{
	ResourceEstablishments: true,
	ResourcePatients:       true,
}

var knownResources = map[ResourceKind]bool{
	ResourceCompanies:      true,
	ResourceEstablishments: true,
	ResourceContracts:      true,
	ResourceInvoices:       true,
	ResourcePatients:       true,
}

// ParseResourceKind validates raw request input. Unknown kinds are a caller
// bug and surface as a hard error.
func ParseResourceKind(raw string) (ResourceKind, error) {
	kind := ResourceKind(strings.ToLower(strings.TrimSpace(raw)))
	if !knownResources[kind] {
		return "", fmt.Errorf("isolation: resource %q: %w", raw, shared.ErrUnknownResource)
	}
	return kind, nil
}

// Build produces the isolation predicate for the user against the requested
// context and resource kind.
//
// System admins get the identity predicate; the caller must attach an audit
// record when it is used. For everyone else the predicate is derived from
// active assignments matching the session context: company scope restricts
// to that company, establishment scope restricts establishment-level
// resources to that establishment and company-level resources to the owning
// company. When no active assignment covers the context the predicate
// matches nothing: denial is an empty result, not an error.
func Build(user authz.UserInfo, assignments []authz.RoleAssignment, scope authz.Context, resource ResourceKind) (Predicate, error) {
	if !knownResources[resource] {
		return MatchNone(), fmt.Errorf("isolation: resource %q: %w", resource, shared.ErrUnknownResource)
	}
	if err := scope.Validate(); err != nil {
		return MatchNone(), err
	}

	if user.IsSystemAdmin {
		return Unrestricted(), nil
	}

	predicate := buildRestricted(assignments, scope, resource)

	// Fail closed: a non-admin predicate must never be unrestricted. This
	// cannot happen by construction above; the check guards against future
	// regressions and aborts the request instead of leaking every tenant.
	if predicate.IsUnrestricted() {
		return MatchNone(), fmt.Errorf("isolation: user %d resource %s: %w", user.ID, resource, shared.ErrIsolationViolation)
	}
	return predicate, nil
}

func buildRestricted(assignments []authz.RoleAssignment, scope authz.Context, resource ResourceKind) Predicate {
	match, ok := contextAssignment(assignments, scope)
	if !ok {
		return MatchNone()
	}

	switch scope.Kind {
	case authz.KindCompany:
		// Company-level sessions see establishment rows through the owning
		// company column, so one restriction covers both resource levels.
		return CompanyIn(scope.ID)
	case authz.KindEstablishment:
		if scopedToEstablishment[resource] {
			return EstablishmentIn(scope.ID)
		}
		return CompanyIn(match.CompanyID)
	default:
		// Non-admin users hold no tenant at system scope.
		return MatchNone()
	}
}

// contextAssignment finds the active assignment matching the exact context
// tuple. Callers pass pre-filtered active assignments; the scope comparison
// here is the authoritative one.
func contextAssignment(assignments []authz.RoleAssignment, scope authz.Context) (authz.RoleAssignment, bool) {
	for _, a := range assignments {
		if a.Scope == scope {
			return a, true
		}
	}
	return authz.RoleAssignment{}, false
}
