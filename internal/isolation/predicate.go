// Package isolation builds tenant-scoping predicates that every downstream
// data query must apply. The package never executes queries; it produces an
// opaque, composable predicate description for data-access collaborators.
package isolation

import (
	"encoding/json"
	"fmt"
	"slices"
)

type predicateKind int

const (
	kindNone predicateKind = iota
	kindUnrestricted
	kindCompanyIn
	kindEstablishmentIn
)

var kindNames = map[predicateKind]string{
	kindNone:            "match_none",
	kindUnrestricted:    "unrestricted",
	kindCompanyIn:       "company_in",
	kindEstablishmentIn: "establishment_in",
}

// Predicate is an immutable tenant-scoping condition. The zero value matches
// nothing, so a forgotten predicate fails closed.
type Predicate struct {
	kind predicateKind
	ids  []int64
}

// Unrestricted returns the identity predicate. Only ever produced for system
// admins; callers must report its use to the audit logger.
func Unrestricted() Predicate {
	return Predicate{kind: kindUnrestricted}
}

// MatchNone returns the predicate that matches no rows.
func MatchNone() Predicate {
	return Predicate{kind: kindNone}
}

// CompanyIn restricts rows to the given company IDs. An empty list collapses
// to MatchNone.
func CompanyIn(ids ...int64) Predicate {
	return newIDPredicate(kindCompanyIn, ids)
}

// EstablishmentIn restricts rows to the given establishment IDs. An empty
// list collapses to MatchNone.
func EstablishmentIn(ids ...int64) Predicate {
	return newIDPredicate(kindEstablishmentIn, ids)
}

func newIDPredicate(kind predicateKind, ids []int64) Predicate {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return MatchNone()
	}
	slices.Sort(out)
	out = slices.Compact(out)
	return Predicate{kind: kind, ids: out}
}

// IsUnrestricted reports whether the predicate applies no restriction.
func (p Predicate) IsUnrestricted() bool {
	return p.kind == kindUnrestricted
}

// IsNone reports whether the predicate matches no rows.
func (p Predicate) IsNone() bool {
	return p.kind == kindNone
}

// TenantIDs returns the restricted tenant IDs, if any. The slice is a copy.
func (p Predicate) TenantIDs() []int64 {
	return slices.Clone(p.ids)
}

// Column returns the default column the predicate applies to.
func (p Predicate) Column() string {
	switch p.kind {
	case kindCompanyIn:
		return "company_id"
	case kindEstablishmentIn:
		return "establishment_id"
	default:
		return ""
	}
}

// Matches reports whether a row with the given tenant ID satisfies the
// predicate. Collaborators filtering in memory use this; SQL consumers use
// SQL instead.
func (p Predicate) Matches(tenantID int64) bool {
	switch p.kind {
	case kindUnrestricted:
		return true
	case kindCompanyIn, kindEstablishmentIn:
		_, found := slices.BinarySearch(p.ids, tenantID)
		return found
	default:
		return false
	}
}

// SQL renders the predicate as a pgx-placeholder fragment against the given
// column, numbering placeholders from $1. MatchNone renders FALSE and
// Unrestricted renders TRUE, so the fragment is always safe to AND into a
// WHERE clause.
func (p Predicate) SQL(column string) (string, []any) {
	return p.SQLAt(column, 1)
}

// SQLAt renders the predicate with placeholders numbered from arg, so the
// fragment composes with a query that already binds arg-1 parameters.
func (p Predicate) SQLAt(column string, arg int) (string, []any) {
	switch p.kind {
	case kindUnrestricted:
		return "TRUE", nil
	case kindCompanyIn, kindEstablishmentIn:
		if column == "" {
			column = p.Column()
		}
		if arg < 1 {
			arg = 1
		}
		return fmt.Sprintf("%s = ANY($%d)", column, arg), []any{p.ids}
	default:
		return "FALSE", nil
	}
}

// MarshalJSON renders the predicate for the HTTP surface.
func (p Predicate) MarshalJSON() ([]byte, error) {
	clause, _ := p.SQL("")
	return json.Marshal(struct {
		Kind   string  `json:"kind"`
		Column string  `json:"column,omitempty"`
		IDs    []int64 `json:"ids,omitempty"`
		SQL    string  `json:"sql"`
	}{
		Kind:   kindNames[p.kind],
		Column: p.Column(),
		IDs:    p.ids,
		SQL:    clause,
	})
}
