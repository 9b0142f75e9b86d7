// Package access compiles an entity's access-control descriptor into query
// predicates for a given caller.
package access

import (
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// Caller is the identity a request runs as
type Caller struct {
	ID          string
	Permissions []string
}

// Anonymous is the caller of unauthenticated requests
var Anonymous = Caller{}

// Authenticated reports whether the caller has an identity
func (c Caller) Authenticated() bool {
	return c.ID != ""
}

// HasPermission reports whether the caller holds the named permission
func (c Caller) HasPermission(name string) bool {
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Predicate returns the row filter of entity e for caller, with columns
// qualified by qualifier when it is non-empty. It returns nil for entities
// without access control.
//
// An anonymous caller owns nothing: owner-only matches no rows and
// owner-or-public matches public rows only.
func Predicate(e *schema.Entity, caller Caller, qualifier string) *query.PredicateGroup {
	ac := e.Access
	if ac.Kind == schema.AccessNone {
		return nil
	}

	owner := column(qualifier, ac.OwnerColumn)
	group := query.NewPredicateGroup(ac.Kind == schema.AccessOwnerOrPublic)

	if caller.Authenticated() {
		group.Add(owner, query.OpEqual, caller.ID)
	} else {
		group.Add(owner, query.OpIn, []interface{}{})
	}

	if ac.Kind == schema.AccessOwnerOrPublic {
		group.Add(column(qualifier, ac.PublicColumn), query.OpIsTrue, nil)
	}

	return group
}

// Apply narrows qb to the rows caller may see
func Apply(qb *query.QueryBuilder, e *schema.Entity, caller Caller, qualifier string) *query.QueryBuilder {
	return qb.WhereGroup(Predicate(e, caller, qualifier))
}

func column(qualifier, name string) string {
	if qualifier == "" {
		return name
	}
	return qualifier + "." + name
}
