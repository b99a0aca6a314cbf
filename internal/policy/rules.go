package policy

import (
	"context"
	"errors"

	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/session"
)

// OwnerOnly permits a principal to touch rows it owns.
func OwnerOnly(name string) Rule {
	return Rule{
		Name: name,
		Predicate: func(_ context.Context, c session.Claims, row Row) (bool, error) {
			if row == nil {
				return false, errors.New("owner rule requires a row")
			}
			return row.PolicyOwnerID() == c.PrincipalID, nil
		},
		scope: func(c session.Claims) Scope {
			return Scope{Kind: ScopeOwner, OwnerID: c.PrincipalID}
		},
	}
}

// RoleGated permits any row to principals holding the given role. The role
// comes from the session claims, never from a principal-table lookup.
func RoleGated(name string, role identity.Role) Rule {
	return Rule{
		Name: name,
		Predicate: func(_ context.Context, c session.Claims, _ Row) (bool, error) {
			return c.Role == role, nil
		},
		scope: func(c session.Claims) Scope {
			if c.Role == role {
				return Scope{Kind: ScopeAll}
			}
			return Scope{Kind: ScopeDeny}
		},
	}
}
