package auth

import "fmt"

// Role is the portal's access tier. The set is closed and totally ordered:
// customer < staff < admin. There are no other roles and no partial orders.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// roleLevels maps each role to its position in the total order.
var roleLevels = map[Role]int{
	RoleCustomer: 1,
	RoleStaff:    2,
	RoleAdmin:    3,
}

// ParseRole converts a stored role string into a Role, rejecting anything
// outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the role's position in the total order. Unknown roles map
// to 0, below every valid role.
func (r Role) Level() int {
	return roleLevels[r]
}

// Meets reports whether r satisfies the required role hierarchically:
// a role meets every requirement at or below its own level. Unknown roles
// on either side never match.
func (r Role) Meets(required Role) bool {
	if !r.Valid() || !required.Valid() {
		return false
	}
	return r.Level() >= required.Level()
}

// RoleAuthorizer decides whether a held role satisfies a requirement.
// The zero value checks hierarchically; Exact restricts the check to the
// named role only, with no inheritance in either direction.
type RoleAuthorizer struct {
	Exact bool
}

// Authorize reports whether the held role satisfies the requirement under
// the authorizer's mode.
func (a RoleAuthorizer) Authorize(held, required Role) bool {
	if a.Exact {
		return held.Valid() && held == required
	}
	return held.Meets(required)
}
