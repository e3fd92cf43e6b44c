package middleware

import (
	"net/http"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/services/identity"
)

// reasonForbidden is the uniform body for authorization failures. Like the
// authentication reasons it deliberately says nothing about which role or
// type would have been enough.
const reasonForbidden = "insufficient permissions"

// RequireRole admits human principals whose role meets the requirement
// hierarchically: staff routes admit staff and admin, customer routes admit
// everyone with a valid role.
//
// Requests with no identity on the context get a 401: this middleware sits
// behind a strategy whose public outcome let them through, and the route has
// now said anonymous is not enough. Service identities carry no role and are
// always refused here.
func RequireRole(required auth.Role) func(http.Handler) http.Handler {
	return requireRole(auth.RoleAuthorizer{}, required)
}

// RequireExactRole admits only the named role, with no inheritance in either
// direction. An admin does not pass an exact staff check.
func RequireExactRole(required auth.Role) func(http.Handler) http.Handler {
	return requireRole(auth.RoleAuthorizer{Exact: true}, required)
}

func requireRole(authorizer auth.RoleAuthorizer, required auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, identity.ReasonAuthRequired)
				return
			}
			if id.Kind != auth.IdentityKindPrincipal || !authorizer.Authorize(id.Role, required) {
				writeError(w, http.StatusForbidden, reasonForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireServiceType admits service callers of the listed types. Human
// principals never pass: machine routes and human routes do not overlap.
func RequireServiceType(types ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, identity.ReasonAuthRequired)
				return
			}
			if id.Kind != auth.IdentityKindService {
				writeError(w, http.StatusForbidden, reasonForbidden)
				return
			}
			if _, ok := allowed[id.ServiceType]; !ok {
				writeError(w, http.StatusForbidden, reasonForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
