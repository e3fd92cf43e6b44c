package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/pgrole"
)

// DatabaseRoleScope brackets the request in a database privilege scope
// matching the authenticated principal's role. Handlers below it that go
// through guard.DB(ctx) run their queries under the matching portal_* role.
//
// Requests with no identity or with a service identity pass through
// unscoped; service routes own their privilege decisions via service type.
func DatabaseRoleScope(guard *pgrole.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok || id.Kind != auth.IdentityKindPrincipal {
				next.ServeHTTP(w, r)
				return
			}

			err := guard.WithRole(r.Context(), id.Role, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			if err != nil {
				log.Printf("database role scope: %v", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		})
	}
}
