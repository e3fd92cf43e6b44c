// Package middleware provides the HTTP middleware chain: authentication,
// role authorization, and per-request database privilege scoping.
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/services/identity"
	"github.com/canopyops/portal/internal/telemetry"
)

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// Authenticator dispatches a request to a named strategy.
// *identity.Service is the production implementation.
type Authenticator interface {
	Authenticate(ctx context.Context, strategy identity.Strategy, req identity.Request) (identity.Outcome, error)
}

// Authenticate runs the given strategy on every request.
//
// Rejected requests get a 401 with the strategy's uniform reason and never
// reach the handler. Public outcomes pass through with no identity on the
// context; route handlers decide what anonymous callers may do.
// Infrastructure failures are a 500, not a 401: the caller did nothing wrong.
func Authenticate(svc Authenticator, strategy identity.Strategy, metrics *telemetry.AuthMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome, err := svc.Authenticate(r.Context(), strategy, identity.RequestFrom(r))
			if err != nil {
				log.Printf("authenticate (%s): %v", strategy, err)
				metrics.RecordAttempt(r.Context(), string(strategy), "error")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			switch outcome.State {
			case identity.StateAuthenticated:
				metrics.RecordAttempt(r.Context(), string(strategy), "authenticated")
				ctx := auth.SetIdentityContext(r.Context(), *outcome.Identity)
				next.ServeHTTP(w, r.WithContext(ctx))
			case identity.StatePublic:
				metrics.RecordAttempt(r.Context(), string(strategy), "public")
				next.ServeHTTP(w, r)
			default:
				metrics.RecordAttempt(r.Context(), string(strategy), "rejected")
				writeError(w, http.StatusUnauthorized, outcome.Reason)
			}
		})
	}
}
