// Package identity implements the portal's authentication strategies and
// identity resolution.
//
// Each route group picks exactly one strategy at registration time. A
// strategy inspects its trust source (proxy headers, bearer token, session
// cookie, or pre-shared service secret), resolves the caller against the
// database, and reports one of three outcomes: authenticated, public, or
// rejected. Strategies never create principals.
package identity

import (
	"context"
	"log"
	"net/http"

	"github.com/canopyops/portal/internal/auth"
)

// Strategy names an authentication strategy. The set is closed; routes are
// bound to one of these at registration time, never per request.
type Strategy string

const (
	// StrategyHeader trusts identity headers injected by the load balancer.
	StrategyHeader Strategy = "header"
	// StrategyBearer verifies Authorization bearer tokens against the
	// provider JWKS.
	StrategyBearer Strategy = "bearer"
	// StrategySession validates the browser session cookie.
	StrategySession Strategy = "session"
	// StrategyHybrid tries bearer first, then session.
	StrategyHybrid Strategy = "hybrid"
	// StrategyServiceToken validates pre-shared service secrets.
	StrategyServiceToken Strategy = "service_token"
)

// Uniform rejection reasons. These are the only strings surfaced to
// unauthenticated callers; anything more specific would let a caller probe
// which principals exist.
const (
	ReasonAuthRequired = "authentication required"
	ReasonInvalidToken = "invalid token"
	ReasonUserUnknown  = "user not found in system"
)

// OutcomeState classifies an authentication attempt.
type OutcomeState int

const (
	// StateRejected: credentials were presented or required but did not
	// check out. The request must not proceed.
	StateRejected OutcomeState = iota
	// StatePublic: no credentials were presented and the strategy allows
	// anonymous passage. Distinct from rejection by construction.
	StatePublic
	// StateAuthenticated: the caller is known; Identity is set.
	StateAuthenticated
)

// Outcome is the result of one authentication attempt.
type Outcome struct {
	State OutcomeState
	// Reason is one of the uniform rejection strings when State is
	// StateRejected, empty otherwise.
	Reason string
	// Identity is set when State is StateAuthenticated.
	Identity *Identity
}

// Identity aliases the context-propagated identity type; strategies produce
// it and the middleware stores it on the request context.
type Identity = auth.Identity

// Authenticator is one authentication strategy.
//
// The error return is reserved for infrastructure failures (database down,
// provider unreachable) that should surface as a server error. Everything
// the caller did wrong is an Outcome, not an error.
type Authenticator interface {
	Authenticate(ctx context.Context, req Request) (Outcome, error)
}

// Request wraps the request data authenticators read.
type Request struct {
	Headers http.Header
	Cookies []*http.Cookie
}

// RequestFrom builds a Request from an http.Request.
func RequestFrom(r *http.Request) Request {
	return Request{Headers: r.Header, Cookies: r.Cookies()}
}

func rejected(reason string) Outcome {
	return Outcome{State: StateRejected, Reason: reason}
}

func public() Outcome {
	return Outcome{State: StatePublic}
}

func authenticated(id *Identity) Outcome {
	return Outcome{State: StateAuthenticated, Identity: id}
}

// bestEffort runs a side effect whose failure must never abort the request
// (subject backfill, last-used bumps, remote revocation). Failures are
// logged and dropped.
func bestEffort(what string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("best-effort %s: %v", what, err)
	}
}
