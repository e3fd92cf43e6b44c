package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/repository"
)

// SessionAuthenticator authenticates browser requests by session cookie.
//
// The cookie value is hashed before lookup; raw session tokens are never
// stored. A session authenticates only while it is unrevoked, unexpired,
// and still holds a provider access token: a session whose provider tokens
// were cleared is dead even if the row itself has not expired yet.
type SessionAuthenticator struct {
	sessions   repository.SessionRepository
	principals repository.PrincipalRepository
}

// NewSessionAuthenticator creates the session strategy.
func NewSessionAuthenticator(sessions repository.SessionRepository, principals repository.PrincipalRepository) *SessionAuthenticator {
	return &SessionAuthenticator{sessions: sessions, principals: principals}
}

// Authenticate validates the session cookie.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	var token string
	for _, cookie := range req.Cookies {
		if cookie.Name == auth.SessionCookieName {
			token = cookie.Value
			break
		}
	}
	if token == "" {
		return rejected(ReasonAuthRequired), nil
	}

	session, err := a.sessions.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rejected(ReasonInvalidToken), nil
		}
		return Outcome{}, fmt.Errorf("session lookup: %w", err)
	}

	if session.Revoked {
		return rejected(ReasonInvalidToken), nil
	}
	if session.ExpiresAt.Before(time.Now()) {
		return rejected(ReasonInvalidToken), nil
	}
	if session.AccessToken == "" {
		return rejected(ReasonInvalidToken), nil
	}

	principal, err := a.principals.GetByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rejected(ReasonUserUnknown), nil
		}
		return Outcome{}, fmt.Errorf("session principal lookup: %w", err)
	}

	bestEffort("session last-used bump", func() error {
		return a.sessions.UpdateLastUsed(ctx, session.ID)
	})

	id, err := principalIdentity(principal, StrategySession, session.ID, nil)
	if err != nil {
		return Outcome{}, err
	}
	return authenticated(id), nil
}

// HybridAuthenticator tries bearer authentication first and falls back to
// the session cookie. A broken bearer token does not block a valid session;
// both must fail for the request to be rejected.
type HybridAuthenticator struct {
	bearer  *BearerAuthenticator
	session *SessionAuthenticator
}

// NewHybridAuthenticator creates the hybrid strategy.
func NewHybridAuthenticator(bearer *BearerAuthenticator, session *SessionAuthenticator) *HybridAuthenticator {
	return &HybridAuthenticator{bearer: bearer, session: session}
}

// Authenticate tries bearer, then session.
func (a *HybridAuthenticator) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	bearerOutcome, err := a.bearer.Authenticate(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if bearerOutcome.State == StateAuthenticated {
		bearerOutcome.Identity.Strategy = string(StrategyHybrid)
		return bearerOutcome, nil
	}

	sessionOutcome, err := a.session.Authenticate(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if sessionOutcome.State == StateAuthenticated {
		sessionOutcome.Identity.Strategy = string(StrategyHybrid)
		return sessionOutcome, nil
	}

	// Both failed. Report the more specific failure: a presented-but-bad
	// credential beats a missing one.
	if bearerOutcome.Reason != ReasonAuthRequired {
		return bearerOutcome, nil
	}
	return sessionOutcome, nil
}
