package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/db/models"
)

// HeaderAuthenticator authenticates requests from the trusted proxy's
// identity headers.
//
// The proxy is the trust boundary: it strips client-supplied copies of the
// identity headers before injecting its own, so their payloads are decoded
// without signature verification. What still gets checked is coherence:
// issuer, expiry, and agreement between the companion headers.
//
// Outcomes:
//   - no identity headers at all: public. The route decides what anonymous
//     callers may do.
//   - headers present but invalid: rejected. Never downgraded to public.
//   - headers valid but no matching principal: rejected.
type HeaderAuthenticator struct {
	validator *auth.HeaderValidator
	resolver  *Resolver
}

// NewHeaderAuthenticator creates the header strategy.
func NewHeaderAuthenticator(validator *auth.HeaderValidator, resolver *Resolver) *HeaderAuthenticator {
	return &HeaderAuthenticator{validator: validator, resolver: resolver}
}

// Authenticate inspects the proxy identity headers.
func (a *HeaderAuthenticator) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	result := a.validator.Validate(req.Headers)

	if result.Public {
		return public(), nil
	}
	if !result.Valid {
		return rejected(ReasonInvalidToken), nil
	}

	principal, err := a.resolver.Resolve(ctx, result.Identity)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return rejected(ReasonUserUnknown), nil
		}
		return Outcome{}, fmt.Errorf("header authentication: %w", err)
	}

	id, err := principalIdentity(principal, StrategyHeader, "", result.Identity.Groups)
	if err != nil {
		return Outcome{}, err
	}
	return authenticated(id), nil
}

// principalIdentity builds the context identity for a resolved principal.
func principalIdentity(p *models.Principal, strategy Strategy, sessionID string, groups []string) (*Identity, error) {
	role, err := auth.ParseRole(p.Role)
	if err != nil {
		return nil, fmt.Errorf("principal %s: %w", p.ID, err)
	}

	return &Identity{
		Kind:        auth.IdentityKindPrincipal,
		PrincipalID: p.ID,
		Subject:     p.SubjectOrEmpty(),
		Username:    p.Username,
		Email:       p.Email,
		Name:        p.Name,
		Role:        role,
		SessionID:   sessionID,
		Strategy:    string(strategy),
		Groups:      groups,
	}, nil
}
