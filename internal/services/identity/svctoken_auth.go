package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/repository"
)

// MinServiceSecretLength is the shortest pre-shared secret the portal will
// even look up. Anything shorter is rejected before touching the database,
// which keeps trivially-short guesses from generating lookup traffic.
const MinServiceSecretLength = 32

// ServiceTokenAuthenticator authenticates pre-shared service secrets
// presented as bearer tokens by non-interactive callers.
//
// Matching is an exact SHA-256 comparison against stored hashes. Inactive
// and expired tokens fail with the same uniform reason as unknown ones.
type ServiceTokenAuthenticator struct {
	tokens repository.ServiceTokenRepository
}

// NewServiceTokenAuthenticator creates the service token strategy.
func NewServiceTokenAuthenticator(tokens repository.ServiceTokenRepository) *ServiceTokenAuthenticator {
	return &ServiceTokenAuthenticator{tokens: tokens}
}

// Authenticate validates a pre-shared service secret.
func (a *ServiceTokenAuthenticator) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	secret := extractBearerToken(req.Headers.Get("Authorization"))
	if secret == "" {
		return rejected(ReasonAuthRequired), nil
	}
	if len(secret) < MinServiceSecretLength {
		// No lookup for short secrets.
		return rejected(ReasonInvalidToken), nil
	}

	token, err := a.tokens.GetByTokenHash(ctx, auth.HashToken(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rejected(ReasonInvalidToken), nil
		}
		return Outcome{}, fmt.Errorf("service token lookup: %w", err)
	}

	if !token.IsActive {
		return rejected(ReasonInvalidToken), nil
	}
	if token.Expired(time.Now()) {
		return rejected(ReasonInvalidToken), nil
	}

	bestEffort("service token last-used bump", func() error {
		return a.tokens.UpdateLastUsed(ctx, token.ID)
	})

	return authenticated(&Identity{
		Kind:        auth.IdentityKindService,
		PrincipalID: token.ID,
		Username:    token.Name,
		ServiceType: token.ServiceType,
		Strategy:    string(StrategyServiceToken),
	}), nil
}
