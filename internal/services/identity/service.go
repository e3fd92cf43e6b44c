package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/repository"
)

// ServiceSecretLength is the size in bytes of generated service secrets.
// Hex encoding doubles it, comfortably above MinServiceSecretLength.
const ServiceSecretLength = 48

// Service is the identity facade: it owns one authenticator per strategy
// and the session/service-token write paths.
type Service struct {
	principals repository.PrincipalRepository
	sessions   repository.SessionRepository
	tokens     repository.ServiceTokenRepository
	resolver   *Resolver

	authenticators map[Strategy]Authenticator
	lifecycle      *LifecycleService
}

// Dependencies wires the identity service.
type Dependencies struct {
	Principals repository.PrincipalRepository
	Sessions   repository.SessionRepository
	Tokens     repository.ServiceTokenRepository

	// TokenParser verifies bearer tokens. Required when Provider is
	// enabled; tests inject fakes.
	TokenParser TokenParser

	// Lifecycle handles provider token refresh/revocation. Optional;
	// logout degrades to local-only revocation without it.
	Lifecycle *LifecycleService
}

// NewService assembles the strategy authenticators from their dependencies.
func NewService(cfg *config.ProviderConfig, deps Dependencies) *Service {
	resolver := NewResolver(deps.Principals)

	validator := auth.NewHeaderValidator(
		cfg.IssuerFragment, cfg.GroupsClaimField, cfg.GroupsClaimPath, cfg.StrictHeaders)

	header := NewHeaderAuthenticator(validator, resolver)
	bearer := NewBearerAuthenticator(deps.TokenParser, resolver, cfg.GroupsClaimField, cfg.GroupsClaimPath)
	session := NewSessionAuthenticator(deps.Sessions, deps.Principals)
	hybrid := NewHybridAuthenticator(bearer, session)
	svctoken := NewServiceTokenAuthenticator(deps.Tokens)

	return &Service{
		principals: deps.Principals,
		sessions:   deps.Sessions,
		tokens:     deps.Tokens,
		resolver:   resolver,
		lifecycle:  deps.Lifecycle,
		authenticators: map[Strategy]Authenticator{
			StrategyHeader:       header,
			StrategyBearer:       bearer,
			StrategySession:      session,
			StrategyHybrid:       hybrid,
			StrategyServiceToken: svctoken,
		},
	}
}

// Authenticate runs the named strategy against the request.
func (s *Service) Authenticate(ctx context.Context, strategy Strategy, req Request) (Outcome, error) {
	a, ok := s.authenticators[strategy]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown authentication strategy %q", strategy)
	}
	return a.Authenticate(ctx, req)
}

// Lifecycle exposes the token lifecycle service, when configured.
func (s *Service) Lifecycle() *LifecycleService {
	return s.lifecycle
}

// ResolvePrincipal maps an asserted provider identity to a stored principal.
// Returns ErrPrincipalNotFound for identities the portal has never been told
// about; nothing is created.
func (s *Service) ResolvePrincipal(ctx context.Context, ident *auth.HeaderIdentity) (*models.Principal, error) {
	return s.resolver.Resolve(ctx, ident)
}

// ProviderTokens is the token triple obtained from the provider at login.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// CreateSession mints a browser session for a principal: an opaque random
// token for the cookie, its SHA-256 hash and the provider token triple in
// the database. Returns the session row and the raw cookie token. The raw
// token is returned exactly once and never stored.
func (s *Service) CreateSession(ctx context.Context, principalID string, tokens ProviderTokens, userAgent, ipAddress string) (*models.Session, string, error) {
	if tokens.AccessToken == "" {
		return nil, "", fmt.Errorf("session requires a provider access token")
	}

	token, tokenHash, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		PrincipalID:  principalID,
		TokenHash:    tokenHash,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		ExpiresAt:    auth.SessionExpiry(now),
		CreatedAt:    now,
		LastUsedAt:   now,
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ipAddress != "" {
		session.IPAddress = &ipAddress
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}

	bestEffort("principal last-login bump", func() error {
		return s.principals.UpdateLastLogin(ctx, principalID)
	})

	return session, token, nil
}

// Logout terminates a session. Local revocation always succeeds when the
// row exists; provider-side revocation is best effort. Returns the
// provider's end-session URL when one is available, "" otherwise.
func (s *Service) Logout(ctx context.Context, sessionID string) (string, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if s.lifecycle != nil {
		if err := s.lifecycle.RevokeSession(ctx, session); err != nil {
			return "", err
		}
		return s.lifecycle.EndSessionURL(session.IDToken), nil
	}

	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return "", err
	}
	return "", nil
}

// CreateServiceToken mints a pre-shared service secret. Returns the token
// row and the raw secret; the secret is shown exactly once and only its
// hash is stored.
func (s *Service) CreateServiceToken(ctx context.Context, name, serviceType string, expiresAt *time.Time) (*models.ServiceToken, string, error) {
	if !models.ValidServiceType(serviceType) {
		return nil, "", fmt.Errorf("invalid service type %q", serviceType)
	}

	secretBytes := make([]byte, ServiceSecretLength)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("generate service secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	token := &models.ServiceToken{
		Name:        name,
		TokenHash:   auth.HashToken(secret),
		ServiceType: serviceType,
		IsActive:    true,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, "", err
	}

	return token, secret, nil
}
