package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/repository"
)

const (
	// introspectionCacheSize bounds the introspection result cache.
	introspectionCacheSize = 512
	// introspectionCacheTTL keeps results short-lived: revocation at the
	// provider must become visible within this window.
	introspectionCacheTTL = time.Minute
)

// Introspection is the normalized result of inspecting a provider token.
type Introspection struct {
	Active    bool
	Subject   string
	Scopes    []string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// LifecycleService handles provider token lifecycle: expiry inspection,
// refresh, introspection, and revocation.
//
// Refresh, remote introspection, and revocation are real HTTP calls against
// the configured provider. Expiry checks and JWT introspection are local
// decode-only reads.
type LifecycleService struct {
	cfg      *config.ProviderConfig
	sessions repository.SessionRepository
	party    rp.RelyingParty
	cache    *expirable.LRU[string, Introspection]

	mu             sync.Mutex
	resourceServer rs.ResourceServer

	now func() time.Time
}

// NewLifecycleService builds the lifecycle service. Construction performs
// OIDC discovery against the configured issuer.
func NewLifecycleService(ctx context.Context, cfg *config.ProviderConfig, sessions repository.SessionRepository) (*LifecycleService, error) {
	party, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, "", nil)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}
	return newLifecycleService(cfg, sessions, party), nil
}

func newLifecycleService(cfg *config.ProviderConfig, sessions repository.SessionRepository, party rp.RelyingParty) *LifecycleService {
	return &LifecycleService{
		cfg:      cfg,
		sessions: sessions,
		party:    party,
		cache:    expirable.NewLRU[string, Introspection](introspectionCacheSize, nil, introspectionCacheTTL),
		now:      time.Now,
	}
}

// TokenExpiry reads the exp claim of a JWT without verifying it. The token's
// authenticity is not at stake here, only scheduling.
func (s *LifecycleService) TokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

// IsExpired reports whether the token's exp claim is in the past.
// Unreadable tokens count as expired.
func (s *LifecycleService) IsExpired(raw string) bool {
	exp, err := s.TokenExpiry(raw)
	if err != nil {
		return true
	}
	return exp.Before(s.now())
}

// NeedsRefresh reports whether the token expires within the refresh buffer.
func (s *LifecycleService) NeedsRefresh(raw string) bool {
	exp, err := s.TokenExpiry(raw)
	if err != nil {
		return true
	}
	return exp.Before(s.now().Add(s.cfg.RefreshBuffer))
}

// Refresh exchanges the session's refresh token for a new provider token
// triple and persists it in a single UPDATE. Providers that rotate refresh
// tokens get the new one stored; providers that do not keep the old one.
func (s *LifecycleService) Refresh(ctx context.Context, session *models.Session) (*models.Session, error) {
	if session.RefreshToken == "" {
		return nil, fmt.Errorf("session %s has no refresh token", session.ID)
	}

	tokens, err := rp.RefreshTokens[*oidc.IDTokenClaims](ctx, s.party, session.RefreshToken, "", "")
	if err != nil {
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = session.RefreshToken
	}
	idToken := tokens.IDToken
	if idToken == "" {
		idToken = session.IDToken
	}

	err = s.sessions.UpdateTokens(ctx, session.ID, tokens.AccessToken, refreshToken, idToken, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	updated := *session
	updated.AccessToken = tokens.AccessToken
	updated.RefreshToken = refreshToken
	updated.IDToken = idToken
	return &updated, nil
}

// Introspect inspects a provider token. JWTs are introspected locally from
// their claims; opaque tokens go to the provider's introspection endpoint.
// Results are cached briefly.
func (s *LifecycleService) Introspect(ctx context.Context, raw string) (Introspection, error) {
	if cached, ok := s.cache.Get(raw); ok {
		return cached, nil
	}

	var (
		result Introspection
		err    error
	)
	if looksLikeJWT(raw) {
		result, err = s.introspectLocal(raw)
	} else {
		result, err = s.introspectRemote(ctx, raw)
	}
	if err != nil {
		return Introspection{}, err
	}

	s.cache.Add(raw, result)
	return result, nil
}

func (s *LifecycleService) introspectLocal(raw string) (Introspection, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Introspection{}, fmt.Errorf("parse token: %w", err)
	}

	result := Introspection{}
	if sub, err := claims.GetSubject(); err == nil {
		result.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		result.Issuer = iss
	}
	if aud, err := claims.GetAudience(); err == nil {
		result.Audience = aud
	}
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		result.Scopes = strings.Fields(scope)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
		result.Active = exp.Time.After(s.now())
	}
	return result, nil
}

func (s *LifecycleService) introspectRemote(ctx context.Context, raw string) (Introspection, error) {
	server, err := s.getResourceServer(ctx)
	if err != nil {
		return Introspection{}, err
	}

	resp, err := rs.Introspect[*oidc.IntrospectionResponse](ctx, server, raw)
	if err != nil {
		return Introspection{}, fmt.Errorf("introspect token: %w", err)
	}

	result := Introspection{
		Active:   resp.Active,
		Subject:  resp.Subject,
		Issuer:   resp.Issuer,
		Audience: []string(resp.Audience),
	}
	if len(resp.Scope) > 0 {
		result.Scopes = []string(resp.Scope)
	}
	if resp.Expiration != 0 {
		result.ExpiresAt = resp.Expiration.AsTime()
	}
	return result, nil
}

// getResourceServer lazily builds the introspection client; the first opaque
// token triggers discovery.
func (s *LifecycleService) getResourceServer(ctx context.Context) (rs.ResourceServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resourceServer != nil {
		return s.resourceServer, nil
	}

	var opts []rs.Option
	if s.cfg.TokenEndpoint != "" && s.cfg.IntrospectionEndpoint != "" {
		opts = append(opts, rs.WithStaticEndpoints(s.cfg.TokenEndpoint, s.cfg.IntrospectionEndpoint))
	}
	server, err := rs.NewResourceServerClientCredentials(ctx, s.cfg.Issuer, s.cfg.ClientID, s.cfg.ClientSecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("create introspection client: %w", err)
	}
	s.resourceServer = server
	return server, nil
}

// RevokeSession revokes a session locally and tells the provider to revoke
// its tokens. The local revocation is authoritative and must succeed; the
// provider calls are best effort, since the provider may be unreachable and
// the session must die regardless.
func (s *LifecycleService) RevokeSession(ctx context.Context, session *models.Session) error {
	if err := s.sessions.Revoke(ctx, session.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if session.AccessToken != "" {
		bestEffort("provider access token revocation", func() error {
			return rp.RevokeToken(ctx, s.party, session.AccessToken, "access_token")
		})
	}
	if session.RefreshToken != "" {
		bestEffort("provider refresh token revocation", func() error {
			return rp.RevokeToken(ctx, s.party, session.RefreshToken, "refresh_token")
		})
	}

	return nil
}

// EndSessionURL builds the provider's end-session redirect for a session's
// ID token. Returns "" when the provider has no end-session endpoint or the
// session carried no ID token; the caller falls back to the configured URL.
func (s *LifecycleService) EndSessionURL(idToken string) string {
	endpoint := s.cfg.EndSessionEndpoint
	if endpoint == "" {
		endpoint = s.party.GetEndSessionEndpoint()
	}
	if idToken == "" || endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("id_token_hint", idToken)
	u.RawQuery = q.Encode()
	return u.String()
}

// looksLikeJWT reports whether raw has the three-segment compact layout.
func looksLikeJWT(raw string) bool {
	return strings.Count(raw, ".") == 2
}
