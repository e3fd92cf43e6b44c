package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/config"
)

// TokenParser turns a raw bearer token into a verified claim set.
// The production implementation verifies the signature against the provider
// JWKS; tests substitute their own.
type TokenParser interface {
	Parse(ctx context.Context, raw string) (*auth.ClaimSet, error)
}

// jwksParser verifies bearer tokens against the provider's JWKS via OIDC
// discovery, enforcing issuer and audience.
type jwksParser struct {
	handler *oidctoken.TokenHandler[map[string]any]
}

// NewJWKSTokenParser builds the verifying token parser for the configured
// provider. JWKS loading is lazy so construction does not require the
// provider to be reachable.
func NewJWKSTokenParser(p *config.ProviderConfig) (TokenParser, error) {
	if p.Issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}
	if p.ClientID == "" {
		return nil, fmt.Errorf("oidc client id is required")
	}

	oidcOpts := []options.Option{
		options.WithIssuer(p.Issuer),
		options.WithRequiredAudience(p.ClientID),
		options.WithLazyLoadJwks(true),
	}
	if p.JWKSEndpoint != "" {
		oidcOpts = append(oidcOpts, options.WithJwksUri(p.JWKSEndpoint))
	}

	handler, err := oidctoken.New[map[string]any](nil, oidcOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize oidc token handler: %w", err)
	}

	return &jwksParser{handler: handler}, nil
}

func (p *jwksParser) Parse(ctx context.Context, raw string) (*auth.ClaimSet, error) {
	claims, err := p.handler.ParseToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return auth.ClaimSetFromMap(claims), nil
}

// BearerAuthenticator authenticates Authorization bearer tokens.
//
// Bearer routes are never public: a missing or empty Authorization header is
// a rejection, not anonymous passage. Clients of these routes always intend
// to authenticate.
type BearerAuthenticator struct {
	parser      TokenParser
	resolver    *Resolver
	groupsField string
	groupsPath  string
}

// NewBearerAuthenticator creates the bearer strategy.
func NewBearerAuthenticator(parser TokenParser, resolver *Resolver, groupsField, groupsPath string) *BearerAuthenticator {
	return &BearerAuthenticator{
		parser:      parser,
		resolver:    resolver,
		groupsField: groupsField,
		groupsPath:  groupsPath,
	}
}

// Authenticate extracts and verifies the bearer token.
func (a *BearerAuthenticator) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	raw := extractBearerToken(req.Headers.Get("Authorization"))
	if raw == "" {
		return rejected(ReasonAuthRequired), nil
	}

	cs, err := a.parser.Parse(ctx, raw)
	if err != nil || cs.Subject == "" {
		return rejected(ReasonInvalidToken), nil
	}

	groups, err := auth.ExtractGroups(cs.Raw, a.groupsField, a.groupsPath)
	if err != nil {
		// Callers may have no groups; a malformed claim is not fatal.
		groups = nil
	}

	ident := &auth.HeaderIdentity{
		Subject:  cs.Subject,
		Email:    cs.Email,
		Name:     cs.Name,
		Username: cs.Username(),
		Groups:   groups,
	}

	principal, err := a.resolver.Resolve(ctx, ident)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return rejected(ReasonUserUnknown), nil
		}
		return Outcome{}, fmt.Errorf("bearer authentication: %w", err)
	}

	id, err := principalIdentity(principal, StrategyBearer, "", groups)
	if err != nil {
		return Outcome{}, err
	}
	return authenticated(id), nil
}

// extractBearerToken pulls the token out of an Authorization header value.
// Returns "" for missing, non-bearer, or empty-token headers.
func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
