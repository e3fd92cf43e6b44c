package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"

	"github.com/canopyops/portal/internal/config"
)

// loginScopes are requested at login. Group memberships come from provider
// claim mapping, not from an extra scope.
var loginScopes = []string{"openid", "profile", "email"}

// RelyingParty drives the browser login flow (authorization code + PKCE)
// against the configured provider by wrapping the zitadel/oidc client.
type RelyingParty struct {
	rp rp.RelyingParty
}

// NewRelyingParty creates the login-flow OIDC client. The callback URL is
// derived from the portal's public base URL.
//
// Cookie keys are generated per process: state and PKCE cookies only need to
// survive one login round trip, so losing them on restart is harmless.
func NewRelyingParty(ctx context.Context, cfg *config.ProviderConfig, serverURL string) (*RelyingParty, error) {
	hashKey, err := generateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate cookie hash key: %w", err)
	}
	cryptoKey, err := generateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate cookie crypto key: %w", err)
	}

	secure := strings.HasPrefix(serverURL, "https://")
	var cookieOpts []httphelper.CookieHandlerOpt
	if !secure {
		cookieOpts = append(cookieOpts, httphelper.WithUnsecure())
	}
	cookieHandler := httphelper.NewCookieHandler(hashKey, cryptoKey, cookieOpts...)

	options := []rp.Option{
		rp.WithCookieHandler(cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(10 * time.Second)),
		rp.WithPKCE(cookieHandler),
	}

	redirectURI := strings.TrimSuffix(serverURL, "/") + "/auth/sso/callback"
	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret,
		redirectURI, loginScopes, options...)
	if err != nil {
		return nil, fmt.Errorf("create OIDC relying party: %w", err)
	}

	return &RelyingParty{rp: relyingParty}, nil
}

// RP exposes the wrapped zitadel/oidc relying party for the library's
// login and callback handlers.
func (r *RelyingParty) RP() rp.RelyingParty {
	return r.rp
}

func generateRandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("generate random bytes: %w", err)
	}
	return b, nil
}

// GenerateNonce generates a random nonce string for OIDC state.
func GenerateNonce() (string, error) {
	b, err := generateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
