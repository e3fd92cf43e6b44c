package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/services/identity"
)

// whoamiResponse is the identity snapshot returned to authenticated callers.
type whoamiResponse struct {
	Kind        string   `json:"kind"`
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	ServiceType string   `json:"service_type,omitempty"`
	Strategy    string   `json:"strategy"`
	Groups      []string `json:"groups,omitempty"`
}

// HandleWhoAmI reports the authenticated identity from the request context.
func HandleWhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		resp := whoamiResponse{
			Kind:        string(id.Kind),
			ID:          id.PrincipalID,
			Username:    id.Username,
			Email:       id.Email,
			Name:        id.Name,
			Role:        string(id.Role),
			ServiceType: id.ServiceType,
			Strategy:    id.Strategy,
			Groups:      id.Groups,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HandleSSOLogin initiates the OIDC authorization code flow. The library
// handler generates the PKCE challenge, stores state and verifier cookies,
// and redirects to the provider.
func HandleSSOLogin(rpAuth *auth.RelyingParty) http.HandlerFunc {
	libraryAuthHandler := rp.AuthURLHandler(func() string {
		state, _ := auth.GenerateNonce()
		return state
	}, rpAuth.RP())
	return func(w http.ResponseWriter, r *http.Request) {
		libraryAuthHandler.ServeHTTP(w, r)
	}
}

// HandleSSOCallback exchanges the authorization code, resolves the asserted
// identity against stored principals, and establishes a session.
//
// Unknown users are turned away with the uniform reason; login never
// provisions a principal.
func HandleSSOCallback(rpAuth *auth.RelyingParty, svc *identity.Service, secureCookies bool) http.HandlerFunc {
	callback := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], state string, provider rp.RelyingParty) {
		ctx := r.Context()
		claims := tokens.IDTokenClaims

		principal, err := svc.ResolvePrincipal(ctx, &auth.HeaderIdentity{
			Subject:  claims.Subject,
			Email:    claims.Email,
			Name:     claims.Name,
			Username: usernameFromIDClaims(claims),
		})
		if err != nil {
			if errors.Is(err, identity.ErrPrincipalNotFound) {
				http.Error(w, identity.ReasonUserUnknown, http.StatusForbidden)
				return
			}
			log.Printf("sso callback: resolve principal (subject=%s): %v", claims.Subject, err)
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}

		_, token, err := svc.CreateSession(ctx, principal.ID, identity.ProviderTokens{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			IDToken:      tokens.IDToken,
		}, r.UserAgent(), clientIP(r))
		if err != nil {
			log.Printf("sso callback: create session (principal=%s): %v", principal.ID, err)
			http.Error(w, "Login failed", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, auth.SessionCookie(token, secureCookies))
		http.Redirect(w, r, "/", http.StatusFound)
	}
	return rp.CodeExchangeHandler(callback, rpAuth.RP())
}

// HandleLogout terminates the caller's session.
//
// The cookie is cleared unconditionally: local logout succeeds even when the
// provider is unreachable. When the provider advertises an end-session
// endpoint the browser is sent there, otherwise to the configured fallback.
func HandleLogout(svc *identity.Service, fallbackURL string, secureCookies bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok || id.SessionID == "" {
			http.Error(w, "No active session", http.StatusUnauthorized)
			return
		}

		endSessionURL, err := svc.Logout(r.Context(), id.SessionID)
		if err != nil {
			log.Printf("logout: session %s: %v", id.SessionID, err)
		}

		http.SetCookie(w, auth.ClearSessionCookie(secureCookies))

		redirect := endSessionURL
		if redirect == "" {
			redirect = fallbackURL
		}
		http.Redirect(w, r, redirect, http.StatusFound)
	}
}

// usernameFromIDClaims mirrors the claim precedence used everywhere else:
// email, then preferred username, then subject, case-folded.
func usernameFromIDClaims(claims *oidc.IDTokenClaims) string {
	switch {
	case claims.Email != "":
		return strings.ToLower(claims.Email)
	case claims.PreferredUsername != "":
		return strings.ToLower(claims.PreferredUsername)
	default:
		return strings.ToLower(claims.Subject)
	}
}

// clientIP extracts the remote address without the port.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}
