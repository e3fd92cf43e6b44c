package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const (
	// SessionCookieName is the browser session cookie.
	SessionCookieName = "portal_session"

	// SessionDuration is the default session lifetime
	SessionDuration = 12 * time.Hour

	// SessionTokenLength is the length of generated session tokens in bytes
	SessionTokenLength = 32
)

// GenerateSessionToken generates a cryptographically secure random session token.
// Returns: token (hex string), token hash (SHA-256 hex), error.
// Only the hash is ever stored; the raw token goes into the cookie.
func GenerateSessionToken() (string, string, error) {
	tokenBytes := make([]byte, SessionTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}

	token := hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken hashes a token for storage/lookup. Returns SHA-256 hex.
// Used for both session tokens and pre-shared service secrets.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// SessionCookie builds the session cookie for a freshly minted token.
func SessionCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(SessionDuration),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie builds an expired session cookie. Setting it always
// succeeds locally, whatever the provider did.
func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionExpiry calculates session expiry from creation time.
func SessionExpiry(createdAt time.Time) time.Time {
	return createdAt.Add(SessionDuration)
}
