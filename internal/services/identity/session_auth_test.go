package identity

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/db/models"
)

func sessionRequest(token string) Request {
	req := Request{Headers: http.Header{}}
	if token != "" {
		req.Cookies = []*http.Cookie{{Name: auth.SessionCookieName, Value: token}}
	}
	return req
}

func validSession(id, principalID, token string) *models.Session {
	return &models.Session{
		ID:          id,
		PrincipalID: principalID,
		TokenHash:   auth.HashToken(token),
		AccessToken: "provider-access-token",
		ExpiresAt:   time.Now().Add(time.Hour),
		CreatedAt:   time.Now().Add(-time.Hour),
		LastUsedAt:  time.Now().Add(-time.Minute),
	}
}

func TestSessionAuthAuthenticates(t *testing.T) {
	sessions := newMockSessionRepo(validSession("s1", "p1", "cookie-token"))
	principals := newMockPrincipalRepo(&models.Principal{
		ID: "p1", Username: "alice@example.com", Role: "customer",
	})
	a := NewSessionAuthenticator(sessions, principals)

	out, err := a.Authenticate(context.Background(), sessionRequest("cookie-token"))
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, "p1", out.Identity.PrincipalID)
	assert.Equal(t, "s1", out.Identity.SessionID)
	assert.Equal(t, string(StrategySession), out.Identity.Strategy)
	assert.Equal(t, []string{"s1"}, sessions.lastUsedCalls)
}

func TestSessionAuthMissingCookie(t *testing.T) {
	a := NewSessionAuthenticator(newMockSessionRepo(), newMockPrincipalRepo())

	out, err := a.Authenticate(context.Background(), sessionRequest(""))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonAuthRequired, out.Reason)
}

func TestSessionAuthUnknownToken(t *testing.T) {
	a := NewSessionAuthenticator(newMockSessionRepo(), newMockPrincipalRepo())

	out, err := a.Authenticate(context.Background(), sessionRequest("nope"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInvalidToken, out.Reason)
}

func TestSessionAuthRevoked(t *testing.T) {
	s := validSession("s1", "p1", "cookie-token")
	s.Revoked = true
	a := NewSessionAuthenticator(newMockSessionRepo(s), newMockPrincipalRepo())

	out, err := a.Authenticate(context.Background(), sessionRequest("cookie-token"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInvalidToken, out.Reason)
}

func TestSessionAuthExpired(t *testing.T) {
	s := validSession("s1", "p1", "cookie-token")
	s.ExpiresAt = time.Now().Add(-time.Minute)
	a := NewSessionAuthenticator(newMockSessionRepo(s), newMockPrincipalRepo())

	out, err := a.Authenticate(context.Background(), sessionRequest("cookie-token"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInvalidToken, out.Reason)
}

func TestSessionAuthClearedProviderTokens(t *testing.T) {
	s := validSession("s1", "p1", "cookie-token")
	s.AccessToken = ""
	a := NewSessionAuthenticator(newMockSessionRepo(s), newMockPrincipalRepo())

	out, err := a.Authenticate(context.Background(), sessionRequest("cookie-token"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInvalidToken, out.Reason)
}

func TestSessionAuthOrphanedPrincipal(t *testing.T) {
	a := NewSessionAuthenticator(
		newMockSessionRepo(validSession("s1", "p-gone", "cookie-token")),
		newMockPrincipalRepo())

	out, err := a.Authenticate(context.Background(), sessionRequest("cookie-token"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonUserUnknown, out.Reason)
}

func hybridFixture(parser TokenParser, sessions *mockSessionRepo, principals *mockPrincipalRepo) *HybridAuthenticator {
	resolver := NewResolver(principals)
	bearer := NewBearerAuthenticator(parser, resolver, "groups", "")
	session := NewSessionAuthenticator(sessions, principals)
	return NewHybridAuthenticator(bearer, session)
}

func TestHybridPrefersBearer(t *testing.T) {
	principals := newMockPrincipalRepo(&models.Principal{
		ID: "p1", Subject: strPtr("sub-1"), Username: "alice@example.com", Role: "staff",
	})
	parser := &fakeParser{claims: map[string]map[string]any{
		"api-token": {"sub": "sub-1", "email": "alice@example.com"},
	}}
	a := hybridFixture(parser, newMockSessionRepo(validSession("s1", "p1", "cookie-token")), principals)

	req := sessionRequest("cookie-token")
	req.Headers.Set("Authorization", "Bearer api-token")

	out, err := a.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, string(StrategyHybrid), out.Identity.Strategy)
	// Bearer won; no session id attached.
	assert.Empty(t, out.Identity.SessionID)
}

func TestHybridFallsBackToSession(t *testing.T) {
	principals := newMockPrincipalRepo(&models.Principal{
		ID: "p1", Username: "alice@example.com", Role: "customer",
	})
	a := hybridFixture(&fakeParser{}, newMockSessionRepo(validSession("s1", "p1", "cookie-token")), principals)

	out, err := a.Authenticate(context.Background(), sessionRequest("cookie-token"))
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, string(StrategyHybrid), out.Identity.Strategy)
	assert.Equal(t, "s1", out.Identity.SessionID)
}

func TestHybridBadBearerDoesNotBlockValidSession(t *testing.T) {
	principals := newMockPrincipalRepo(&models.Principal{
		ID: "p1", Username: "alice@example.com", Role: "customer",
	})
	a := hybridFixture(&fakeParser{}, newMockSessionRepo(validSession("s1", "p1", "cookie-token")), principals)

	req := sessionRequest("cookie-token")
	req.Headers.Set("Authorization", "Bearer forged")

	out, err := a.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, out.State)
}

func TestHybridBothFailReportsSpecificReason(t *testing.T) {
	a := hybridFixture(&fakeParser{}, newMockSessionRepo(), newMockPrincipalRepo())

	// Bearer presented but bad, no cookie: the bearer failure wins.
	req := sessionRequest("")
	req.Headers.Set("Authorization", "Bearer forged")
	out, err := a.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInvalidToken, out.Reason)

	// Nothing presented at all.
	out, err = a.Authenticate(context.Background(), sessionRequest(""))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonAuthRequired, out.Reason)

	// No bearer, bad cookie: the session failure wins.
	out, err = a.Authenticate(context.Background(), sessionRequest("nope"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInvalidToken, out.Reason)
}
