package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/repository"
)

// mockPrincipalRepo is an in-memory PrincipalRepository.
type mockPrincipalRepo struct {
	principals map[string]*models.Principal

	// failWith, when set, is returned from every lookup.
	failWith error

	setSubjectCalls []string
	lastLoginCalls  []string
	setSubjectErr   error
}

func newMockPrincipalRepo(principals ...*models.Principal) *mockPrincipalRepo {
	m := &mockPrincipalRepo{principals: make(map[string]*models.Principal)}
	for _, p := range principals {
		m.principals[p.ID] = p
	}
	return m
}

func (m *mockPrincipalRepo) Create(ctx context.Context, p *models.Principal) error {
	if p.ID == "" {
		p.ID = fmt.Sprintf("principal-%d", len(m.principals)+1)
	}
	p.Username = strings.ToLower(p.Username)
	m.principals[p.ID] = p
	return nil
}

func (m *mockPrincipalRepo) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if p, ok := m.principals[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("principal %s: %w", id, repository.ErrNotFound)
}

func (m *mockPrincipalRepo) GetBySubject(ctx context.Context, subject string) (*models.Principal, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, p := range m.principals {
		if p.Subject != nil && *p.Subject == subject {
			return p, nil
		}
	}
	return nil, fmt.Errorf("subject %s: %w", subject, repository.ErrNotFound)
}

func (m *mockPrincipalRepo) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	folded := strings.ToLower(username)
	for _, p := range m.principals {
		if p.Username == folded {
			return p, nil
		}
	}
	return nil, fmt.Errorf("username %s: %w", username, repository.ErrNotFound)
}

func (m *mockPrincipalRepo) Update(ctx context.Context, p *models.Principal) error {
	m.principals[p.ID] = p
	return nil
}

func (m *mockPrincipalRepo) SetSubject(ctx context.Context, id string, subject string) error {
	m.setSubjectCalls = append(m.setSubjectCalls, id+"="+subject)
	if m.setSubjectErr != nil {
		return m.setSubjectErr
	}
	if p, ok := m.principals[id]; ok && !p.HasSubject() {
		p.Subject = &subject
	}
	return nil
}

func (m *mockPrincipalRepo) UpdateLastLogin(ctx context.Context, id string) error {
	m.lastLoginCalls = append(m.lastLoginCalls, id)
	return nil
}

func (m *mockPrincipalRepo) List(ctx context.Context) ([]models.Principal, error) {
	out := make([]models.Principal, 0, len(m.principals))
	for _, p := range m.principals {
		out = append(out, *p)
	}
	return out, nil
}

// mockSessionRepo is an in-memory SessionRepository.
type mockSessionRepo struct {
	sessions map[string]*models.Session

	failWith error

	lastUsedCalls    []string
	revokeCalls      []string
	updateTokenCalls int
	updateTokensErr  error
}

func newMockSessionRepo(sessions ...*models.Session) *mockSessionRepo {
	m := &mockSessionRepo{sessions: make(map[string]*models.Session)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *mockSessionRepo) Create(ctx context.Context, s *models.Session) error {
	if m.failWith != nil {
		return m.failWith
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("session-%d", len(m.sessions)+1)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
}

func (m *mockSessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session token: %w", repository.ErrNotFound)
}

func (m *mockSessionRepo) ListByPrincipal(ctx context.Context, principalID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range m.sessions {
		if s.PrincipalID == principalID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken, idToken string, expiresAt time.Time) error {
	m.updateTokenCalls++
	if m.updateTokensErr != nil {
		return m.updateTokensErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
	}
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.IDToken = idToken
	s.ExpiresAt = expiresAt
	return nil
}

func (m *mockSessionRepo) UpdateLastUsed(ctx context.Context, id string) error {
	m.lastUsedCalls = append(m.lastUsedCalls, id)
	return nil
}

func (m *mockSessionRepo) Revoke(ctx context.Context, id string) error {
	m.revokeCalls = append(m.revokeCalls, id)
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
	}
	s.Revoked = true
	return nil
}

func (m *mockSessionRepo) RevokeByPrincipal(ctx context.Context, principalID string) error {
	for _, s := range m.sessions {
		if s.PrincipalID == principalID {
			s.Revoked = true
		}
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// mockServiceTokenRepo is an in-memory ServiceTokenRepository.
type mockServiceTokenRepo struct {
	tokens map[string]*models.ServiceToken

	failWith error

	lastUsedCalls []string
}

func newMockServiceTokenRepo(tokens ...*models.ServiceToken) *mockServiceTokenRepo {
	m := &mockServiceTokenRepo{tokens: make(map[string]*models.ServiceToken)}
	for _, t := range tokens {
		m.tokens[t.ID] = t
	}
	return m
}

func (m *mockServiceTokenRepo) Create(ctx context.Context, t *models.ServiceToken) error {
	if m.failWith != nil {
		return m.failWith
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("token-%d", len(m.tokens)+1)
	}
	m.tokens[t.ID] = t
	return nil
}

func (m *mockServiceTokenRepo) GetByID(ctx context.Context, id string) (*models.ServiceToken, error) {
	if t, ok := m.tokens[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("service token %s: %w", id, repository.ErrNotFound)
}

func (m *mockServiceTokenRepo) GetByName(ctx context.Context, name string) (*models.ServiceToken, error) {
	for _, t := range m.tokens {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("service token %s: %w", name, repository.ErrNotFound)
}

func (m *mockServiceTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ServiceToken, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			return t, nil
		}
	}
	return nil, fmt.Errorf("service token: %w", repository.ErrNotFound)
}

func (m *mockServiceTokenRepo) List(ctx context.Context) ([]models.ServiceToken, error) {
	out := make([]models.ServiceToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockServiceTokenRepo) SetActive(ctx context.Context, id string, active bool) error {
	t, ok := m.tokens[id]
	if !ok {
		return fmt.Errorf("service token %s: %w", id, repository.ErrNotFound)
	}
	t.IsActive = active
	return nil
}

func (m *mockServiceTokenRepo) UpdateLastUsed(ctx context.Context, id string) error {
	m.lastUsedCalls = append(m.lastUsedCalls, id)
	return nil
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// fakeParser is a TokenParser test double keyed by raw token.
type fakeParser struct {
	claims map[string]map[string]any
}

func (p *fakeParser) Parse(ctx context.Context, raw string) (*auth.ClaimSet, error) {
	claims, ok := p.claims[raw]
	if !ok {
		return nil, fmt.Errorf("verify token: unknown token")
	}
	return auth.ClaimSetFromMap(claims), nil
}
