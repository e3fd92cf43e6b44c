package repository

import (
	"context"
	"errors"
	"time"

	"github.com/canopyops/portal/internal/db/models"
)

// ErrNotFound is wrapped by repository lookups when no row matches.
// Callers branch with errors.Is.
var ErrNotFound = errors.New("not found")

// PrincipalRepository provides access to principal rows. Nothing here
// creates principals implicitly; Create is reserved for administrative
// tooling and migrations.
type PrincipalRepository interface {
	Create(ctx context.Context, p *models.Principal) error
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	GetBySubject(ctx context.Context, subject string) (*models.Principal, error)
	GetByUsername(ctx context.Context, username string) (*models.Principal, error)
	Update(ctx context.Context, p *models.Principal) error
	// SetSubject backfills the provider subject on first authenticated use.
	SetSubject(ctx context.Context, id string, subject string) error
	UpdateLastLogin(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Principal, error)
}

// SessionRepository provides access to browser session rows.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]models.Session, error)
	// UpdateTokens replaces the provider token triple and expiry in a
	// single statement.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken, idToken string, expiresAt time.Time) error
	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeByPrincipal(ctx context.Context, principalID string) error
	// DeleteExpired removes sessions whose expiry is before cutoff.
	// Returns the number of rows removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ServiceTokenRepository provides access to pre-shared service token rows.
type ServiceTokenRepository interface {
	Create(ctx context.Context, t *models.ServiceToken) error
	GetByID(ctx context.Context, id string) (*models.ServiceToken, error)
	GetByName(ctx context.Context, name string) (*models.ServiceToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.ServiceToken, error)
	List(ctx context.Context) ([]models.ServiceToken, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdateLastUsed(ctx context.Context, id string) error
}
