package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/canopyops/portal/internal/db/models"
)

// BunPrincipalRepository implements PrincipalRepository using Bun ORM
type BunPrincipalRepository struct {
	db *bun.DB
}

// NewBunPrincipalRepository creates a new Bun-based principal repository
func NewBunPrincipalRepository(db *bun.DB) *BunPrincipalRepository {
	return &BunPrincipalRepository{db: db}
}

// Create inserts a new principal. Usernames are stored case-folded.
func (r *BunPrincipalRepository) Create(ctx context.Context, p *models.Principal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Username = strings.ToLower(p.Username)
	_, err := r.db.NewInsert().
		Model(p).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create principal: %w", err)
	}
	return nil
}

// GetByID retrieves a principal by ID
func (r *BunPrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	p := new(models.Principal)
	err := r.db.NewSelect().
		Model(p).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

// GetBySubject retrieves a principal by provider subject identifier
func (r *BunPrincipalRepository) GetBySubject(ctx context.Context, subject string) (*models.Principal, error) {
	p := new(models.Principal)
	err := r.db.NewSelect().
		Model(p).
		Where("subject = ?", subject).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal with subject %s: %w", subject, ErrNotFound)
		}
		return nil, fmt.Errorf("get principal by subject: %w", err)
	}
	return p, nil
}

// GetByUsername retrieves a principal by case-folded username
func (r *BunPrincipalRepository) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	p := new(models.Principal)
	err := r.db.NewSelect().
		Model(p).
		Where("username = ?", strings.ToLower(username)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal %s: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("get principal by username: %w", err)
	}
	return p, nil
}

// Update updates an existing principal
func (r *BunPrincipalRepository) Update(ctx context.Context, p *models.Principal) error {
	p.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(p).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("principal %s: %w", p.ID, ErrNotFound)
	}

	return nil
}

// SetSubject backfills the provider subject on a principal that was
// provisioned before its first login. Only empty subjects are overwritten.
func (r *BunPrincipalRepository) SetSubject(ctx context.Context, id string, subject string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Principal)(nil)).
		Set("subject = ?", subject).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("subject IS NULL OR subject = ''").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set principal subject: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login_at timestamp
func (r *BunPrincipalRepository) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Principal)(nil)).
		Set("last_login_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// List retrieves all principals
func (r *BunPrincipalRepository) List(ctx context.Context) ([]models.Principal, error) {
	var principals []models.Principal
	err := r.db.NewSelect().
		Model(&principals).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	return principals, nil
}
