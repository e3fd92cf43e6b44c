package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/canopyops/portal/internal/db/models"
)

// BunServiceTokenRepository implements ServiceTokenRepository using Bun ORM
type BunServiceTokenRepository struct {
	db *bun.DB
}

// NewBunServiceTokenRepository creates a new Bun-based service token repository
func NewBunServiceTokenRepository(db *bun.DB) *BunServiceTokenRepository {
	return &BunServiceTokenRepository{db: db}
}

// Create inserts a new service token
func (r *BunServiceTokenRepository) Create(ctx context.Context, t *models.ServiceToken) error {
	if !models.ValidServiceType(t.ServiceType) {
		return fmt.Errorf("invalid service type %q", t.ServiceType)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.NewInsert().
		Model(t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create service token: %w", err)
	}
	return nil
}

// GetByID retrieves a service token by ID
func (r *BunServiceTokenRepository) GetByID(ctx context.Context, id string) (*models.ServiceToken, error) {
	t := new(models.ServiceToken)
	err := r.db.NewSelect().
		Model(t).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service token %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get service token: %w", err)
	}
	return t, nil
}

// GetByName retrieves a service token by its unique name
func (r *BunServiceTokenRepository) GetByName(ctx context.Context, name string) (*models.ServiceToken, error) {
	t := new(models.ServiceToken)
	err := r.db.NewSelect().
		Model(t).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service token %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get service token by name: %w", err)
	}
	return t, nil
}

// GetByTokenHash retrieves a service token by the SHA-256 hash of its secret.
// The match is exact; activity and expiry checks belong to the authenticator.
func (r *BunServiceTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ServiceToken, error) {
	t := new(models.ServiceToken)
	err := r.db.NewSelect().
		Model(t).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service token: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get service token by hash: %w", err)
	}
	return t, nil
}

// List retrieves all service tokens
func (r *BunServiceTokenRepository) List(ctx context.Context) ([]models.ServiceToken, error) {
	var tokens []models.ServiceToken
	err := r.db.NewSelect().
		Model(&tokens).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list service tokens: %w", err)
	}
	return tokens, nil
}

// SetActive updates the is_active flag
func (r *BunServiceTokenRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.NewUpdate().
		Model((*models.ServiceToken)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set service token active: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("service token %s: %w", id, ErrNotFound)
	}

	return nil
}

// UpdateLastUsed updates the last_used_at timestamp
func (r *BunServiceTokenRepository) UpdateLastUsed(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.ServiceToken)(nil)).
		Set("last_used_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update service token last used: %w", err)
	}
	return nil
}
