package migrations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/canopyops/portal/internal/db/models"
)

// BootstrapAdminUsername is the well-known principal every deployment starts
// with. It cannot be deleted; a data-layer trigger blocks the attempt.
const BootstrapAdminUsername = "admin"

func init() {
	Migrations.MustRegister(up_20260601000002, down_20260601000002)
}

// up_20260601000002 seeds the bootstrap admin principal and protects it from deletion
func up_20260601000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding bootstrap admin principal...")

	admin := &models.Principal{
		ID:       uuid.NewString(),
		Username: BootstrapAdminUsername,
		Name:     "Bootstrap Administrator",
		Role:     "admin",
	}
	_, err := db.NewInsert().
		Model(admin).
		On("CONFLICT (username) DO NOTHING"). // Idempotent
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed bootstrap admin: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] protecting bootstrap admin from deletion...")
	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			CREATE OR REPLACE FUNCTION block_bootstrap_admin_delete() RETURNS trigger AS $$
			BEGIN
				IF OLD.username = 'admin' THEN
					RAISE EXCEPTION 'the bootstrap admin principal cannot be deleted';
				END IF;
				RETURN OLD;
			END;
			$$ LANGUAGE plpgsql
		`)
		if err != nil {
			return fmt.Errorf("failed to create bootstrap admin guard function: %w", err)
		}

		_, err = db.Exec(`
			CREATE OR REPLACE TRIGGER trg_block_bootstrap_admin_delete
			BEFORE DELETE ON principals
			FOR EACH ROW EXECUTE FUNCTION block_bootstrap_admin_delete()
		`)
		if err != nil {
			return fmt.Errorf("failed to create bootstrap admin guard trigger: %w", err)
		}
	} else {
		_, err = db.Exec(`
			CREATE TRIGGER IF NOT EXISTS trg_block_bootstrap_admin_delete
			BEFORE DELETE ON principals
			FOR EACH ROW WHEN OLD.username = 'admin'
			BEGIN
				SELECT RAISE(ABORT, 'the bootstrap admin principal cannot be deleted');
			END
		`)
		if err != nil {
			return fmt.Errorf("failed to create bootstrap admin guard trigger: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260601000002 removes the guard trigger; the seeded principal stays
func down_20260601000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping bootstrap admin guard...")
	if IsPostgreSQL(db) {
		if _, err := db.Exec(`DROP TRIGGER IF EXISTS trg_block_bootstrap_admin_delete ON principals`); err != nil {
			return fmt.Errorf("failed to drop guard trigger: %w", err)
		}
		if _, err := db.Exec(`DROP FUNCTION IF EXISTS block_bootstrap_admin_delete`); err != nil {
			return fmt.Errorf("failed to drop guard function: %w", err)
		}
	} else {
		if _, err := db.Exec(`DROP TRIGGER IF EXISTS trg_block_bootstrap_admin_delete`); err != nil {
			return fmt.Errorf("failed to drop guard trigger: %w", err)
		}
	}
	fmt.Println(" OK")
	return nil
}
