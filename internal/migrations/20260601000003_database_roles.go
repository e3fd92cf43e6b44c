package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260601000003, down_20260601000003)
}

// up_20260601000003 creates the per-tier PostgreSQL roles the request-scoped
// privilege guard switches between. The roles are NOLOGIN; the application
// role is granted membership so SET ROLE succeeds without superuser rights.
//
// SQLite has no role system, so this migration is a no-op there and the
// guard falls back to running handlers on the shared connection.
func up_20260601000003(ctx context.Context, db *bun.DB) error {
	if !IsPostgreSQL(db) {
		fmt.Println(" [up] database roles: skipped (not PostgreSQL)")
		return nil
	}

	roles := []string{"portal_customer", "portal_staff", "portal_admin"}

	for _, role := range roles {
		fmt.Printf(" [up] creating database role %s...", role)
		_, err := db.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = '%s') THEN
					CREATE ROLE %s NOLOGIN;
				END IF;
			END
			$$
		`, role, role))
		if err != nil {
			return fmt.Errorf("failed to create role %s: %w", role, err)
		}

		_, err = db.Exec(fmt.Sprintf(`GRANT %s TO current_user`, role))
		if err != nil {
			return fmt.Errorf("failed to grant role %s: %w", role, err)
		}
		fmt.Println(" OK")
	}

	// Baseline grants: every tier reads principals; session and token
	// tables stay writable so authentication bookkeeping works at any tier.
	fmt.Print(" [up] granting table privileges to database roles...")
	grants := []string{
		`GRANT SELECT ON principals TO portal_customer, portal_staff, portal_admin`,
		`GRANT UPDATE (subject, last_login_at, updated_at) ON principals TO portal_customer, portal_staff, portal_admin`,
		`GRANT ALL ON principals TO portal_admin`,
		`GRANT SELECT, INSERT, UPDATE, DELETE ON sessions TO portal_customer, portal_staff, portal_admin`,
		`GRANT SELECT, UPDATE ON service_tokens TO portal_staff, portal_admin`,
		`GRANT ALL ON service_tokens TO portal_admin`,
	}
	for _, grant := range grants {
		if _, err := db.Exec(grant); err != nil {
			return fmt.Errorf("failed to apply grant: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260601000003 drops the per-tier database roles
func down_20260601000003(ctx context.Context, db *bun.DB) error {
	if !IsPostgreSQL(db) {
		return nil
	}

	for _, role := range []string{"portal_admin", "portal_staff", "portal_customer"} {
		fmt.Printf(" [down] dropping database role %s...", role)
		if _, err := db.Exec(fmt.Sprintf(`DROP OWNED BY %s`, role)); err != nil {
			return fmt.Errorf("failed to drop objects owned by %s: %w", role, err)
		}
		if _, err := db.Exec(fmt.Sprintf(`DROP ROLE IF EXISTS %s`, role)); err != nil {
			return fmt.Errorf("failed to drop role %s: %w", role, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
