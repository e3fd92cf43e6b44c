package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/canopyops/portal/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260601000001, down_20260601000001)
}

// up_20260601000001 creates the principals, sessions, and service_tokens tables
func up_20260601000001(ctx context.Context, db *bun.DB) error {
	// 1. Create principals table
	fmt.Print(" [up] creating principals table...")
	_, err := db.NewCreateTable().
		Model((*models.Principal)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create principals table: %w", err)
	}

	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_username ON principals(username)`)
	if err != nil {
		return fmt.Errorf("failed to create principals username index: %w", err)
	}

	// Roles are a closed set; reject anything else at the data layer too.
	// SQLite cannot ALTER TABLE ADD CONSTRAINT, so dev databases rely on
	// the application-level checks alone.
	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE principals
			ADD CONSTRAINT chk_principals_role
			CHECK (role IN ('customer', 'staff', 'admin'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add principals role check: %w", err)
		}
	}
	fmt.Println(" OK")

	// 2. Create sessions table
	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_principal_id ON sessions(principal_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions principal_id index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions expires_at index: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE sessions
			ADD CONSTRAINT fk_sessions_principal_id
			FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to add sessions principal_id FK: %w", err)
		}
	}
	fmt.Println(" OK")

	// 3. Create service_tokens table
	fmt.Print(" [up] creating service_tokens table...")
	_, err = db.NewCreateTable().
		Model((*models.ServiceToken)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create service_tokens table: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE service_tokens
			ADD CONSTRAINT chk_service_tokens_service_type
			CHECK (service_type IN ('slack_bot', 'ci_cd', 'monitoring'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add service_tokens service_type check: %w", err)
		}
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_service_tokens_service_type ON service_tokens(service_type)`)
	if err != nil {
		return fmt.Errorf("failed to create service_tokens service_type index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260601000001 drops the auth tables in reverse order
func down_20260601000001(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"service_tokens",
		"sessions",
		"principals",
	}

	cascade := ""
	if IsPostgreSQL(db) {
		cascade = " CASCADE"
	}
	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		_, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s%s", table, cascade))
		if err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
