package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the bun migration registry. Each migration file registers
// itself in init().
var Migrations = migrate.NewMigrations()
