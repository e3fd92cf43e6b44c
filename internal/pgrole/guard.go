// Package pgrole scopes database privileges to the authenticated role for
// the duration of a single request.
//
// On PostgreSQL the guard pins one pooled connection, issues SET ROLE to the
// matching portal_* database role, records the application role in a session
// variable for row-level policies, and unconditionally resets both before the
// connection returns to the pool. On any other dialect the guard is a no-op
// pass-through: SQLite has no role system and tests run there.
package pgrole

import (
	"context"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/canopyops/portal/internal/auth"
)

// roleSettingKey is the session variable carrying the application role name,
// readable from SQL via current_setting('portal.active_role', true).
const roleSettingKey = "portal.active_role"

// databaseRoles maps application roles to database roles. The map is closed;
// role names never come from request input, which is what makes the SET ROLE
// string concatenation below safe.
var databaseRoles = map[auth.Role]string{
	auth.RoleCustomer: "portal_customer",
	auth.RoleStaff:    "portal_staff",
	auth.RoleAdmin:    "portal_admin",
}

// Guard switches the database session's effective role per request.
type Guard struct {
	db *bun.DB
}

// New creates a Guard over db.
func New(db *bun.DB) *Guard {
	return &Guard{db: db}
}

type activeRoleKey struct{}

type activeRole struct {
	role auth.Role
	conn bun.Conn
}

// ActiveRole returns the role the guard has already applied on this context,
// if any.
func ActiveRole(ctx context.Context) (auth.Role, bool) {
	ar, ok := ctx.Value(activeRoleKey{}).(*activeRole)
	if !ok {
		return "", false
	}
	return ar.role, true
}

// DB returns the role-scoped handle for the request: the pinned connection
// when the guard is active, the shared pool otherwise.
func (g *Guard) DB(ctx context.Context) bun.IDB {
	if ar, ok := ctx.Value(activeRoleKey{}).(*activeRole); ok {
		return ar.conn
	}
	return g.db
}

// WithRole runs fn with the database session's effective role switched to the
// database role matching the given application role.
//
// The reset is guaranteed on every exit path: normal return, error return,
// panic inside fn, and request cancellation. The reset statements run on a
// cancellation-immune copy of the context so an aborted request can never
// leak an elevated connection back into the pool.
//
// WithRole is reentrant within a request: a nested call under the same role
// reuses the pinned connection, a nested call for a different role is an
// error. One role switch per request.
func (g *Guard) WithRole(ctx context.Context, role auth.Role, fn func(ctx context.Context) error) error {
	if !role.Valid() {
		return fmt.Errorf("cannot scope database privileges to unknown role %q", role)
	}

	if ar, ok := ctx.Value(activeRoleKey{}).(*activeRole); ok {
		if ar.role != role {
			return fmt.Errorf("database role already set to %s, cannot switch to %s", ar.role, role)
		}
		return fn(ctx)
	}

	if g.db.Dialect().Name() != dialect.PG {
		return fn(ctx)
	}

	dbRole := databaseRoles[role]

	conn, err := g.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("pin connection for role scope: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("pgrole: release pinned connection: %v", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, "SET ROLE "+dbRole); err != nil {
		return fmt.Errorf("set database role %s: %w", dbRole, err)
	}

	// Reset runs before the deferred Close above, so the connection is
	// always clean when it returns to the pool.
	defer func() {
		resetCtx := context.WithoutCancel(ctx)
		if _, err := conn.ExecContext(resetCtx, "RESET ROLE"); err != nil {
			log.Printf("pgrole: reset database role: %v", err)
		}
		if _, err := conn.ExecContext(resetCtx, "SELECT set_config(?, '', false)", roleSettingKey); err != nil {
			log.Printf("pgrole: clear role setting: %v", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, "SELECT set_config(?, ?, false)", roleSettingKey, string(role)); err != nil {
		return fmt.Errorf("record active role: %w", err)
	}

	scoped := context.WithValue(ctx, activeRoleKey{}, &activeRole{role: role, conn: conn})
	return fn(scoped)
}
