package migrations

import (
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

// Migrations is the registry all migration files attach themselves to via
// init(). The db command group feeds it to the migrator.
var Migrations = migrate.NewMigrations()

// IsPostgreSQL reports whether db speaks the Postgres dialect. Migration
// DDL that SQLite cannot parse is gated on it.
func IsPostgreSQL(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// IsSQLite reports whether db speaks the SQLite dialect.
func IsSQLite(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.SQLite
}
