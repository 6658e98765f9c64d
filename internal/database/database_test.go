package database

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// newTestDB wraps a sqlmock *sql.DB in the production PostgresDB type so
// repository tests exercise the same sqlx scanning paths as real queries
func newTestDB(db *sql.DB) DB {
	return &PostgresDB{DB: sqlx.NewDb(db, "sqlmock")}
}
