// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// DRIVER:
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds without a C
// toolchain and ":memory:" databases make the tests self-contained.
//
// CONNECTION SETTINGS:
// SQLite pragmas are per connection, and database/sql hands out pooled
// connections. Setting foreign_keys once with Exec would only cover whichever
// connection ran it, so every pragma goes into the DSN instead and is applied
// to each new connection by the driver.
//
// SCHEMA:
// Migrations live in migrations/*.sql, are embedded into the binary and run
// through golang-migrate on every New(). Already-applied versions are skipped.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// compile-time check that *DB satisfies the whole store contract
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "data/admin.db" → file-based database (persistent, WAL journal)
//   - ":memory:"      → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so every query sees the same data.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return apperror.Unavailable(fmt.Errorf("sqlite: ping: %w", err))
	}
	return nil
}

// migrate applies the embedded migrations.
//
// The migrate.Migrate instance is deliberately not closed: its database
// driver owns db.conn and would close the pool with it.
func (db *DB) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		src.Close()
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		src.Close()
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		src.Close()
		return fmt.Errorf("applying migrations: %w", err)
	}

	return src.Close()
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// dsn appends the per-connection settings to dbPath.
//
//   - foreign_keys(1): enforce the cascades the schema declares
//   - busy_timeout(5000): wait for a competing writer instead of failing at once
//   - _txlock=immediate: take the write lock at BEGIN so transactions never
//     have to upgrade mid-way (the classic SQLITE_BUSY deadlock)
//   - _time_format=sqlite: store DATETIME as sortable text
func dsn(dbPath string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
		"_time_format=sqlite",
	}
	if !isMemory(dbPath) {
		params = append(params, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(params, "&")
}

// storeError classifies a driver error.
//
// UNIQUE violations become apperror.Conflict on the column that collided,
// so a registration that lost a race still reports "already exists" on the
// right field. Everything else is an infrastructure failure.
func storeError(action string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) &&
		sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE") {
		return conflictFor(sqliteErr.Error())
	}

	return apperror.Unavailable(fmt.Errorf("sqlite: %s: %w", action, err))
}

// conflictFor maps "UNIQUE constraint failed: accounts.email" to a
// field-scoped conflict.
func conflictFor(msg string) error {
	switch {
	case strings.Contains(msg, "accounts.username"):
		return apperror.Conflict("username", "username already exists")
	case strings.Contains(msg, "accounts.email"):
		return apperror.Conflict("email", "email already exists")
	case strings.Contains(msg, "profiles.user_id"):
		return apperror.Conflict("profile", "account already has a profile")
	case strings.Contains(msg, "accounts.id"), strings.Contains(msg, "profiles.id"):
		return apperror.Conflict("id", "id already exists")
	}
	return apperror.Conflict("", "duplicate value")
}

// nullString converts an optional value to a NULL-able driver argument.
func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// stringPtr converts a scanned NULL-able column back to *string.
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
