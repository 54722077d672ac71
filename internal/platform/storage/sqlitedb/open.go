// Package sqlitedb opens SQLite databases, applies embedded migrations and
// runs write transactions for the SafeZone stores.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// dsnOptions holds the connection pragmas shared by every store, in the
// modernc.org/sqlite `_pragma=name(value)` form applied to each new
// connection. Writers take the database lock when the transaction begins so
// concurrent writers queue on busy_timeout instead of failing on upgrade.
const dsnOptions = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the database at path, creating the parent directory when needed,
// and applies the given migration sets in order.
func Open(ctx context.Context, path string, sets ...MigrationSet) (*sql.DB, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if cleanPath != ":memory:" {
		if dir := filepath.Dir(cleanPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", cleanPath+"?"+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if cleanPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if err := ApplyMigrations(ctx, sqlDB, sets...); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// ToMillis converts a time to unix milliseconds in UTC.
func ToMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// FromMillis converts unix milliseconds to a UTC time.
func FromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// ToNullMillis converts an optional time to a nullable millisecond column.
func ToNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToMillis(*value), Valid: true}
}

// FromNullMillis converts a nullable millisecond column to an optional time.
func FromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed := FromMillis(value.Int64)
	return &parsed
}
