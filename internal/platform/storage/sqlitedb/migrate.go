package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// MigrationSet names a directory of .sql files inside an embedded filesystem.
// Applied files are recorded as "<Name>/<file>" so sets owned by different
// services can share one database.
type MigrationSet struct {
	Name string
	FS   fs.FS
	Root string
}

// ApplyMigrations executes each set's migrations at most once per file.
func ApplyMigrations(ctx context.Context, sqlDB *sql.DB, sets ...MigrationSet) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}
	if _, err := sqlDB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, set := range sets {
		if err := applySet(ctx, sqlDB, set); err != nil {
			return err
		}
	}
	return nil
}

func applySet(ctx context.Context, sqlDB *sql.DB, set MigrationSet) error {
	name := strings.TrimSpace(set.Name)
	if name == "" {
		return fmt.Errorf("migration set name is required")
	}
	if set.FS == nil {
		return fmt.Errorf("migration set %s: filesystem is required", name)
	}
	root := strings.TrimSpace(set.Root)
	if root == "" {
		root = "."
	}

	entries, err := fs.ReadDir(set.FS, root)
	if err != nil {
		return fmt.Errorf("read migrations for %s: %w", name, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		key := name + "/" + file
		applied, err := isApplied(ctx, sqlDB, key)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", key, err)
		}
		if applied {
			continue
		}
		content, err := fs.ReadFile(set.FS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", key, err)
		}
		if err := applyFile(ctx, sqlDB, key, ExtractUpMigration(string(content))); err != nil {
			return err
		}
	}
	return nil
}

func applyFile(ctx context.Context, sqlDB *sql.DB, key, upSQL string) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", key, err)
	}
	if strings.TrimSpace(upSQL) != "" {
		if _, err := tx.ExecContext(ctx, upSQL); err != nil && !IsAlreadyExistsError(err) {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", key, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
		key, ToMillis(time.Now()),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", key, err)
	}
	return nil
}

// ExtractUpMigration returns the SQL between the Up and Down markers, or the
// whole content when no Up marker is present.
func ExtractUpMigration(content string) string {
	start := strings.Index(content, upMarker)
	if start == -1 {
		return content
	}
	body := content[start+len(upMarker):]
	if end := strings.Index(body, downMarker); end != -1 {
		return body[:end]
	}
	return body
}

// IsAlreadyExistsError reports whether err comes from replaying idempotent DDL.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

func isApplied(ctx context.Context, sqlDB *sql.DB, key string) (bool, error) {
	var found int
	err := sqlDB.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", key).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
