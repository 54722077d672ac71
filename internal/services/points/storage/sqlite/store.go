// Package sqlite persists the user directory and points ledger in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/safezone/internal/platform/storage/sqlitedb"
	"github.com/louisbranch/safezone/internal/services/points/domain"
	"github.com/louisbranch/safezone/internal/services/points/storage/sqlite/migrations"
)

// Migrations is the schema owned by this store.
var Migrations = sqlitedb.MigrationSet{Name: "points", FS: migrations.FS}

// Store provides SQLite-backed persistence for users and their ledger.
type Store struct {
	db    sqlitedb.DBTX
	sqlDB *sql.DB
}

// New returns a store over an already migrated database.
func New(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB, sqlDB: sqlDB}
}

// Open opens a standalone points database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitedb.Open(ctx, path, Migrations)
	if err != nil {
		return nil, fmt.Errorf("open points store: %w", err)
	}
	return New(sqlDB), nil
}

// Close closes the underlying database when the store owns it.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WithTx returns a store whose writes join tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// PutUser inserts or renames a user. Cached totals of an existing user are
// left untouched; only the ledger moves them.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return domain.ErrStoreNotConfigured
	}
	if strings.TrimSpace(user.ID) == "" {
		return domain.ErrUserIDRequired
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, display_name, points, rank, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    display_name = excluded.display_name,
    updated_at = excluded.updated_at
`,
		user.ID,
		user.DisplayName,
		user.Points,
		user.Rank,
		sqlitedb.ToMillis(user.CreatedAt),
		sqlitedb.ToMillis(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser loads one user record.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if s == nil || s.db == nil {
		return domain.User{}, domain.ErrStoreNotConfigured
	}
	var (
		user                 domain.User
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, display_name, points, rank, created_at, updated_at FROM users WHERE id = ?
`, userID).Scan(&user.ID, &user.DisplayName, &user.Points, &user.Rank, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = sqlitedb.FromMillis(createdAt)
	user.UpdatedAt = sqlitedb.FromMillis(updatedAt)
	return user, nil
}

// DisplayName resolves a user's display name.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.DisplayName, nil
}

// GrantPoints appends entry, moves the cached total and recomputes the rank.
// Callers that need the three writes to be atomic run it on a tx-bound store.
func (s *Store) GrantPoints(ctx context.Context, entry domain.Entry, ladder domain.Ladder) (domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return domain.Balance{}, err
	}
	if s == nil || s.db == nil {
		return domain.Balance{}, domain.ErrStoreNotConfigured
	}
	if err := entry.Validate(); err != nil {
		return domain.Balance{}, err
	}
	if s.sqlDB != nil {
		var balance domain.Balance
		err := sqlitedb.WithTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
			var err error
			balance, err = s.WithTx(tx).GrantPoints(ctx, entry, ladder)
			return err
		})
		return balance, err
	}

	updatedAt := sqlitedb.ToMillis(entry.CreatedAt)
	result, err := s.db.ExecContext(ctx, `
UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?
`, entry.Points, updatedAt, entry.UserID)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("update user points: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return domain.Balance{}, fmt.Errorf("update user points rows affected: %w", err)
	} else if affected == 0 {
		return domain.Balance{}, domain.ErrUserNotFound
	}

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO points_history (id, user_id, reason, description, points, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, entry.ID, entry.UserID, string(entry.Reason), entry.Description, entry.Points, sqlitedb.ToMillis(entry.CreatedAt)); err != nil {
		return domain.Balance{}, fmt.Errorf("append points history: %w", err)
	}

	balance := domain.Balance{UserID: entry.UserID}
	if err := s.db.QueryRowContext(ctx, `SELECT points FROM users WHERE id = ?`, entry.UserID).Scan(&balance.Points); err != nil {
		return domain.Balance{}, fmt.Errorf("read user points: %w", err)
	}
	balance.Rank = ladder.RankFor(balance.Points)
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET rank = ? WHERE id = ?`, balance.Rank, entry.UserID); err != nil {
		return domain.Balance{}, fmt.Errorf("update user rank: %w", err)
	}
	return balance, nil
}

// ListPointsHistory returns up to limit entries of userID, newest first.
func (s *Store) ListPointsHistory(ctx context.Context, userID string, limit int) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, reason, description, points, created_at
FROM points_history
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list points history: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			entry     domain.Entry
			reason    string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &reason, &entry.Description, &entry.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("scan points history row: %w", err)
		}
		entry.Reason = domain.Reason(reason)
		entry.CreatedAt = sqlitedb.FromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points history rows: %w", err)
	}
	return entries, nil
}
