// Package sqlite persists buddy sessions in SQLite next to the notification
// inbox and points ledger they write through.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/safezone/internal/platform/storage/sqlitedb"
	"github.com/louisbranch/safezone/internal/services/buddy/domain"
	"github.com/louisbranch/safezone/internal/services/buddy/storage/sqlite/migrations"
	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	notifsqlite "github.com/louisbranch/safezone/internal/services/notifications/storage/sqlite"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	pointssqlite "github.com/louisbranch/safezone/internal/services/points/storage/sqlite"
)

// Migrations is the schema owned by this store.
var Migrations = sqlitedb.MigrationSet{Name: "buddy", FS: migrations.FS}

// AllMigrations lists every schema a buddy database needs.
func AllMigrations() []sqlitedb.MigrationSet {
	return []sqlitedb.MigrationSet{pointssqlite.Migrations, notifsqlite.Migrations, Migrations}
}

const sessionColumns = `id, initiator_id, buddy_id, status, check_in_interval_minutes, last_check_in_at, location, destination, created_at, updated_at, ended_at`

// Store provides SQLite-backed persistence for buddy sessions.
type Store struct {
	db            sqlitedb.DBTX
	sqlDB         *sql.DB
	notifications *notifsqlite.Store
	points        *pointssqlite.Store
}

// New returns a store over an already migrated database.
func New(sqlDB *sql.DB) *Store {
	return &Store{
		db:            sqlDB,
		sqlDB:         sqlDB,
		notifications: notifsqlite.New(sqlDB),
		points:        pointssqlite.New(sqlDB),
	}
}

// Open opens the buddy database at path and applies every schema it needs.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitedb.Open(ctx, path, AllMigrations()...)
	if err != nil {
		return nil, fmt.Errorf("open buddy store: %w", err)
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

// Notifications returns the inbox store sharing this database.
func (s *Store) Notifications() *notifsqlite.Store {
	return s.notifications
}

// Points returns the user directory and ledger store sharing this database.
func (s *Store) Points() *pointssqlite.Store {
	return s.points
}

// WithinTx runs fn in one write transaction spanning sessions, inbox rows and
// ledger entries.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotConfigured
	}
	return sqlitedb.WithTx(ctx, s.sqlDB, func(tx *sql.Tx) error {
		return fn(ctx, &txStore{
			Store:         &Store{db: tx},
			notifications: s.notifications.WithTx(tx),
			points:        s.points.WithTx(tx),
		})
	})
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return domain.Session{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM buddy_sessions WHERE id = ?`, strings.TrimSpace(sessionID))
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// FindActiveSessionForUser returns the newest active session userID is part of.
func (s *Store) FindActiveSessionForUser(ctx context.Context, userID string) (domain.Session, bool, error) {
	if err := s.check(ctx); err != nil {
		return domain.Session{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+sessionColumns+`
FROM buddy_sessions
WHERE status = 'active' AND (initiator_id = ? OR buddy_id = ?)
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userID, userID)
	return scanOptional(row)
}

// FindActiveSessionForPair returns the active session between two users in
// either role.
func (s *Store) FindActiveSessionForPair(ctx context.Context, userA, userB string) (domain.Session, bool, error) {
	if err := s.check(ctx); err != nil {
		return domain.Session{}, false, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+sessionColumns+`
FROM buddy_sessions
WHERE status = 'active'
  AND ((initiator_id = ? AND buddy_id = ?) OR (initiator_id = ? AND buddy_id = ?))
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userA, userB, userB, userA)
	return scanOptional(row)
}

// ListSessionsForUser returns every session userID is part of, newest first.
func (s *Store) ListSessionsForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM buddy_sessions
WHERE initiator_id = ? OR buddy_id = ?
ORDER BY created_at DESC, id DESC
`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return collect(rows)
}

// ListActiveSessions pages through active sessions ordered by id.
func (s *Store) ListActiveSessions(ctx context.Context, afterID string, limit int) ([]domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM buddy_sessions
WHERE status = 'active' AND id > ?
ORDER BY id
LIMIT ?
`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return collect(rows)
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO buddy_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.InitiatorID,
		session.BuddyID,
		string(session.Status),
		session.CheckInIntervalMinutes,
		sqlitedb.ToMillis(session.LastCheckInAt),
		session.Location,
		session.Destination,
		sqlitedb.ToMillis(session.CreatedAt),
		sqlitedb.ToMillis(session.UpdatedAt),
		sqlitedb.ToNullMillis(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SaveSession overwrites the mutable fields of an existing session.
func (s *Store) SaveSession(ctx context.Context, session domain.Session) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE buddy_sessions
SET status = ?, check_in_interval_minutes = ?, last_check_in_at = ?, location = ?, destination = ?, updated_at = ?, ended_at = ?
WHERE id = ?
`,
		string(session.Status),
		session.CheckInIntervalMinutes,
		sqlitedb.ToMillis(session.LastCheckInAt),
		session.Location,
		session.Destination,
		sqlitedb.ToMillis(session.UpdatedAt),
		sqlitedb.ToNullMillis(session.EndedAt),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return domain.ErrStoreNotConfigured
	}
	return nil
}

// txStore is the domain.Tx view of one open transaction.
type txStore struct {
	*Store
	notifications *notifsqlite.Store
	points        *pointssqlite.Store
}

func (t *txStore) PutNotification(ctx context.Context, n notifdomain.Notification) (notifdomain.Notification, bool, error) {
	return t.notifications.PutNotification(ctx, n)
}

func (t *txStore) GrantPoints(ctx context.Context, entry pointsdomain.Entry, ladder pointsdomain.Ladder) (pointsdomain.Balance, error) {
	return t.points.GrantPoints(ctx, entry, ladder)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session   domain.Session
		status    string
		lastCheck int64
		createdAt int64
		updatedAt int64
		endedAt   sql.NullInt64
	)
	if err := row.Scan(
		&session.ID,
		&session.InitiatorID,
		&session.BuddyID,
		&status,
		&session.CheckInIntervalMinutes,
		&lastCheck,
		&session.Location,
		&session.Destination,
		&createdAt,
		&updatedAt,
		&endedAt,
	); err != nil {
		return domain.Session{}, err
	}
	session.Status = domain.Status(status)
	session.LastCheckInAt = sqlitedb.FromMillis(lastCheck)
	session.CreatedAt = sqlitedb.FromMillis(createdAt)
	session.UpdatedAt = sqlitedb.FromMillis(updatedAt)
	session.EndedAt = sqlitedb.FromNullMillis(endedAt)
	return session, nil
}

func scanOptional(row *sql.Row) (domain.Session, bool, error) {
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("find session: %w", err)
	}
	return session, true, nil
}

func collect(rows *sql.Rows) ([]domain.Session, error) {
	defer rows.Close()
	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*txStore)(nil)
)
