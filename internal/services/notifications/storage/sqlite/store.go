// Package sqlite persists notification inboxes in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/safezone/internal/platform/grpc/pagination"
	"github.com/louisbranch/safezone/internal/platform/storage/sqlitedb"
	"github.com/louisbranch/safezone/internal/services/notifications/domain"
	"github.com/louisbranch/safezone/internal/services/notifications/storage/sqlite/migrations"
)

// Migrations is the schema owned by this store.
var Migrations = sqlitedb.MigrationSet{Name: "notifications", FS: migrations.FS}

const notificationColumns = `id, recipient_user_id, kind, title, message, related_id, payload_json, dedupe_key, source, created_at, read_at`

// Store provides SQLite-backed persistence for notification inboxes.
type Store struct {
	db    sqlitedb.DBTX
	sqlDB *sql.DB
}

// New returns a store over an already migrated database.
func New(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB, sqlDB: sqlDB}
}

// Open opens a standalone notifications database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitedb.Open(ctx, path, Migrations)
	if err != nil {
		return nil, fmt.Errorf("open notifications store: %w", err)
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

// PutNotification inserts one row. When a row with the same recipient and
// non-empty dedupe key exists, that row is returned instead.
func (s *Store) PutNotification(ctx context.Context, n domain.Notification) (domain.Notification, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, false, err
	}
	if s == nil || s.db == nil {
		return domain.Notification{}, false, domain.ErrStoreNotConfigured
	}
	if strings.TrimSpace(n.ID) == "" {
		return domain.Notification{}, false, domain.ErrNotificationIDRequired
	}

	result, err := s.db.ExecContext(ctx, `
INSERT INTO notifications (`+notificationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`,
		n.ID,
		n.RecipientUserID,
		string(n.Kind),
		n.Title,
		n.Message,
		n.RelatedID,
		n.PayloadJSON,
		n.DedupeKey,
		n.Source,
		sqlitedb.ToMillis(n.CreatedAt),
		sqlitedb.ToNullMillis(n.ReadAt),
	)
	if err != nil {
		return domain.Notification{}, false, fmt.Errorf("put notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Notification{}, false, fmt.Errorf("put notification rows affected: %w", err)
	}
	if affected == 1 {
		return n, true, nil
	}
	if n.DedupeKey == "" {
		return domain.Notification{}, false, fmt.Errorf("put notification: id %s already exists", n.ID)
	}
	existing, err := s.getByDedupeKey(ctx, n.RecipientUserID, n.DedupeKey)
	if err != nil {
		return domain.Notification{}, false, err
	}
	return existing, false, nil
}

// GetNotification loads one notification by id.
func (s *Store) GetNotification(ctx context.Context, notificationID string) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.db == nil {
		return domain.Notification{}, domain.ErrStoreNotConfigured
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, notificationID)
	n, err := scanNotification(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListNotifications lists one inbox newest-first. The page token is the id of
// the last notification of the previous page.
func (s *Store) ListNotifications(ctx context.Context, recipientUserID string, unreadOnly bool, pageSize int, pageToken string) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	if s == nil || s.db == nil {
		return domain.Page{}, domain.ErrStoreNotConfigured
	}
	if pageSize <= 0 {
		return domain.Page{}, fmt.Errorf("page size must be greater than zero")
	}

	var (
		where strings.Builder
		args  = []any{recipientUserID}
	)
	where.WriteString("recipient_user_id = ?")
	if unreadOnly {
		where.WriteString(" AND read_at IS NULL")
	}
	if pageToken = strings.TrimSpace(pageToken); pageToken != "" {
		cursor, err := s.GetNotification(ctx, pageToken)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && cursor.RecipientUserID != recipientUserID) {
			return domain.Page{}, nil
		}
		if err != nil {
			return domain.Page{}, err
		}
		createdAt := sqlitedb.ToMillis(cursor.CreatedAt)
		where.WriteString(" AND (created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, createdAt, createdAt, cursor.ID)
	}
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE `+where.String()+`
ORDER BY created_at DESC, id DESC
LIMIT ?
`, args...)
	if err != nil {
		return domain.Page{}, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Notification, 0, pageSize+1)
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return domain.Page{}, fmt.Errorf("scan notification row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return domain.Page{}, fmt.Errorf("iterate notification rows: %w", err)
	}
	kept, next := pagination.Trim(items, pageSize, func(n domain.Notification) string { return n.ID })
	return domain.Page{Notifications: kept, NextPageToken: next}, nil
}

// CountUnreadNotifications returns the unread inbox count for one recipient.
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientUserID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM notifications WHERE recipient_user_id = ? AND read_at IS NULL
`, recipientUserID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead sets read_at unless the row is already read.
func (s *Store) MarkNotificationRead(ctx context.Context, notificationID string, readAt time.Time) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.db == nil {
		return domain.Notification{}, domain.ErrStoreNotConfigured
	}
	if _, err := s.db.ExecContext(ctx, `
UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL
`, sqlitedb.ToMillis(readAt), notificationID); err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	return s.GetNotification(ctx, notificationID)
}

// MarkAllNotificationsRead marks every unread row of a recipient as read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientUserID string, readAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE notifications SET read_at = ? WHERE recipient_user_id = ? AND read_at IS NULL
`, sqlitedb.ToMillis(readAt), recipientUserID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *Store) getByDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE recipient_user_id = ? AND dedupe_key = ?
`, recipientUserID, dedupeKey)
	n, err := scanNotification(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("get notification by dedupe key: %w", err)
	}
	return n, nil
}

type scanner func(dest ...any) error

func scanNotification(scan scanner) (domain.Notification, error) {
	var (
		n         domain.Notification
		kind      string
		createdAt int64
		readAt    sql.NullInt64
	)
	if err := scan(
		&n.ID,
		&n.RecipientUserID,
		&kind,
		&n.Title,
		&n.Message,
		&n.RelatedID,
		&n.PayloadJSON,
		&n.DedupeKey,
		&n.Source,
		&createdAt,
		&readAt,
	); err != nil {
		return domain.Notification{}, err
	}
	n.Kind = domain.Kind(kind)
	n.CreatedAt = sqlitedb.FromMillis(createdAt)
	n.ReadAt = sqlitedb.FromNullMillis(readAt)
	return n, nil
}
