package domain

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/louisbranch/safezone/internal/platform/errors"
	"github.com/louisbranch/safezone/internal/platform/grpc/pagination"
	"github.com/louisbranch/safezone/internal/platform/id"
)

var (
	// ErrNotFound indicates a notification record was not found.
	ErrNotFound = apperrors.New(apperrors.CodeNotificationNotFound, "notification not found")
	// ErrForbidden indicates the notification belongs to another recipient.
	ErrForbidden = apperrors.New(apperrors.CodeNotificationForbidden, "notification belongs to another user")
	// ErrRecipientUserIDRequired indicates recipient identity is required.
	ErrRecipientUserIDRequired = apperrors.New(apperrors.CodeUserIDMissing, "recipient user id is required")
	// ErrNotificationIDRequired indicates notification ID is required.
	ErrNotificationIDRequired = apperrors.New(apperrors.CodeNotificationInvalid, "notification id is required")
	// ErrKindInvalid indicates a kind outside the closed set.
	ErrKindInvalid = apperrors.New(apperrors.CodeNotificationInvalid, "notification kind is invalid")
	// ErrTitleRequired indicates caller-authored copy without a title.
	ErrTitleRequired = apperrors.New(apperrors.CodeNotificationInvalid, "notification title is required")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeNotConfigured, "notification store is not configured")
)

// PageSize is both the default and the largest inbox page.
const PageSize = 50

// Notification captures one user-targeted inbox item.
type Notification struct {
	ID              string
	RecipientUserID string
	Kind            Kind
	Title           string
	Message         string
	RelatedID       string
	PayloadJSON     string
	DedupeKey       string
	Source          string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// IsRead reports whether the recipient acknowledged the notification.
func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Page is a newest-first slice of one recipient inbox.
type Page struct {
	Notifications []Notification
	NextPageToken string
}

// Draft describes one notification before it is assigned an id.
type Draft struct {
	RecipientUserID string
	Kind            Kind
	Title           string
	Message         string
	RelatedID       string
	PayloadJSON     string
	DedupeKey       string
	Source          string
}

// Build validates draft and stamps it with an id and creation time.
func Build(draft Draft, notificationID string, now time.Time) (Notification, error) {
	recipient := strings.TrimSpace(draft.RecipientUserID)
	if recipient == "" {
		return Notification{}, ErrRecipientUserIDRequired
	}
	kind, ok := ParseKind(string(draft.Kind))
	if !ok {
		return Notification{}, ErrKindInvalid
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return Notification{}, ErrTitleRequired
	}
	return Notification{
		ID:              notificationID,
		RecipientUserID: recipient,
		Kind:            kind,
		Title:           title,
		Message:         strings.TrimSpace(draft.Message),
		RelatedID:       strings.TrimSpace(draft.RelatedID),
		PayloadJSON:     strings.TrimSpace(draft.PayloadJSON),
		DedupeKey:       strings.TrimSpace(draft.DedupeKey),
		Source:          strings.TrimSpace(draft.Source),
		CreatedAt:       now.UTC(),
	}, nil
}

// Writer persists notifications. With a dedupe key, an existing row for the
// same recipient is returned with created set to false.
type Writer interface {
	PutNotification(ctx context.Context, notification Notification) (stored Notification, created bool, err error)
}

// Store is the inbox persistence boundary.
type Store interface {
	Writer
	GetNotification(ctx context.Context, notificationID string) (Notification, error)
	ListNotifications(ctx context.Context, recipientUserID string, unreadOnly bool, pageSize int, pageToken string) (Page, error)
	CountUnreadNotifications(ctx context.Context, recipientUserID string) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID string, readAt time.Time) (Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientUserID string, readAt time.Time) (int, error)
}

// Publisher fans a committed notification out to realtime listeners.
type Publisher interface {
	Publish(ctx context.Context, notification Notification) error
}

// ListInput configures a recipient inbox listing.
type ListInput struct {
	RecipientUserID string
	UnreadOnly      bool
	PageSize        int
	PageToken       string
}

// Service owns the recipient inbox: send, list, and read acknowledgement.
type Service struct {
	store     Store
	publisher Publisher
	clock     func() time.Time
	newID     func() (string, error)
}

// NewService constructs the inbox use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, clock: clock, newID: newID}
}

// WithPublisher returns s publishing newly created notifications.
func (s *Service) WithPublisher(publisher Publisher) *Service {
	s.publisher = publisher
	return s
}

// Delivery is a stored notification plus the realtime side effects that did
// not complete after the write.
type Delivery struct {
	Notification Notification
	// Created is false when an existing row matched the dedupe key.
	Created  bool
	Warnings []string
}

// Send stores one notification. A publish failure never fails the call; it is
// reported in Delivery.Warnings and the row stays written.
func (s *Service) Send(ctx context.Context, draft Draft) (Delivery, error) {
	if s == nil || s.store == nil {
		return Delivery{}, ErrStoreNotConfigured
	}
	notification, err := Build(draft, "", s.clock())
	if err != nil {
		return Delivery{}, err
	}
	notification.ID, err = s.newID()
	if err != nil {
		return Delivery{}, err
	}
	stored, created, err := s.store.PutNotification(ctx, notification)
	if err != nil {
		return Delivery{}, err
	}
	delivery := Delivery{Notification: stored, Created: created}
	if created && s.publisher != nil {
		if err := s.publisher.Publish(ctx, stored); err != nil {
			delivery.Warnings = append(delivery.Warnings, "realtime notification delivery failed: "+err.Error())
		}
	}
	return delivery, nil
}

// CreateSystemNotification lets a user file a notification into their own inbox.
func (s *Service) CreateSystemNotification(ctx context.Context, userID string, kind Kind, title, message, relatedID string) (Delivery, error) {
	payload := TextPayload{TextKind: kind, Title: title, Message: message}
	payloadJSON, err := EncodePayload(payload)
	if err != nil {
		return Delivery{}, err
	}
	return s.Send(ctx, Draft{
		RecipientUserID: userID,
		Kind:            kind,
		Title:           title,
		Message:         message,
		RelatedID:       relatedID,
		PayloadJSON:     payloadJSON,
		Source:          "user",
	})
}

// ListForUser lists one inbox newest first, at most PageSize per page.
func (s *Service) ListForUser(ctx context.Context, input ListInput) (Page, error) {
	if s == nil || s.store == nil {
		return Page{}, ErrStoreNotConfigured
	}
	recipient := strings.TrimSpace(input.RecipientUserID)
	if recipient == "" {
		return Page{}, ErrRecipientUserIDRequired
	}
	pageSize := pagination.ClampPageSize(int32(input.PageSize), pagination.PageSizeConfig{
		Default: PageSize,
		Max:     PageSize,
	})
	return s.store.ListNotifications(ctx, recipient, input.UnreadOnly, pageSize, strings.TrimSpace(input.PageToken))
}

// CountUnread returns how many notifications the user has not read.
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrRecipientUserIDRequired
	}
	return s.store.CountUnreadNotifications(ctx, userID)
}

// MarkRead acknowledges one notification owned by userID. Marking an already
// read notification keeps its original read time.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Notification{}, ErrRecipientUserIDRequired
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Notification{}, ErrNotificationIDRequired
	}
	notification, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return Notification{}, err
	}
	if notification.RecipientUserID != userID {
		return Notification{}, ErrForbidden
	}
	if notification.IsRead() {
		return notification, nil
	}
	return s.store.MarkNotificationRead(ctx, notificationID, s.clock().UTC())
}

// MarkAllRead acknowledges every unread notification of userID.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrRecipientUserIDRequired
	}
	return s.store.MarkAllNotificationsRead(ctx, userID, s.clock().UTC())
}
