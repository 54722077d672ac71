package buddy

import (
	"context"

	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ListNotifications pages through the caller's inbox.
func (s *Service) ListNotifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	pageSize, err := intField(req, "page_size")
	if err != nil {
		return nil, err
	}
	page, err := s.inbox.ListForUser(ctx, notifdomain.ListInput{
		RecipientUserID: caller,
		UnreadOnly:      boolField(req, "unread_only"),
		PageSize:        pageSize,
		PageToken:       stringField(req, "page_token"),
	})
	if err != nil {
		return nil, s.fail("ListNotifications", err)
	}
	notifications := make([]any, 0, len(page.Notifications))
	for _, n := range page.Notifications {
		notifications = append(notifications, notificationMap(n))
	}
	return structpb.NewStruct(map[string]any{
		"notifications":   notifications,
		"next_page_token": page.NextPageToken,
	})
}

// CountUnreadNotifications reports the caller's unread total.
func (s *Service) CountUnreadNotifications(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.inbox.CountUnread(ctx, caller)
	if err != nil {
		return nil, s.fail("CountUnreadNotifications", err)
	}
	return structpb.NewStruct(map[string]any{"unread_count": count})
}

// MarkNotificationRead acknowledges one of the caller's notifications.
func (s *Service) MarkNotificationRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	notification, err := s.inbox.MarkRead(ctx, stringField(req, "notification_id"), caller)
	if err != nil {
		return nil, s.fail("MarkNotificationRead", err)
	}
	return structpb.NewStruct(map[string]any{"notification": notificationMap(notification)})
}

// MarkAllNotificationsRead acknowledges the caller's whole inbox.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := s.inbox.MarkAllRead(ctx, caller)
	if err != nil {
		return nil, s.fail("MarkAllNotificationsRead", err)
	}
	return structpb.NewStruct(map[string]any{"updated": updated})
}

// CreateSystemNotification files a notification into the caller's own inbox.
func (s *Service) CreateSystemNotification(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	kind := notifdomain.KindSystem
	if raw := stringField(req, "kind"); raw != "" {
		parsed, ok := notifdomain.ParseKind(raw)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown notification kind %q", raw)
		}
		kind = parsed
	}
	delivery, err := s.inbox.CreateSystemNotification(ctx, caller, kind,
		stringField(req, "title"), stringField(req, "message"), stringField(req, "related_id"))
	if err != nil {
		return nil, s.fail("CreateSystemNotification", err)
	}
	warnings := make([]any, 0, len(delivery.Warnings))
	for _, warning := range delivery.Warnings {
		s.logger.Warn("publish notification", zap.String("notification_id", delivery.Notification.ID), zap.String("warning", warning))
		warnings = append(warnings, warning)
	}
	return structpb.NewStruct(map[string]any{
		"notification": notificationMap(delivery.Notification),
		"warnings":     warnings,
	})
}

// ListPointsHistory returns the caller's balance and newest ledger entries.
func (s *Service) ListPointsHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	limit, err := intField(req, "limit")
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, caller)
	if err != nil {
		return nil, s.fail("ListPointsHistory", err)
	}
	history, err := s.ledger.ListHistory(ctx, caller, limit)
	if err != nil {
		return nil, s.fail("ListPointsHistory", err)
	}
	entries := make([]any, 0, len(history))
	for _, entry := range history {
		entries = append(entries, entryMap(entry))
	}
	return structpb.NewStruct(map[string]any{
		"balance": balanceMap(balance),
		"entries": entries,
	})
}

func entryMap(entry pointsdomain.Entry) map[string]any {
	return map[string]any{
		"id":          entry.ID,
		"user_id":     entry.UserID,
		"reason":      string(entry.Reason),
		"description": entry.Description,
		"points":      entry.Points,
		"created_at":  formatTime(entry.CreatedAt),
	}
}
