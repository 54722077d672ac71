package buddy

import (
	"time"

	"github.com/louisbranch/safezone/internal/services/buddy/domain"
	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func resultStruct(result domain.Result) (*structpb.Struct, error) {
	out := map[string]any{
		"session":        sessionMap(result.Session),
		"duplicate":      result.Duplicate,
		"already_ended":  result.AlreadyEnded,
		"not_overdue":    result.NotOverdue,
		"points_awarded": result.PointsAwarded,
	}
	if result.Notification != nil {
		out["notification"] = notificationMap(*result.Notification)
	}
	if result.Balance != nil {
		out["balance"] = balanceMap(*result.Balance)
	}
	warnings := make([]any, 0, len(result.Warnings))
	for _, warning := range result.Warnings {
		warnings = append(warnings, warning)
	}
	out["warnings"] = warnings
	return structpb.NewStruct(out)
}

func sessionMap(session domain.Session) map[string]any {
	out := map[string]any{
		"id":                        session.ID,
		"initiator_id":              session.InitiatorID,
		"buddy_id":                  session.BuddyID,
		"status":                    string(session.Status),
		"check_in_interval_minutes": session.CheckInIntervalMinutes,
		"last_check_in_at":          formatTime(session.LastCheckInAt),
		"location":                  session.Location,
		"destination":               session.Destination,
		"created_at":                formatTime(session.CreatedAt),
		"updated_at":                formatTime(session.UpdatedAt),
	}
	if session.EndedAt != nil {
		out["ended_at"] = formatTime(*session.EndedAt)
	}
	return out
}

func sessionViewMap(view domain.SessionView) map[string]any {
	out := sessionMap(view.Session)
	out["role"] = string(view.Role)
	out["counterpart_id"] = view.CounterpartID
	out["counterpart_name"] = view.CounterpartName
	return out
}

func notificationMap(n notifdomain.Notification) map[string]any {
	out := map[string]any{
		"id":                n.ID,
		"recipient_user_id": n.RecipientUserID,
		"kind":              string(n.Kind),
		"title":             n.Title,
		"message":           n.Message,
		"related_id":        n.RelatedID,
		"source":            n.Source,
		"is_read":           n.IsRead(),
		"urgent":            n.Kind.Urgent(),
		"created_at":        formatTime(n.CreatedAt),
	}
	if n.ReadAt != nil {
		out["read_at"] = formatTime(*n.ReadAt)
	}
	if n.PayloadJSON != "" {
		var payload structpb.Struct
		if err := protojson.Unmarshal([]byte(n.PayloadJSON), &payload); err == nil {
			out["payload"] = payload.AsMap()
		}
	}
	return out
}

func balanceMap(balance pointsdomain.Balance) map[string]any {
	return map[string]any{
		"user_id": balance.UserID,
		"points":  balance.Points,
		"rank":    balance.Rank,
	}
}
