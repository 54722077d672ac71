// Package render turns notification payloads into localized inbox copy.
package render

import (
	"strings"

	"github.com/louisbranch/safezone/internal/services/notifications/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultGenericTitle = "Notification"
	defaultGenericBody  = "You have a new notification."
	// UnknownLocation stands in for a session without a recorded location.
	UnknownLocation = "Unknown"
)

// Output is the localized title and body for one notification.
type Output struct {
	Title   string
	Message string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// NewLocalizer returns a printer for tag, falling back to English.
func NewLocalizer(tag language.Tag) Localizer {
	if tag == language.Und {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// Render returns localized copy for payload.
func Render(loc Localizer, payload domain.Payload) Output {
	switch p := payload.(type) {
	case domain.BuddyRequestPayload:
		return Output{
			Title:   localize(loc, "notification.buddy_request.title"),
			Message: localize(loc, "notification.buddy_request.body", p.InitiatorName, p.IntervalMinutes),
		}
	case domain.CheckInPayload:
		return Output{
			Title:   localize(loc, "notification.check_in_success.title"),
			Message: localize(loc, "notification.check_in_success.body", p.ActorName),
		}
	case domain.MissedCheckInPayload:
		bodyKey := "notification.missed_check_in.body"
		if p.RecipientMissed {
			bodyKey = "notification.missed_check_in.self_body"
		}
		return Output{
			Title:   localize(loc, "notification.missed_check_in.title"),
			Message: localize(loc, bodyKey, p.MissedName),
		}
	case domain.EmergencyPayload:
		location := strings.TrimSpace(p.Location)
		if location == "" {
			location = UnknownLocation
		}
		return Output{
			Title:   localize(loc, "notification.emergency.title"),
			Message: localize(loc, "notification.emergency.body", p.ActorName, location),
		}
	case domain.SessionEndedPayload:
		return Output{
			Title:   localize(loc, "notification.session_ended.title"),
			Message: localize(loc, "notification.session_ended.body", p.ActorName),
		}
	case domain.TextPayload:
		if strings.TrimSpace(p.Title) == "" {
			return genericOutput(loc)
		}
		return Output{Title: p.Title, Message: p.Message}
	default:
		return genericOutput(loc)
	}
}

func genericOutput(loc Localizer) Output {
	return Output{
		Title:   localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle),
		Message: localizeWithFallback(loc, "notification.generic.body", defaultGenericBody),
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		loc = message.NewPrinter(language.English)
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
