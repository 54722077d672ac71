package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the structured body of one notification kind.
type Payload interface {
	Kind() Kind
}

// BuddyRequestPayload announces a new session to the buddy.
type BuddyRequestPayload struct {
	SessionID       string `json:"session_id"`
	InitiatorName   string `json:"initiator_name"`
	IntervalMinutes int    `json:"interval_minutes"`
	Location        string `json:"location,omitempty"`
	Destination     string `json:"destination,omitempty"`
}

// CheckInPayload reports a participant checked in.
type CheckInPayload struct {
	SessionID   string    `json:"session_id"`
	ActorName   string    `json:"actor_name"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// MissedCheckInPayload reports an overdue check-in. RecipientMissed is set
// when the alert is addressed to the party who missed it.
type MissedCheckInPayload struct {
	SessionID       string    `json:"session_id"`
	MissedName      string    `json:"missed_name"`
	LastCheckInAt   time.Time `json:"last_check_in_at"`
	RecipientMissed bool      `json:"recipient_missed,omitempty"`
	Detected        bool      `json:"detected,omitempty"`
}

// EmergencyPayload carries the last known location of the session.
type EmergencyPayload struct {
	SessionID string `json:"session_id"`
	ActorName string `json:"actor_name"`
	Location  string `json:"location"`
}

// SessionEndedPayload reports a participant closed the session.
type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
	ActorName string `json:"actor_name"`
}

// TextPayload carries caller-authored copy for message and system kinds.
type TextPayload struct {
	TextKind Kind   `json:"-"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

func (BuddyRequestPayload) Kind() Kind  { return KindBuddyRequest }
func (CheckInPayload) Kind() Kind       { return KindCheckInSuccess }
func (MissedCheckInPayload) Kind() Kind { return KindMissedCheckIn }
func (EmergencyPayload) Kind() Kind     { return KindEmergency }
func (SessionEndedPayload) Kind() Kind  { return KindSessionEnded }

func (p TextPayload) Kind() Kind {
	if p.TextKind == "" {
		return KindSystem
	}
	return p.TextKind
}

// EncodePayload renders payload as the JSON stored next to the notification.
func EncodePayload(payload Payload) (string, error) {
	if payload == nil {
		return "", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", payload.Kind(), err)
	}
	return string(data), nil
}

// DecodePayload parses stored payload JSON back into the shape owned by kind.
func DecodePayload(kind Kind, raw string) (Payload, error) {
	var target Payload
	switch kind {
	case KindBuddyRequest:
		target = &BuddyRequestPayload{}
	case KindCheckInSuccess:
		target = &CheckInPayload{}
	case KindMissedCheckIn:
		target = &MissedCheckInPayload{}
	case KindEmergency:
		target = &EmergencyPayload{}
	case KindSessionEnded:
		target = &SessionEndedPayload{}
	case KindMessage, KindSystem:
		target = &TextPayload{TextKind: kind}
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}
	return derefPayload(target), nil
}

func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *BuddyRequestPayload:
		return *v
	case *CheckInPayload:
		return *v
	case *MissedCheckInPayload:
		return *v
	case *EmergencyPayload:
		return *v
	case *SessionEndedPayload:
		return *v
	case *TextPayload:
		return *v
	default:
		return p
	}
}
