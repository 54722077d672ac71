package domain

import "strings"

// Kind tags what a notification is about. The set is closed: every kind has
// one payload shape and one rendering.
type Kind string

const (
	KindBuddyRequest   Kind = "buddy_request"
	KindCheckInSuccess Kind = "check_in_success"
	KindMissedCheckIn  Kind = "missed_check_in"
	KindEmergency      Kind = "emergency"
	KindSessionEnded   Kind = "session_ended"
	KindMessage        Kind = "message"
	KindSystem         Kind = "system"
)

var knownKinds = map[Kind]struct{}{
	KindBuddyRequest:   {},
	KindCheckInSuccess: {},
	KindMissedCheckIn:  {},
	KindEmergency:      {},
	KindSessionEnded:   {},
	KindMessage:        {},
	KindSystem:         {},
}

// ParseKind normalizes raw and reports whether it names a known kind.
func ParseKind(raw string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := knownKinds[kind]
	return kind, ok
}

// Urgent reports whether the kind should interrupt the recipient.
func (k Kind) Urgent() bool {
	return k == KindMissedCheckIn || k == KindEmergency
}
