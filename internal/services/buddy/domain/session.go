package domain

import (
	"context"
	"time"

	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEmergency Status = "emergency"
)

// DefaultCheckInIntervalMinutes applies when a request leaves the interval unset.
const DefaultCheckInIntervalMinutes = 30

// MaxCheckInIntervalMinutes caps the cadence at one year so the interval
// always fits a time.Duration.
const MaxCheckInIntervalMinutes = 365 * 24 * 60

// SystemActorID reports missed check-ins on behalf of the server sweep.
const SystemActorID = "system"

// Session is one buddy pairing.
type Session struct {
	ID                     string
	InitiatorID            string
	BuddyID                string
	Status                 Status
	CheckInIntervalMinutes int
	LastCheckInAt          time.Time
	Location               string
	Destination            string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	EndedAt                *time.Time
}

// IsParticipant reports whether userID is the initiator or the buddy.
func (s Session) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.InitiatorID || userID == s.BuddyID)
}

// Counterpart returns the other participant. For a non-participant it
// returns the buddy, the party who watches over the initiator.
func Counterpart(s Session, actingUserID string) string {
	if actingUserID == s.BuddyID {
		return s.InitiatorID
	}
	return s.BuddyID
}

// CheckInInterval returns the configured cadence as a duration.
func (s Session) CheckInInterval() time.Duration {
	return time.Duration(s.CheckInIntervalMinutes) * time.Minute
}

// Overdue reports whether an active session has gone a full interval
// without a check-in.
func (s Session) Overdue(now time.Time) bool {
	return s.Status == StatusActive && s.CheckInIntervalMinutes > 0 && now.Sub(s.LastCheckInAt) > s.CheckInInterval()
}

// Role is the caller's side of a session.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleBuddy     Role = "buddy"
)

// RoleOf returns the side userID holds in s.
func RoleOf(s Session, userID string) Role {
	if userID == s.InitiatorID {
		return RoleInitiator
	}
	return RoleBuddy
}

// Tx is the write surface of one transition's unit of work.
type Tx interface {
	notifdomain.Writer
	pointsdomain.Granter
	GetSession(ctx context.Context, sessionID string) (Session, error)
	FindActiveSessionForPair(ctx context.Context, userA, userB string) (Session, bool, error)
	CreateSession(ctx context.Context, session Session) error
	SaveSession(ctx context.Context, session Session) error
}

// Store persists sessions. WithinTx commits every write made through tx when
// fn returns nil and discards them all otherwise.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)
	FindActiveSessionForUser(ctx context.Context, userID string) (Session, bool, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]Session, error)
	ListActiveSessions(ctx context.Context, afterID string, limit int) ([]Session, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// UserDirectory resolves display names. Unknown users yield an error
// matching ErrUserNotFound.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}
