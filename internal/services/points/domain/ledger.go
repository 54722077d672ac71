package domain

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/safezone/internal/platform/errors"
)

var (
	// ErrUserNotFound indicates the ledger has no such user.
	ErrUserNotFound = apperrors.New(apperrors.CodeUserNotFound, "user not found")
	// ErrUserIDRequired indicates a ledger call without a user id.
	ErrUserIDRequired = apperrors.New(apperrors.CodeUserIDMissing, "user id is required")
	// ErrInvalidEntry indicates a ledger entry that cannot be appended.
	ErrInvalidEntry = apperrors.New(apperrors.CodeLedgerInvalidEntry, "ledger entry is invalid")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeNotConfigured, "points store is not configured")
)

// Reason tags why points moved.
type Reason string

const (
	ReasonBuddyCheckIn          Reason = "buddy_check_in"
	ReasonBuddySessionCompleted Reason = "buddy_session_completed"
	ReasonWelcomeBonus          Reason = "welcome_bonus"
)

// Entry is one append-only ledger row.
type Entry struct {
	ID          string
	UserID      string
	Reason      Reason
	Description string
	Points      int
	CreatedAt   time.Time
}

// Validate checks the entry can be appended.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrUserIDRequired
	}
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(string(e.Reason)) == "" || e.Points == 0 {
		return ErrInvalidEntry
	}
	return nil
}

// Balance is the cached running total of a user's ledger.
type Balance struct {
	UserID string
	Points int
	Rank   string
}

// User is a directory record carrying the cached balance.
type User struct {
	ID          string
	DisplayName string
	Points      int
	Rank        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Balance returns the cached totals of u.
func (u User) Balance() Balance {
	return Balance{UserID: u.ID, Points: u.Points, Rank: u.Rank}
}

// Policy holds the fixed awards granted by buddy transitions.
type Policy struct {
	CheckInPoints    int
	CompletionPoints int
}

// DefaultPolicy returns the standard buddy awards.
func DefaultPolicy() Policy {
	return Policy{CheckInPoints: 5, CompletionPoints: 25}
}
