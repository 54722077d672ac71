package domain

import apperrors "github.com/louisbranch/safezone/internal/platform/errors"

var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = apperrors.New(apperrors.CodeSessionNotFound, "buddy session not found")
	// ErrUserNotFound indicates a referenced user is not in the directory.
	ErrUserNotFound = apperrors.New(apperrors.CodeUserNotFound, "user not found")
	// ErrForbidden indicates the caller is not a participant of the session.
	ErrForbidden = apperrors.New(apperrors.CodeNotParticipant, "caller is not a participant of this session")
	// ErrInvalidState indicates the session status does not allow the transition.
	ErrInvalidState = apperrors.New(apperrors.CodeSessionInvalidState, "session is not active")
	// ErrSelfBuddy indicates an initiator tried to pair with themselves.
	ErrSelfBuddy = apperrors.New(apperrors.CodeSessionSelfBuddy, "initiator and buddy must be different users")
	// ErrInvalidInterval indicates a check-in interval outside one minute to one year.
	ErrInvalidInterval = apperrors.New(apperrors.CodeSessionInvalidPeriod, "check-in interval must be between 1 minute and 1 year")
	// ErrActiveSessionExists indicates the pair already has an active session.
	ErrActiveSessionExists = apperrors.New(apperrors.CodeActiveSessionExists, "an active session already exists for this pair")
	// ErrCallerRequired indicates a transition without a caller identity.
	ErrCallerRequired = apperrors.New(apperrors.CodeUserIDMissing, "caller user id is required")
	// ErrBuddyRequired indicates a session request without a buddy.
	ErrBuddyRequired = apperrors.New(apperrors.CodeUserIDMissing, "buddy user id is required")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeNotConfigured, "buddy session store is not configured")
)
