// Package errors provides coded domain errors that map onto gRPC statuses.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionInvalidState  Code = "SESSION_INVALID_STATE"
	CodeSessionSelfBuddy     Code = "SESSION_SELF_BUDDY"
	CodeSessionInvalidPeriod Code = "SESSION_INVALID_CHECK_IN_INTERVAL"
	CodeActiveSessionExists  Code = "ACTIVE_SESSION_EXISTS"
	CodeNotParticipant       Code = "SESSION_NOT_PARTICIPANT"

	// User errors
	CodeUserNotFound  Code = "USER_NOT_FOUND"
	CodeUserIDMissing Code = "USER_ID_MISSING"

	// Notification errors
	CodeNotificationNotFound  Code = "NOTIFICATION_NOT_FOUND"
	CodeNotificationForbidden Code = "NOTIFICATION_FORBIDDEN"
	CodeNotificationInvalid   Code = "NOTIFICATION_INVALID"

	// Ledger errors
	CodeLedgerInvalidEntry Code = "LEDGER_INVALID_ENTRY"

	// Wiring errors
	CodeNotConfigured Code = "NOT_CONFIGURED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeSessionSelfBuddy,
		CodeSessionInvalidPeriod,
		CodeUserIDMissing,
		CodeNotificationInvalid,
		CodeLedgerInvalidEntry:
		return codes.InvalidArgument

	case CodeSessionInvalidState:
		return codes.FailedPrecondition

	case CodeSessionNotFound,
		CodeUserNotFound,
		CodeNotificationNotFound:
		return codes.NotFound

	case CodeNotParticipant,
		CodeNotificationForbidden:
		return codes.PermissionDenied

	case CodeActiveSessionExists:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
