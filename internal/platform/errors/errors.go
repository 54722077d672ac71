package errors

import (
	stderrors "errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain is the error domain attached to gRPC error details.
const Domain = "safezone.buddy"

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context for clients
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata returns a copy of e carrying metadata for clients.
func (e *Error) WithMetadata(metadata map[string]string) *Error {
	clone := *e
	clone.Metadata = metadata
	return &clone
}

// CodeOf returns the code of the first coded error in err's chain.
func CodeOf(err error) Code {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// ToGRPCStatus converts err to a gRPC status error with ErrorInfo details.
// Errors without a code become Internal.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var coded *Error
	if !stderrors.As(err, &coded) {
		return status.Error(CodeUnknown.GRPCCode(), err.Error())
	}
	st := status.New(coded.Code.GRPCCode(), coded.Error())
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(coded.Code),
		Domain:   Domain,
		Metadata: coded.Metadata,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}
