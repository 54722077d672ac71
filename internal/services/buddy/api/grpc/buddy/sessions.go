package buddy

import (
	"context"

	"github.com/louisbranch/safezone/internal/services/buddy/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// CreateSession starts a session with the caller as initiator.
func (s *Service) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	interval, err := intField(req, "check_in_interval_minutes")
	if err != nil {
		return nil, err
	}
	result, err := s.sessions.CreateSession(ctx, domain.CreateSessionInput{
		InitiatorID:            caller,
		BuddyID:                stringField(req, "buddy_id"),
		CheckInIntervalMinutes: interval,
		Location:               stringField(req, "location"),
		Destination:            stringField(req, "destination"),
	})
	if err != nil {
		return nil, s.fail("CreateSession", err)
	}
	return resultStruct(result)
}

// CheckIn records the caller as safe.
func (s *Service) CheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, "CheckIn", s.sessions.CheckIn)
}

// ReportMissedCheckIn raises a missed check-in alert.
func (s *Service) ReportMissedCheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, "ReportMissedCheckIn", s.sessions.ReportMissedCheckIn)
}

// TriggerEmergency escalates the session.
func (s *Service) TriggerEmergency(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, "TriggerEmergency", s.sessions.TriggerEmergency)
}

// EndSession completes the session.
func (s *Service) EndSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, "EndSession", s.sessions.EndSession)
}

func (s *Service) transition(ctx context.Context, req *structpb.Struct, method string, run func(context.Context, string, string) (domain.Result, error)) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	sessionID := stringField(req, "session_id")
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	result, err := run(ctx, sessionID, caller)
	if err != nil {
		return nil, s.fail(method, err)
	}
	return resultStruct(result)
}

// GetActiveSession returns the caller's newest active session, if any.
func (s *Service) GetActiveSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	view, found, err := s.queries.ActiveSessionForUser(ctx, caller)
	if err != nil {
		return nil, s.fail("GetActiveSession", err)
	}
	out := map[string]any{"found": found}
	if found {
		out["session"] = sessionViewMap(view)
	}
	return structpb.NewStruct(out)
}

// ListSessions returns every session of the caller, newest first.
func (s *Service) ListSessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.queries.ListSessionsForUser(ctx, caller)
	if err != nil {
		return nil, s.fail("ListSessions", err)
	}
	sessions := make([]any, 0, len(views))
	for _, view := range views {
		sessions = append(sessions, sessionViewMap(view))
	}
	return structpb.NewStruct(map[string]any{"sessions": sessions})
}
