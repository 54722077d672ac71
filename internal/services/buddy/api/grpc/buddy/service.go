// Package buddy exposes buddy sessions, the notification inbox and the points
// history over gRPC. Messages are google.protobuf.Struct values so the
// service is declared without generated stubs.
package buddy

import (
	"context"
	"math"
	"strings"

	apperrors "github.com/louisbranch/safezone/internal/platform/errors"
	"github.com/louisbranch/safezone/internal/services/buddy/domain"
	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"github.com/louisbranch/safezone/internal/services/shared/grpcauthctx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "buddy.v1.BuddyService"

// Sessions runs the session transitions.
type Sessions interface {
	CreateSession(ctx context.Context, input domain.CreateSessionInput) (domain.Result, error)
	CheckIn(ctx context.Context, sessionID, callerID string) (domain.Result, error)
	ReportMissedCheckIn(ctx context.Context, sessionID, reporterID string) (domain.Result, error)
	TriggerEmergency(ctx context.Context, sessionID, callerID string) (domain.Result, error)
	EndSession(ctx context.Context, sessionID, callerID string) (domain.Result, error)
}

// Queries answers session reads.
type Queries interface {
	ActiveSessionForUser(ctx context.Context, userID string) (domain.SessionView, bool, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]domain.SessionView, error)
}

// Inbox serves the caller's notifications.
type Inbox interface {
	ListForUser(ctx context.Context, input notifdomain.ListInput) (notifdomain.Page, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) (notifdomain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CreateSystemNotification(ctx context.Context, userID string, kind notifdomain.Kind, title, message, relatedID string) (notifdomain.Delivery, error)
}

// Ledger serves the caller's points.
type Ledger interface {
	Balance(ctx context.Context, userID string) (pointsdomain.Balance, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]pointsdomain.Entry, error)
}

// Server is the handler set registered under ServiceName.
type Server interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReportMissedCheckIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerEmergency(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetActiveSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListNotifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CountUnreadNotifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkNotificationRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkAllNotificationsRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateSystemNotification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPointsHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Service implements Server over the domain services.
type Service struct {
	sessions Sessions
	queries  Queries
	inbox    Inbox
	ledger   Ledger
	logger   *zap.Logger
}

// NewService creates the gRPC handlers.
func NewService(sessions Sessions, queries Queries, inbox Inbox, ledger Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sessions: sessions, queries: queries, inbox: inbox, ledger: ledger, logger: logger}
}

// Register attaches srv to server under ServiceName.
func Register(server grpc.ServiceRegistrar, srv Server) {
	server.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes buddy.v1.BuddyService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSession", Server.CreateSession),
		unary("CheckIn", Server.CheckIn),
		unary("ReportMissedCheckIn", Server.ReportMissedCheckIn),
		unary("TriggerEmergency", Server.TriggerEmergency),
		unary("EndSession", Server.EndSession),
		unary("GetActiveSession", Server.GetActiveSession),
		unary("ListSessions", Server.ListSessions),
		unary("ListNotifications", Server.ListNotifications),
		unary("CountUnreadNotifications", Server.CountUnreadNotifications),
		unary("MarkNotificationRead", Server.MarkNotificationRead),
		unary("MarkAllNotificationsRead", Server.MarkAllNotificationsRead),
		unary("CreateSystemNotification", Server.CreateSystemNotification),
		unary("ListPointsHistory", Server.ListPointsHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "buddy/v1/buddy.proto",
}

// FullMethod returns the invocation path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary(name string, call func(Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(structpb.Struct)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Server), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(Server), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// callerID returns the identity every RPC acts as.
func callerID(ctx context.Context) (string, error) {
	userID := grpcauthctx.UserIDFromIncoming(ctx)
	if userID == "" {
		return "", status.Error(codes.PermissionDenied, "missing user identity")
	}
	return userID, nil
}

func (s *Service) fail(method string, err error) error {
	grpcErr := apperrors.ToGRPCStatus(err)
	if status.Code(grpcErr) == codes.Internal || status.Code(grpcErr) == codes.Unknown {
		s.logger.Error("buddy rpc failed", zap.String("method", method), zap.Error(err))
	}
	return grpcErr
}

func stringField(req *structpb.Struct, name string) string {
	value, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(value.GetStringValue())
}

func boolField(req *structpb.Struct, name string) bool {
	return req.GetFields()[name].GetBoolValue()
}

// intField reads a whole number. Missing fields read as zero.
func intField(req *structpb.Struct, name string) (int, error) {
	value, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		number := kind.NumberValue
		if math.Abs(number) > math.MaxInt32 {
			return 0, status.Errorf(codes.InvalidArgument, "%s is out of range", name)
		}
		if number != math.Trunc(number) {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a whole number", name)
		}
		return int(number), nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
}
