package buddy

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/louisbranch/safezone/internal/platform/errors"
	"github.com/louisbranch/safezone/internal/services/buddy/domain"
	buddysqlite "github.com/louisbranch/safezone/internal/services/buddy/storage/sqlite"
	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"github.com/louisbranch/safezone/internal/services/shared/grpcauthctx"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestBuddyFlowOverGRPC(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t)
	ctx := context.Background()

	created := invoke(t, conn, "ana", "CreateSession", map[string]any{
		"buddy_id":                  "ben",
		"check_in_interval_minutes": 30,
		"location":                  "Plaza Park",
	})
	session := created.GetFields()["session"].GetStructValue()
	sessionID := session.GetFields()["id"].GetStringValue()
	if sessionID == "" || session.GetFields()["status"].GetStringValue() != "active" {
		t.Fatalf("unexpected session: %v", session)
	}

	inbox := invoke(t, conn, "ben", "ListNotifications", map[string]any{"unread_only": true})
	notifications := inbox.GetFields()["notifications"].GetListValue().GetValues()
	if len(notifications) != 1 {
		t.Fatalf("ben notifications = %d, want 1", len(notifications))
	}
	request := notifications[0].GetStructValue().GetFields()
	if request["kind"].GetStringValue() != "buddy_request" || request["related_id"].GetStringValue() != sessionID {
		t.Fatalf("unexpected notification: %v", request)
	}

	checked := invoke(t, conn, "ana", "CheckIn", map[string]any{"session_id": sessionID})
	if got := checked.GetFields()["points_awarded"].GetNumberValue(); got != 5 {
		t.Fatalf("points awarded = %v, want 5", got)
	}

	active := invoke(t, conn, "ben", "GetActiveSession", nil)
	if !active.GetFields()["found"].GetBoolValue() {
		t.Fatal("expected active session for ben")
	}
	view := active.GetFields()["session"].GetStructValue().GetFields()
	if view["role"].GetStringValue() != "buddy" || view["counterpart_name"].GetStringValue() != "Ana Cruz" {
		t.Fatalf("unexpected view: %v", view)
	}

	emergency := invoke(t, conn, "ana", "TriggerEmergency", map[string]any{"session_id": sessionID})
	alert := emergency.GetFields()["notification"].GetStructValue().GetFields()
	if alert["kind"].GetStringValue() != "emergency" || !alert["urgent"].GetBoolValue() {
		t.Fatalf("unexpected alert: %v", alert)
	}
	if got := alert["payload"].GetStructValue().GetFields()["location"].GetStringValue(); got != "Plaza Park" {
		t.Fatalf("alert location = %q", got)
	}

	_, err := invokeErr(ctx, conn, "ana", "CheckIn", map[string]any{"session_id": sessionID})
	assertStatus(t, err, codes.FailedPrecondition, apperrors.CodeSessionInvalidState)

	ended := invoke(t, conn, "ben", "EndSession", map[string]any{"session_id": sessionID})
	if got := ended.GetFields()["session"].GetStructValue().GetFields()["status"].GetStringValue(); got != "completed" {
		t.Fatalf("status = %q, want completed", got)
	}
	again := invoke(t, conn, "ben", "EndSession", map[string]any{"session_id": sessionID})
	if !again.GetFields()["already_ended"].GetBoolValue() {
		t.Fatalf("expected already_ended, got %v", again)
	}

	history := invoke(t, conn, "ben", "ListPointsHistory", nil)
	balance := history.GetFields()["balance"].GetStructValue().GetFields()
	if balance["points"].GetNumberValue() != 25 || balance["rank"].GetStringValue() != "Bagong Kaibigan" {
		t.Fatalf("unexpected balance: %v", balance)
	}
	if entries := history.GetFields()["entries"].GetListValue().GetValues(); len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	sessions := invoke(t, conn, "ana", "ListSessions", nil)
	if got := len(sessions.GetFields()["sessions"].GetListValue().GetValues()); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}

	unread := invoke(t, conn, "ana", "CountUnreadNotifications", nil)
	if got := unread.GetFields()["unread_count"].GetNumberValue(); got != 1 {
		t.Fatalf("ana unread = %v, want 1", got)
	}
	marked := invoke(t, conn, "ana", "MarkAllNotificationsRead", nil)
	if got := marked.GetFields()["updated"].GetNumberValue(); got != 1 {
		t.Fatalf("updated = %v, want 1", got)
	}
	unread = invoke(t, conn, "ana", "CountUnreadNotifications", nil)
	if got := unread.GetFields()["unread_count"].GetNumberValue(); got != 0 {
		t.Fatalf("ana unread after mark all = %v, want 0", got)
	}
}

func TestRPCErrorsMapToStatusCodes(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t)
	ctx := context.Background()

	_, err := invokeErr(ctx, conn, "", "ListSessions", nil)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("missing identity code = %v, want %v", status.Code(err), codes.PermissionDenied)
	}

	_, err = invokeErr(ctx, conn, "ana", "CreateSession", map[string]any{"buddy_id": "ghost"})
	assertStatus(t, err, codes.NotFound, apperrors.CodeUserNotFound)

	_, err = invokeErr(ctx, conn, "ana", "CreateSession", map[string]any{"buddy_id": "ana"})
	assertStatus(t, err, codes.InvalidArgument, apperrors.CodeSessionSelfBuddy)

	_, err = invokeErr(ctx, conn, "ana", "CreateSession", map[string]any{"buddy_id": "ben", "check_in_interval_minutes": 1.5})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("fractional interval code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}

	created := invoke(t, conn, "ana", "CreateSession", map[string]any{"buddy_id": "ben"})
	sessionID := created.GetFields()["session"].GetStructValue().GetFields()["id"].GetStringValue()

	_, err = invokeErr(ctx, conn, "ben", "CreateSession", map[string]any{"buddy_id": "ana"})
	assertStatus(t, err, codes.AlreadyExists, apperrors.CodeActiveSessionExists)

	_, err = invokeErr(ctx, conn, "cara", "CheckIn", map[string]any{"session_id": sessionID})
	assertStatus(t, err, codes.PermissionDenied, apperrors.CodeNotParticipant)

	_, err = invokeErr(ctx, conn, "ana", "CheckIn", map[string]any{"session_id": "missing"})
	assertStatus(t, err, codes.NotFound, apperrors.CodeSessionNotFound)

	_, err = invokeErr(ctx, conn, "ana", "CheckIn", nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing session id code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}

	inbox := invoke(t, conn, "ben", "ListNotifications", nil)
	notificationID := inbox.GetFields()["notifications"].GetListValue().GetValues()[0].GetStructValue().GetFields()["id"].GetStringValue()
	_, err = invokeErr(ctx, conn, "ana", "MarkNotificationRead", map[string]any{"notification_id": notificationID})
	assertStatus(t, err, codes.PermissionDenied, apperrors.CodeNotificationForbidden)
}

func TestCreateSystemNotificationFilesIntoCallerInbox(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t)
	created := invoke(t, conn, "ana", "CreateSystemNotification", map[string]any{
		"kind":    "message",
		"title":   "Reminder",
		"message": "Bring water",
	})
	n := created.GetFields()["notification"].GetStructValue().GetFields()
	if n["recipient_user_id"].GetStringValue() != "ana" || n["kind"].GetStringValue() != "message" || n["title"].GetStringValue() != "Reminder" {
		t.Fatalf("unexpected notification: %v", n)
	}

	_, err := invokeErr(context.Background(), conn, "ana", "CreateSystemNotification", map[string]any{"kind": "poke", "title": "x"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unknown kind code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateSessionRejectsOversizedInterval(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t)
	for _, interval := range []float64{float64(domain.MaxCheckInIntervalMinutes + 1), 1e15} {
		_, err := invokeErr(context.Background(), conn, "ana", "CreateSession", map[string]any{
			"buddy_id":                  "ben",
			"check_in_interval_minutes": interval,
		})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("interval %v code = %v, want %v", interval, status.Code(err), codes.InvalidArgument)
		}
	}
	sessions := invoke(t, conn, "ana", "ListSessions", nil)
	if got := len(sessions.GetFields()["sessions"].GetListValue().GetValues()); got != 0 {
		t.Fatalf("sessions = %d, want 0", got)
	}
}

func TestCreateSystemNotificationReportsPublishWarning(t *testing.T) {
	t.Parallel()

	inbox := warningInbox{delivery: notifdomain.Delivery{
		Notification: notifdomain.Notification{ID: "n-1", RecipientUserID: "ana", Kind: notifdomain.KindSystem, Title: "Reminder"},
		Created:      true,
		Warnings:     []string{"realtime notification delivery failed: nats down"},
	}}
	svc := NewService(nil, nil, inbox, nil, nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(grpcauthctx.UserIDHeader, "ana"))
	req, _ := structpb.NewStruct(map[string]any{"title": "Reminder"})
	resp, err := svc.CreateSystemNotification(ctx, req)
	if err != nil {
		t.Fatalf("create system notification: %v", err)
	}
	if got := resp.GetFields()["notification"].GetStructValue().GetFields()["id"].GetStringValue(); got != "n-1" {
		t.Fatalf("notification id = %q, want n-1", got)
	}
	warnings := resp.GetFields()["warnings"].GetListValue().GetValues()
	if len(warnings) != 1 || warnings[0].GetStringValue() != "realtime notification delivery failed: nats down" {
		t.Fatalf("warnings = %v", warnings)
	}
}

type warningInbox struct {
	delivery notifdomain.Delivery
}

func (w warningInbox) ListForUser(context.Context, notifdomain.ListInput) (notifdomain.Page, error) {
	return notifdomain.Page{}, nil
}

func (w warningInbox) CountUnread(context.Context, string) (int, error) {
	return 0, nil
}

func (w warningInbox) MarkRead(context.Context, string, string) (notifdomain.Notification, error) {
	return notifdomain.Notification{}, nil
}

func (w warningInbox) MarkAllRead(context.Context, string) (int, error) {
	return 0, nil
}

func (w warningInbox) CreateSystemNotification(context.Context, string, notifdomain.Kind, string, string, string) (notifdomain.Delivery, error) {
	return w.delivery, nil
}

func TestInternalErrorsAreNotLeakedAsDomainCodes(t *testing.T) {
	t.Parallel()

	svc := NewService(failingSessions{err: errors.New("disk full")}, nil, nil, nil, nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(grpcauthctx.UserIDHeader, "ana"))
	req, _ := structpb.NewStruct(map[string]any{"session_id": "s-1"})
	_, err := svc.CheckIn(ctx, req)
	if status.Code(err) != codes.Unknown && status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want internal", status.Code(err))
	}
}

type failingSessions struct {
	err error
}

func (f failingSessions) CreateSession(context.Context, domain.CreateSessionInput) (domain.Result, error) {
	return domain.Result{}, f.err
}

func (f failingSessions) CheckIn(context.Context, string, string) (domain.Result, error) {
	return domain.Result{}, f.err
}

func (f failingSessions) ReportMissedCheckIn(context.Context, string, string) (domain.Result, error) {
	return domain.Result{}, f.err
}

func (f failingSessions) TriggerEmergency(context.Context, string, string) (domain.Result, error) {
	return domain.Result{}, f.err
}

func (f failingSessions) EndSession(context.Context, string, string) (domain.Result, error) {
	return domain.Result{}, f.err
}

func newTestConn(t *testing.T) *grpc.ClientConn {
	t.Helper()

	ctx := context.Background()
	store, err := buddysqlite.Open(ctx, filepath.Join(t.TempDir(), "buddy.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	points := pointsdomain.NewService(store.Points(), pointsdomain.DefaultLadder(), clock, nil)
	for id, name := range map[string]string{"ana": "Ana Cruz", "ben": "Ben Reyes", "cara": "Cara Santos"} {
		if _, err := points.RegisterUser(ctx, id, name, 0); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	sessions := domain.NewService(store, store.Points(), domain.WithClock(clock))
	queries := domain.NewQueryService(store, store.Points())
	inbox := notifdomain.NewService(store.Notifications(), clock, nil)

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcauthctx.UnaryServerInterceptor(nil)))
	Register(server, NewService(sessions, queries, inbox, points, nil))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, userID, method string, fields map[string]any) *structpb.Struct {
	t.Helper()
	resp, err := invokeErr(context.Background(), conn, userID, method, fields)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return resp
}

func invokeErr(ctx context.Context, conn *grpc.ClientConn, userID, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(grpcauthctx.WithUserID(ctx, userID), FullMethod(method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func assertStatus(t *testing.T, err error, want codes.Code, reason apperrors.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok || st.Code() != want {
		t.Fatalf("status = %v, want %v", err, want)
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			if info.GetReason() != string(reason) || info.GetDomain() != apperrors.Domain {
				t.Fatalf("error info = %v, want reason %s", info, reason)
			}
			return
		}
	}
	t.Fatalf("missing error info on %v", err)
}
