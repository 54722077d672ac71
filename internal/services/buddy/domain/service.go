package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/safezone/internal/platform/id"
	"github.com/louisbranch/safezone/internal/platform/lock"
	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	"github.com/louisbranch/safezone/internal/services/notifications/render"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	tracerName = "github.com/louisbranch/safezone/internal/services/buddy/domain"

	// notificationSource marks inbox rows written by this package.
	notificationSource = "buddy"
	// unknownName stands in for a participant missing from the directory.
	unknownName = "Unknown"
)

// Result reports what one transition committed.
type Result struct {
	Session Session
	// Notification is the counterpart notification, nil when none was sent.
	Notification *notifdomain.Notification
	// Duplicate is set when an identical alert was already on record.
	Duplicate bool
	// PointsAwarded is the ledger grant made to the caller.
	PointsAwarded int
	// Balance is the caller's balance after the grant, nil without a grant.
	Balance *pointsdomain.Balance
	// AlreadyEnded is set when ending a session that was already completed.
	AlreadyEnded bool
	// NotOverdue is set when a system report found the session checked in,
	// ended or escalated before the alert was filed. Nothing is written.
	NotOverdue bool
	// Warnings lists post-commit side effects that did not complete.
	Warnings []string
}

// Service runs the buddy session transitions.
type Service struct {
	store     Store
	users     UserDirectory
	locker    lock.Locker
	publisher notifdomain.Publisher
	loc       render.Localizer
	policy    pointsdomain.Policy
	ladder    pointsdomain.Ladder
	clock     func() time.Time
	newID     func() (string, error)
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker replaces the in-process per-session lock.
func WithLocker(locker lock.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

// WithPublisher publishes committed notifications in realtime.
func WithPublisher(publisher notifdomain.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithLocalizer selects the catalog used for notification copy.
func WithLocalizer(loc render.Localizer) Option {
	return func(s *Service) { s.loc = loc }
}

// WithPolicy sets the fixed point awards.
func WithPolicy(policy pointsdomain.Policy) Option {
	return func(s *Service) { s.policy = policy }
}

// WithLadder sets the rank ladder applied after each grant.
func WithLadder(ladder pointsdomain.Ladder) Option {
	return func(s *Service) { s.ladder = ladder }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithIDGenerator overrides id.NewID.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) { s.newID = newID }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs the state machine over store and users.
func NewService(store Store, users UserDirectory, opts ...Option) *Service {
	s := &Service{
		store:  store,
		users:  users,
		locker: lock.NewKeyedMutex(),
		loc:    render.NewLocalizer(language.English),
		policy: pointsdomain.DefaultPolicy(),
		ladder: pointsdomain.DefaultLadder(),
		clock:  time.Now,
		newID:  id.NewID,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the session store the service writes through.
func (s *Service) Store() Store {
	return s.store
}

func (s *Service) ready() error {
	if s == nil || s.store == nil || s.users == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) startSpan(ctx context.Context, op, sessionID, callerID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "buddy."+op, trace.WithAttributes(
		attribute.String("buddy.session_id", sessionID),
		attribute.String("buddy.caller_id", callerID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) lockKey(ctx context.Context, key string) (func(), error) {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return release, nil
}

func sessionLockKey(sessionID string) string {
	return "buddy_session:" + sessionID
}

// pairLockKey is the same for both orderings of a pair.
func pairLockKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return "buddy_pair:" + userA + ":" + userB
}

func (s *Service) displayName(ctx context.Context, userID string) (string, error) {
	return resolveName(ctx, s.users, userID)
}

// resolveName falls back to unknownName for users missing from the directory.
func resolveName(ctx context.Context, users UserDirectory, userID string) (string, error) {
	if userID == "" || userID == SystemActorID {
		return unknownName, nil
	}
	name, err := users.DisplayName(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return unknownName, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve user %s: %w", userID, err)
	}
	if name = strings.TrimSpace(name); name == "" {
		return unknownName, nil
	}
	return name, nil
}

// notify renders payload and writes it to recipient's inbox inside tx.
func (s *Service) notify(ctx context.Context, tx Tx, recipient, relatedID, dedupeKey string, payload notifdomain.Payload) (notifdomain.Notification, bool, error) {
	payloadJSON, err := notifdomain.EncodePayload(payload)
	if err != nil {
		return notifdomain.Notification{}, false, err
	}
	notificationID, err := s.newID()
	if err != nil {
		return notifdomain.Notification{}, false, err
	}
	out := render.Render(s.loc, payload)
	notification, err := notifdomain.Build(notifdomain.Draft{
		RecipientUserID: recipient,
		Kind:            payload.Kind(),
		Title:           out.Title,
		Message:         out.Message,
		RelatedID:       relatedID,
		PayloadJSON:     payloadJSON,
		DedupeKey:       dedupeKey,
		Source:          notificationSource,
	}, notificationID, s.now())
	if err != nil {
		return notifdomain.Notification{}, false, err
	}
	stored, created, err := tx.PutNotification(ctx, notification)
	if err != nil {
		return notifdomain.Notification{}, false, fmt.Errorf("write %s notification: %w", payload.Kind(), err)
	}
	return stored, created, nil
}

// grant appends a ledger entry for userID inside tx. A zero award is skipped.
func (s *Service) grant(ctx context.Context, tx Tx, userID string, reason pointsdomain.Reason, description string, points int) (*pointsdomain.Balance, error) {
	if points == 0 {
		return nil, nil
	}
	entryID, err := s.newID()
	if err != nil {
		return nil, err
	}
	entry := pointsdomain.Entry{
		ID:          entryID,
		UserID:      userID,
		Reason:      reason,
		Description: description,
		Points:      points,
		CreatedAt:   s.now(),
	}
	balance, err := tx.GrantPoints(ctx, entry, s.ladder)
	if err != nil {
		return nil, fmt.Errorf("grant %s points: %w", reason, err)
	}
	return &balance, nil
}

// publish fans the committed notification out. Failures become warnings.
func (s *Service) publish(ctx context.Context, result *Result) {
	if s.publisher == nil || result.Notification == nil || result.Duplicate {
		return
	}
	if err := s.publisher.Publish(ctx, *result.Notification); err != nil {
		s.logger.Warn("publish notification",
			zap.String("session_id", result.Session.ID),
			zap.String("notification_id", result.Notification.ID),
			zap.String("recipient_user_id", result.Notification.RecipientUserID),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, "realtime notification delivery failed: "+err.Error())
	}
}
