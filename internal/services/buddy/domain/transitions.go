package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	"github.com/louisbranch/safezone/internal/services/notifications/render"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"go.uber.org/zap"
)

// CreateSessionInput describes a new buddy request.
type CreateSessionInput struct {
	InitiatorID            string
	BuddyID                string
	CheckInIntervalMinutes int
	Location               string
	Destination            string
}

// CreateSession starts an active session and asks the buddy to watch over
// the initiator.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (result Result, err error) {
	if err := s.ready(); err != nil {
		return Result{}, err
	}
	initiatorID := strings.TrimSpace(input.InitiatorID)
	buddyID := strings.TrimSpace(input.BuddyID)
	if initiatorID == "" {
		return Result{}, ErrCallerRequired
	}
	if buddyID == "" {
		return Result{}, ErrBuddyRequired
	}
	if initiatorID == buddyID {
		return Result{}, ErrSelfBuddy
	}
	interval := input.CheckInIntervalMinutes
	if interval == 0 {
		interval = DefaultCheckInIntervalMinutes
	}
	if interval < 0 || interval > MaxCheckInIntervalMinutes {
		return Result{}, ErrInvalidInterval
	}

	ctx, span := s.startSpan(ctx, "create_session", "", initiatorID)
	defer func() { endSpan(span, err) }()

	release, err := s.lockKey(ctx, pairLockKey(initiatorID, buddyID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	if _, err := s.users.DisplayName(ctx, buddyID); err != nil {
		return Result{}, fmt.Errorf("resolve buddy: %w", err)
	}
	initiatorName, err := s.users.DisplayName(ctx, initiatorID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve initiator: %w", err)
	}
	if initiatorName = strings.TrimSpace(initiatorName); initiatorName == "" {
		initiatorName = unknownName
	}

	sessionID, err := s.newID()
	if err != nil {
		return Result{}, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now()
	session := Session{
		ID:                     sessionID,
		InitiatorID:            initiatorID,
		BuddyID:                buddyID,
		Status:                 StatusActive,
		CheckInIntervalMinutes: interval,
		LastCheckInAt:          now,
		Location:               strings.TrimSpace(input.Location),
		Destination:            strings.TrimSpace(input.Destination),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, found, err := tx.FindActiveSessionForPair(ctx, initiatorID, buddyID); err != nil {
			return fmt.Errorf("find active session: %w", err)
		} else if found {
			return ErrActiveSessionExists
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		notification, _, err := s.notify(ctx, tx, buddyID, session.ID, "", notifdomain.BuddyRequestPayload{
			SessionID:       session.ID,
			InitiatorName:   initiatorName,
			IntervalMinutes: interval,
			Location:        session.Location,
			Destination:     session.Destination,
		})
		if err != nil {
			return err
		}
		result.Notification = &notification
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	result.Session = session
	s.logger.Info("buddy session created",
		zap.String("session_id", session.ID),
		zap.String("initiator_id", initiatorID),
		zap.String("buddy_id", buddyID),
	)
	s.publish(ctx, &result)
	return result, nil
}

// CheckIn records the caller as safe and rewards them.
func (s *Service) CheckIn(ctx context.Context, sessionID, callerID string) (result Result, err error) {
	sessionID, callerID, err = s.normalize(sessionID, callerID)
	if err != nil {
		return Result{}, err
	}
	ctx, span := s.startSpan(ctx, "check_in", sessionID, callerID)
	defer func() { endSpan(span, err) }()

	release, err := s.lockKey(ctx, sessionLockKey(sessionID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	if _, err := s.loadForParticipant(ctx, sessionID, callerID, true); err != nil {
		return Result{}, err
	}
	actorName, err := s.displayName(ctx, callerID)
	if err != nil {
		return Result{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkParticipant(session, callerID, true); err != nil {
			return err
		}
		now := s.now()
		if now.After(session.LastCheckInAt) {
			session.LastCheckInAt = now
		}
		session.UpdatedAt = now
		if err := tx.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		notification, _, err := s.notify(ctx, tx, Counterpart(session, callerID), session.ID, "", notifdomain.CheckInPayload{
			SessionID:   session.ID,
			ActorName:   actorName,
			CheckedInAt: session.LastCheckInAt,
		})
		if err != nil {
			return err
		}
		balance, err := s.grant(ctx, tx, callerID, pointsdomain.ReasonBuddyCheckIn, "Checked in during a buddy session", s.policy.CheckInPoints)
		if err != nil {
			return err
		}
		result = Result{Session: session, Notification: &notification, Balance: balance}
		if balance != nil {
			result.PointsAwarded = s.policy.CheckInPoints
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("buddy check-in", zap.String("session_id", sessionID), zap.String("user_id", callerID))
	s.publish(ctx, &result)
	return result, nil
}

// ReportMissedCheckIn alerts a participant that the initiator missed a
// check-in. The reporter may be either participant, the system sweeper or
// any other observer. Repeated reports within one check-in window return the
// alert already on record. System reports are dropped once the session is no
// longer overdue.
func (s *Service) ReportMissedCheckIn(ctx context.Context, sessionID, reporterID string) (result Result, err error) {
	if err := s.ready(); err != nil {
		return Result{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	reporterID = strings.TrimSpace(reporterID)
	if sessionID == "" {
		return Result{}, ErrNotFound
	}
	ctx, span := s.startSpan(ctx, "report_missed_check_in", sessionID, reporterID)
	defer func() { endSpan(span, err) }()

	release, err := s.lockKey(ctx, sessionLockKey(sessionID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	missedName, err := s.displayName(ctx, current.InitiatorID)
	if err != nil {
		return Result{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if reporterID == SystemActorID && !session.Overdue(s.now()) {
			result = Result{Session: session, NotOverdue: true}
			return nil
		}
		recipient, recipientMissed := missedRecipient(session, reporterID)
		notification, created, err := s.notify(ctx, tx, recipient, session.ID, missedDedupeKey(session), notifdomain.MissedCheckInPayload{
			SessionID:       session.ID,
			MissedName:      missedName,
			LastCheckInAt:   session.LastCheckInAt,
			RecipientMissed: recipientMissed,
			Detected:        reporterID == SystemActorID,
		})
		if err != nil {
			return err
		}
		result = Result{Session: session, Notification: &notification, Duplicate: !created}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if !result.Duplicate {
		s.logger.Info("missed check-in reported",
			zap.String("session_id", sessionID),
			zap.String("reporter_id", reporterID),
			zap.String("recipient_user_id", result.Notification.RecipientUserID),
		)
	}
	s.publish(ctx, &result)
	return result, nil
}

// TriggerEmergency escalates the session and alerts the counterpart with the
// last known location. Any prior status may escalate.
func (s *Service) TriggerEmergency(ctx context.Context, sessionID, callerID string) (result Result, err error) {
	sessionID, callerID, err = s.normalize(sessionID, callerID)
	if err != nil {
		return Result{}, err
	}
	ctx, span := s.startSpan(ctx, "trigger_emergency", sessionID, callerID)
	defer func() { endSpan(span, err) }()

	release, err := s.lockKey(ctx, sessionLockKey(sessionID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	if _, err := s.loadForParticipant(ctx, sessionID, callerID, false); err != nil {
		return Result{}, err
	}
	actorName, err := s.displayName(ctx, callerID)
	if err != nil {
		return Result{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkParticipant(session, callerID, false); err != nil {
			return err
		}
		session.Status = StatusEmergency
		session.UpdatedAt = s.now()
		if err := tx.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		location := session.Location
		if location == "" {
			location = render.UnknownLocation
		}
		notification, _, err := s.notify(ctx, tx, Counterpart(session, callerID), session.ID, "", notifdomain.EmergencyPayload{
			SessionID: session.ID,
			ActorName: actorName,
			Location:  location,
		})
		if err != nil {
			return err
		}
		result = Result{Session: session, Notification: &notification}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Warn("buddy emergency triggered",
		zap.String("session_id", sessionID),
		zap.String("user_id", callerID),
		zap.String("location", result.Session.Location),
	)
	s.publish(ctx, &result)
	return result, nil
}

// EndSession completes the session. Ending a completed session changes
// nothing and reports AlreadyEnded. The completion bonus is paid once per
// session.
func (s *Service) EndSession(ctx context.Context, sessionID, callerID string) (result Result, err error) {
	sessionID, callerID, err = s.normalize(sessionID, callerID)
	if err != nil {
		return Result{}, err
	}
	ctx, span := s.startSpan(ctx, "end_session", sessionID, callerID)
	defer func() { endSpan(span, err) }()

	release, err := s.lockKey(ctx, sessionLockKey(sessionID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	current, err := s.loadForParticipant(ctx, sessionID, callerID, false)
	if err != nil {
		return Result{}, err
	}
	if current.Status == StatusCompleted {
		return Result{Session: current, AlreadyEnded: true}, nil
	}
	actorName, err := s.displayName(ctx, callerID)
	if err != nil {
		return Result{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkParticipant(session, callerID, false); err != nil {
			return err
		}
		if session.Status == StatusCompleted {
			result = Result{Session: session, AlreadyEnded: true}
			return nil
		}
		now := s.now()
		firstCompletion := session.EndedAt == nil
		session.Status = StatusCompleted
		session.UpdatedAt = now
		if firstCompletion {
			session.EndedAt = &now
		}
		if err := tx.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		notification, _, err := s.notify(ctx, tx, Counterpart(session, callerID), session.ID, "", notifdomain.SessionEndedPayload{
			SessionID: session.ID,
			ActorName: actorName,
		})
		if err != nil {
			return err
		}
		result = Result{Session: session, Notification: &notification}
		if !firstCompletion {
			return nil
		}
		balance, err := s.grant(ctx, tx, callerID, pointsdomain.ReasonBuddySessionCompleted, "Completed a buddy session", s.policy.CompletionPoints)
		if err != nil {
			return err
		}
		result.Balance = balance
		if balance != nil {
			result.PointsAwarded = s.policy.CompletionPoints
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if !result.AlreadyEnded {
		s.logger.Info("buddy session ended", zap.String("session_id", sessionID), zap.String("user_id", callerID))
	}
	s.publish(ctx, &result)
	return result, nil
}

func (s *Service) normalize(sessionID, callerID string) (string, string, error) {
	if err := s.ready(); err != nil {
		return "", "", err
	}
	sessionID = strings.TrimSpace(sessionID)
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return "", "", ErrCallerRequired
	}
	if sessionID == "" {
		return "", "", ErrNotFound
	}
	return sessionID, callerID, nil
}

// loadForParticipant reads the session and rejects callers outside it
// before any name lookups happen.
func (s *Service) loadForParticipant(ctx context.Context, sessionID, callerID string, requireActive bool) (Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if err := checkParticipant(session, callerID, requireActive); err != nil {
		return Session{}, err
	}
	return session, nil
}

func checkParticipant(session Session, callerID string, requireActive bool) error {
	if !session.IsParticipant(callerID) {
		return ErrForbidden
	}
	if requireActive && session.Status != StatusActive {
		return ErrInvalidState
	}
	return nil
}

// missedRecipient picks who hears about a missed check-in. The initiator is
// the tracked party, so the buddy is alerted unless the buddy reported it,
// in which case the initiator is nudged directly.
func missedRecipient(session Session, reporterID string) (string, bool) {
	if reporterID != "" && reporterID == session.BuddyID {
		return session.InitiatorID, true
	}
	return session.BuddyID, false
}

func missedDedupeKey(session Session) string {
	return "missed_check_in:" + session.ID + ":" + strconv.FormatInt(session.LastCheckInAt.UnixMilli(), 10)
}
