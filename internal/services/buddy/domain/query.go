package domain

import (
	"context"
	"sort"
	"strings"
)

// SessionView is a session as seen by one participant.
type SessionView struct {
	Session         Session
	Role            Role
	CounterpartID   string
	CounterpartName string
}

// QueryService answers read-only session questions.
type QueryService struct {
	store Store
	users UserDirectory
}

// NewQueryService builds a read side over store and users.
func NewQueryService(store Store, users UserDirectory) *QueryService {
	return &QueryService{store: store, users: users}
}

// ActiveSessionForUser returns the most recently created active session the
// user takes part in.
func (q *QueryService) ActiveSessionForUser(ctx context.Context, userID string) (SessionView, bool, error) {
	if q == nil || q.store == nil || q.users == nil {
		return SessionView{}, false, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SessionView{}, false, ErrCallerRequired
	}
	session, found, err := q.store.FindActiveSessionForUser(ctx, userID)
	if err != nil || !found {
		return SessionView{}, false, err
	}
	view, err := q.view(ctx, session, userID)
	if err != nil {
		return SessionView{}, false, err
	}
	return view, true, nil
}

// ListSessionsForUser returns every session the user takes part in, newest
// first.
func (q *QueryService) ListSessionsForUser(ctx context.Context, userID string) ([]SessionView, error) {
	if q == nil || q.store == nil || q.users == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrCallerRequired
	}
	sessions, err := q.store.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID > sessions[j].ID
	})

	names := make(map[string]string)
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		counterpartID := Counterpart(session, userID)
		name, ok := names[counterpartID]
		if !ok {
			name, err = q.lookup(ctx, counterpartID)
			if err != nil {
				return nil, err
			}
			names[counterpartID] = name
		}
		views = append(views, SessionView{
			Session:         session,
			Role:            RoleOf(session, userID),
			CounterpartID:   counterpartID,
			CounterpartName: name,
		})
	}
	return views, nil
}

func (q *QueryService) view(ctx context.Context, session Session, userID string) (SessionView, error) {
	counterpartID := Counterpart(session, userID)
	name, err := q.lookup(ctx, counterpartID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{
		Session:         session,
		Role:            RoleOf(session, userID),
		CounterpartID:   counterpartID,
		CounterpartName: name,
	}, nil
}

func (q *QueryService) lookup(ctx context.Context, userID string) (string, error) {
	return resolveName(ctx, q.users, userID)
}
