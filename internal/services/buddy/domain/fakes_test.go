package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	notifdomain "github.com/louisbranch/safezone/internal/services/notifications/domain"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
)

type fakeState struct {
	sessions      map[string]Session
	notifications []notifdomain.Notification
	entries       []pointsdomain.Entry
	points        map[string]int
}

func (s fakeState) clone() fakeState {
	out := fakeState{
		sessions:      make(map[string]Session, len(s.sessions)),
		notifications: append([]notifdomain.Notification(nil), s.notifications...),
		entries:       append([]pointsdomain.Entry(nil), s.entries...),
		points:        make(map[string]int, len(s.points)),
	}
	for id, session := range s.sessions {
		out.sessions[id] = session
	}
	for id, points := range s.points {
		out.points[id] = points
	}
	return out
}

// fakeStore keeps sessions, inbox rows and ledger entries in memory and
// applies a unit of work only when it succeeds.
type fakeStore struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	state     fakeState
	names     map[string]string
	notifyErr error
	grantErr  error
}

func newFakeStore(users map[string]string) *fakeStore {
	store := &fakeStore{
		state: fakeState{sessions: map[string]Session{}, points: map[string]int{}},
		names: map[string]string{},
	}
	for id, name := range users {
		store.names[id] = name
		store.state.points[id] = 0
	}
	return store
}

func (s *fakeStore) DisplayName(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[userID]
	if !ok {
		return "", pointsdomain.ErrUserNotFound
	}
	return name, nil
}

func (s *fakeStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getSession(sessionID)
}

func (s *fakeStore) FindActiveSessionForUser(_ context.Context, userID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.state.sorted(func(session Session) bool {
		return session.Status == StatusActive && session.IsParticipant(userID)
	})
	if len(sessions) == 0 {
		return Session{}, false, nil
	}
	return sessions[0], true, nil
}

func (s *fakeStore) ListSessionsForUser(_ context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.sorted(func(session Session) bool { return session.IsParticipant(userID) }), nil
}

func (s *fakeStore) ListActiveSessions(_ context.Context, afterID string, limit int) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, session := range s.state.sessions {
		if session.Status == StatusActive && session.ID > afterID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &fakeTx{store: s, state: s.state.clone()}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) put(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sessions[session.ID] = session
}

func (s *fakeStore) notifications() []notifdomain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifdomain.Notification(nil), s.state.notifications...)
}

func (s *fakeStore) entries() []pointsdomain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pointsdomain.Entry(nil), s.state.entries...)
}

func (s *fakeStore) pointsOf(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.points[userID]
}

func (s *fakeStore) session(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.sessions[id]
}

type fakeTx struct {
	store *fakeStore
	state fakeState
}

func (t *fakeTx) GetSession(_ context.Context, sessionID string) (Session, error) {
	return t.state.getSession(sessionID)
}

func (t *fakeTx) FindActiveSessionForPair(_ context.Context, userA, userB string) (Session, bool, error) {
	sessions := t.state.sorted(func(session Session) bool {
		return session.Status == StatusActive && session.IsParticipant(userA) && session.IsParticipant(userB)
	})
	if len(sessions) == 0 {
		return Session{}, false, nil
	}
	return sessions[0], true, nil
}

func (t *fakeTx) CreateSession(_ context.Context, session Session) error {
	if _, ok := t.state.sessions[session.ID]; ok {
		return fmt.Errorf("session %s exists", session.ID)
	}
	t.state.sessions[session.ID] = session
	return nil
}

func (t *fakeTx) SaveSession(_ context.Context, session Session) error {
	if _, ok := t.state.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	t.state.sessions[session.ID] = session
	return nil
}

func (t *fakeTx) PutNotification(_ context.Context, n notifdomain.Notification) (notifdomain.Notification, bool, error) {
	if t.store.notifyErr != nil {
		return notifdomain.Notification{}, false, t.store.notifyErr
	}
	if n.DedupeKey != "" {
		for _, existing := range t.state.notifications {
			if existing.RecipientUserID == n.RecipientUserID && existing.DedupeKey == n.DedupeKey {
				return existing, false, nil
			}
		}
	}
	t.state.notifications = append(t.state.notifications, n)
	return n, true, nil
}

func (t *fakeTx) GrantPoints(_ context.Context, entry pointsdomain.Entry, ladder pointsdomain.Ladder) (pointsdomain.Balance, error) {
	if t.store.grantErr != nil {
		return pointsdomain.Balance{}, t.store.grantErr
	}
	points, ok := t.state.points[entry.UserID]
	if !ok {
		return pointsdomain.Balance{}, pointsdomain.ErrUserNotFound
	}
	points += entry.Points
	t.state.points[entry.UserID] = points
	t.state.entries = append(t.state.entries, entry)
	return pointsdomain.Balance{UserID: entry.UserID, Points: points, Rank: ladder.RankFor(points)}, nil
}

func (s fakeState) getSession(sessionID string) (Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s fakeState) sorted(keep func(Session) bool) []Session {
	var out []Session
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	published []notifdomain.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n notifdomain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// sequentialIDGenerator returns prefix-1, prefix-2, ... and is safe for
// concurrent use.
func sequentialIDGenerator(prefix string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s-%03d", prefix, next), nil
	}
}

var errBoom = errors.New("boom")

var testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// newTestService wires a service over a fake store holding Ana (initiator),
// Ben (buddy) and Cara (outsider).
func newTestService(opts ...Option) (*Service, *fakeStore, *testClock) {
	store := newFakeStore(map[string]string{
		"ana":  "Ana Cruz",
		"ben":  "Ben Reyes",
		"cara": "Cara Santos",
	})
	clock := newTestClock(testStart)
	base := []Option{WithClock(clock.Now), WithIDGenerator(sequentialIDGenerator("id"))}
	return NewService(store, store, append(base, opts...)...), store, clock
}

func countKind(notifications []notifdomain.Notification, kind notifdomain.Kind) int {
	n := 0
	for _, notification := range notifications {
		if notification.Kind == kind {
			n++
		}
	}
	return n
}
