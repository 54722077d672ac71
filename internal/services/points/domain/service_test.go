package domain

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestRegisterUserWithWelcomeBonus(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(store, nil, fixedClock(now), sequentialIDGenerator("entry-1"))

	user, err := svc.RegisterUser(context.Background(), "user-1", " Ana Cruz ", 300)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.DisplayName != "Ana Cruz" || user.Points != 300 || user.Rank != "Lingkod Kapwa" {
		t.Fatalf("unexpected user: %+v", user)
	}
	history, err := svc.ListHistory(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Reason != ReasonWelcomeBonus || history[0].Points != 300 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestGrantAccumulatesAndRanks(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, Ladder{{Name: "low", MinPoints: 0}, {Name: "high", MinPoints: 10}}, nil, nil)
	if _, err := svc.RegisterUser(context.Background(), "user-1", "Ana", 0); err != nil {
		t.Fatalf("register: %v", err)
	}

	balance, err := svc.Grant(context.Background(), "user-1", ReasonBuddyCheckIn, "check in", 5)
	if err != nil || balance.Points != 5 || balance.Rank != "low" {
		t.Fatalf("first grant = %+v, %v", balance, err)
	}
	balance, err = svc.Grant(context.Background(), "user-1", ReasonBuddyCheckIn, "check in", 5)
	if err != nil || balance.Points != 10 || balance.Rank != "high" {
		t.Fatalf("second grant = %+v, %v", balance, err)
	}

	got, err := svc.Balance(context.Background(), "user-1")
	if err != nil || got != balance {
		t.Fatalf("balance = %+v, %v; want %+v", got, err, balance)
	}
}

func TestGrantValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), nil, nil, nil)
	if _, err := svc.Grant(context.Background(), "", ReasonBuddyCheckIn, "", 5); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("error = %v, want %v", err, ErrUserIDRequired)
	}
	if _, err := svc.Grant(context.Background(), "user-1", ReasonBuddyCheckIn, "", 0); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidEntry)
	}
	if _, err := svc.Grant(context.Background(), "ghost", ReasonBuddyCheckIn, "", 5); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrUserNotFound)
	}
	if _, err := svc.Balance(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrUserNotFound)
	}

	var nilSvc *Service
	if _, err := nilSvc.ListHistory(context.Background(), "u", 1); !errors.Is(err, ErrStoreNotConfigured) {
		t.Fatalf("error = %v, want %v", err, ErrStoreNotConfigured)
	}
}

func TestListHistoryCapsLimit(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, nil, nil)
	if _, err := svc.ListHistory(context.Background(), "user-1", 500); err != nil {
		t.Fatalf("history: %v", err)
	}
	if store.lastLimit != DefaultHistoryLimit {
		t.Fatalf("limit = %d, want %d", store.lastLimit, DefaultHistoryLimit)
	}
}

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]User
	entries   []Entry
	lastLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]User)}
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *fakeStore) PutUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *fakeStore) GrantPoints(_ context.Context, entry Entry, ladder Ladder) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[entry.UserID]
	if !ok {
		return Balance{}, ErrUserNotFound
	}
	s.entries = append(s.entries, entry)
	user.Points += entry.Points
	user.Rank = ladder.RankFor(user.Points)
	s.users[user.ID] = user
	return user.Balance(), nil
}

func (s *fakeStore) ListPointsHistory(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	var out []Entry
	for _, entry := range slices.Backward(s.entries) {
		if entry.UserID == userID && len(out) < limit {
			out = append(out, entry)
		}
	}
	return out, nil
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return "", errors.New("id generator exhausted")
		}
		value := ids[next]
		next++
		return value, nil
	}
}
