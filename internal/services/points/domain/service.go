package domain

import (
	"context"
	"strings"
	"time"

	"github.com/louisbranch/safezone/internal/platform/id"
)

// DefaultHistoryLimit caps one history listing.
const DefaultHistoryLimit = 50

// Granter appends a ledger entry and refreshes the cached balance in one step.
type Granter interface {
	GrantPoints(ctx context.Context, entry Entry, ladder Ladder) (Balance, error)
}

// Store is the ledger persistence boundary.
type Store interface {
	Granter
	GetUser(ctx context.Context, userID string) (User, error)
	PutUser(ctx context.Context, user User) error
	ListPointsHistory(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Service exposes ledger reads and standalone grants.
type Service struct {
	store  Store
	ladder Ladder
	clock  func() time.Time
	newID  func() (string, error)
}

// NewService constructs ledger use-cases. A nil ladder uses DefaultLadder.
func NewService(store Store, ladder Ladder, clock func() time.Time, newID func() (string, error)) *Service {
	if ladder == nil {
		ladder = DefaultLadder()
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, ladder: ladder, clock: clock, newID: newID}
}

// Ladder returns the rank ladder the service grants against.
func (s *Service) Ladder() Ladder {
	return s.ladder
}

// RegisterUser creates a directory record with an optional opening grant.
func (s *Service) RegisterUser(ctx context.Context, userID, displayName string, welcomePoints int) (User, error) {
	if s == nil || s.store == nil {
		return User{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, ErrUserIDRequired
	}
	now := s.clock().UTC()
	user := User{
		ID:          userID,
		DisplayName: strings.TrimSpace(displayName),
		Rank:        s.ladder.RankFor(0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		return User{}, err
	}
	if welcomePoints == 0 {
		return user, nil
	}
	balance, err := s.Grant(ctx, userID, ReasonWelcomeBonus, "Welcome to SafeZone", welcomePoints)
	if err != nil {
		return User{}, err
	}
	user.Points, user.Rank = balance.Points, balance.Rank
	return user, nil
}

// Grant appends one entry outside any buddy transition.
func (s *Service) Grant(ctx context.Context, userID string, reason Reason, description string, points int) (Balance, error) {
	if s == nil || s.store == nil {
		return Balance{}, ErrStoreNotConfigured
	}
	entryID, err := s.newID()
	if err != nil {
		return Balance{}, err
	}
	entry := Entry{
		ID:          entryID,
		UserID:      strings.TrimSpace(userID),
		Reason:      reason,
		Description: description,
		Points:      points,
		CreatedAt:   s.clock().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return Balance{}, err
	}
	return s.store.GrantPoints(ctx, entry, s.ladder)
}

// Balance returns the cached balance and rank of userID.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	if s == nil || s.store == nil {
		return Balance{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Balance{}, ErrUserIDRequired
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return user.Balance(), nil
}

// ListHistory returns the newest ledger entries of userID.
func (s *Service) ListHistory(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return s.store.ListPointsHistory(ctx, userID, limit)
}
