package directory

import (
	"context"
	"errors"
	"time"

	"amora-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrBlocked         = errors.New("blocked")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository abstracts profile persistence.
type Repository interface {
	GetUser(ctx context.Context, id string) (User, bool, error)
	UpsertUser(ctx context.Context, u User) error
	ListDiscover(ctx context.Context, viewerID string, limit int) ([]User, error)
	SetBlocked(ctx context.Context, userID, blockedID string, blocked bool) error
	IsBlockedEither(ctx context.Context, a, b string) (bool, error)
	SetCertified(ctx context.Context, userID string, certified bool) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Service provides profile directory operations.
// The Redis client is optional; without it presence degrades to last_seen_at.
type Service struct {
	repo  Repository
	rdb   *redis.Client
	clock func() time.Time

	presenceWindow time.Duration
}

func NewService(repo Repository, rdb *redis.Client) *Service {
	return &Service{
		repo:           repo,
		rdb:            rdb,
		clock:          time.Now,
		presenceWindow: 2 * time.Minute,
	}
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrInvalidArgument
	}
	u, ok, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *Service) UpsertUser(ctx context.Context, u User) error {
	if u.ID == "" || u.Name == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return s.repo.UpsertUser(ctx, u)
}

// Discover lists candidate profiles for the viewer, excluding the viewer and
// anyone with a block edge in either direction.
func (s *Service) Discover(ctx context.Context, viewerID string, limit int) ([]User, error) {
	if viewerID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListDiscover(ctx, viewerID, limit)
}

func (s *Service) Block(ctx context.Context, userID, blockedID string) error {
	if userID == "" || blockedID == "" || userID == blockedID {
		return ErrInvalidArgument
	}
	return s.repo.SetBlocked(ctx, userID, blockedID, true)
}

func (s *Service) Unblock(ctx context.Context, userID, blockedID string) error {
	if userID == "" || blockedID == "" {
		return ErrInvalidArgument
	}
	return s.repo.SetBlocked(ctx, userID, blockedID, false)
}

// IsBlockedEither reports whether a block edge exists in either direction.
func (s *Service) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" {
		return false, ErrInvalidArgument
	}
	return s.repo.IsBlockedEither(ctx, a, b)
}

// Certify records the outcome of a camera-capture profile review.
func (s *Service) Certify(ctx context.Context, userID string, certified bool) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	return s.repo.SetCertified(ctx, userID, certified)
}

// TouchPresence marks the user online and refreshes last_seen_at.
// Presence write failures are non-fatal; last_seen_at still advances.
func (s *Service) TouchPresence(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	if s.rdb != nil {
		_ = utils.TouchPresence(ctx, s.rdb, userID, s.presenceWindow)
	}
	return s.repo.TouchLastSeen(ctx, userID, now)
}

// IsOnline reports live presence when Redis is available, otherwise falls back
// to the last_seen_at window.
func (s *Service) IsOnline(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidArgument
	}
	if s.rdb != nil {
		return utils.IsOnline(ctx, s.rdb, userID)
	}
	u, ok, err := s.repo.GetUser(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return s.clock().UTC().Sub(u.LastSeenAt) <= s.presenceWindow, nil
}
