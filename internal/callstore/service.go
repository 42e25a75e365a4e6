package callstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"amora-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BlockChecker reports whether a block edge exists in either direction.
type BlockChecker interface {
	IsBlockedEither(ctx context.Context, a, b string) (bool, error)
}

// BalanceReader returns a user's current coin balance.
type BalanceReader interface {
	CoinBalance(ctx context.Context, userID string) (int64, error)
}

// CostProvider resolves the per-started-minute call charge.
type CostProvider interface {
	CostPerMinute(ctx context.Context, at time.Time) (int64, error)
}

// CallSlots caps each caller to one live call. Both operations are keyed by
// call id: teardown is convergent, so Release runs more than once per call,
// and a late release from a finished call must not free the slot a newer
// call holds.
type CallSlots interface {
	Acquire(ctx context.Context, userID, callID string) (bool, error)
	Release(ctx context.Context, userID, callID string) error
}

// redisSlots backs CallSlots with the ownership-checked Lua scripts.
type redisSlots struct {
	rdb *redis.Client
	ttl time.Duration
}

func (r redisSlots) Acquire(ctx context.Context, userID, callID string) (bool, error) {
	return utils.AcquireCallSlot(ctx, r.rdb, callSlotKey(userID), callID, r.ttl)
}

func (r redisSlots) Release(ctx context.Context, userID, callID string) error {
	return utils.ReleaseCallSlot(ctx, r.rdb, callSlotKey(userID), callID)
}

// Service wraps a Store with the call-creation preconditions: neither party
// blocks the other, and the caller (the charged party) can afford the first
// minute. It also caps each caller to one concurrent session via Redis.
type Service struct {
	store    Store
	blocks   BlockChecker
	balances BalanceReader
	cost     CostProvider

	// slots is optional; without it the per-caller session cap is not enforced.
	slots CallSlots

	log   *slog.Logger
	clock func() time.Time
}

func NewService(store Store, blocks BlockChecker, balances BalanceReader, cost CostProvider, rdb *redis.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	var slots CallSlots
	if rdb != nil {
		slots = redisSlots{rdb: rdb, ttl: 2 * time.Hour}
	}
	return &Service{
		store:    store,
		blocks:   blocks,
		balances: balances,
		cost:     cost,
		slots:    slots,
		log:      log,
		clock:    time.Now,
	}
}

// StartCall creates the call record in ringing state.
// Fails with ErrBlocked or ErrInsufficientFunds before anything is created.
func (s *Service) StartCall(ctx context.Context, from, to string) (Record, error) {
	if from == "" || to == "" || from == to {
		return Record{}, ErrInvalidArgument
	}

	blocked, err := s.blocks.IsBlockedEither(ctx, from, to)
	if err != nil {
		return Record{}, err
	}
	if blocked {
		return Record{}, ErrBlocked
	}

	cost, err := s.cost.CostPerMinute(ctx, s.clock().UTC())
	if err != nil {
		return Record{}, err
	}
	bal, err := s.balances.CoinBalance(ctx, from)
	if err != nil {
		return Record{}, err
	}
	if bal < cost {
		return Record{}, ErrInsufficientFunds
	}

	id := uuid.NewString()
	if s.slots != nil {
		ok, err := s.slots.Acquire(ctx, from, id)
		if err != nil {
			return Record{}, err
		}
		if !ok {
			return Record{}, errors.New("caller already in a call")
		}
	}

	rec := Record{
		ID:     id,
		From:   from,
		To:     to,
		Status: StatusRinging,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		s.releaseSlot(ctx, from, id)
		return Record{}, err
	}
	created, _, _ := s.store.Get(ctx, rec.ID)
	if created.ID == "" {
		created = rec
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// SetStatus is the unconditional status write of the store contract.
// A terminal write releases the caller's session slot.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	rec, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return err
	}
	if status.Terminal() {
		s.releaseSlot(ctx, rec.From, rec.ID)
	}
	return nil
}

// Accept writes accepted unless the record has already gone terminal, in
// which case ErrAlreadyTerminal is returned and the accept loses the race.
func (s *Service) Accept(ctx context.Context, id string) error {
	_, err := s.store.SetStatusIfActive(ctx, id, StatusAccepted)
	return err
}

// EndIfActive writes ended unless the record is already terminal. An
// already-terminal record means both sides converged; that is success.
func (s *Service) EndIfActive(ctx context.Context, id string) error {
	rec, err := s.store.SetStatusIfActive(ctx, id, StatusEnded)
	if errors.Is(err, ErrAlreadyTerminal) {
		s.releaseSlot(ctx, rec.From, rec.ID)
		return nil
	}
	if err != nil {
		return err
	}
	s.releaseSlot(ctx, rec.From, rec.ID)
	return nil
}

func (s *Service) Subscribe(ctx context.Context, id string) (<-chan *Record, func(), error) {
	return s.store.Subscribe(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) releaseSlot(ctx context.Context, callerID, callID string) {
	if s.slots == nil || callerID == "" || callID == "" {
		return
	}
	if err := s.slots.Release(ctx, callerID, callID); err != nil {
		s.log.Warn("call slot release failed", "user_id", callerID, "call_id", callID, "err", err)
	}
}

func callSlotKey(userID string) string { return "callslot:" + userID }
