package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	orders map[string]TopupOrder
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: map[string]TopupOrder{}}
}

func (r *MemoryRepo) InsertOrder(ctx context.Context, o TopupOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *MemoryRepo) GetByProviderOrderID(ctx context.Context, providerOrderID string) (TopupOrder, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ProviderOrderID == providerOrderID {
			return o, true, nil
		}
	}
	return TopupOrder{}, false, nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status OrderStatus, paymentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.PaymentID = paymentID
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]TopupOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TopupOrder
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
