package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	users  map[string]User
	blocks map[[2]string]bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:  make(map[string]User),
		blocks: make(map[[2]string]bool),
	}
}

func (r *MemoryRepo) GetUser(ctx context.Context, id string) (User, bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok, nil
}

func (r *MemoryRepo) UpsertUser(ctx context.Context, u User) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

func (r *MemoryRepo) ListDiscover(ctx context.Context, viewerID string, limit int) ([]User, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []User
	for id, u := range r.users {
		if id == viewerID {
			continue
		}
		if r.blocks[[2]string{viewerID, id}] || r.blocks[[2]string{id, viewerID}] {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) SetBlocked(ctx context.Context, userID, blockedID string, blocked bool) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if blocked {
		r.blocks[[2]string{userID, blockedID}] = true
	} else {
		delete(r.blocks, [2]string{userID, blockedID})
	}
	return nil
}

func (r *MemoryRepo) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks[[2]string{a, b}] || r.blocks[[2]string{b, a}], nil
}

func (r *MemoryRepo) SetCertified(ctx context.Context, userID string, certified bool) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Certified = certified
	r.users[userID] = u
	return nil
}

func (r *MemoryRepo) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastSeenAt = at
	r.users[userID] = u
	return nil
}
