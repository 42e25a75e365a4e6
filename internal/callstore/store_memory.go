package callstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store useful for tests. Subscribers get every
// write on a buffered channel, mirroring the push contract of the Redis-backed
// store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	subs    map[string][]chan *Record
	nextSub int

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		subs:    make(map[string][]chan *Record),
		clock:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	_ = ctx
	if rec.ID == "" || rec.From == "" || rec.To == "" || !rec.Status.Valid() {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	s.pushLocked(rec.ID, &rec)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status Status) (Record, error) {
	return s.setStatus(ctx, id, status, false)
}

func (s *MemoryStore) SetStatusIfActive(ctx context.Context, id string, status Status) (Record, error) {
	return s.setStatus(ctx, id, status, true)
}

func (s *MemoryStore) setStatus(ctx context.Context, id string, status Status, guarded bool) (Record, error) {
	_ = ctx
	if !status.Valid() {
		return Record{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if guarded && rec.Status.Terminal() {
		return rec, ErrAlreadyTerminal
	}
	rec.Status = status
	rec.UpdatedAt = s.clock().UTC()
	s.records[id] = rec
	s.pushLocked(id, &rec)
	return rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	s.pushLocked(id, nil)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan *Record, func(), error) {
	_ = ctx
	if id == "" {
		return nil, nil, ErrInvalidArgument
	}
	ch := make(chan *Record, 16)

	s.mu.Lock()
	s.subs[id] = append(s.subs[id], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[id]
		for i, c := range list {
			if c == ch {
				s.subs[id] = append(list[:i], list[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (s *MemoryStore) pushLocked(id string, rec *Record) {
	for _, ch := range s.subs[id] {
		var cp *Record
		if rec != nil {
			v := *rec
			cp = &v
		}
		select {
		case ch <- cp:
		default:
			// Slow subscriber; drop rather than block the writer. The store
			// pushes full records, so the next write supersedes this one.
		}
	}
}
