package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used when Redis is not configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryEntry
	ttl   time.Duration
}

type memoryEntry struct {
	sess      *Session
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		items: make(map[string]*memoryEntry),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	now := time.Now().UTC()
	sess := newSession(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID] = &memoryEntry{sess: sess, expiresAt: now.Add(s.ttl)}
	return sess.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return entry.sess.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.live(id)
	if err != nil {
		return nil, err
	}

	next := entry.sess.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	entry.sess = next
	entry.expiresAt = time.Now().UTC().Add(s.ttl)
	return next.Clone(), nil
}

func (s *MemoryStore) Extend(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.live(id)
	if err != nil {
		return err
	}
	entry.expiresAt = time.Now().UTC().Add(s.ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// StartJanitor evicts expired sessions in the background. Redis handles
// expiry on its own; only the in-memory store needs this.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired()
			}
		}
	}()
}

// Count reports live sessions, for metrics.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	n := 0
	for _, entry := range s.items {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) live(id string) (*memoryEntry, error) {
	entry, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.items, id)
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, entry := range s.items {
		if now.After(entry.expiresAt) {
			delete(s.items, id)
		}
	}
}
