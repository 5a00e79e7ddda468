package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state   State
	expires time.Time
}

// MemoryStore keeps sessions in process memory. A zero TTL disables expiry.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, data: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.data, id)
		return nil, ErrNotFound
	}
	st := e.state
	return &st, nil
}

func (m *MemoryStore) Save(_ context.Context, s *State) error {
	if err := validate(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e := memoryEntry{state: *s}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.data[s.ID] = e
	m.sweep(now)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// sweep drops expired entries; caller holds mu.
func (m *MemoryStore) sweep(now time.Time) {
	for id, e := range m.data {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.data, id)
		}
	}
}
