package session

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	bySubject map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*Session),
		bySubject: make(map[string]string),
	}
}

func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.bySubject[s.Subject]; ok {
		delete(m.sessions, prior)
	}
	cp := *s
	m.sessions[s.ID] = &cp
	m.bySubject[s.Subject] = s.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		if m.bySubject[s.Subject] == id {
			delete(m.bySubject, s.Subject)
		}
		delete(m.sessions, id)
	}
	return nil
}

func (m *MemoryStore) DeleteBySubject(ctx context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.bySubject[subject]; ok {
		delete(m.sessions, id)
		delete(m.bySubject, subject)
	}
	return nil
}
