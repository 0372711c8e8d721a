package storage

import (
	"context"
	"sync"

	"github.com/leansocial/shell/internal/session"
)

var _ SessionStore = (*MemoryStore)(nil)

// MemoryStore keeps sessions in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Snapshot
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.Snapshot),
	}
}

func (s *MemoryStore) Load(_ context.Context, profile string) (*session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.sessions[profile]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return snap.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, profile string, snap *session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[profile] = snap.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, profile)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
