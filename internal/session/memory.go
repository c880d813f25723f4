package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. State is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
	}
}

// Get implements Store. The returned session is a copy.
func (s *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sessions == nil {
		return nil, ErrClosed
	}

	stored, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, sess *Session) error {
	if sess == nil || sess.UserID == 0 {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		return ErrClosed
	}

	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.UserID] = *sess
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

// Len returns the number of tracked sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
