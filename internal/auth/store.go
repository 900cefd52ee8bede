package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore is an in-process SessionStore for tests and single-node runs.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) CreateSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := sess
	s.sessions[sess.ID] = &stored
	return ctx.Err()
}

func (s *MemorySessionStore) FindByPrefix(ctx context.Context, prefix string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, sess := range s.sessions {
		if sess.TokenPrefix == prefix {
			out = append(out, *sess)
		}
	}
	return out, ctx.Err()
}

func (s *MemorySessionStore) GetSession(ctx context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, ctx.Err()
}

func (s *MemorySessionStore) RevokeSession(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.RevokedAt == nil {
		at = at.UTC()
		sess.RevokedAt = &at
	}
	return ctx.Err()
}
