package session

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence boundary for session records. The monitor owns all
// state transitions; the store just records them. UpdateActivity must never
// regress a timestamp: out-of-order delivery keeps the latest value.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	UpdateActivity(ctx context.Context, id string, at time.Time) error
	SetMFAVerified(ctx context.Context, id string) error
	SetState(ctx context.Context, id string, state State, reason TerminateReason) error
	LiveByPrincipal(ctx context.Context, principalID string) ([]*Session, error)
	ListLive(ctx context.Context) ([]*Session, error)
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(sess.LastActivityTime) {
		sess.LastActivityTime = at
	}
	return nil
}

func (s *MemoryStore) SetMFAVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.MFAVerified = true
	return nil
}

func (s *MemoryStore) SetState(ctx context.Context, id string, state State, reason TerminateReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.State = state
	sess.Reason = reason
	return nil
}

func (s *MemoryStore) LiveByPrincipal(ctx context.Context, principalID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.PrincipalID == principalID && sess.State.Live() {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListLive(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.State.Live() {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}
