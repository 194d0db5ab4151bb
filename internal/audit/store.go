package audit

import (
	"context"
	"sync"
)

// EventStore is the append-only persistence boundary for security events.
// Retention and rotation belong to the store's owner, not this package.
type EventStore interface {
	Append(ctx context.Context, event *SecurityEvent) error
	ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*SecurityEvent, error)
	ListBySession(ctx context.Context, sessionID string) ([]*SecurityEvent, error)
}

// AlertSink receives critical events. Alert delivery is a separate concern
// from the audit append: a down sink never hides the trail.
type AlertSink interface {
	Alert(ctx context.Context, event *SecurityEvent) error
}

// MemoryStore keeps events in process memory, in append order. Used by tests
// and by deployments that ship the trail through the JSON log only.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*SecurityEvent
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

var _ EventStore = (*MemoryStore)(nil)

func (s *MemoryStore) Append(ctx context.Context, event *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) ListByPrincipal(ctx context.Context, principalID string, limit int) ([]*SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*SecurityEvent
	for _, e := range s.events {
		if e.PrincipalID == principalID {
			cp := *e
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string) ([]*SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*SecurityEvent
	for _, e := range s.events {
		if e.SessionID == sessionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
