package auth

import (
	"context"
	"sync"
)

// PrincipalStore describes the persistence operations the security core
// requires for principals. Budget, transaction and category storage belong to
// the surrounding application, not here.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	UpdateStatus(ctx context.Context, id string, status AccountStatus) error
	UpdateRole(ctx context.Context, id string, role Role, perms []Permission) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error
}

// MemoryPrincipalStore is an in-memory PrincipalStore for tests and demos.
type MemoryPrincipalStore struct {
	mu      sync.RWMutex
	byID    map[string]*Principal
	byEmail map[string]*Principal
}

var _ PrincipalStore = (*MemoryPrincipalStore)(nil)

func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		byID:    make(map[string]*Principal),
		byEmail: make(map[string]*Principal),
	}
}

func (s *MemoryPrincipalStore) Create(ctx context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(p.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrAlreadyExists
	}
	cp := *p
	cp.Email = email
	s.byID[cp.ID] = &cp
	s.byEmail[email] = &cp
	return nil
}

func (s *MemoryPrincipalStore) Find(ctx context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPrincipalStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPrincipalStore) UpdateStatus(ctx context.Context, id string, status AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (s *MemoryPrincipalStore) UpdateRole(ctx context.Context, id string, role Role, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Role = role
	p.StoredPermissions = append([]Permission(nil), perms...)
	return nil
}

func (s *MemoryPrincipalStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.PasswordHash = passwordHash
	return nil
}

func (s *MemoryPrincipalStore) UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.MFAEnabled = enabled
	p.MFASecret = secret
	return nil
}
