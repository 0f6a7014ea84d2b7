package payments

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps payments in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
	}
}

func (s *MemoryStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; exists {
		return ErrAlreadyExists
	}
	s.payments[p.ID] = p.Clone()
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Payment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.payments[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != p.Version {
		return ErrVersionConflict
	}

	p.Version++
	s.payments[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[id]; !ok {
		return nil
	}
	delete(s.payments, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}
