package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.WarmStateStore = (*WarmStateStore)(nil)

// WarmStateStore keeps warm state in a map. States are copied on the way in
// and out.
type WarmStateStore struct {
	mu     sync.RWMutex
	states map[domain.Domain]domain.WarmState
}

func NewWarmStateStore() *WarmStateStore {
	return &WarmStateStore{states: make(map[domain.Domain]domain.WarmState)}
}

func (s *WarmStateStore) Save(_ context.Context, state *domain.WarmState) error {
	if state == nil {
		return domain.ErrInvalidInput
	}
	if _, err := domain.ParseDomain(string(state.Domain)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Domain] = *state
	return nil
}

func (s *WarmStateStore) Get(_ context.Context, d domain.Domain) (*domain.WarmState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[d]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (s *WarmStateStore) List(_ context.Context) ([]*domain.WarmState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.WarmState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, &st)
	}
	slices.SortFunc(out, func(a, b *domain.WarmState) int {
		return cmp.Compare(a.Domain, b.Domain)
	})
	return out, nil
}
