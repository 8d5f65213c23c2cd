package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// MockCacheStore is an in-memory CacheStore for testing.
// FieldsOf extracts the filterable fields of an entity; NameOf its name.
type MockCacheStore[T domain.Entity] struct {
	mu       sync.RWMutex
	entities map[int]T
	pages    map[int]int
	keys     map[int]domain.RemoteKey

	NameOf   func(T) string
	FieldsOf func(T) map[string]string

	// Failure injection
	ApplyPageErr     error
	QueryErr         error
	LastCreatedAtErr error

	ApplyCalls int
}

// NewMockCacheStore creates a new MockCacheStore
func NewMockCacheStore[T domain.Entity]() *MockCacheStore[T] {
	return &MockCacheStore[T]{
		entities: make(map[int]T),
		pages:    make(map[int]int),
		keys:     make(map[int]domain.RemoteKey),
	}
}

func (m *MockCacheStore[T]) LastCreatedAt(ctx context.Context) (*time.Time, error) {
	if m.LastCreatedAtErr != nil {
		return nil, m.LastCreatedAtErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *time.Time
	for _, k := range m.keys {
		if latest == nil || k.CreatedAt.After(*latest) {
			t := k.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (m *MockCacheStore[T]) RemoteKey(ctx context.Context, entityID int) (*domain.RemoteKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[entityID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &k, nil
}

func (m *MockCacheStore[T]) ApplyPage(ctx context.Context, batch *domain.PageBatch[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyCalls++
	if m.ApplyPageErr != nil {
		return m.ApplyPageErr
	}
	if batch.Clear {
		m.entities = make(map[int]T)
		m.pages = make(map[int]int)
		m.keys = make(map[int]domain.RemoteKey)
	}
	for _, k := range batch.Keys {
		m.keys[k.EntityID] = k
	}
	for _, e := range batch.Entities {
		m.entities[e.EntityID()] = e
		m.pages[e.EntityID()] = batch.Page
	}
	return nil
}

func (m *MockCacheStore[T]) Query(ctx context.Context, filter domain.Filter, offset, limit int) ([]T, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	all := m.matching(filter)
	if offset >= len(all) {
		return []T{}, nil
	}
	end := len(all)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (m *MockCacheStore[T]) Count(ctx context.Context, filter domain.Filter) (int, error) {
	if m.QueryErr != nil {
		return 0, m.QueryErr
	}
	return len(m.matching(filter)), nil
}

func (m *MockCacheStore[T]) Boundary(ctx context.Context) (*int, *int, error) {
	all := m.matching(domain.Filter{})
	if len(all) == 0 {
		return nil, nil, nil
	}
	return domain.IntPtr(all[0].EntityID()), domain.IntPtr(all[len(all)-1].EntityID()), nil
}

func (m *MockCacheStore[T]) matching(filter domain.Filter) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := filter.Normalize()
	var out []T
	for _, e := range m.entities {
		if f.Query != "" && m.NameOf != nil &&
			!strings.Contains(strings.ToLower(m.NameOf(e)), strings.ToLower(f.Query)) {
			continue
		}
		if len(f.Fields) > 0 && m.FieldsOf != nil {
			fields := m.FieldsOf(e)
			ok := true
			for k, v := range f.Fields {
				if !strings.EqualFold(fields[k], v) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := m.pages[out[i].EntityID()], m.pages[out[j].EntityID()]
		if pi != pj {
			return pi < pj
		}
		return out[i].EntityID() < out[j].EntityID()
	})
	return out
}

// Helper methods for testing

// Keys returns a copy of every remote key.
func (m *MockCacheStore[T]) Keys() map[int]domain.RemoteKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]domain.RemoteKey, len(m.keys))
	for id, k := range m.keys {
		out[id] = k
	}
	return out
}

// PageOf returns the page an entity was stored with.
func (m *MockCacheStore[T]) PageOf(id int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	return p, ok
}

// Len returns the number of cached entities.
func (m *MockCacheStore[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// Seed stores entities and keys without counting as an ApplyPage call.
func (m *MockCacheStore[T]) Seed(page int, key domain.RemoteKey, entities ...T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.entities[e.EntityID()] = e
		m.pages[e.EntityID()] = page
		k := key
		k.EntityID = e.EntityID()
		m.keys[e.EntityID()] = k
	}
}
