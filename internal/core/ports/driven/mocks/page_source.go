package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// MockPageSource is an EntitySource backed by a fixed list of pages.
// Pages are 1-based; a request past the last page returns domain.ErrNotFound.
type MockPageSource[T domain.Entity] struct {
	mu    sync.Mutex
	pages [][]T

	// Custom behavior hooks (optional)
	FetchPageFn func(ctx context.Context, page int) (*domain.Page[T], error)
	GetManyFn   func(ctx context.Context, ids []int) ([]T, error)

	// Err is returned by every call when set.
	Err error

	FetchedPages []int
	GetCalls     int
	GetManyCalls int
}

// NewMockPageSource creates a source serving the given pages in order.
func NewMockPageSource[T domain.Entity](pages ...[]T) *MockPageSource[T] {
	return &MockPageSource[T]{pages: pages}
}

func (m *MockPageSource[T]) FetchPage(ctx context.Context, page int) (*domain.Page[T], error) {
	m.mu.Lock()
	m.FetchedPages = append(m.FetchedPages, page)
	err := m.Err
	m.mu.Unlock()

	if m.FetchPageFn != nil {
		return m.FetchPageFn(ctx, page)
	}
	if err != nil {
		return nil, err
	}
	if page < 1 || page > len(m.pages) {
		return nil, fmt.Errorf("page %d: %w", page, domain.ErrNotFound)
	}

	info := domain.PageInfo{Count: m.count(), Pages: len(m.pages)}
	if page > 1 {
		info.Prev = strPtr(fmt.Sprintf("https://example.test/?page=%d", page-1))
	}
	if page < len(m.pages) {
		info.Next = strPtr(fmt.Sprintf("https://example.test/?page=%d", page+1))
	}
	results := append([]T(nil), m.pages[page-1]...)
	return &domain.Page[T]{Info: info, Results: results}, nil
}

func (m *MockPageSource[T]) Get(ctx context.Context, id int) (*T, error) {
	m.mu.Lock()
	m.GetCalls++
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, p := range m.pages {
		for _, e := range p {
			if e.EntityID() == id {
				found := e
				return &found, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPageSource[T]) GetMany(ctx context.Context, ids []int) ([]T, error) {
	m.mu.Lock()
	m.GetManyCalls++
	err := m.Err
	m.mu.Unlock()
	if m.GetManyFn != nil {
		return m.GetManyFn(ctx, ids)
	}
	if err != nil {
		return nil, err
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []T
	for _, p := range m.pages {
		for _, e := range p {
			if want[e.EntityID()] {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// SetPages replaces the served pages.
func (m *MockPageSource[T]) SetPages(pages ...[]T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

// Fetches returns the pages requested so far.
func (m *MockPageSource[T]) Fetches() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.FetchedPages...)
}

func (m *MockPageSource[T]) count() int {
	n := 0
	for _, p := range m.pages {
		n += len(p)
	}
	return n
}

func strPtr(s string) *string {
	return &s
}
