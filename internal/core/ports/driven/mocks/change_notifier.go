package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// MockChangeNotifier records published events and fans them out to
// in-process subscribers.
type MockChangeNotifier struct {
	mu        sync.Mutex
	published []domain.ChangeEvent
	subs      map[*mockSubscription]struct{}

	PublishErr error
}

// NewMockChangeNotifier creates a new MockChangeNotifier
func NewMockChangeNotifier() *MockChangeNotifier {
	return &MockChangeNotifier{subs: make(map[*mockSubscription]struct{})}
}

func (m *MockChangeNotifier) Publish(ctx context.Context, event domain.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published = append(m.published, event)
	for s := range m.subs {
		if s.domain != event.Domain {
			continue
		}
		select {
		case s.ch <- event:
		default:
		}
	}
	return nil
}

func (m *MockChangeNotifier) Subscribe(ctx context.Context, d domain.Domain) (driven.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &mockSubscription{domain: d, ch: make(chan domain.ChangeEvent, 16), parent: m}
	m.subs[s] = struct{}{}
	return s, nil
}

func (m *MockChangeNotifier) Close() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[*mockSubscription]struct{})
	m.mu.Unlock()
	for s := range subs {
		s.closeChan()
	}
	return nil
}

// Published returns every event published so far.
func (m *MockChangeNotifier) Published() []domain.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChangeEvent(nil), m.published...)
}

type mockSubscription struct {
	domain domain.Domain
	ch     chan domain.ChangeEvent
	parent *MockChangeNotifier
	once   sync.Once
}

func (s *mockSubscription) Events() <-chan domain.ChangeEvent { return s.ch }

func (s *mockSubscription) Close() error {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()
	s.closeChan()
	return nil
}

func (s *mockSubscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}
