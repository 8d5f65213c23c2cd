// Package memory holds in-process adapters for single-instance deployments.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChangeNotifier = (*Notifier)(nil)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("notifier closed")

const subscriptionBuffer = 16

// Notifier broadcasts change events to subscribers in this process.
// Publish never blocks: a subscriber with a full buffer misses the event.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[domain.Domain]map[*subscription]struct{}
	closed bool
}

// NewNotifier creates an in-process broadcaster
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[domain.Domain]map[*subscription]struct{})}
}

func (n *Notifier) Publish(_ context.Context, event domain.ChangeEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for s := range n.subs[event.Domain] {
		select {
		case s.ch <- event:
		default:
		}
	}
	return nil
}

func (n *Notifier) Subscribe(_ context.Context, d domain.Domain) (driven.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	s := &subscription{domain: d, ch: make(chan domain.ChangeEvent, subscriptionBuffer), parent: n}
	if n.subs[d] == nil {
		n.subs[d] = make(map[*subscription]struct{})
	}
	n.subs[d][s] = struct{}{}
	return s, nil
}

func (n *Notifier) Close() error {
	n.mu.Lock()
	n.closed = true
	all := n.subs
	n.subs = make(map[domain.Domain]map[*subscription]struct{})
	n.mu.Unlock()

	for _, subs := range all {
		for s := range subs {
			s.closeChan()
		}
	}
	return nil
}

// Subscribers returns the number of open subscriptions for a domain.
func (n *Notifier) Subscribers(d domain.Domain) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[d])
}

type subscription struct {
	domain domain.Domain
	ch     chan domain.ChangeEvent
	parent *Notifier
	once   sync.Once
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.ch }

func (s *subscription) Close() error {
	s.parent.mu.Lock()
	delete(s.parent.subs[s.domain], s)
	s.parent.mu.Unlock()
	s.closeChan()
	return nil
}

// closeChan must only run after s left the parent's map under the write
// lock, so Publish cannot send on a closed channel.
func (s *subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}
