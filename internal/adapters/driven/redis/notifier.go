package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChangeNotifier = (*Notifier)(nil)

const (
	channelPrefix = "rmsync:changes:"

	subscriptionBuffer = 16
)

// Notifier implements ChangeNotifier over Redis pub/sub, one channel per
// domain, so instances sharing a store see each other's writes.
type Notifier struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewNotifier creates a Redis pub/sub notifier
func NewNotifier(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client: client,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
}

func channel(d domain.Domain) string {
	return channelPrefix + string(d)
}

// Publish sends the event to every subscriber of its domain on any instance.
func (n *Notifier) Publish(ctx context.Context, event domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, channel(event.Domain), data).Err(); err != nil {
		return fmt.Errorf("publish %s change: %w", event.Domain, err)
	}
	return nil
}

// Subscribe opens a pub/sub connection for one domain. It returns once
// Redis confirmed the subscription, so no later Publish is missed.
func (n *Notifier) Subscribe(ctx context.Context, d domain.Domain) (driven.Subscription, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, fmt.Errorf("notifier closed")
	}
	n.mu.Unlock()

	ps := n.client.Subscribe(ctx, channel(d))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", d, err)
	}

	s := &subscription{
		ps:     ps,
		events: make(chan domain.ChangeEvent, subscriptionBuffer),
		done:   make(chan struct{}),
		parent: n,
	}

	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()

	go s.forward(n.logger.With("domain", d))
	return s, nil
}

// Close ends every subscription opened through this notifier. The client
// itself is owned by the caller.
func (n *Notifier) Close() error {
	n.mu.Lock()
	n.closed = true
	subs := n.subs
	n.subs = make(map[*subscription]struct{})
	n.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
	return nil
}

type subscription struct {
	ps     *redis.PubSub
	events chan domain.ChangeEvent
	done   chan struct{}
	parent *Notifier
	once   sync.Once
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *subscription) Close() error {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()
	s.shutdown()
	return nil
}

func (s *subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.ps.Close()
	})
}

// forward decodes messages until the pub/sub connection closes. A full
// buffer drops the event; the consumer re-queries on the next one anyway.
func (s *subscription) forward(logger *slog.Logger) {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.ps.Channel():
			if !ok {
				return
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("dropping malformed change event", "error", err)
				continue
			}
			select {
			case s.events <- ev:
			default:
				logger.Debug("subscriber slow, change event dropped", "page", ev.Page)
			}
		}
	}
}
