package driven

import (
	"context"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// ChangeNotifier fans out cache change events so live queries can re-issue.
type ChangeNotifier interface {
	// Publish announces that a domain's rows changed.
	Publish(ctx context.Context, event domain.ChangeEvent) error

	// Subscribe returns a subscription to one domain's events.
	Subscribe(ctx context.Context, d domain.Domain) (Subscription, error)

	// Close releases backend resources and ends every subscription.
	Close() error
}

// Subscription delivers events until closed. Slow consumers may miss events;
// an event only means "re-query", so coalescing is harmless.
type Subscription interface {
	Events() <-chan domain.ChangeEvent
	Close() error
}
