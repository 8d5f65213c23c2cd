package driven

import (
	"context"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// WarmStateStore persists the background warmer's per-domain state so every
// instance reports the same last and next warm times.
type WarmStateStore interface {
	// Save creates or updates the state of a domain
	Save(ctx context.Context, state *domain.WarmState) error

	// Get retrieves the state of a domain. Returns domain.ErrNotFound when the
	// domain has never been warmed.
	Get(ctx context.Context, d domain.Domain) (*domain.WarmState, error)

	// List retrieves every stored state
	List(ctx context.Context) ([]*domain.WarmState, error)
}
