package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// CacheStore is the Local Store of one domain: entity rows, their relation
// rows and the remote-key bookkeeping.
type CacheStore[T domain.Entity] interface {
	// LastCreatedAt returns the newest remote key timestamp, or nil when the
	// domain has no remote keys.
	LastCreatedAt(ctx context.Context) (*time.Time, error)

	// RemoteKey returns the key of an entity, or domain.ErrNotFound.
	RemoteKey(ctx context.Context, entityID int) (*domain.RemoteKey, error)

	// ApplyPage writes a fetched page in a single transaction: optional full
	// clear, remote key upsert, entity upsert tagged with the page, and
	// delete-then-insert of each entity's relation rows.
	ApplyPage(ctx context.Context, batch *domain.PageBatch[T]) error

	// Query returns filtered entities ordered by page then id.
	Query(ctx context.Context, filter domain.Filter, offset, limit int) ([]T, error)

	// Count returns how many cached entities match the filter.
	Count(ctx context.Context, filter domain.Filter) (int, error)

	// Boundary returns the ids of the first and last cached entities in
	// fetch order, ignoring filters. Both are nil for an empty cache.
	Boundary(ctx context.Context) (first, last *int, err error)
}

// Pinger is implemented by stores that can report health.
type Pinger interface {
	Ping(ctx context.Context) error
}
