package driven

import (
	"context"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// PageSource fetches one page of a domain's list endpoint.
type PageSource[T domain.Entity] interface {
	// FetchPage returns the entities and pagination info of a 1-based page.
	// A page past the end is reported as domain.ErrNotFound.
	FetchPage(ctx context.Context, page int) (*domain.Page[T], error)
}

// EntitySource is the Remote Source of one domain: paged listing plus
// uncached point lookups.
type EntitySource[T domain.Entity] interface {
	PageSource[T]

	// Get fetches a single entity by id.
	Get(ctx context.Context, id int) (*T, error)

	// GetMany fetches several entities with one comma-joined request.
	// The result is always a list, even for a single id.
	GetMany(ctx context.Context, ids []int) ([]T, error)
}
