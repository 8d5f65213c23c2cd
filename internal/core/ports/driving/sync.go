package driving

import (
	"context"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// Warmer keeps every domain's cache within its timeout in the background
type Warmer interface {
	// Start begins the warm loop
	Start(ctx context.Context) error

	// Stop stops the warm loop and waits for in-flight loads
	Stop(ctx context.Context) error

	// WarmAll runs one warm pass over every domain
	WarmAll(ctx context.Context) ([]domain.WarmResult, error)

	// States returns the last known warm state of every domain
	States(ctx context.Context) ([]*domain.WarmState, error)
}
