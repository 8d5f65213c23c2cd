package driving

import (
	"context"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// EntityService serves one domain's cached, paged list and its uncached
// point lookups.
type EntityService[T domain.Entity] interface {
	// Domain returns the domain served
	Domain() domain.Domain

	// Window returns a filtered window, loading remote pages as needed
	Window(ctx context.Context, filter domain.Filter, offset, limit int) (*domain.Window[T], error)

	// Refresh clears the domain's cache and reloads page 1
	Refresh(ctx context.Context) (*domain.LoadResult, error)

	// Watch returns a live view of a filtered window
	Watch(ctx context.Context, filter domain.Filter, offset, limit int) (LiveView[T], error)

	// Get fetches one entity from the remote API
	Get(ctx context.Context, id int) (*T, error)

	// GetMany fetches several entities from the remote API in one request
	GetMany(ctx context.Context, ids []int) ([]T, error)
}

// LiveView is a window that is re-read whenever its domain changes.
type LiveView[T domain.Entity] interface {
	// Snapshot returns the cached rows without loading
	Snapshot(ctx context.Context) (*domain.Window[T], error)

	// Load returns the window after loading what it needs
	Load(ctx context.Context) (*domain.Window[T], error)

	// Changes delivers an event after each committed load
	Changes() <-chan domain.ChangeEvent

	// Close ends the view
	Close() error
}

// CatalogService bundles the three domains and the lookups that navigate
// between them.
type CatalogService interface {
	Characters() EntityService[domain.Character]
	Episodes() EntityService[domain.Episode]
	Locations() EntityService[domain.Location]

	// CharacterEpisodes returns the episodes a character appears in
	CharacterEpisodes(ctx context.Context, characterID int) ([]domain.Episode, error)

	// CharacterOrigin returns a character's origin location
	CharacterOrigin(ctx context.Context, characterID int) (*domain.Location, error)

	// CharacterLocation returns a character's last known location
	CharacterLocation(ctx context.Context, characterID int) (*domain.Location, error)

	// EpisodeCharacters returns the characters of an episode
	EpisodeCharacters(ctx context.Context, episodeID int) ([]domain.Character, error)

	// LocationResidents returns the residents of a location
	LocationResidents(ctx context.Context, locationID int) ([]domain.Character, error)

	// Refresh forces a reload of one domain
	Refresh(ctx context.Context, d domain.Domain) (*domain.LoadResult, error)
}
