package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.CatalogService = (*Catalog)(nil)

// Catalog bundles the character, episode and location repositories and
// navigates between them through relation URLs.
type Catalog struct {
	characters *Repository[domain.Character]
	episodes   *Repository[domain.Episode]
	locations  *Repository[domain.Location]
}

// NewCatalog creates a catalog over the three repositories.
func NewCatalog(characters *Repository[domain.Character], episodes *Repository[domain.Episode], locations *Repository[domain.Location]) *Catalog {
	return &Catalog{characters: characters, episodes: episodes, locations: locations}
}

func (c *Catalog) Characters() driving.EntityService[domain.Character] { return c.characters }
func (c *Catalog) Episodes() driving.EntityService[domain.Episode]     { return c.episodes }
func (c *Catalog) Locations() driving.EntityService[domain.Location]   { return c.locations }

// Refresh forces a reload of one domain.
func (c *Catalog) Refresh(ctx context.Context, d domain.Domain) (*domain.LoadResult, error) {
	switch d {
	case domain.DomainCharacter:
		return c.characters.Refresh(ctx)
	case domain.DomainEpisode:
		return c.episodes.Refresh(ctx)
	case domain.DomainLocation:
		return c.locations.Refresh(ctx)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDomain, d)
}

// Warm refreshes one domain when its cache has gone stale.
func (c *Catalog) Warm(ctx context.Context, d domain.Domain) (domain.InitializeAction, *domain.LoadResult, error) {
	switch d {
	case domain.DomainCharacter:
		return c.characters.Warm(ctx)
	case domain.DomainEpisode:
		return c.episodes.Warm(ctx)
	case domain.DomainLocation:
		return c.locations.Warm(ctx)
	}
	return "", nil, fmt.Errorf("%w: %q", domain.ErrUnknownDomain, d)
}

// CharacterEpisodes returns the episodes a character appears in.
func (c *Catalog) CharacterEpisodes(ctx context.Context, characterID int) ([]domain.Episode, error) {
	ch, err := c.characters.Get(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return related(ctx, c.episodes, ch.Episode)
}

// CharacterOrigin returns a character's origin. Characters of unknown origin
// carry an empty URL and yield domain.ErrNotFound.
func (c *Catalog) CharacterOrigin(ctx context.Context, characterID int) (*domain.Location, error) {
	ch, err := c.characters.Get(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return c.locationRef(ctx, ch.Origin)
}

// CharacterLocation returns a character's last known location.
func (c *Catalog) CharacterLocation(ctx context.Context, characterID int) (*domain.Location, error) {
	ch, err := c.characters.Get(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return c.locationRef(ctx, ch.Location)
}

// EpisodeCharacters returns the characters of an episode.
func (c *Catalog) EpisodeCharacters(ctx context.Context, episodeID int) ([]domain.Character, error) {
	ep, err := c.episodes.Get(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return related(ctx, c.characters, ep.Characters)
}

// LocationResidents returns the residents of a location.
func (c *Catalog) LocationResidents(ctx context.Context, locationID int) ([]domain.Character, error) {
	loc, err := c.locations.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return related(ctx, c.characters, loc.Residents)
}

func (c *Catalog) locationRef(ctx context.Context, ref domain.LocationRef) (*domain.Location, error) {
	if ref.URL == "" {
		return nil, fmt.Errorf("%w: location %q has no url", domain.ErrNotFound, ref.Name)
	}
	id, err := domain.IDFromURL(ref.URL)
	if err != nil {
		return nil, err
	}
	return c.locations.Get(ctx, id)
}

// related resolves relation URLs with one comma-joined request. An empty
// list resolves to an empty result without touching the network.
func related[T domain.Entity](ctx context.Context, repo *Repository[T], urls []string) ([]T, error) {
	ids, err := domain.IDsFromURLs(urls)
	if err != nil {
		return nil, err
	}
	return repo.GetMany(ctx, ids)
}
