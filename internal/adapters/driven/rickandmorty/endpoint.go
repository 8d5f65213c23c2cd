package rickandmorty

import (
	"context"
	"fmt"
	"net/url"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.EntitySource[domain.Character] = (*Endpoint[domain.Character])(nil)
	_ driven.EntitySource[domain.Episode]   = (*Endpoint[domain.Episode])(nil)
	_ driven.EntitySource[domain.Location]  = (*Endpoint[domain.Location])(nil)
)

// Endpoint is the typed accessor of one collection, e.g. /character.
type Endpoint[T domain.Entity] struct {
	client *Client
	path   string
}

// NewEndpoint creates an accessor for the collection at path.
func NewEndpoint[T domain.Entity](client *Client, path string) *Endpoint[T] {
	return &Endpoint[T]{client: client, path: path}
}

// Characters returns the /character accessor.
func Characters(c *Client) *Endpoint[domain.Character] {
	return NewEndpoint[domain.Character](c, "/character")
}

// Episodes returns the /episode accessor.
func Episodes(c *Client) *Endpoint[domain.Episode] {
	return NewEndpoint[domain.Episode](c, "/episode")
}

// Locations returns the /location accessor.
func Locations(c *Client) *Endpoint[domain.Location] {
	return NewEndpoint[domain.Location](c, "/location")
}

// FetchPage fetches GET {path}/?page=n. The API answers 404 past the last
// page, which surfaces as domain.ErrNotFound.
func (e *Endpoint[T]) FetchPage(ctx context.Context, page int) (*domain.Page[T], error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", domain.ErrInvalidInput)
	}
	q := url.Values{"page": {fmt.Sprint(page)}}
	var resp domain.Page[T]
	if err := e.client.getJSON(ctx, e.path+"/?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", e.path, page, err)
	}
	return &resp, nil
}

// Get fetches GET {path}/{id}.
func (e *Endpoint[T]) Get(ctx context.Context, id int) (*T, error) {
	var v T
	if err := e.client.getJSON(ctx, fmt.Sprintf("%s/%d", e.path, id), &v); err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", e.path, id, err)
	}
	return &v, nil
}

// GetMany fetches GET {path}/{id,id,...}. The API answers a single id with an
// object and several with an array; both come back as a list.
func (e *Endpoint[T]) GetMany(ctx context.Context, ids []int) ([]T, error) {
	switch len(ids) {
	case 0:
		return []T{}, nil
	case 1:
		v, err := e.Get(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		return []T{*v}, nil
	}

	joined := domain.JoinIDs(ids)
	var items []T
	if err := e.client.getJSON(ctx, e.path+"/"+joined, &items); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", e.path, joined, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
