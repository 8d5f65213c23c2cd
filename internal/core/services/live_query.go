package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.LiveView[domain.Character] = (*LiveQuery[domain.Character])(nil)

// LiveQuery is a filtered window that re-reads the cache whenever its domain
// changes. Consumers call Snapshot for the current rows and wait on Changes
// for the next re-read.
type LiveQuery[T domain.Entity] struct {
	pager  *Pager[T]
	sub    driven.Subscription
	offset int
	limit  int

	closeOnce sync.Once
}

// NewLiveQuery wraps a pager window and a domain subscription.
func NewLiveQuery[T domain.Entity](pager *Pager[T], sub driven.Subscription, offset, limit int) *LiveQuery[T] {
	return &LiveQuery[T]{pager: pager, sub: sub, offset: offset, limit: limit}
}

// Snapshot returns the cached window without triggering loads.
func (q *LiveQuery[T]) Snapshot(ctx context.Context) (*domain.Window[T], error) {
	return q.pager.Cached(ctx, q.offset, q.limit)
}

// Load returns the window, loading pages the window needs first.
func (q *LiveQuery[T]) Load(ctx context.Context) (*domain.Window[T], error) {
	return q.pager.Window(ctx, q.offset, q.limit)
}

// Changes is closed when the query is closed.
func (q *LiveQuery[T]) Changes() <-chan domain.ChangeEvent {
	return q.sub.Events()
}

// Close ends the subscription. Safe to call more than once.
func (q *LiveQuery[T]) Close() error {
	var err error
	q.closeOnce.Do(func() {
		err = q.sub.Close()
	})
	return err
}
