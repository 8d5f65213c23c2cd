package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

// Verify interface compliance
var (
	_ driving.EntityService[domain.Character] = (*Repository[domain.Character])(nil)
	_ driving.EntityService[domain.Episode]   = (*Repository[domain.Episode])(nil)
	_ driving.EntityService[domain.Location]  = (*Repository[domain.Location])(nil)
)

const defaultMaxPagers = 128

// Repository composes the paging config, the local query and the
// synchronizer of one domain into filtered paged streams. Point lookups go
// straight to the remote API and are never cached.
type Repository[T domain.Entity] struct {
	sync     *Synchronizer[T]
	source   driven.EntitySource[T]
	store    driven.CacheStore[T]
	notifier driven.ChangeNotifier
	paging   domain.PagingConfig
	pagers   *lru.Cache[string, *Pager[T]]
	lookups  singleflight.Group
	logger   *slog.Logger
}

// RepositoryConfig holds dependencies for Repository.
type RepositoryConfig[T domain.Entity] struct {
	Synchronizer *Synchronizer[T]
	Source       driven.EntitySource[T]
	Store        driven.CacheStore[T]
	Notifier     driven.ChangeNotifier
	Paging       domain.PagingConfig
	MaxPagers    int
	Logger       *slog.Logger
}

// NewRepository creates a new repository.
func NewRepository[T domain.Entity](cfg RepositoryConfig[T]) (*Repository[T], error) {
	if cfg.Synchronizer == nil || cfg.Source == nil || cfg.Store == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("%w: repository needs synchronizer, source, store and notifier", domain.ErrInvalidInput)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Paging == (domain.PagingConfig{}) {
		cfg.Paging = domain.DefaultPagingConfig()
	}
	size := cfg.MaxPagers
	if size <= 0 {
		size = defaultMaxPagers
	}
	pagers, err := lru.New[string, *Pager[T]](size)
	if err != nil {
		return nil, fmt.Errorf("create pager cache: %w", err)
	}

	return &Repository[T]{
		sync:     cfg.Synchronizer,
		source:   cfg.Source,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		paging:   cfg.Paging,
		pagers:   pagers,
		logger:   logger.With("domain", string(cfg.Synchronizer.Domain())),
	}, nil
}

// Domain returns the domain served.
func (r *Repository[T]) Domain() domain.Domain {
	return r.sync.Domain()
}

// Pager returns the pager of a filter, creating it on first use. Equivalent
// filters share one pager.
func (r *Repository[T]) Pager(filter domain.Filter) (*Pager[T], error) {
	filter = filter.Normalize()
	if err := filter.Validate(r.Domain()); err != nil {
		return nil, err
	}
	key := filter.Key()
	if p, ok := r.pagers.Get(key); ok {
		return p, nil
	}
	p := NewPager(r.sync, r.store, filter, r.paging, r.logger)
	if prev, ok, _ := r.pagers.PeekOrAdd(key, p); ok {
		return prev, nil
	}
	return p, nil
}

// Window returns a filtered window, loading remote pages as needed.
func (r *Repository[T]) Window(ctx context.Context, filter domain.Filter, offset, limit int) (*domain.Window[T], error) {
	p, err := r.Pager(filter)
	if err != nil {
		return nil, err
	}
	return p.Window(ctx, offset, limit)
}

// Refresh forces a reload from page 1. Every other pager forgets its
// pagination ends because the rows underneath it were replaced.
func (r *Repository[T]) Refresh(ctx context.Context) (*domain.LoadResult, error) {
	p, err := r.Pager(domain.Filter{})
	if err != nil {
		return nil, err
	}
	res, err := p.Refresh(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, other := range r.pagers.Values() {
		if other != p {
			other.Reset()
		}
	}
	return res, nil
}

// Warm refreshes the domain only when its cache is empty or older than the
// cache timeout. The returned result is nil when the refresh was skipped.
func (r *Repository[T]) Warm(ctx context.Context) (domain.InitializeAction, *domain.LoadResult, error) {
	action, err := r.sync.Initialize(ctx)
	if err != nil {
		r.logger.Warn("cache age unknown, refreshing", "error", err)
	}
	if action == domain.SkipInitialRefresh {
		return action, nil, nil
	}
	res, err := r.Refresh(ctx)
	return action, res, err
}

// Watch returns a live view of a filtered window.
func (r *Repository[T]) Watch(ctx context.Context, filter domain.Filter, offset, limit int) (driving.LiveView[T], error) {
	p, err := r.Pager(filter)
	if err != nil {
		return nil, err
	}
	sub, err := r.notifier.Subscribe(ctx, r.Domain())
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s changes: %w", r.Domain(), err)
	}
	return NewLiveQuery(p, sub, offset, limit), nil
}

// Get fetches one entity from the remote API. Concurrent lookups of the same
// id share one request.
func (r *Repository[T]) Get(ctx context.Context, id int) (*T, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", domain.ErrInvalidInput)
	}
	v, err := r.shared(ctx, "get:"+strconv.Itoa(id), func(ctx context.Context) (any, error) {
		return r.source.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// GetMany fetches several entities in one request. An empty id list returns
// an empty result without a request.
func (r *Repository[T]) GetMany(ctx context.Context, ids []int) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	v, err := r.shared(ctx, "many:"+domain.JoinIDs(ids), func(ctx context.Context) (any, error) {
		return r.source.GetMany(ctx, ids)
	})
	if err != nil {
		return nil, err
	}
	items := v.([]T)
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// shared runs fn once for all concurrent callers of key. The request is
// detached from the first caller's cancellation; each caller still returns
// as soon as its own ctx is done.
func (r *Repository[T]) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := r.lookups.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
