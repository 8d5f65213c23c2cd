package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Pager serves windows of one filtered, cached list and asks its synchronizer
// for more pages whenever a window crosses the end of the cached rows.
//
// The remote API pages the whole domain, so boundary ids come from the
// domain-wide fetch order rather than from the filtered list. A selective
// filter therefore keeps paging forward instead of stalling on an empty list.
type Pager[T domain.Entity] struct {
	sync   *Synchronizer[T]
	store  driven.CacheStore[T]
	filter domain.Filter
	config domain.PagingConfig
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	prependEnd  bool
	appendEnd   bool
	state       domain.LoadState

	// cache boundary the ends were observed at; a refresh by anyone else
	// moves it
	headID *int
	tailID *int
}

// NewPager creates a pager over a normalized filter.
func NewPager[T domain.Entity](s *Synchronizer[T], store driven.CacheStore[T], filter domain.Filter, cfg domain.PagingConfig, logger *slog.Logger) *Pager[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = domain.DefaultPagingConfig().PageSize
	}
	if cfg.PrefetchDistance < 0 {
		cfg.PrefetchDistance = 0
	}
	if cfg.MaxFetchesPerWindow <= 0 {
		cfg.MaxFetchesPerWindow = domain.DefaultPagingConfig().MaxFetchesPerWindow
	}
	return &Pager[T]{
		sync:   s,
		store:  store,
		filter: filter.Normalize(),
		config: cfg,
		logger: logger,
		state: domain.LoadState{
			Refresh: domain.LoadStatusIdle,
			Prepend: domain.LoadStatusIdle,
			Append:  domain.LoadStatusIdle,
		},
	}
}

// Filter returns the pager's normalized filter.
func (p *Pager[T]) Filter() domain.Filter {
	return p.filter
}

// Window returns cached items [offset, offset+limit) after loading whatever
// the window and the prefetch distance need. Load failures are reported in
// the window's LoadState next to the cached rows; only store errors fail the
// call.
func (p *Pager[T]) Window(ctx context.Context, offset, limit int) (*domain.Window[T], error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", domain.ErrInvalidInput)
	}
	if limit == 0 {
		limit = p.config.PageSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// every window retries whatever failed last time
	p.clearErrors()

	if !p.initialized {
		if err := p.initialize(ctx); err != nil {
			return nil, err
		}
	} else if err := p.checkEnds(ctx); err != nil {
		return nil, err
	}

	if offset == 0 && !p.prependEnd && p.state.Error == "" {
		if err := p.fillHead(ctx); err != nil {
			return nil, err
		}
	}

	if p.state.Error == "" {
		if err := p.fillTail(ctx, offset+limit+p.config.PrefetchDistance); err != nil {
			return nil, err
		}
	}

	return p.window(ctx, offset, limit)
}

// Refresh clears the domain and reloads starting at the page of anchorID (or
// page 1 when anchorID is nil).
func (p *Pager[T]) Refresh(ctx context.Context, anchorID *int) (*domain.LoadResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
	return p.refresh(ctx, anchorID)
}

// Cached returns a window of what is already cached without loading.
func (p *Pager[T]) Cached(ctx context.Context, offset, limit int) (*domain.Window[T], error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", domain.ErrInvalidInput)
	}
	if limit == 0 {
		limit = p.config.PageSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window(ctx, offset, limit)
}

// Reset forgets pagination ends, e.g. after another pager refreshed the
// domain underneath this one.
func (p *Pager[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prependEnd = false
	p.appendEnd = false
	p.headID, p.tailID = nil, nil
	p.state = domain.LoadState{
		Refresh: domain.LoadStatusIdle,
		Prepend: domain.LoadStatusIdle,
		Append:  domain.LoadStatusIdle,
	}
}

// State returns the last load state.
func (p *Pager[T]) State() domain.LoadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pager[T]) initialize(ctx context.Context) error {
	action, err := p.sync.Initialize(ctx)
	if err != nil {
		p.logger.Warn("cache age unknown, refreshing", "domain", p.sync.Domain(), "error", err)
	}
	p.initialized = true
	if action == domain.SkipInitialRefresh {
		return nil
	}
	_, err = p.refresh(ctx, nil)
	return storeFailure(err)
}

func (p *Pager[T]) refresh(ctx context.Context, anchorID *int) (*domain.LoadResult, error) {
	p.clearErrors()
	res, err := p.sync.Load(ctx, domain.LoadRefresh, domain.PagingState{AnchorID: anchorID})
	if err != nil {
		p.fail(domain.LoadRefresh, err)
		return nil, err
	}
	p.prependEnd = false
	p.appendEnd = false
	p.state.Refresh = domain.LoadStatusIdle
	p.state.Prepend = domain.LoadStatusIdle
	p.state.Append = domain.LoadStatusIdle
	if res.EndOfPaginationReached {
		_, last, err := p.store.Boundary(ctx)
		if err != nil {
			return nil, fmt.Errorf("read cache boundary: %w", err)
		}
		p.markAppendEnd(last)
	}
	return res, nil
}

// checkEnds forgets pagination ends observed against rows that have since
// been replaced, e.g. by another pager's refresh or another process sharing
// the store.
func (p *Pager[T]) checkEnds(ctx context.Context) error {
	if !p.prependEnd && !p.appendEnd {
		return nil
	}
	first, last, err := p.store.Boundary(ctx)
	if err != nil {
		return fmt.Errorf("read cache boundary: %w", err)
	}
	if p.prependEnd && !sameID(first, p.headID) {
		p.prependEnd = false
		p.state.Prepend = domain.LoadStatusIdle
	}
	if p.appendEnd && !sameID(last, p.tailID) {
		p.appendEnd = false
		p.state.Append = domain.LoadStatusIdle
	}
	return nil
}

func (p *Pager[T]) markPrependEnd(first *int) {
	p.prependEnd = true
	p.headID = first
	p.state.Prepend = domain.LoadStatusComplete
}

func (p *Pager[T]) markAppendEnd(last *int) {
	p.appendEnd = true
	p.tailID = last
	p.state.Append = domain.LoadStatusComplete
}

func sameID(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// fillHead prepends until the first cached item has no previous page.
func (p *Pager[T]) fillHead(ctx context.Context) error {
	for i := 0; i < p.config.MaxFetchesPerWindow; i++ {
		first, _, err := p.store.Boundary(ctx)
		if err != nil {
			return fmt.Errorf("read cache boundary: %w", err)
		}
		res, err := p.sync.Load(ctx, domain.LoadPrepend, domain.PagingState{FirstID: first})
		if err != nil {
			p.fail(domain.LoadPrepend, err)
			return storeFailure(err)
		}
		if res.EndOfPaginationReached {
			p.markPrependEnd(first)
			return nil
		}
		if res.Page == 0 {
			// nothing cached to prepend to
			return nil
		}
	}
	return nil
}

// fillTail appends until at least want filtered rows are cached or the
// remote list is exhausted.
func (p *Pager[T]) fillTail(ctx context.Context, want int) error {
	for fetches := 0; !p.appendEnd; fetches++ {
		if fetches == p.config.MaxFetchesPerWindow {
			p.logger.Debug("fetch budget for window exhausted", "max_fetches", fetches, "filter", p.filter.Key())
			return nil
		}

		have, err := p.store.Count(ctx, p.filter)
		if err != nil {
			return fmt.Errorf("count cached rows: %w", err)
		}
		if have >= want {
			return nil
		}

		_, last, err := p.store.Boundary(ctx)
		if err != nil {
			return fmt.Errorf("read cache boundary: %w", err)
		}
		if last == nil {
			// empty cache: start over from page 1
			if _, err := p.refresh(ctx, nil); err != nil {
				return storeFailure(err)
			}
			continue
		}

		res, err := p.sync.Load(ctx, domain.LoadAppend, domain.PagingState{LastID: last})
		if err != nil {
			p.fail(domain.LoadAppend, err)
			return storeFailure(err)
		}
		if res.EndOfPaginationReached {
			p.markAppendEnd(last)
			return nil
		}
		if res.Page == 0 {
			return nil
		}
	}
	return nil
}

func (p *Pager[T]) window(ctx context.Context, offset, limit int) (*domain.Window[T], error) {
	items, err := p.store.Query(ctx, p.filter, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	total, err := p.store.Count(ctx, p.filter)
	if err != nil {
		return nil, fmt.Errorf("count cached rows: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return &domain.Window[T]{
		Domain: p.sync.Domain(),
		Filter: p.filter,
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Items:  items,
		State:  p.state,
	}, nil
}

func (p *Pager[T]) clearErrors() {
	p.state.Error = ""
	p.state.Retryable = false
	for _, st := range []*domain.LoadStatus{&p.state.Refresh, &p.state.Prepend, &p.state.Append} {
		if *st == domain.LoadStatusError {
			*st = domain.LoadStatusIdle
		}
	}
}

func (p *Pager[T]) fail(loadType domain.LoadType, err error) {
	p.logger.Warn("load failed", "domain", p.sync.Domain(), "load_type", loadType, "error", err)
	switch loadType {
	case domain.LoadRefresh:
		p.state.Refresh = domain.LoadStatusError
	case domain.LoadPrepend:
		p.state.Prepend = domain.LoadStatusError
	case domain.LoadAppend:
		p.state.Append = domain.LoadStatusError
	}
	p.state.Error = err.Error()
	var le *domain.LoadError
	p.state.Retryable = errors.As(err, &le) && le.Retryable()
}

// storeFailure drops retryable load errors, which live in LoadState, and
// keeps anything else.
func storeFailure(err error) error {
	var le *domain.LoadError
	if err == nil || errors.As(err, &le) {
		return nil
	}
	return err
}
