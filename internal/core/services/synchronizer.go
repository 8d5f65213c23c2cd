package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

const (
	loadLockTTL       = 2 * time.Minute
	loadLockRetryWait = 100 * time.Millisecond
)

// Synchronizer bridges a pager's "load more in direction D" requests to the
// remote API and the local cache of one domain.
//
// Load flow:
//  1. Resolve the remote page from the pager state and remote keys
//  2. Fetch the page (no fetch when pagination is already exhausted)
//  3. Apply keys, entities and relations in one store transaction
//  4. Publish a change event for live queries
type Synchronizer[T domain.Entity] struct {
	domain       domain.Domain
	source       driven.PageSource[T]
	store        driven.CacheStore[T]
	notifier     driven.ChangeNotifier
	lock         driven.DistributedLock
	cacheTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	// one load per domain at a time
	mu sync.Mutex
}

// SynchronizerConfig holds dependencies for Synchronizer.
type SynchronizerConfig[T domain.Entity] struct {
	Domain       domain.Domain
	Source       driven.PageSource[T]
	Store        driven.CacheStore[T]
	Notifier     driven.ChangeNotifier  // optional
	Lock         driven.DistributedLock // optional, for stores shared across processes
	CacheTimeout time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewSynchronizer creates a new synchronizer.
func NewSynchronizer[T domain.Entity](cfg SynchronizerConfig[T]) *Synchronizer[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CacheTimeout
	if timeout <= 0 {
		timeout = domain.DefaultCacheTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Synchronizer[T]{
		domain:       cfg.Domain,
		source:       cfg.Source,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		lock:         cfg.Lock,
		cacheTimeout: timeout,
		now:          now,
		logger:       logger.With("domain", string(cfg.Domain)),
	}
}

// Domain returns the domain this synchronizer serves.
func (s *Synchronizer[T]) Domain() domain.Domain {
	return s.domain
}

// Initialize decides whether a new subscription may be served from cache.
// The cache is fresh only while now - newest key < cacheTimeout.
func (s *Synchronizer[T]) Initialize(ctx context.Context) (domain.InitializeAction, error) {
	createdAt, err := s.store.LastCreatedAt(ctx)
	if err != nil {
		return domain.LaunchInitialRefresh, fmt.Errorf("read cache age: %w", err)
	}
	if createdAt != nil && s.now().Sub(*createdAt) < s.cacheTimeout {
		s.logger.Debug("cache fresh, skipping initial refresh", "created_at", *createdAt)
		return domain.SkipInitialRefresh, nil
	}
	s.logger.Debug("cache stale or empty, launching initial refresh")
	return domain.LaunchInitialRefresh, nil
}

// Load resolves, fetches and merges one page. A non-nil error is always a
// *domain.LoadError and means the store was not modified.
func (s *Synchronizer[T]) Load(ctx context.Context, loadType domain.LoadType, state domain.PagingState) (*domain.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		release, err := s.acquire(ctx)
		if err != nil {
			return nil, s.loadError(loadType, 0, err)
		}
		defer release()
	}

	page, end, err := s.resolvePage(ctx, loadType, state)
	if err != nil {
		return nil, s.loadError(loadType, 0, err)
	}
	if page == 0 {
		return &domain.LoadResult{EndOfPaginationReached: end}, nil
	}

	resp, err := s.source.FetchPage(ctx, page)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("page not found, treating as end of pagination", "load_type", loadType, "page", page)
			return &domain.LoadResult{EndOfPaginationReached: true, Page: page}, nil
		}
		s.logger.Warn("page fetch failed", "load_type", loadType, "page", page, "error", err)
		return nil, s.loadError(loadType, page, err)
	}

	batch := s.buildBatch(loadType, page, resp)
	if err := s.store.ApplyPage(ctx, batch); err != nil {
		s.logger.Error("failed to apply page", "load_type", loadType, "page", page, "error", err)
		return nil, s.loadError(loadType, page, fmt.Errorf("apply page: %w", err))
	}

	s.publish(ctx, domain.ChangeEvent{
		Domain:   s.domain,
		LoadType: loadType,
		Page:     page,
		Count:    len(resp.Results),
		At:       s.now(),
	})

	s.logger.Info("page loaded",
		"load_type", loadType,
		"page", page,
		"fetched", len(resp.Results),
		"has_prev", resp.Info.Prev != nil,
		"has_next", resp.Info.Next != nil,
	)

	return &domain.LoadResult{
		EndOfPaginationReached: len(resp.Results) == 0,
		Page:                   page,
		Fetched:                len(resp.Results),
	}, nil
}

// resolvePage maps a load request to a remote page. page == 0 means no fetch
// is needed and end reports whether pagination is exhausted.
func (s *Synchronizer[T]) resolvePage(ctx context.Context, loadType domain.LoadType, state domain.PagingState) (page int, end bool, err error) {
	switch loadType {
	case domain.LoadRefresh:
		key, err := s.keyFor(ctx, state.AnchorID)
		if err != nil {
			return 0, false, err
		}
		if key != nil && key.NextPage != nil {
			return *key.NextPage - 1, false, nil
		}
		return 1, false, nil

	case domain.LoadPrepend:
		key, err := s.keyFor(ctx, state.FirstID)
		if err != nil {
			return 0, false, err
		}
		if key == nil {
			return 0, false, nil
		}
		if key.PrevPage == nil {
			return 0, true, nil
		}
		return *key.PrevPage, false, nil

	case domain.LoadAppend:
		key, err := s.keyFor(ctx, state.LastID)
		if err != nil {
			return 0, false, err
		}
		if key == nil {
			return 0, false, nil
		}
		if key.NextPage == nil {
			return 0, true, nil
		}
		return *key.NextPage, false, nil
	}
	return 0, false, fmt.Errorf("%w: load type %q", domain.ErrInvalidInput, loadType)
}

// keyFor returns nil when there is no item or the item has no remote key.
func (s *Synchronizer[T]) keyFor(ctx context.Context, id *int) (*domain.RemoteKey, error) {
	if id == nil {
		return nil, nil
	}
	key, err := s.store.RemoteKey(ctx, *id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read remote key %d: %w", *id, err)
	}
	return key, nil
}

// buildBatch derives the key triple from the presence of the response's
// prev/next links rather than from page arithmetic alone.
func (s *Synchronizer[T]) buildBatch(loadType domain.LoadType, page int, resp *domain.Page[T]) *domain.PageBatch[T] {
	var prevKey, nextKey *int
	if resp.Info.Prev != nil {
		prevKey = domain.IntPtr(page - 1)
	}
	if resp.Info.Next != nil {
		nextKey = domain.IntPtr(page + 1)
	}

	createdAt := s.now()
	keys := make([]domain.RemoteKey, 0, len(resp.Results))
	for _, e := range resp.Results {
		keys = append(keys, domain.RemoteKey{
			EntityID:    e.EntityID(),
			PrevPage:    prevKey,
			CurrentPage: page,
			NextPage:    nextKey,
			CreatedAt:   createdAt,
		})
	}

	return &domain.PageBatch[T]{
		Page:     page,
		Clear:    loadType == domain.LoadRefresh,
		Keys:     keys,
		Entities: resp.Results,
	}
}

// acquire waits for the distributed load lock of this domain.
func (s *Synchronizer[T]) acquire(ctx context.Context) (func(), error) {
	name := "load:" + string(s.domain)
	for {
		acquired, err := s.lock.Acquire(ctx, name, loadLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire load lock: %w", err)
		}
		if acquired {
			return func() {
				if err := s.lock.Release(context.WithoutCancel(ctx), name); err != nil {
					s.logger.Warn("failed to release load lock", "error", err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(loadLockRetryWait):
		}
	}
}

func (s *Synchronizer[T]) publish(ctx context.Context, event domain.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		// rows are committed; live queries catch up on the next change
		s.logger.Warn("failed to publish change", "error", err)
	}
}

func (s *Synchronizer[T]) loadError(loadType domain.LoadType, page int, err error) *domain.LoadError {
	return &domain.LoadError{Domain: s.domain, LoadType: loadType, Page: page, Err: err}
}
