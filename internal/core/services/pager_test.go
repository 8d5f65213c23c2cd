package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven/mocks"
)

func smallPaging() domain.PagingConfig {
	return domain.PagingConfig{PageSize: 2, PrefetchDistance: 0, MaxFetchesPerWindow: 64}
}

func ids(items []domain.Character) []int {
	out := make([]int, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func TestPager_FirstWindowRefreshes(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)

	w, err := p.Window(context.Background(), 0, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, ids(w.Items))
	assert.Equal(t, 2, w.Total)
	assert.Equal(t, []int{1}, source.Fetches(), "head is known from page 1 keys, no prepend request")
	assert.Equal(t, domain.LoadStatusComplete, w.State.Prepend)
	assert.Equal(t, domain.LoadStatusIdle, w.State.Append)
}

func TestPager_AppendsOnBoundaryCrossing(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)
	ctx := context.Background()

	_, err := p.Window(ctx, 0, 2)
	require.NoError(t, err)

	w, err := p.Window(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, ids(w.Items))
	assert.Equal(t, []int{1, 2}, source.Fetches())

	w, err = p.Window(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids(w.Items))
	assert.Equal(t, domain.LoadStatusComplete, w.State.Append)
	assert.Equal(t, []int{1, 2, 3}, source.Fetches())

	// exhausted: no more requests
	_, err = p.Window(ctx, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, source.Fetches())
}

func TestPager_PrefetchDistance(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	cfg := smallPaging()
	cfg.PrefetchDistance = 2
	p := NewPager(s, store, domain.Filter{}, cfg, nil)

	_, err := p.Window(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, source.Fetches())
}

func TestPager_FreshCacheSkipsRefresh(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	key := domain.RemoteKey{CurrentPage: 1, NextPage: domain.IntPtr(2), CreatedAt: testNow.Add(-10 * time.Minute)}
	store.Seed(1, key, character(1, "Rick Sanchez", "Alive"), character(2, "Morty Smith", "Alive"))

	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)
	w, err := p.Window(context.Background(), 0, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, ids(w.Items))
	assert.Empty(t, source.Fetches())
}

func TestPager_SelectiveFilterKeepsPaging(t *testing.T) {
	for _, status := range []string{"unknown", "Unknown"} {
		t.Run(status, func(t *testing.T) {
			s, source, store, _ := createTestSynchronizer(t)
			filter := domain.Filter{Fields: map[string]string{"status": status}}
			p := NewPager(s, store, filter, smallPaging(), nil)

			w, err := p.Window(context.Background(), 0, 1)
			require.NoError(t, err)
			assert.Equal(t, []int{6}, ids(w.Items))
			assert.Equal(t, 1, w.Total)
			assert.Equal(t, []int{1, 2, 3}, source.Fetches())
		})
	}
}

func TestPager_NameSearch(t *testing.T) {
	s, _, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{Query: "SMITH"}, smallPaging(), nil)

	w, err := p.Window(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, ids(w.Items))
}

func TestPager_ErrorReportedWithCachedRows(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)
	ctx := context.Background()

	_, err := p.Window(ctx, 0, 2)
	require.NoError(t, err)

	source.Err = fmt.Errorf("dial tcp: %w", domain.ErrServiceUnavailable)
	w, err := p.Window(ctx, 0, 4)
	require.NoError(t, err, "load failures are reported in the window, not returned")
	assert.Equal(t, []int{1, 2}, ids(w.Items))
	assert.Equal(t, domain.LoadStatusError, w.State.Append)
	assert.NotEmpty(t, w.State.Error)
	assert.True(t, w.State.Retryable)

	// retry once the network is back
	source.Err = nil
	w, err = p.Window(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, ids(w.Items))
	assert.Empty(t, w.State.Error)
}

func TestPager_RefreshFailureServesStaleCache(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	key := domain.RemoteKey{CurrentPage: 1, NextPage: domain.IntPtr(2), CreatedAt: testNow.Add(-3 * time.Hour)}
	store.Seed(1, key, character(1, "Rick Sanchez", "Alive"))
	source.Err = fmt.Errorf("dial tcp: %w", domain.ErrServiceUnavailable)

	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)
	w, err := p.Window(context.Background(), 0, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, ids(w.Items))
	assert.Equal(t, domain.LoadStatusError, w.State.Refresh)
	assert.Equal(t, []int{1}, source.Fetches(), "no appends after a failed refresh")
}

func TestPager_FetchBudget(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	cfg := smallPaging()
	cfg.MaxFetchesPerWindow = 1
	p := NewPager(s, store, domain.Filter{}, cfg, nil)

	w, err := p.Window(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, source.Fetches())
	assert.Len(t, w.Items, 4)
}

func TestPager_InvalidWindow(t *testing.T) {
	s, _, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)

	_, err := p.Window(context.Background(), -1, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPager_DefaultLimit(t *testing.T) {
	s, _, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)

	w, err := p.Window(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Limit)
}

func TestPager_ResetAfterRefresh(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)
	ctx := context.Background()

	_, err := p.Window(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.LoadStatusComplete, p.State().Append)

	_, err = p.Refresh(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LoadStatusIdle, p.State().Append)

	w, err := p.Window(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, ids(w.Items))
	assert.Equal(t, []int{1, 2, 3, 1, 2}, source.Fetches())
}

func TestPager_ReopensAfterSiblingRefresh(t *testing.T) {
	now := testNow
	source := mocks.NewMockPageSource(threePages()...)
	store := newCharacterStore()
	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain: domain.DomainCharacter,
		Source: source,
		Store:  store,
		Now:    func() time.Time { return now },
	})
	ctx := context.Background()

	unknown := NewPager(s, store, domain.Filter{Fields: map[string]string{"status": "unknown"}}, smallPaging(), nil)
	w, err := unknown.Window(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []int{6}, ids(w.Items))
	require.Equal(t, domain.LoadStatusComplete, w.State.Append)

	// cache goes stale; a new filter's first window refreshes the domain
	now = now.Add(2 * time.Hour)
	rick := NewPager(s, store, domain.Filter{Query: "rick"}, smallPaging(), nil)
	w, err = rick.Window(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(w.Items))
	assert.Equal(t, []int{1, 2, 3, 1}, source.Fetches())

	w, err = unknown.Window(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, ids(w.Items))
	assert.Equal(t, domain.LoadStatusComplete, w.State.Append)
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, source.Fetches())
}

func TestPager_ReopensAfterRefreshByAnotherProcess(t *testing.T) {
	source := mocks.NewMockPageSource(threePages()...)
	store := newCharacterStore()
	newSync := func() *Synchronizer[domain.Character] {
		return NewSynchronizer(SynchronizerConfig[domain.Character]{
			Domain: domain.DomainCharacter,
			Source: source,
			Store:  store,
			Now:    func() time.Time { return testNow },
		})
	}
	ctx := context.Background()

	p := NewPager(newSync(), store, domain.Filter{}, smallPaging(), nil)
	w, err := p.Window(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, w.Items, 6)

	// a second process sharing the store reloads page 1
	_, err = newSync().Load(ctx, domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)

	w, err = p.Window(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids(w.Items))
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, source.Fetches())
}

func TestPager_UnknownCacheAgeRefreshes(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	store.LastCreatedAtErr = errors.New("disk I/O error")
	p := NewPager(s, store, domain.Filter{}, smallPaging(), nil)

	w, err := p.Window(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids(w.Items))
	assert.Equal(t, []int{1}, source.Fetches())
}
