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

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func character(id int, name, status string) domain.Character {
	return domain.Character{
		ID:      id,
		Name:    name,
		Status:  status,
		Species: "Human",
		Gender:  "Male",
		URL:     fmt.Sprintf("https://rickandmortyapi.com/api/character/%d", id),
	}
}

// threePages returns 3 pages of 2 characters: ids 1-2, 3-4, 5-6.
func threePages() [][]domain.Character {
	return [][]domain.Character{
		{character(1, "Rick Sanchez", "Alive"), character(2, "Morty Smith", "Alive")},
		{character(3, "Summer Smith", "Alive"), character(4, "Beth Smith", "Alive")},
		{character(5, "Jerry Smith", "Alive"), character(6, "Abadango Cluster Princess", "unknown")},
	}
}

func newCharacterStore() *mocks.MockCacheStore[domain.Character] {
	store := mocks.NewMockCacheStore[domain.Character]()
	store.NameOf = func(c domain.Character) string { return c.Name }
	store.FieldsOf = func(c domain.Character) map[string]string {
		return map[string]string{"status": c.Status, "species": c.Species, "type": c.Type, "gender": c.Gender}
	}
	return store
}

// Test helper to create a character Synchronizer with mocks
func createTestSynchronizer(t *testing.T) (
	*Synchronizer[domain.Character],
	*mocks.MockPageSource[domain.Character],
	*mocks.MockCacheStore[domain.Character],
	*mocks.MockChangeNotifier,
) {
	t.Helper()

	source := mocks.NewMockPageSource(threePages()...)
	store := newCharacterStore()
	notifier := mocks.NewMockChangeNotifier()

	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain:   domain.DomainCharacter,
		Source:   source,
		Store:    store,
		Notifier: notifier,
		Now:      func() time.Time { return testNow },
	})
	return s, source, store, notifier
}

func assertKey(t *testing.T, key domain.RemoteKey, prev *int, current int, next *int) {
	t.Helper()
	assert.Equal(t, prev, key.PrevPage, "prev page of entity %d", key.EntityID)
	assert.Equal(t, current, key.CurrentPage, "current page of entity %d", key.EntityID)
	assert.Equal(t, next, key.NextPage, "next page of entity %d", key.EntityID)
}

func TestNewSynchronizer_Defaults(t *testing.T) {
	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain: domain.DomainCharacter,
		Source: mocks.NewMockPageSource[domain.Character](),
		Store:  newCharacterStore(),
	})

	if s.logger == nil {
		t.Error("expected non-nil logger")
	}
	if s.cacheTimeout != time.Hour {
		t.Errorf("expected default cache timeout of 1h, got %v", s.cacheTimeout)
	}
	if s.now == nil {
		t.Error("expected default clock")
	}
	if s.Domain() != domain.DomainCharacter {
		t.Errorf("expected character domain, got %s", s.Domain())
	}
}

func TestSynchronizer_Initialize(t *testing.T) {
	tests := []struct {
		name string
		age  *time.Duration
		want domain.InitializeAction
	}{
		{"no keys", nil, domain.LaunchInitialRefresh},
		{"fresh cache", durPtr(30 * time.Minute), domain.SkipInitialRefresh},
		{"just under timeout", durPtr(time.Hour - time.Millisecond), domain.SkipInitialRefresh},
		{"exactly at timeout", durPtr(time.Hour), domain.LaunchInitialRefresh},
		{"stale cache", durPtr(2 * time.Hour), domain.LaunchInitialRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, source, store, _ := createTestSynchronizer(t)
			if tt.age != nil {
				store.Seed(1, domain.RemoteKey{CurrentPage: 1, CreatedAt: testNow.Add(-*tt.age)}, character(1, "Rick Sanchez", "Alive"))
			}

			got, err := s.Initialize(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, source.Fetches(), "initialize must not touch the network")
		})
	}
}

func TestSynchronizer_RefreshFromEmpty(t *testing.T) {
	s, source, store, notifier := createTestSynchronizer(t)

	res, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)

	assert.False(t, res.EndOfPaginationReached)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, []int{1}, source.Fetches())

	keys := store.Keys()
	require.Len(t, keys, 2, "exactly one key per fetched entity")
	for _, id := range []int{1, 2} {
		key, ok := keys[id]
		require.True(t, ok, "missing key for entity %d", id)
		assertKey(t, key, nil, 1, domain.IntPtr(2))
		assert.Equal(t, testNow, key.CreatedAt)
		page, _ := store.PageOf(id)
		assert.Equal(t, 1, page)
	}

	events := notifier.Published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.DomainCharacter, events[0].Domain)
	assert.Equal(t, domain.LoadRefresh, events[0].LoadType)
	assert.Equal(t, 2, events[0].Count)
}

func TestSynchronizer_AppendKeyArithmetic(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	ctx := context.Background()

	_, err := s.Load(ctx, domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)

	res, err := s.Load(ctx, domain.LoadAppend, domain.PagingState{LastID: domain.IntPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page)
	assert.False(t, res.EndOfPaginationReached)

	keys := store.Keys()
	assertKey(t, keys[3], domain.IntPtr(1), 2, domain.IntPtr(3))
	assertKey(t, keys[4], domain.IntPtr(1), 2, domain.IntPtr(3))

	res, err = s.Load(ctx, domain.LoadAppend, domain.PagingState{LastID: domain.IntPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Page)

	keys = store.Keys()
	assertKey(t, keys[5], domain.IntPtr(2), 3, nil)
	assertKey(t, keys[6], domain.IntPtr(2), 3, nil)
	assert.Equal(t, 6, store.Len())
	assert.Equal(t, []int{1, 2, 3}, source.Fetches())
}

func TestSynchronizer_AppendPastLastPage(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	store.Seed(3, domain.RemoteKey{PrevPage: domain.IntPtr(2), CurrentPage: 3, CreatedAt: testNow}, character(6, "Abadango Cluster Princess", "unknown"))

	res, err := s.Load(context.Background(), domain.LoadAppend, domain.PagingState{LastID: domain.IntPtr(6)})
	require.NoError(t, err)
	assert.True(t, res.EndOfPaginationReached)
	assert.Empty(t, source.Fetches(), "no request once next page is nil")
}

func TestSynchronizer_PrependAtHead(t *testing.T) {
	s, source, store, notifier := createTestSynchronizer(t)
	store.Seed(1, domain.RemoteKey{CurrentPage: 1, NextPage: domain.IntPtr(2), CreatedAt: testNow}, character(1, "Rick Sanchez", "Alive"))

	res, err := s.Load(context.Background(), domain.LoadPrepend, domain.PagingState{FirstID: domain.IntPtr(1)})
	require.NoError(t, err)
	assert.True(t, res.EndOfPaginationReached)
	assert.Empty(t, source.Fetches(), "prepend at page 1 must not hit the network")
	assert.Empty(t, notifier.Published())
	assert.Equal(t, 0, store.ApplyCalls)
}

func TestSynchronizer_PrependFetchesPreviousPage(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	store.Seed(2, domain.RemoteKey{PrevPage: domain.IntPtr(1), CurrentPage: 2, NextPage: domain.IntPtr(3), CreatedAt: testNow},
		character(3, "Summer Smith", "Alive"), character(4, "Beth Smith", "Alive"))

	res, err := s.Load(context.Background(), domain.LoadPrepend, domain.PagingState{FirstID: domain.IntPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, []int{1}, source.Fetches())

	keys := store.Keys()
	assertKey(t, keys[1], nil, 1, domain.IntPtr(2))
	assert.Equal(t, 4, store.Len(), "prepend must not clear existing rows")
}

func TestSynchronizer_NoKeyNoFetch(t *testing.T) {
	for _, lt := range []domain.LoadType{domain.LoadPrepend, domain.LoadAppend} {
		t.Run(string(lt), func(t *testing.T) {
			s, source, _, _ := createTestSynchronizer(t)

			res, err := s.Load(context.Background(), lt, domain.PagingState{FirstID: domain.IntPtr(99), LastID: domain.IntPtr(99)})
			require.NoError(t, err)
			assert.False(t, res.EndOfPaginationReached)
			assert.Equal(t, 0, res.Page)
			assert.Empty(t, source.Fetches())

			res, err = s.Load(context.Background(), lt, domain.PagingState{})
			require.NoError(t, err)
			assert.False(t, res.EndOfPaginationReached)
			assert.Empty(t, source.Fetches())
		})
	}
}

func TestSynchronizer_RefreshIdempotent(t *testing.T) {
	s, _, store, _ := createTestSynchronizer(t)
	ctx := context.Background()

	_, err := s.Load(ctx, domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	first := store.Keys()
	firstRows, _ := store.Query(ctx, domain.Filter{}, 0, 100)

	_, err = s.Load(ctx, domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	second := store.Keys()
	secondRows, _ := store.Query(ctx, domain.Filter{}, 0, 100)

	assert.Equal(t, first, second)
	assert.Equal(t, firstRows, secondRows)
}

func TestSynchronizer_RefreshAtAnchor(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	ctx := context.Background()

	_, err := s.Load(ctx, domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	_, err = s.Load(ctx, domain.LoadAppend, domain.PagingState{LastID: domain.IntPtr(2)})
	require.NoError(t, err)

	res, err := s.Load(ctx, domain.LoadRefresh, domain.PagingState{AnchorID: domain.IntPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page, "refresh resumes at the anchor's page")
	assert.Equal(t, []int{1, 2, 2}, source.Fetches())

	keys := store.Keys()
	assert.Len(t, keys, 2, "refresh clears rows of other pages")
	assertKey(t, keys[3], domain.IntPtr(1), 2, domain.IntPtr(3))
}

func TestSynchronizer_RefreshAnchorOnLastPage(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	store.Seed(3, domain.RemoteKey{PrevPage: domain.IntPtr(2), CurrentPage: 3, CreatedAt: testNow}, character(5, "Jerry Smith", "Alive"))

	_, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{AnchorID: domain.IntPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, source.Fetches(), "no next page falls back to page 1")
}

func TestSynchronizer_ConnectivityErrorLeavesStore(t *testing.T) {
	s, source, store, notifier := createTestSynchronizer(t)
	ctx := context.Background()

	_, err := s.Load(ctx, domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	before := store.Keys()
	beforeRows, _ := store.Query(ctx, domain.Filter{}, 0, 100)
	applies := store.ApplyCalls

	source.Err = fmt.Errorf("dial tcp: %w", domain.ErrServiceUnavailable)
	res, err := s.Load(ctx, domain.LoadAppend, domain.PagingState{LastID: domain.IntPtr(2)})
	if err == nil {
		t.Fatal("expected error")
	}
	if res != nil {
		t.Error("expected nil result on error")
	}

	var le *domain.LoadError
	require.True(t, errors.As(err, &le))
	assert.True(t, le.Retryable())
	assert.Equal(t, domain.LoadAppend, le.LoadType)
	assert.Equal(t, 2, le.Page)
	assert.True(t, errors.Is(err, domain.ErrServiceUnavailable))

	afterRows, _ := store.Query(ctx, domain.Filter{}, 0, 100)
	assert.Equal(t, before, store.Keys())
	assert.Equal(t, beforeRows, afterRows)
	assert.Equal(t, applies, store.ApplyCalls)
	assert.Len(t, notifier.Published(), 1)
}

func TestSynchronizer_NotFoundEndsPagination(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	source.SetPages()

	res, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	assert.True(t, res.EndOfPaginationReached)
	assert.Equal(t, 0, store.ApplyCalls)
}

func TestSynchronizer_EmptyPageEndsPagination(t *testing.T) {
	s, source, store, _ := createTestSynchronizer(t)
	source.FetchPageFn = func(ctx context.Context, page int) (*domain.Page[domain.Character], error) {
		return &domain.Page[domain.Character]{}, nil
	}

	res, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	assert.True(t, res.EndOfPaginationReached)
	assert.Equal(t, 1, store.ApplyCalls, "empty refresh still clears the domain")
	assert.Equal(t, 0, store.Len())
}

func TestSynchronizer_ApplyFailure(t *testing.T) {
	s, _, store, notifier := createTestSynchronizer(t)
	store.ApplyPageErr = errors.New("disk full")

	_, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	var le *domain.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1, le.Page)
	assert.Empty(t, notifier.Published())
}

func TestSynchronizer_PublishFailureIsNotALoadFailure(t *testing.T) {
	s, _, store, notifier := createTestSynchronizer(t)
	notifier.PublishErr = errors.New("redis down")

	res, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, store.Len())
}

func TestSynchronizer_DistributedLock(t *testing.T) {
	source := mocks.NewMockPageSource(threePages()...)
	store := newCharacterStore()
	lock := mocks.NewMockDistributedLock()

	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain: domain.DomainCharacter,
		Source: source,
		Store:  store,
		Lock:   lock,
	})

	_, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"load:character"}, lock.Acquired())
	assert.Equal(t, []string{"load:character"}, lock.Released())
	assert.Equal(t, loadLockTTL, lock.TTL("load:character"))
	assert.False(t, lock.Held("load:character"))
}

func TestSynchronizer_DistributedLockError(t *testing.T) {
	source := mocks.NewMockPageSource(threePages()...)
	lock := mocks.NewMockDistributedLock()
	lock.AcquireFn = func(name string, ttl time.Duration) (bool, error) {
		return false, errors.New("connection refused")
	}

	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain: domain.DomainCharacter,
		Source: source,
		Store:  newCharacterStore(),
		Lock:   lock,
	})

	_, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	var le *domain.LoadError
	require.True(t, errors.As(err, &le))
	assert.Empty(t, source.Fetches())
}

func TestSynchronizer_DistributedLockWaitsForHolder(t *testing.T) {
	source := mocks.NewMockPageSource(threePages()...)
	lock := mocks.NewMockDistributedLock()
	lock.Hold("load:character")
	go func() {
		time.Sleep(3 * loadLockRetryWait / 2)
		lock.Free("load:character")
	}()

	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain: domain.DomainCharacter,
		Source: source,
		Store:  newCharacterStore(),
		Lock:   lock,
	})

	_, err := s.Load(context.Background(), domain.LoadRefresh, domain.PagingState{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lock.Attempts(), 2)
	assert.Equal(t, []int{1}, source.Fetches())
}

func TestSynchronizer_CancelledWhileWaitingForLock(t *testing.T) {
	lock := mocks.NewMockDistributedLock()
	lock.Hold("load:character")
	s := NewSynchronizer(SynchronizerConfig[domain.Character]{
		Domain: domain.DomainCharacter,
		Source: mocks.NewMockPageSource(threePages()...),
		Store:  newCharacterStore(),
		Lock:   lock,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Load(ctx, domain.LoadRefresh, domain.PagingState{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func durPtr(d time.Duration) *time.Duration {
	return &d
}
