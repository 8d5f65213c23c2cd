package domain

import (
	"fmt"
	"time"
)

// DefaultCacheTimeout is the maximum age of the newest remote key before a cold
// subscription forces a network refresh.
const DefaultCacheTimeout = time.Hour

// LoadType is the direction a pager asks the synchronizer to load in.
type LoadType string

const (
	LoadRefresh LoadType = "refresh"
	LoadPrepend LoadType = "prepend"
	LoadAppend  LoadType = "append"
)

// InitializeAction is the synchronizer's answer to a new subscription.
type InitializeAction string

const (
	SkipInitialRefresh   InitializeAction = "skip_initial_refresh"
	LaunchInitialRefresh InitializeAction = "launch_initial_refresh"
)

// RemoteKey records a fetched entity's page-cursor neighbours.
// A nil PrevPage/NextPage means there is no such page.
type RemoteKey struct {
	EntityID    int       `json:"entity_id"`
	PrevPage    *int      `json:"prev_page"`
	CurrentPage int       `json:"current_page"`
	NextPage    *int      `json:"next_page"`
	CreatedAt   time.Time `json:"created_at"`
}

// PageInfo is the pagination metadata of a list response.
type PageInfo struct {
	Count int     `json:"count"`
	Pages int     `json:"pages"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
}

// Page is one page of entities from the remote API.
type Page[T Entity] struct {
	Info    PageInfo `json:"info"`
	Results []T      `json:"results"`
}

// PageBatch is everything a single load writes to the cache. Stores apply it
// atomically: either all of it becomes visible or none of it does.
type PageBatch[T Entity] struct {
	Page     int
	Clear    bool // drop every entity, relation and key of the domain first
	Keys     []RemoteKey
	Entities []T
}

// PagingState is the pager's view handed to Load. IDs are nil when the pager
// holds no item at that position.
type PagingState struct {
	AnchorID *int // item closest to the current read position
	FirstID  *int // first loaded item
	LastID   *int // last loaded item
}

// LoadResult is a successful load outcome.
type LoadResult struct {
	EndOfPaginationReached bool `json:"end_of_pagination_reached"`
	// Page is the remote page fetched, or zero when no request was issued.
	Page    int `json:"page,omitempty"`
	Fetched int `json:"fetched"`
}

// LoadError is a retryable failure of a load. The cache is untouched when
// one is returned.
type LoadError struct {
	Domain   Domain
	LoadType LoadType
	Page     int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %s page %d: %v", e.Domain, e.LoadType, e.Page, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Retryable reports whether the pager may retry the load.
func (e *LoadError) Retryable() bool { return true }

// LoadState is what a consumer sees about the pager's network activity.
type LoadState struct {
	Refresh   LoadStatus `json:"refresh"`
	Prepend   LoadStatus `json:"prepend"`
	Append    LoadStatus `json:"append"`
	Error     string     `json:"error,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
}

// LoadStatus is the state of one load direction.
type LoadStatus string

const (
	LoadStatusIdle     LoadStatus = "not_loading"
	LoadStatusComplete LoadStatus = "end_of_pagination"
	LoadStatusError    LoadStatus = "error"
)

// Window is a slice of the cached, filtered, ordered entity list.
type Window[T Entity] struct {
	Domain Domain    `json:"domain"`
	Filter Filter    `json:"filter"`
	Offset int       `json:"offset"`
	Limit  int       `json:"limit"`
	Total  int       `json:"total_cached"`
	Items  []T       `json:"items"`
	State  LoadState `json:"load_state"`
}

// PagingConfig controls how far ahead a pager fetches.
type PagingConfig struct {
	PageSize            int
	PrefetchDistance    int
	MaxFetchesPerWindow int
}

// DefaultPagingConfig mirrors the remote API's fixed page size of 20.
func DefaultPagingConfig() PagingConfig {
	return PagingConfig{
		PageSize:            20,
		PrefetchDistance:    20,
		MaxFetchesPerWindow: 64,
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
