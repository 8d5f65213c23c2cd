package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.WarmStateStore = (*WarmStateStore)(nil)

const (
	warmStatePrefix = "rmsync:warm:"
	warmIndexKey    = "rmsync:warm:domains"

	// DefaultWarmStateTTL keeps a state around well past any sane warm interval.
	DefaultWarmStateTTL = 7 * 24 * time.Hour
)

// WarmStateStore implements driven.WarmStateStore with one JSON value per
// domain plus a set indexing the stored domains.
type WarmStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWarmStateStore creates a Redis-backed WarmStateStore. A zero ttl uses
// DefaultWarmStateTTL.
func NewWarmStateStore(client *redis.Client, ttl time.Duration) *WarmStateStore {
	if ttl <= 0 {
		ttl = DefaultWarmStateTTL
	}
	return &WarmStateStore{client: client, ttl: ttl}
}

// Save stores the state and indexes its domain in one pipeline
func (s *WarmStateStore) Save(ctx context.Context, state *domain.WarmState) error {
	if state == nil {
		return fmt.Errorf("%w: nil warm state", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseDomain(string(state.Domain)); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal warm state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, warmStatePrefix+string(state.Domain), data, s.ttl)
	pipe.SAdd(ctx, warmIndexKey, string(state.Domain))
	pipe.Expire(ctx, warmIndexKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save warm state: %w", err)
	}
	return nil
}

// Get retrieves the state of one domain
func (s *WarmStateStore) Get(ctx context.Context, d domain.Domain) (*domain.WarmState, error) {
	data, err := s.client.Get(ctx, warmStatePrefix+string(d)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get warm state: %w", err)
	}

	var state domain.WarmState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warm state: %w", err)
	}
	return &state, nil
}

// List returns stored states ordered by domain. Index entries whose value
// expired are pruned.
func (s *WarmStateStore) List(ctx context.Context) ([]*domain.WarmState, error) {
	members, err := s.client.SMembers(ctx, warmIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list warm states: %w", err)
	}
	slices.Sort(members)

	var states []*domain.WarmState
	var expired []any
	for _, m := range members {
		state, err := s.Get(ctx, domain.Domain(m))
		if errors.Is(err, domain.ErrNotFound) {
			expired = append(expired, m)
			continue
		}
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	if len(expired) > 0 {
		s.client.SRem(ctx, warmIndexKey, expired...)
	}
	return states, nil
}
