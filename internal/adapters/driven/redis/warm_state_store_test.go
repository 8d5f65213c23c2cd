package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

func TestWarmStateStore_SaveAndGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewWarmStateStore(client, 0)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	state := &domain.WarmState{
		Domain:     domain.DomainEpisode,
		Status:     domain.WarmStatusCompleted,
		LastWarmAt: &at,
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("unexpected error saving warm state: %v", err)
	}

	got, err := store.Get(ctx, domain.DomainEpisode)
	if err != nil {
		t.Fatalf("failed to retrieve warm state: %v", err)
	}
	if got.Status != domain.WarmStatusCompleted {
		t.Errorf("expected status %s, got %s", domain.WarmStatusCompleted, got.Status)
	}
	if got.LastWarmAt == nil || !got.LastWarmAt.Equal(at) {
		t.Errorf("expected last warm %v, got %v", at, got.LastWarmAt)
	}
	if ttl := mr.TTL(warmStatePrefix + "episode"); ttl != DefaultWarmStateTTL {
		t.Errorf("expected TTL %v, got %v", DefaultWarmStateTTL, ttl)
	}
}

func TestWarmStateStore_GetMissing(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewWarmStateStore(client, time.Hour)

	_, err := store.Get(context.Background(), domain.DomainLocation)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWarmStateStore_SaveRejectsUnknownDomain(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewWarmStateStore(client, time.Hour)

	err := store.Save(context.Background(), &domain.WarmState{Domain: "planet"})
	if !errors.Is(err, domain.ErrUnknownDomain) {
		t.Errorf("expected ErrUnknownDomain, got %v", err)
	}
	if err := store.Save(context.Background(), nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWarmStateStore_ListPrunesExpired(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewWarmStateStore(client, time.Hour)
	ctx := context.Background()

	for _, d := range []domain.Domain{domain.DomainLocation, domain.DomainCharacter} {
		if err := store.Save(ctx, &domain.WarmState{Domain: d, Status: domain.WarmStatusIdle}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	states, err := store.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(states) != 2 || states[0].Domain != domain.DomainCharacter {
		t.Fatalf("expected 2 states ordered by domain, got %+v", states)
	}

	mr.Del(warmStatePrefix + "location")
	states, err = store.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if ok, _ := mr.SIsMember(warmIndexKey, "location"); ok {
		t.Error("expected expired domain to be pruned from the index")
	}
}
