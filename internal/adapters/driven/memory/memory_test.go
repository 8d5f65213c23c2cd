package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

func TestNotifier_FansOutPerDomain(t *testing.T) {
	n := NewNotifier()
	ctx := context.Background()

	a, err := n.Subscribe(ctx, domain.DomainCharacter)
	require.NoError(t, err)
	b, err := n.Subscribe(ctx, domain.DomainCharacter)
	require.NoError(t, err)
	other, err := n.Subscribe(ctx, domain.DomainEpisode)
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, domain.ChangeEvent{Domain: domain.DomainCharacter, LoadType: domain.LoadRefresh, Page: 1}))

	for _, sub := range []driven.Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, domain.LoadRefresh, ev.LoadType)
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}
	}
	assert.Empty(t, other.Events())
}

func TestNotifier_SlowSubscriberDoesNotBlock(t *testing.T) {
	n := NewNotifier()
	ctx := context.Background()

	sub, err := n.Subscribe(ctx, domain.DomainLocation)
	require.NoError(t, err)

	for i := 0; i < subscriptionBuffer*3; i++ {
		require.NoError(t, n.Publish(ctx, domain.ChangeEvent{Domain: domain.DomainLocation, Page: i}))
	}
	assert.Len(t, sub.Events(), subscriptionBuffer)
}

func TestNotifier_Close(t *testing.T) {
	n := NewNotifier()
	ctx := context.Background()

	sub, err := n.Subscribe(ctx, domain.DomainCharacter)
	require.NoError(t, err)
	assert.Equal(t, 1, n.Subscribers(domain.DomainCharacter))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, n.Subscribers(domain.DomainCharacter))
	_, open := <-sub.Events()
	assert.False(t, open)

	sub, err = n.Subscribe(ctx, domain.DomainCharacter)
	require.NoError(t, err)
	require.NoError(t, n.Close())
	_, open = <-sub.Events()
	assert.False(t, open)
	require.NoError(t, sub.Close())

	_, err = n.Subscribe(ctx, domain.DomainCharacter)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, n.Publish(ctx, domain.ChangeEvent{Domain: domain.DomainCharacter}))
}

func TestWarmStateStore(t *testing.T) {
	s := NewWarmStateStore()
	ctx := context.Background()

	_, err := s.Get(ctx, domain.DomainCharacter)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.Save(ctx, &domain.WarmState{Domain: "planet"}), domain.ErrUnknownDomain)

	require.NoError(t, s.Save(ctx, &domain.WarmState{Domain: domain.DomainLocation, Status: domain.WarmStatusRunning}))
	require.NoError(t, s.Save(ctx, &domain.WarmState{Domain: domain.DomainCharacter, Status: domain.WarmStatusFailed, Error: "boom"}))

	got, err := s.Get(ctx, domain.DomainCharacter)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.Error)
	got.Error = "mutated"

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.DomainCharacter, all[0].Domain)
	assert.Equal(t, "boom", all[0].Error)
	assert.Equal(t, domain.DomainLocation, all[1].Domain)
}
