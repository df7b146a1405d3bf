package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishStateChanged(t *testing.T) {
	bus := NewBus(nil)

	var received *StateChanged
	err := bus.Subscribe(TypeStateChanged, TypedHandler(func(ctx context.Context, e *StateChanged) error {
		received = e
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), NewStateChanged("s-1", "wgdark0", "idle", "joining")))

	require.NotNil(t, received)
	assert.Equal(t, "s-1", received.SessionID)
	assert.Equal(t, "joining", received.To)
	assert.NotEmpty(t, received.ID())
	assert.WithinDuration(t, time.Now(), received.Timestamp(), time.Second)
}

func TestBus_OnlyMatchingType(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	require.NoError(t, bus.Subscribe(TypePeersMerged, func(ctx context.Context, e Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), NewPollFailed("wgdark0", errors.New("x"))))
	require.NoError(t, bus.Publish(context.Background(), NewPeersMerged("wgdark0", 10)))

	assert.Equal(t, 1, calls)
}

func TestBus_TypedHandlerMismatch(t *testing.T) {
	bus := NewBus(nil)
	require.NoError(t, bus.Subscribe(TypePeersMerged, TypedHandler(func(ctx context.Context, e *StateChanged) error {
		return nil
	})))

	err := bus.Publish(context.Background(), NewPeersMerged("wgdark0", 1))
	assert.Error(t, err)
}

func TestBus_NilAndClosed(t *testing.T) {
	var nilBus *Bus
	assert.NoError(t, nilBus.Publish(context.Background(), NewPeersMerged("x", 1)))
	assert.NoError(t, nilBus.Subscribe(TypePeersMerged, nil))

	bus := NewBus(nil)
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), NewPeersMerged("x", 1)))
	assert.Error(t, bus.Subscribe(TypePeersMerged, func(context.Context, Event) error { return nil }))
}
