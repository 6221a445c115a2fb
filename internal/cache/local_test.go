package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/jason-s-yu/velada/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusFanOut(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sessionID := uuid.New()
	a, err := bus.Subscribe(ctx, sessionID)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, sessionID)
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, bus.Subscribers(sessionID))

	require.NoError(t, bus.Publish(ctx, realtime.KindStatusChanged, sessionID, realtime.StatusPayload{Status: models.StatusInProgress}))

	for _, sub := range []Subscription{a, b} {
		data, err := sub.Next(ctx)
		require.NoError(t, err)
		ev, err := realtime.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, ev.Status)
	}

	short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	_, err = other.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalSubscriptionClose(t *testing.T) {
	bus := NewLocalBus()
	sessionID := uuid.New()
	sub, err := bus.Subscribe(context.Background(), sessionID)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Zero(t, bus.Subscribers(sessionID))

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	// publishing to a session without subscribers is fine
	assert.NoError(t, bus.Publish(context.Background(), realtime.KindPing, sessionID, nil))
}

func TestLocalBusClosesLaggingSubscriber(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()
	sessionID := uuid.New()

	slow, err := bus.Subscribe(ctx, sessionID)
	require.NoError(t, err)
	live, err := bus.Subscribe(ctx, sessionID)
	require.NoError(t, err)
	defer live.Close()

	for i := 0; i < localBuffer; i++ {
		require.NoError(t, bus.Publish(ctx, realtime.KindPing, sessionID, nil))
		_, err := live.Next(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, bus.Subscribers(sessionID))

	// one more than the backlog holds
	require.NoError(t, bus.Publish(ctx, realtime.KindPing, sessionID, nil))
	assert.Equal(t, 1, bus.Subscribers(sessionID))

	_, err = slow.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	require.NoError(t, slow.Close())

	data, err := live.Next(ctx)
	require.NoError(t, err)
	ev, err := realtime.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, realtime.KindPing, ev.Kind)
}
