package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func hypeEvent(postID uint64) *PoolEvent {
	return &PoolEvent{
		BaseEvent: BaseEvent{EventType: Hype, EventTime: time.Now()},
		PostID:    postID,
	}
}

func TestPublishSync_DeliversToSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	var got []uint64
	sub := bus.SubscribeFunc(Hype, func(_ context.Context, e Event) error {
		got = append(got, e.(*PoolEvent).PostID)
		return nil
	})

	require.NoError(t, bus.PublishSync(context.Background(), hypeEvent(1)))
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), hypeEvent(2)))

	assert.Equal(t, []uint64{1}, got)
}

func TestPublishSync_JoinsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	boom := errors.New("boom")
	bus.SubscribeFunc(Hype, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), hypeEvent(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), bus.Stats()["handler_failures"])
}

func TestPublish_AsyncAndShutdownDrains(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var mu sync.Mutex
	var got []EventType
	bus.SubscribeMany(HandlerFunc(func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type())
		return nil
	}), Hype, Unhype)

	require.NoError(t, bus.Publish(hypeEvent(1)))
	require.NoError(t, bus.Publish(&PoolEvent{BaseEvent: BaseEvent{EventType: Unhype}}))

	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(hypeEvent(3)), ErrBusClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{Hype, Unhype}, got)
}

func TestShutdown_DrainsWithLiveContext(t *testing.T) {
	for round := 0; round < 50; round++ {
		bus := NewBus(zaptest.NewLogger(t), 256)

		var mu sync.Mutex
		delivered, cancelled := 0, 0
		bus.SubscribeFunc(Hype, func(ctx context.Context, _ Event) error {
			mu.Lock()
			defer mu.Unlock()
			delivered++
			if ctx.Err() != nil {
				cancelled++
				return ctx.Err()
			}
			return nil
		})

		for i := 0; i < 100; i++ {
			require.NoError(t, bus.Publish(hypeEvent(uint64(i))))
		}
		require.NoError(t, bus.Shutdown(context.Background()))

		mu.Lock()
		assert.Equal(t, 100, delivered, "round %d", round)
		assert.Zero(t, cancelled, "round %d", round)
		mu.Unlock()
	}
}
