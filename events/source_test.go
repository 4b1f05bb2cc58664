package events

import (
	"afterglow/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitter_DeliversInOrderToEverySubscriber(t *testing.T) {
	req := require.New(t)
	em := NewEmitter[int]()
	a := em.Subscribe()
	b := em.Subscribe()

	for i := 1; i <= 3; i++ {
		req.Equal(2, em.Emit(i))
	}

	ctx := context.Background()
	for _, sub := range []*Subscription[int]{a, b} {
		for i := 1; i <= 3; i++ {
			v, err := sub.Recv(ctx)
			req.NoError(err)
			req.Equal(i, v)
		}
	}
}

func TestEmitter_ClosedSubscriptionIsForgotten(t *testing.T) {
	req := require.New(t)
	em := NewEmitter[string]()
	sub := em.Subscribe()
	req.Equal(1, em.Subscribers())

	req.NoError(sub.Close())
	req.NoError(sub.Close())

	req.Equal(0, em.Subscribers())
	req.Equal(0, em.Emit("lost"))
	_, err := sub.Recv(context.Background())
	req.ErrorIs(err, errors.ErrChannelClosed)
}

func TestEmitter_CloseEndsSubscriptions(t *testing.T) {
	req := require.New(t)
	em := NewEmitter[string]()
	sub := em.Subscribe()

	req.NoError(em.Close())

	_, err := sub.Recv(context.Background())
	req.ErrorIs(err, errors.ErrChannelClosed)
	late := em.Subscribe()
	_, err = late.Recv(context.Background())
	req.ErrorIs(err, errors.ErrChannelClosed)
}

func TestInterval_TicksUntilClosed(t *testing.T) {
	req := require.New(t)
	sub := Interval(5 * time.Millisecond).Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sub.Recv(ctx)
	req.NoError(err)
	second, err := sub.Recv(ctx)
	req.NoError(err)
	req.True(second.After(first))

	req.NoError(sub.Close())
	_, err = sub.Recv(ctx)
	req.ErrorIs(err, errors.ErrChannelClosed)
}

func TestSleep(t *testing.T) {
	req := require.New(t)
	start := time.Now()
	req.NoError(Sleep(context.Background(), 10*time.Millisecond))
	req.GreaterOrEqual(time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.ErrorIs(Sleep(ctx, time.Hour), context.Canceled)
}
