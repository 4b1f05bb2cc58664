package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sleep pauses for d, or less if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type interval struct {
	every time.Duration
}

// Interval is a Source emitting the current time every d. Each subscription owns
// its own ticker which stops when the subscription is closed.
func Interval(d time.Duration) Source[time.Time] {
	return interval{every: d}
}

func (i interval) Subscribe() *Subscription[time.Time] {
	em := NewEmitter[time.Time]()
	sub := em.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	stop := sub.stop
	sub.stop = func(id uuid.UUID) {
		once.Do(cancel)
		stop(id)
	}
	go func() {
		ticker := time.NewTicker(i.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				em.Emit(now)
			}
		}
	}()
	return sub
}
