package runtime

import (
	"afterglow/component"
	"afterglow/errors"
	"afterglow/view"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type inbox struct {
	got  []int
	gate chan struct{}
}

type received int

func (r received) Update(target *inbox, _ component.Sender[inbox], _ component.RenderRequester) bool {
	if target.gate != nil && int(r) == 1 {
		<-target.gate
	}
	target.got = append(target.got, int(r))
	return true
}

type nopRender struct{}

func (nopRender) RequestRender() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func newInbox(t *testing.T, gate chan struct{}) *component.Container[inbox] {
	c := component.New(newLogger(), inbox{gate: gate}, component.Renderer[inbox](nil), nopRender{})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func gotValues(c *component.Container[inbox]) []int {
	var out []int
	c.Read(func(s *inbox) { out = append(out, s.got...) })
	return out
}

func asMessage(v int) component.Message[inbox] {
	return received(v)
}

func TestBus_EverySubscriberSeesPublishOrder(t *testing.T) {
	req := require.New(t)
	bus := NewBus[int](newLogger(), nil)
	defer bus.Close()
	a, b := newInbox(t, nil), newInbox(t, nil)
	Register(bus, a.Sender(), asMessage)
	Register(bus, b.Sender(), asMessage)

	for i := 1; i <= 50; i++ {
		req.NoError(bus.Publish(i))
	}
	req.NoError(bus.Broadcast(context.Background(), 51))

	want := make([]int, 0, 51)
	for i := 1; i <= 51; i++ {
		want = append(want, i)
	}
	req.Equal(want, gotValues(a))
	req.Equal(want, gotValues(b))

	stats := bus.Stats()
	req.Equal(2, stats.Subscribers)
	req.Equal(uint64(51), stats.Broadcasted)
	req.Equal(uint64(102), stats.Delivered)
}

func TestBus_NextPublicationWaitsForEveryAck(t *testing.T) {
	req := require.New(t)
	bus := NewBus[int](newLogger(), nil)
	defer bus.Close()
	gate := make(chan struct{})
	slow, fast := newInbox(t, gate), newInbox(t, nil)
	Register(bus, slow.Sender(), asMessage)
	Register(bus, fast.Sender(), asMessage)

	// Given the slow subscriber stuck on the first publication
	req.NoError(bus.Publish(1))
	req.NoError(bus.Publish(2))
	req.Eventually(func() bool { return len(gotValues(fast)) == 1 }, time.Second, 2*time.Millisecond)

	// Then the fast one does not get ahead
	time.Sleep(30 * time.Millisecond)
	req.Equal([]int{1}, gotValues(fast))

	close(gate)
	req.NoError(bus.Broadcast(context.Background(), 3))
	req.Equal([]int{1, 2, 3}, gotValues(slow))
	req.Equal([]int{1, 2, 3}, gotValues(fast))
}

func TestBus_NilTranslationOptsOut(t *testing.T) {
	req := require.New(t)
	bus := NewBus[int](newLogger(), nil)
	defer bus.Close()
	evens := newInbox(t, nil)
	Register(bus, evens.Sender(), func(v int) component.Message[inbox] {
		if v%2 != 0 {
			return nil
		}
		return received(v)
	})

	for i := 1; i <= 4; i++ {
		req.NoError(bus.Broadcast(context.Background(), i))
	}

	req.Equal([]int{2, 4}, gotValues(evens))
	req.Equal(uint64(2), bus.Stats().Skipped)
}

func TestBus_GoneSubscriberStillAcknowledges(t *testing.T) {
	req := require.New(t)
	bus := NewBus[int](newLogger(), nil)
	defer bus.Close()
	gone, alive := newInbox(t, nil), newInbox(t, nil)
	Register(bus, gone.Sender(), asMessage)
	Register(bus, alive.Sender(), asMessage)
	req.NoError(gone.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req.NoError(bus.Broadcast(ctx, 7))

	req.Equal([]int{7}, gotValues(alive))
	stats := bus.Stats()
	req.Equal(uint64(1), stats.Dangling)
	req.Equal(2, stats.Subscribers)
}

type ping int

func (p ping) Into() component.Message[inbox] {
	return received(int(p) * 10)
}

func TestRegisterInto(t *testing.T) {
	req := require.New(t)
	bus := NewBus[ping](newLogger(), nil)
	defer bus.Close()
	c := newInbox(t, nil)
	RegisterInto(bus, c.Sender())

	req.NoError(bus.Broadcast(context.Background(), ping(4)))

	req.Equal([]int{40}, gotValues(c))
}

func TestBus_CloseReleasesBroadcasters(t *testing.T) {
	req := require.New(t)
	bus := NewBus[int](newLogger(), nil)
	gate := make(chan struct{})
	defer close(gate)
	stuck := newInbox(t, gate)
	Register(bus, stuck.Sender(), asMessage)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = bus.Broadcast(context.Background(), 1)
	}()
	time.Sleep(20 * time.Millisecond)

	req.NoError(bus.Close())
	wg.Wait()
	req.ErrorIs(bus.Publish(2), errors.ErrBusClosed)
}

// Two siblings linked by a bus: a value written in one shows up in the other.
type sibling struct {
	name  string
	value string
	bus   *Bus[string]
}

type typed string

func (t typed) Update(target *sibling, _ component.Sender[sibling], _ component.RenderRequester) bool {
	target.value = string(t)
	_ = target.bus.Publish(target.name + ":" + string(t))
	return true
}

type notified string

func (n notified) Update(target *sibling, _ component.Sender[sibling], _ component.RenderRequester) bool {
	target.value = string(n)
	return true
}

func TestBus_SiblingsStayInSync(t *testing.T) {
	req := require.New(t)
	bus := NewBus[string](newLogger(), nil)
	defer bus.Close()
	siblingView := component.RenderFunc[sibling](func(s *sibling, _ *view.Context, _ component.Sender[sibling]) view.Node {
		return view.Text(s.value)
	})
	left := component.New(newLogger(), sibling{name: "left", bus: bus}, siblingView, nopRender{})
	right := component.New(newLogger(), sibling{name: "right", bus: bus}, siblingView, nopRender{})
	defer left.Close()
	defer right.Close()
	Register(bus, right.Sender(), func(msg string) component.Message[sibling] {
		if len(msg) > 5 && msg[:5] == "left:" {
			return notified(msg[5:])
		}
		return nil
	})

	req.NoError(left.Sender().Dispatch(context.Background(), typed("hello")))
	req.NoError(bus.Broadcast(context.Background(), "sync"))

	req.Equal("hello", right.Render(view.NewContext()).TextContent())
}
