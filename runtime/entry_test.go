package runtime

import (
	"afterglow/component"
	"afterglow/errors"
	"afterglow/mocks"
	"afterglow/view"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func mountCounter(t *testing.T, f fixture, name string, j *journal) *Entry {
	e, err := InitApp(f.stage, name, func(component.RenderRequester) counterState {
		return counterState{name: name, journal: j}
	}, counterView)
	require.NoError(t, err)
	return e
}

func TestEntry_InitialRender(t *testing.T) {
	f := newFixture(t)
	e := mountCounter(t, f, "app", &journal{})
	defer eject(t, e)

	eventuallyText(t, f.element(t, "app"), "+0")
}

func TestEntry_CoalescesRenderBursts(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.engine.SetDelay(20 * time.Millisecond)
	e := mountCounter(t, f, "app", &journal{})
	defer eject(t, e)
	el := f.element(t, "app")
	eventuallyText(t, el, "+0")
	before := f.engine.Passes()

	inc, ok := el.Tree().Find("inc")
	req.True(ok)
	click := inc.Handlers["click"]

	// When 200 updates each asking for a render arrive in a burst
	for i := 0; i < 200; i++ {
		click(view.Event{Type: "click"})
	}

	// Then the last state is shown after far fewer passes than requests
	eventuallyText(t, el, "+200")
	passes := f.engine.Passes() - before
	req.GreaterOrEqual(passes, int64(1))
	req.Less(passes, int64(50))
	req.Zero(f.engine.Overlaps())

	stats := f.monitor.GetLatest()
	req.Greater(stats.RenderRequests, stats.RenderPasses)
}

func TestEntry_RequestCompletesAfterPass(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	e := mountCounter(t, f, "app", &journal{})
	defer eject(t, e)

	var rendered atomic.Int64
	f.engine.OnRender(func(string, view.Node) { rendered.Add(1) })
	done := e.RequestRender()

	select {
	case <-done:
		req.GreaterOrEqual(rendered.Load(), int64(1))
	case <-time.After(2 * time.Second):
		req.Fail("render request should complete after a pass")
	}
}

func TestEntry_EjectTearsDownBeforeAck(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	j := &journal{}
	e := mountCounter(t, f, "app", j)
	el := f.element(t, "app")
	eventuallyText(t, el, "+0")

	// When ejecting
	eject(t, e)

	// Then the tree is gone by the time the ack came back
	req.Equal([]string{"app:destroyed"}, j.list())
	req.False(el.Mounted())
	select {
	case <-e.Done():
	default:
		req.Fail("entry should be done once eject is acknowledged")
	}
	req.NoError(e.Err())

	// And no pass runs afterwards
	passes := f.engine.Passes()
	<-e.RequestRender()
	time.Sleep(20 * time.Millisecond)
	req.Equal(passes, f.engine.Passes())

	// Ejecting again returns straight away
	eject(t, e)
	req.Equal([]string{"app:destroyed"}, j.list())
}

func TestEntry_RenderFailureStopsEntry(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	j := &journal{}
	e := mountCounter(t, f, "app", j)
	el := f.element(t, "app")
	eventuallyText(t, el, "+0")

	f.engine.FailNext(fmt.Errorf("patch refused"))
	<-e.RequestRender()

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		req.Fail("entry should stop after a failed pass")
	}
	req.ErrorIs(e.Err(), errors.ErrRenderFailed)
	req.Equal([]string{"app:destroyed"}, j.list())
	req.Equal(uint64(1), f.monitor.GetLatest().RenderFailures)
	eject(t, e)
}

type renderedProbe struct {
	el    func() int
	calls chan int
}

func (p *renderedProbe) Rendered(*component.Scope[renderedProbe]) {
	p.calls <- p.el()
}

func TestEntry_RenderedHookRunsAfterPatch(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	el := f.host.AddElement("probe")
	calls := make(chan int, 16)

	e, err := InitApp(f.stage, "probe", func(component.RenderRequester) renderedProbe {
		return renderedProbe{el: el.Renders, calls: calls}
	}, component.RenderFunc[renderedProbe](func(*renderedProbe, *view.Context, component.Sender[renderedProbe]) view.Node {
		return view.El("p", view.Text("probe"))
	}))
	req.NoError(err)
	defer eject(t, e)

	select {
	case renders := <-calls:
		req.GreaterOrEqual(renders, 1)
	case <-time.After(2 * time.Second):
		req.Fail("rendered hook should run")
	}
}

func TestMount_EngineFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)
	engine := mocks.NewMockEngine(ctrl)
	mp := mocks.NewMockMountPoint(ctrl)
	j := &journal{}

	// Given an engine refusing the mount point
	engine.EXPECT().Mount(mp, gomock.Any()).Return(nil, fmt.Errorf("detached node"))
	stage := f.stage
	stage.Engine = engine

	_, err := Mount(stage, mp, func(component.RenderRequester) counterState {
		return counterState{name: "x", journal: j}
	}, counterView)

	// Then nothing stays alive
	req.ErrorIs(err, errors.ErrMountPoint)
	req.Equal([]string{"x:destroyed"}, j.list())
}

func TestEntry_HandleIsUnmountedOnEject(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)
	engine := mocks.NewMockEngine(ctrl)
	handle := mocks.NewMockHandle(ctrl)
	mp := mocks.NewMockMountPoint(ctrl)

	rendered := make(chan struct{}, 16)
	mp.EXPECT().ID().Return("mock").AnyTimes()
	engine.EXPECT().Mount(mp, gomock.Any()).Return(handle, nil)
	handle.EXPECT().Render(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		rendered <- struct{}{}
		return nil
	}).MinTimes(1)
	handle.EXPECT().Unmount().Return(nil).Times(1)

	stage := f.stage
	stage.Engine = engine
	e, err := Mount(stage, mp, func(component.RenderRequester) counterState {
		return counterState{name: "m", journal: &journal{}}
	}, counterView)
	req.NoError(err)

	<-rendered
	eject(t, e)
}
