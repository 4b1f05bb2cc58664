package runtime

import (
	"afterglow/component"
	"afterglow/host/headless"
	"afterglow/observability"
	"afterglow/view"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type counterState struct {
	name    string
	value   int
	journal *journal
}

func (c *counterState) Destroyed(*component.Scope[counterState]) {
	c.journal.add(c.name + ":destroyed")
}

type bump struct{}

func (bump) Update(target *counterState, _ component.Sender[counterState], _ component.RenderRequester) bool {
	target.value++
	return true
}

var counterView = component.RenderFunc[counterState](func(s *counterState, _ *view.Context, sender component.Sender[counterState]) view.Node {
	return view.El("div", view.ID(s.name),
		view.El("button", view.ID("inc"), view.On("click", component.Send[counterState](sender, bump{})), view.Text("+")),
		view.El("span", view.ID("value"), view.Text(fmt.Sprintf("%d", s.value))),
	)
})

func counterRoute(name string, j *journal) Routable {
	return Route(func(component.RenderRequester) counterState {
		j.add(name + ":init")
		return counterState{name: name, journal: j}
	}, counterView)
}

type fixture struct {
	stage   Stage
	host    *headless.Host
	history *headless.History
	engine  *headless.Engine
	monitor *observability.Monitor
}

func newLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func newFixture(t *testing.T) fixture {
	log := newLogger()
	history, err := headless.NewHistory(context.Background(), log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })
	host := headless.NewHost(log, history)
	engine := headless.NewEngine(log)
	monitor := observability.NewMonitor(log, time.Second)
	return fixture{
		stage:   Stage{Log: log, Host: host, Engine: engine, Monitor: monitor},
		host:    host,
		history: history,
		engine:  engine,
		monitor: monitor,
	}
}

func (f fixture) element(t *testing.T, id string) *headless.Element {
	el, ok := f.host.Element(id)
	require.True(t, ok, "element %q should exist", id)
	return el
}

func eventuallyText(t *testing.T, el *headless.Element, want string) {
	require.Eventually(t, func() bool { return el.Text() == want }, 2*time.Second, 2*time.Millisecond,
		"element %q never showed %q", el.ID(), want)
}

func eject(t *testing.T, e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Eject(ctx))
}
