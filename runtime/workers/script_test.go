package workers

import (
	"afterglow/examples/counter"
	"afterglow/host/headless"
	"afterglow/observability"
	"afterglow/repositories"
	"afterglow/runtime"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestScriptWorker_DrivesCounterRoutes(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromString("ERROR")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Given a headless application with two counter routes
	history, err := headless.NewHistory(ctx, log, repositories.NewMemoryHistory())
	req.NoError(err)
	host := headless.NewHost(log, history)
	monitor := observability.NewMonitor(log, time.Second)
	stage := runtime.Stage{Log: log, Host: host, Engine: headless.NewEngine(log), Monitor: monitor}
	router := runtime.NewRouter(stage, "app").
		At("a", runtime.Route(counter.Init("a"), counter.View)).
		At("b", runtime.Route(counter.Init("b"), counter.View))
	go func() { _ = router.Run(ctx) }()

	script := strings.Join([]string{
		"# counter walk",
		"go a",
		"expect 0+-reset",
		"click add",
		"click add",
		"expect 2+-reset",
		"go b",
		"expect 0+-reset",
		"click add",
		"expect 1+-reset",
		"routes",
		"history",
		"back",
		"expect 0+-reset",
		"stats",
		"expect never shown",
		"bogus",
		"quit",
		"go b",
	}, "\n")
	out := &syncBuffer{}
	finished := make(chan struct{})
	worker := NewScriptWorker(log, strings.NewReader(script), out, router, host, history, monitor, "app").
		WithSettle(200 * time.Millisecond).
		OnFinish(func() { close(finished) })

	// When the script runs to its quit command
	req.NoError(worker.Run(ctx))

	// Then every expectation but the last held
	<-finished
	req.Equal(int64(1), worker.Failures())
	text := out.String()
	req.Equal(5, strings.Count(text, "ok   "))
	req.Contains(text, `FAIL "never shown"`)
	req.Contains(text, `unknown command "bogus"`)
	req.Contains(text, "====== routes ======")
	req.Contains(text, "/b")
	req.Contains(text, "====== history ======")
	req.Contains(text, "====== stats ======")

	// And the route after quit was never requested
	path, _, mounted := router.Current()
	req.True(mounted)
	req.Equal("a", path)
	req.NoError(router.Close(ctx))
}

func TestScriptWorker_StopsWithContext(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromString("ERROR")
	history, err := headless.NewHistory(context.Background(), log, nil)
	req.NoError(err)
	host := headless.NewHost(log, history)
	stage := runtime.Stage{Log: log, Host: host, Engine: headless.NewEngine(log)}
	router := runtime.NewRouter(stage, "app")

	// Given a script whose input never ends
	in, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	worker := NewScriptWorker(log, in, &syncBuffer{}, router, host, history, nil, "app")
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// When the context is cancelled
	cancel()

	// Then the worker returns cleanly
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("script worker did not stop")
	}
}
