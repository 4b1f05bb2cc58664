package e2e

import (
	"afterglow/contract"
	"afterglow/examples/counter"
	"afterglow/examples/msgbus"
	"afterglow/host/headless"
	"afterglow/observability"
	"afterglow/runtime"
	"afterglow/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const mountID = "app"

// App is one headless application run by a scenario.
type App struct {
	Host    *headless.Host
	History *headless.History
	Monitor *observability.Monitor
	Router  *runtime.Router
	cancel  context.CancelFunc
	done    chan struct{}
}

type BaseAppSuite struct {
	suite.Suite
	Config Config
	log    *slog.Logger
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseAppSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.log = logs.GetLoggerFromString("WARN")
}

// StartApp mounts the demo routes on a fresh headless host backed by store and
// runs the router under a supervisor until the test ends.
func (s *BaseAppSuite) StartApp(store contract.HistoryStore, initial string) *App {
	history, err := headless.NewHistory(context.Background(), s.log, store)
	s.Require().NoError(err)
	monitor := observability.NewMonitor(s.log, time.Second)
	host := headless.NewHost(s.log, history)
	stage := runtime.Stage{Log: s.log, Host: host, Engine: headless.NewEngine(s.log), Monitor: monitor}
	router := runtime.NewRouter(stage, mountID).
		At("a", runtime.Route(counter.Init("a"), counter.View)).
		At("b", runtime.Route(counter.Init("b"), counter.View)).
		At("bus", runtime.Route(msgbus.Init(s.log), msgbus.View)).
		WithInitialPath(initial)

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{Host: host, History: history, Monitor: monitor, Router: router, cancel: cancel, done: make(chan struct{})}
	sup := workers.NewSupervisor(s.log, 50*time.Millisecond)
	go func() {
		defer close(app.done)
		sup.Add(router).Run(ctx)
	}()
	s.T().Cleanup(func() { s.StopApp(app) })
	return app
}

// StopApp stops the router and ejects the mounted route. It is safe to call twice.
func (s *BaseAppSuite) StopApp(app *App) {
	app.cancel()
	<-app.done
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Settle)
	defer cancel()
	s.Require().NoError(app.Router.Close(ctx))
	_ = app.History.Close()
}

// Step prints a colorized header for a scenario step and runs it.
func (s *BaseAppSuite) Step(app *App, name string, fn func()) {
	s.Run(name, func() {
		header := fmt.Sprintf("  ====== %s ======", name)
		if s.Config.Colours {
			header = color.New(color.BgBlack, color.FgGreen).Render(header)
		}
		s.T().Log(header)
		fn()
		if s.Config.Verbose {
			if el, ok := app.Host.Element(mountID); ok {
				s.T().Log(el.HTML())
			}
		}
	})
}

// Element returns the mount element once it exists.
func (s *BaseAppSuite) Element(app *App) *headless.Element {
	var el *headless.Element
	s.Require().Eventually(func() bool {
		var ok bool
		el, ok = app.Host.Element(mountID)
		return ok
	}, s.Config.Settle, 5*time.Millisecond)
	return el
}

// EventuallyShows waits for the mounted tree to display text.
func (s *BaseAppSuite) EventuallyShows(app *App, text string) {
	el := s.Element(app)
	s.Require().Eventually(func() bool {
		return strings.Contains(el.Text(), text)
	}, s.Config.Settle, 5*time.Millisecond, "tree shows %q", el.Text())
}

// EventuallyAt waits for the router to have path mounted.
func (s *BaseAppSuite) EventuallyAt(app *App, path string) {
	s.Require().Eventually(func() bool {
		current, _, mounted := app.Router.Current()
		return mounted && current == path
	}, s.Config.Settle, 5*time.Millisecond)
}

// Click fires a click on the node identified by id, waiting for its handler.
func (s *BaseAppSuite) Click(app *App, id string) {
	el := s.Element(app)
	s.Require().Eventually(func() bool {
		return el.Trigger(id, "click")
	}, s.Config.Settle, 5*time.Millisecond, "no click handler on %q", id)
}
