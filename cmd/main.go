package main

import (
	"afterglow/contract"
	"afterglow/domain"
	"afterglow/examples/counter"
	"afterglow/examples/msgbus"
	"afterglow/host/headless"
	"afterglow/internal"
	"afterglow/observability"
	"afterglow/repositories"
	"afterglow/runtime"
	"afterglow/runtime/workers"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitScript  = 3
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Demo terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires a headless host, the demo routes and the script driver, then blocks
// until the script ends or a signal arrives.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Navigation history, persisted in BadgerDB when a path is configured
	var store contract.HistoryStore
	if config.HistoryPath != "" {
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
		if err != nil {
			return exitRuntime, fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		if logger.Enabled(ctx, slog.LevelDebug) && config.DebugPort > 0 {
			endpoint := "/inspect"
			logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
			database.StartDebugServer(db, config.DebugPort, endpoint, repositories.HistoryMapper)
		}
		store = repositories.NewHistoryRepository(db, logger)
	}

	history, err := headless.NewHistory(ctx, logger, store)
	if err != nil {
		return exitRuntime, fmt.Errorf("history loading failed: %w", err)
	}
	defer func() { _ = history.Close() }()

	// 3. Headless host and routes
	monitor := observability.NewMonitor(logger, config.MetricInterval)
	host := headless.NewHost(logger, history)
	stage := runtime.Stage{Log: logger, Host: host, Engine: headless.NewEngine(logger), Monitor: monitor}

	router := runtime.NewRouter(stage, config.MountID).
		At("", runtime.Route(counter.Init("home"), counter.View)).
		At("a", runtime.Route(counter.Init("a"), counter.View)).
		At("b", runtime.Route(counter.Init("b"), counter.View)).
		At("bus", runtime.Route(msgbus.Init(logger), msgbus.View)).
		WithInitialPath(config.InitialPath)
	if state, ok := restoredState(history); ok {
		router.WithRestoredState(state)
	}

	// 4. Script driver
	in, closeIn, err := openScript(config.ScriptPath)
	if err != nil {
		return exitConfig, err
	}
	defer closeIn()

	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	script := workers.NewScriptWorker(logger, in, os.Stdout, router, host, history, monitor, config.MountID).
		WithColours(config.Colours).
		OnFinish(cancel)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Add(router, monitor, script).Run(supervisedCtx)
	}()

	// 5. Wait for the script to finish or a signal
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-supervisedCtx.Done():
		logger.Info("Script finished")
	}

	// 6. Final Cleanup
	sup.Stop()
	<-done
	ejectCtx, cancelEject := context.WithTimeout(context.Background(), config.EjectTimeout)
	defer cancelEject()
	if err := router.Close(ejectCtx); err != nil {
		return exitRuntime, fmt.Errorf("router shutdown failed: %w", err)
	}
	logger.Info("Program stopped cleanly", "stats", monitor.GetLatest())

	if script.Failures() > 0 {
		return exitScript, fmt.Errorf("%d expectation(s) failed", script.Failures())
	}
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.HistoryPath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// restoredState is the state of the current history entry, when it holds a
// valid navigation record.
func restoredState(history *headless.History) ([]byte, bool) {
	entry, ok := history.Current()
	if !ok {
		return nil, false
	}
	if _, err := domain.DecodeNavState(entry.State); err != nil {
		return nil, false
	}
	return entry.State, true
}

func openScript(path string) (io.Reader, func(), error) {
	if path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("script opening failed: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
