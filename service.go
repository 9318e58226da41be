// Package planrun wires the test catalog, plan builder, runner and event
// sinks into a long-lived service with run-once and interval modes.
package planrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/planrun/planrun/catalog"
	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/exitcodes"
	"github.com/planrun/planrun/metrics"
	"github.com/planrun/planrun/plan"
	"github.com/planrun/planrun/runner"
	"github.com/planrun/planrun/sinks"
)

// App runs the registered test catalog, either once or on an interval.
type App struct {
	ctx     context.Context
	config  *Config
	version string
	catalog catalog.Catalog
	filter  events.Filter
	summary *events.Summary

	jsonl io.WriteCloser

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the application from a resolved config. The test catalog
// defaults to the package-level registry populated during init.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating planrun app",
		"profileFile", config.ProfileFile,
		"profile", config.Profile,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"parallel", config.Parallel,
		"maxWorkers", config.MaxWorkers)

	filter, err := config.Filter()
	if err != nil {
		return nil, err
	}

	var jsonl io.WriteCloser
	if config.JSONLFile != "" {
		jsonl, err = os.Create(config.JSONLFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open jsonl output '%s': %w", config.JSONLFile, err)
		}
	}

	return &App{
		ctx:              ctx,
		config:           config,
		version:          version,
		catalog:          catalog.Default(),
		filter:           filter,
		jsonl:            jsonl,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the tests immediately and, unless in run-once mode, keeps
// re-running them at the configured interval.
func (a *App) Start(ctx context.Context) error {
	// Panics escaping the run machinery are operational faults, not test
	// failures.
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.ctx = ctx
	a.done = make(chan struct{})
	a.running.Store(true)

	if a.config.RunOnce {
		a.config.Log.Info("Starting planrun in run-once mode")
	} else {
		a.config.Log.Info("Starting planrun in continuous mode", "interval", a.config.RunInterval)
	}

	err := a.runTests()
	if err != nil {
		a.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	if a.config.RunOnce {
		a.config.Log.Info("Tests completed, exiting (run-once mode)")

		if a.summary != nil && a.summary.Status().IsFailure() {
			a.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(a.summaryLine())
		}

		go func() {
			a.shutdownCallback(nil)
		}()
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.config.Log.Debug("Starting periodic test runner goroutine", "interval", a.config.RunInterval)

		for {
			select {
			case <-time.After(a.config.RunInterval):
				if !a.running.Load() {
					a.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}

				a.config.Log.Info("Running periodic tests")
				if err := a.runTests(); err != nil {
					a.config.Log.Error("Error running periodic tests", "error", err)
				}
				a.config.Log.Info("Test run interval", "interval", a.config.RunInterval)

			case <-a.done:
				a.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				a.config.Log.Debug("Context canceled, stopping periodic test runner")
				a.running.Store(false)
				return
			}
		}
	}()
	a.config.Log.Debug("planrun started successfully")
	return nil
}

// runTests builds a plan from the current catalog and executes it once.
func (a *App) runTests() error {
	a.config.Log.Info("Running all tests...")

	summary := events.NewSummary()
	console := sinks.NewConsole(os.Stdout, a.config.Log)

	handlers := []events.Handler{summary.Observe, console.Handle}
	if a.jsonl != nil {
		handlers = append(handlers, sinks.NewJSONL(a.jsonl).Handle)
	}

	cfg := events.NewConfiguration(sinks.Fanout(handlers...))
	cfg.Filter = a.filter
	cfg.Parallel = a.config.Parallel
	cfg.MaxWorkers = a.config.MaxWorkers
	cfg.DeliverExpectationCheckedEvents = a.config.DeliverExpectationEvents
	if a.config.TimeLimit > 0 {
		limit := a.config.TimeLimit
		cfg.TimeLimit = &limit
	}

	builder, err := plan.NewBuilder(cfg, a.config.Log)
	if err != nil {
		return fmt.Errorf("failed to create plan builder: %w", err)
	}
	p, err := builder.Build(a.ctx, a.catalog.Nodes())
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}
	a.config.Log.Info("Built test plan", "steps", p.Len())

	run, err := runner.NewRunner(runner.Config{
		Plan:        p,
		Events:      cfg,
		Log:         a.config.Log,
		ExitSpawner: runner.NewReexecSpawner(a.config.Log),
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	// Metrics observe the same event stream the sinks do, keyed by run ID.
	cfg.Handler = sinks.Fanout(append(handlers, metrics.Observer(run.RunID()))...)

	if err := run.Run(a.ctx); err != nil {
		return fmt.Errorf("test run aborted: %w", err)
	}
	a.summary = summary

	metrics.RecordRun(run.RunID(), summary.Status(), summary.Duration())
	fmt.Println(a.summaryLine())
	a.config.Log.Info("Test run completed", "run_id", run.RunID(), "status", summary.Status())
	return nil
}

// summaryLine renders the one-line result of the most recent run.
func (a *App) summaryLine() string {
	if a.summary == nil {
		return "no test run recorded"
	}
	total, passed, failed, skipped := a.summary.Counts()
	issues, known := a.summary.Issues()
	return fmt.Sprintf("%s: %d tests, %d passed, %d failed, %d skipped, %d issues (%d known) in %s",
		a.summary.Status(), total, passed, failed, skipped, issues, known,
		a.summary.Duration().Round(time.Millisecond))
}

// Stop stops the planrun service.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping planrun")

	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	a.running.Store(false)
	close(a.done)
	a.wg.Wait()

	if a.jsonl != nil {
		_ = a.jsonl.Close()
	}

	a.config.Log.Info("planrun stopped successfully")
	return nil
}

// Stopped returns true if the planrun service is stopped.
func (a *App) Stopped() bool {
	return !a.running.Load()
}
