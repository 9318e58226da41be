package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	planrun "github.com/planrun/planrun"
	"github.com/planrun/planrun/catalog"
	"github.com/planrun/planrun/exitcodes"
	"github.com/planrun/planrun/flags"
	"github.com/planrun/planrun/runner"
	"github.com/planrun/planrun/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	// A re-executed child runs exactly one test body and exits; it must
	// never start the service machinery.
	if id, ok := runner.IsolatedTarget(); ok {
		os.Exit(runner.RunIsolated(context.Background(), catalog.Default().Nodes(), id))
	}

	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "planrun"
	app.Usage = "Test plan runner service"
	app.Description = "planrun builds a plan from the registered test catalog and executes it"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if planrun.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger := newLogger(cliCtx.String(flags.LogLevel.Name))
	log.SetDefault(logger)

	cfg, err := planrun.NewConfig(cliCtx, logger)
	if err != nil {
		return planrun.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()

	app, err := planrun.New(ctx, cfg, Version, func(error) { cancel() })
	if err != nil {
		return planrun.NewRuntimeError(fmt.Errorf("failed to create app: %w", err))
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return app.Stop(context.Background())
}

func newLogger(level string) log.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = log.LevelDebug
	case "warn":
		lvl = log.LevelWarn
	case "error":
		lvl = log.LevelError
	default:
		lvl = log.LevelInfo
	}
	return log.NewLogger(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
