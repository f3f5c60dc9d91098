package app

import (
	"context"
	"os"

	"go.uber.org/fx"

	"logview/internal/app/cli"
	"logview/internal/app/telemetry"
	"logview/internal/config/logger"
)

// App represents the main application container
type App struct {
	cli      cli.CLI
	reporter *telemetry.Reporter
	log      logger.Logger
	done     chan struct{}
}

// NewApp creates a new application instance with its dependencies
func NewApp(cli cli.CLI, reporter *telemetry.Reporter, log logger.Logger) *App {
	return &App{
		cli:      cli,
		reporter: reporter,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Run executes the application; os.Exit skips fx stop hooks so pending reports are flushed here
func (a *App) Run() {
	exitCode := a.execute()
	close(a.done)

	a.reporter.Flush()
	os.Exit(exitCode)
}

// execute runs the CLI and returns exit code - extracted for testing
func (a *App) execute() int {
	exitCode, err := a.cli.Execute()
	if err != nil {
		a.log.Debug().Err(err).Msgf("Command failed with exit code %d", exitCode)
	}

	return exitCode
}

// Register registers the application's lifecycle hooks with fx
func Register(lifecycle fx.Lifecycle, app *App) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go app.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-app.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
