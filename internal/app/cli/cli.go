//go:generate mockgen -source=cli.go -destination=cli_mock.go -package=cli
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"logview/internal/app/api"
	"logview/internal/app/bus"
	"logview/internal/app/logs"
	"logview/internal/app/telemetry"
	"logview/internal/app/viewer"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// CLI defines the interface for cli operations
type CLI interface {
	Execute() (int, error)
}

// cli represents the command-line interface for the application
type cli struct {
	cfg       *config.Config
	client    viewer.API
	bus       bus.Bus
	reporter  *telemetry.Reporter
	formatter *logs.Formatter
	log       logger.Logger
	args      []string
	out       io.Writer
	errOut    io.Writer
}

// NewCLI creates a new cli instance
func NewCLI(
	cfg *config.Config,
	client *api.Client,
	b bus.Bus,
	reporter *telemetry.Reporter,
	formatter *logs.Formatter,
	log logger.Logger,
) CLI {
	return &cli{
		cfg:       cfg,
		client:    client,
		bus:       b,
		reporter:  reporter,
		formatter: formatter,
		log:       log,
		args:      os.Args[1:],
		out:       os.Stdout,
		errOut:    os.Stderr,
	}
}

// Execute parses the arguments and runs the selected command until it finishes or a signal arrives
func (c *cli) Execute() (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.run(ctx)
}

func (c *cli) run(ctx context.Context) (int, error) {
	opts, err := Parse(c.args)
	if err != nil {
		fmt.Fprintln(c.errOut, RenderError(err))
		return 1, err
	}

	switch opts.Type {
	case CommandTail:
		err = c.handleTail(ctx, opts)
	case CommandConfig:
		err = c.handleConfig()
	case CommandVersion:
		err = c.handleVersion()
	default:
		err = c.handleHelp()
	}

	if err != nil {
		fmt.Fprintln(c.errOut, RenderError(err))
		return 1, err
	}

	return 0, nil
}

// handleHelp displays help information
func (c *cli) handleHelp() error {
	c.log.Debug().Msg("Displaying help information")
	fmt.Fprint(c.out, RenderUsage())

	return nil
}

// handleVersion displays version information
func (c *cli) handleVersion() error {
	c.log.Debug().Msg("Displaying version information")
	fmt.Fprintln(c.out, RenderTitle())

	return nil
}

// handleConfig prints the effective configuration with secrets masked
func (c *cli) handleConfig() error {
	c.log.Debug().Msg("Displaying configuration")

	data, err := config.Dump(c.cfg)
	if err != nil {
		return err
	}

	_, err = c.out.Write(data)

	return err
}
