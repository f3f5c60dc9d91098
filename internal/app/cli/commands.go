package cli

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"logview/internal/app/errors"
	"logview/internal/app/viewer"
	"logview/internal/config"
)

// CommandType represents the type of CLI command
type CommandType int

// Command type values
const (
	CommandTail CommandType = iota
	CommandConfig
	CommandVersion
	CommandHelp
)

// Source selects how the tail command picks its instances
type Source int

// Source values
const (
	SourceDateRange Source = iota
	SourceDeployment
	SourceLastDeployment
)

// Options contains the parsed command-line arguments
type Options struct {
	Type           CommandType
	Source         Source
	Owner          string
	Application    string
	Since          string
	Until          string
	Deployment     string
	Instances      []string
	InstanceNames  []string
	Limit          int
	StopOnOverflow bool
}

// tailFlags holds flag values the tail command resolves after parsing
type tailFlags struct {
	lastDeployment bool
}

// Parse parses command-line args and returns a Options struct
func Parse(args []string) (*Options, error) {
	result := &Options{Type: CommandHelp}

	root := buildRootCommand(result)
	root.AddCommand(
		buildTailCommand(result),
		buildConfigCommand(result),
		buildVersionCommand(result),
	)

	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return nil, err
	}

	return result, nil
}

// buildRootCommand creates the root cobra command
func buildRootCommand(result *Options) *cobra.Command {
	var version bool

	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: config.AppDescription,
		Long: `logview streams application logs from the cloud platform, following
instances as they come and go during a deployment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandHelp
			if version {
				result.Type = CommandVersion
			}
		},
	}

	cmd.Flags().BoolVarP(&version, "version", "v", false, "Show version information")

	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		result.Type = CommandHelp
	})

	return cmd
}

// buildTailCommand creates the tail subcommand
func buildTailCommand(result *Options) *cobra.Command {
	var flags tailFlags

	cmd := &cobra.Command{
		Use:     "tail",
		Aliases: []string{"t"},
		Short:   "Stream logs of an application",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result.Type = CommandTail

			return resolveSource(cmd, result, flags)
		},
	}

	cmd.Flags().StringVar(&result.Owner, "owner", "", "Owner id of the application")
	cmd.Flags().StringVar(&result.Application, "app", "", "Application id")
	cmd.Flags().StringVar(&result.Since, "since", "", "Start of the date range (any common date format)")
	cmd.Flags().StringVar(&result.Until, "until", "", "End of the date range, live when omitted")
	cmd.Flags().StringVar(&result.Deployment, "deployment", "", "Show the logs of a deployment")
	cmd.Flags().BoolVar(&flags.lastDeployment, "last-deployment", false, "Show the logs of the last deployment")
	cmd.Flags().StringArrayVar(&result.Instances, "instance", nil, "Only show this instance id (repeatable)")
	cmd.Flags().StringArrayVar(&result.InstanceNames, "instance-name", nil, "Only show instances matching this glob, ! to exclude (repeatable)")
	cmd.Flags().IntVar(&result.Limit, "limit", 0, "Number of entries loaded before pausing (default from config)")
	cmd.Flags().BoolVar(&result.StopOnOverflow, "stop-on-overflow", false, "Stop instead of continuing when the limit is reached")

	return cmd
}

// resolveSource validates the tail flags and picks the loading source
func resolveSource(cmd *cobra.Command, result *Options, flags tailFlags) error {
	if result.Owner == "" {
		return errors.ErrOwnerRequired
	}

	if result.Application == "" {
		return errors.ErrApplicationRequired
	}

	sources := 0

	if cmd.Flags().Changed("since") || cmd.Flags().Changed("until") {
		sources++
	}

	if result.Deployment != "" {
		result.Source = SourceDeployment
		sources++
	}

	if flags.lastDeployment {
		result.Source = SourceLastDeployment
		sources++
	}

	if sources > 1 {
		return errors.ErrConflictingSources
	}

	if result.Limit < 0 {
		return errors.ErrInvalidProgressLimit
	}

	return nil
}

// buildConfigCommand creates the config subcommand
func buildConfigCommand(result *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandConfig
		},
	}
}

// buildVersionCommand creates the version subcommand
func buildVersionCommand(result *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandVersion
		},
	}
}

// DateRange resolves --since and --until; without --since the range goes live from lookback ago
func (o *Options) DateRange(now time.Time, lookback time.Duration) (viewer.DateRange, error) {
	since := now.Add(-lookback)

	if o.Since != "" {
		t, err := parseDate(o.Since, now)
		if err != nil {
			return viewer.DateRange{}, err
		}

		since = t
	}

	if o.Until == "" {
		return viewer.Live(since), nil
	}

	until, err := parseDate(o.Until, now)
	if err != nil {
		return viewer.DateRange{}, err
	}

	r := viewer.Bounded(since, until)

	return r, r.Validate()
}

// parseDate accepts absolute dates in any format dateparse knows, or a duration before now such as 2h
func parseDate(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d), nil
	}

	t, err := dateparse.ParseIn(value, now.Location())
	if err != nil {
		return time.Time{}, errors.Join(errors.ErrFailedToParseDate, err)
	}

	return t, nil
}
