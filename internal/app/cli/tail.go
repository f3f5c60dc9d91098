package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"logview/internal/app/bus"
	"logview/internal/app/logs"
	"logview/internal/app/logstream"
	"logview/internal/app/viewer"
	"logview/internal/config"
)

// handleTail streams logs until the stream ends, fails, or ctx is done
func (c *cli) handleTail(ctx context.Context, opts *Options) error {
	log := c.log.WithComponent("TAIL")

	v, err := viewer.New(c.client, viewer.Target{
		OwnerID:       opts.Owner,
		ApplicationID: opts.Application,
	}, c.viewerOptions(opts), c.bus, c.reporter, log)
	if err != nil {
		return err
	}
	defer v.Close()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := c.bus.Subscribe(subCtx)

	v.OnAppend(func(batch []logstream.Entry) {
		if err := c.formatter.WriteBatch(c.out, batch); err != nil {
			log.Warn().Err(err).Msg("Failed to write log batch")
		}
	})

	description, err := c.load(ctx, v, opts)
	if err != nil {
		return err
	}

	c.formatter.RenderBanner(c.errOut, logs.Banner{
		Owner:       opts.Owner,
		Application: opts.Application,
		Range:       description,
		Showing:     append(slices.Clone(opts.Instances), opts.InstanceNames...),
		Version:     config.Version,
	})

	last := ""

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Interrupted, closing log stream")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			sc, isState := msg.Data.(bus.StateChanged)
			if !isState {
				continue
			}

			if sc.State != last || sc.Overflow {
				fmt.Fprint(c.errOut, c.formatter.FormatStatus(sc.State, statusDetail(sc)))
				last = sc.State
			}

			switch sc.State {
			case viewer.LogStreamPaused:
				if !sc.Overflow {
					continue
				}

				if opts.StopOnOverflow {
					v.Stop()
				} else {
					v.Resume()
				}
			case viewer.LogStreamEnded:
				return nil
			case viewer.ErrorLogs, viewer.ErrorInstances:
				return sc.Err
			}
		}
	}
}

// load starts the viewer from the selected source and returns a description of what is shown
func (c *cli) load(ctx context.Context, v *viewer.Viewer, opts *Options) (string, error) {
	switch opts.Source {
	case SourceDeployment, SourceLastDeployment:
		// explicit ids narrow a deployment like name patterns do
		if err := v.SetFilter(append(slices.Clone(opts.InstanceNames), opts.Instances...)...); err != nil {
			return "", err
		}

		description := "last deployment"
		load := v.LoadLastDeployment

		if opts.Source == SourceDeployment {
			description = "deployment " + opts.Deployment
			load = func(ctx context.Context) error {
				return v.LoadByDeployment(ctx, opts.Deployment)
			}
		}

		if err := load(ctx); err != nil {
			return "", err
		}

		return description + " " + v.State().Range.String(), nil
	default:
		if err := v.SetFilter(opts.InstanceNames...); err != nil {
			return "", err
		}

		r, err := opts.DateRange(time.Now(), c.cfg.Instances.Lookback)
		if err != nil {
			return "", err
		}

		return r.String(), v.LoadByDateRange(ctx, r, opts.Instances)
	}
}

// viewerOptions applies the command line limit over the configured one
func (c *cli) viewerOptions(opts *Options) viewer.Options {
	o := viewer.OptionsFromConfig(c.cfg)

	if opts.Limit > 0 {
		o.Progress.Limit = opts.Limit
		if o.Progress.WatermarkOffset >= opts.Limit {
			o.Progress.WatermarkOffset = 0
		}
	}

	return o
}

func statusDetail(sc bus.StateChanged) string {
	switch {
	case sc.Err != nil:
		return sc.Err.Error()
	case sc.Overflow:
		return "limit reached"
	case len(sc.Selection) > 0:
		return strings.Join(sc.Selection, ", ")
	default:
		return ""
	}
}
