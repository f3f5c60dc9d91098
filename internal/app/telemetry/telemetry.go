package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"

	"logview/internal/config"
	"logview/internal/config/logger"
)

const flushTimeout = 2 * time.Second

// Reporter forwards fatal failures to Sentry; without a DSN it only logs them
type Reporter struct {
	hub *sentry.Hub
	log logger.Logger
}

// Module provides the reporter for dependency injection
var Module = fx.Module("telemetry",
	fx.Provide(NewReporter),
	fx.Invoke(func(lc fx.Lifecycle, r *Reporter) {
		lc.Append(fx.StopHook(r.Flush))
	}),
)

// NewReporter creates a reporter from the sentry section
func NewReporter(cfg *config.Config, log logger.Logger) (*Reporter, error) {
	log = log.WithComponent("TELEMETRY")

	if cfg.Sentry.DSN == "" {
		return &Reporter{log: log}, nil
	}

	return newReporter(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     "logview@" + config.Version,
	}, log)
}

func newReporter(opts sentry.ClientOptions, log logger.Logger) (*Reporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}

	return &Reporter{
		hub: sentry.NewHub(client, sentry.NewScope()),
		log: log,
	}, nil
}

// Enabled reports whether events leave the process
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Report records a failure with tags describing where it happened
func (r *Reporter) Report(err error, tags map[string]string) {
	if r == nil || err == nil {
		return
	}

	event := r.log.Error().Err(err)
	for k, v := range tags {
		event = event.Str(k, v)
	}

	event.Msg("Fatal failure")

	if r.hub == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Flush waits for queued events to be delivered
func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}

	if !r.hub.Flush(flushTimeout) {
		r.log.Warn().Msg("Timed out flushing error reports")
	}
}
