package viewer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"logview/internal/app/buffer"
	"logview/internal/app/bus"
	"logview/internal/app/errors"
	"logview/internal/app/instances"
	"logview/internal/app/logstream"
	"logview/internal/app/progress"
	"logview/internal/app/sse"
	"logview/internal/app/telemetry"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// Viewer states
const (
	Idle             = "idle"
	LoadingInstances = "loadingInstances"
	ErrorInstances   = "errorInstances"
	ConnectingLogs   = "connectingLogs"
	ReceivingLogs    = "receivingLogs"
	ErrorLogs        = "errorLogs"
	LogStreamPaused  = "logStreamPaused"
	LogStreamEnded   = "logStreamEnded"
)

// Viewer events
const (
	eventLoad            = "load"
	eventInstancesFailed = "instancesFailed"
	eventConnect         = "connect"
	eventOpen            = "open"
	eventPause           = "pause"
	eventResume          = "resume"
	eventFail            = "fail"
	eventEnd             = "end"
	eventReset           = "reset"
)

var (
	allStates    = []string{Idle, LoadingInstances, ErrorInstances, ConnectingLogs, ReceivingLogs, ErrorLogs, LogStreamPaused, LogStreamEnded}
	streamStates = []string{ConnectingLogs, ReceivingLogs, LogStreamPaused}
)

// Metadata names added to every streamed entry
const (
	MetaInstance   = "instance"
	MetaInstanceID = "instanceId"
)

// API is the platform client surface the viewer needs
type API interface {
	instances.API
	logstream.API
}

// Target identifies the application whose logs are viewed
type Target struct {
	OwnerID       string
	ApplicationID string
}

// Validate checks that both ids are set
func (t Target) Validate() error {
	if t.OwnerID == "" {
		return errors.ErrOwnerRequired
	}

	if t.ApplicationID == "" {
		return errors.ErrApplicationRequired
	}

	return nil
}

// Options gathers the settings of every component the viewer drives
type Options struct {
	Stream    sse.Options
	Buffer    buffer.Config
	Progress  progress.Options
	Instances instances.Options
	Lookback  time.Duration
}

// OptionsFromConfig converts the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Stream:    sse.OptionsFromConfig(cfg.Stream),
		Buffer:    buffer.FromConfig(cfg.Buffer),
		Progress:  progress.OptionsFromConfig(cfg.Progress),
		Instances: instances.OptionsFromConfig(cfg.Instances),
		Lookback:  cfg.Instances.Lookback,
	}
}

// View is a point-in-time copy of the published state
type View struct {
	State     string
	Range     DateRange
	Selection []string
	Overflow  bool
	Err       error
	Progress  progress.Snapshot
}

// Viewer decides what to stream and when to restart it. At most one log stream is open at a time.
type Viewer struct {
	api      API
	target   Target
	opts     Options
	manager  *instances.Manager
	progress *progress.Controller
	bus      bus.Bus
	reporter *telemetry.Reporter
	log      logger.Logger
	fsm      *fsm.FSM

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes user operations; mu guards the fields below
	opMu sync.Mutex
	mu   sync.Mutex

	dateRange  DateRange
	selection  []string
	overflow   bool
	lastErr    error
	closed     bool
	filter     Matcher
	onAppend   func([]logstream.Entry)
	generation uint64
	stream     *logstream.Stream
	buffer     *buffer.Buffer[logstream.Entry]
	runDone    chan struct{}
}

// New creates an idle viewer for one application
func New(client API, target Target, opts Options, b bus.Bus, reporter *telemetry.Reporter, log logger.Logger) (*Viewer, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	if err := opts.Buffer.Validate(); err != nil {
		return nil, err
	}

	if b == nil {
		b = bus.NoOp()
	}

	log = log.With("owner", target.OwnerID).With("application", target.ApplicationID)

	ctx, cancel := context.WithCancel(context.Background())

	v := &Viewer{
		api:      client,
		target:   target,
		opts:     opts,
		manager:  instances.New(client, target.OwnerID, target.ApplicationID, opts.Instances, log),
		progress: progress.New(opts.Progress, log),
		bus:      b,
		reporter: reporter,
		log:      log.WithComponent("VIEWER"),
		ctx:      ctx,
		cancel:   cancel,
	}

	v.fsm = fsm.NewFSM(
		Idle,
		fsm.Events{
			{Name: eventLoad, Src: allStates, Dst: LoadingInstances},
			{Name: eventInstancesFailed, Src: []string{LoadingInstances}, Dst: ErrorInstances},
			{Name: eventConnect, Src: []string{LoadingInstances, ConnectingLogs, ReceivingLogs, ErrorLogs, LogStreamPaused, LogStreamEnded}, Dst: ConnectingLogs},
			{Name: eventOpen, Src: []string{ConnectingLogs, ReceivingLogs}, Dst: ReceivingLogs},
			{Name: eventPause, Src: []string{ConnectingLogs, ReceivingLogs}, Dst: LogStreamPaused},
			{Name: eventResume, Src: []string{LogStreamPaused}, Dst: ConnectingLogs},
			{Name: eventFail, Src: streamStates, Dst: ErrorLogs},
			{Name: eventEnd, Src: append(slices.Clone(streamStates), LogStreamEnded), Dst: LogStreamEnded},
			{Name: eventReset, Src: allStates, Dst: Idle},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				v.log.Debug().Msgf("STATE %s → %s (trigger: %s)", e.Src, e.Dst, e.Event)
			},
		},
	)

	v.manager.OnChange(func(all []*instances.Instance) {
		v.bus.Publish(bus.Message{Type: bus.EventInstancesChanged, Data: bus.InstancesChanged{Instances: all}})
	})

	v.progress.OnChange(func(snap progress.Snapshot) {
		v.bus.Publish(bus.Message{Type: bus.EventProgressChanged, Data: bus.ProgressChanged{Snapshot: snap}})
	})

	v.progress.OnWatermark(func(progress.Snapshot) {
		v.watermarkReached()
	})

	return v, nil
}

// Manager exposes the instance cache
func (v *Viewer) Manager() *instances.Manager {
	return v.manager
}

// OnAppend registers the callback receiving every flushed batch in order
func (v *Viewer) OnAppend(fn func([]logstream.Entry)) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.onAppend = fn
}

// State returns a snapshot of the published state
func (v *Viewer) State() View {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.viewLocked()
}

func (v *Viewer) viewLocked() View {
	return View{
		State:     v.fsm.Current(),
		Range:     v.dateRange,
		Selection: slices.Clone(v.selection),
		Overflow:  v.overflow,
		Err:       v.lastErr,
		Progress:  v.progress.Snapshot(),
	}
}

// LoadByDeployment streams the logs of every instance created by a deployment
func (v *Viewer) LoadByDeployment(ctx context.Context, deploymentID string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if err := v.begin(); err != nil {
		return err
	}

	list, err := v.manager.FetchInstancesByDeployment(ctx, deploymentID)
	if err == nil && len(list) == 0 {
		err = fmt.Errorf("%w: %s", errors.ErrNoDeploymentFound, deploymentID)
	}

	if err == nil {
		list, err = v.filterList(list)
	}

	if err != nil {
		return v.instancesFailed(err)
	}

	return v.start(ctx, rangeOf(list), ids(list))
}

// LoadLastDeployment streams the logs of the most recent deployment within the lookback window
func (v *Viewer) LoadLastDeployment(ctx context.Context) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if err := v.begin(); err != nil {
		return err
	}

	since := time.Now().Add(-v.opts.Lookback)

	if _, err := v.manager.FetchInstances(ctx, since, nil); err != nil {
		return v.instancesFailed(err)
	}

	list := v.manager.LastDeploymentInstances()
	if len(list) == 0 {
		return v.instancesFailed(errors.ErrNoDeploymentFound)
	}

	list, err := v.filterList(list)
	if err != nil {
		return v.instancesFailed(err)
	}

	return v.start(ctx, rangeOf(list), ids(list))
}

// LoadByDateRange streams the logs of an explicit range and selection
func (v *Viewer) LoadByDateRange(ctx context.Context, r DateRange, selection []string) error {
	if err := r.Validate(); err != nil {
		return err
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	return v.loadRange(ctx, r, selection)
}

// SetDateRange rebuilds instances and stream for a new range.
// The selection survives unless the range switches between live and bounded.
func (v *Viewer) SetDateRange(ctx context.Context, r DateRange) error {
	if err := r.Validate(); err != nil {
		return err
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	selection := v.selection
	if v.dateRange.IsLive() != r.IsLive() {
		selection = nil
	}
	v.mu.Unlock()

	return v.loadRange(ctx, r, selection)
}

func (v *Viewer) loadRange(ctx context.Context, r DateRange, selection []string) error {
	if err := v.begin(); err != nil {
		return err
	}

	if _, err := v.manager.FetchInstances(ctx, r.Since, r.Until); err != nil {
		return v.instancesFailed(err)
	}

	selection, err := v.filterSelection(selection)
	if err != nil {
		return v.instancesFailed(err)
	}

	return v.start(ctx, r, selection)
}

// SetSelection restricts the stream to the given instances; empty means all
func (v *Viewer) SetSelection(ctx context.Context, selection []string) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.ErrViewerClosed
	}

	v.selection = slices.Clone(selection)
	loaded := v.fsm.Current() != Idle && v.fsm.Current() != LoadingInstances && v.fsm.Current() != ErrorInstances
	v.mu.Unlock()

	v.publishState("")

	if !loaded {
		return nil
	}

	v.stopStream(false)

	return v.openStream(ctx)
}

// Pause suspends the log stream
func (v *Viewer) Pause() {
	v.mu.Lock()
	s := v.stream
	v.mu.Unlock()

	if s == nil || !v.fsm.Can(eventPause) {
		return
	}

	s.Pause()
	v.pauseProgress()
	v.transition(eventPause)
}

// Resume reconnects a paused stream, also after the overflow watermark was reached
func (v *Viewer) Resume() {
	v.mu.Lock()
	s := v.stream
	if s == nil || v.fsm.Current() != LogStreamPaused {
		v.mu.Unlock()
		return
	}

	v.overflow = false
	v.mu.Unlock()

	v.transition(eventResume)

	if v.progress.State() == progress.Paused {
		v.progress.Start()
	}

	s.Resume()
}

// Stop ends the stream keeping what was received so far
func (v *Viewer) Stop() {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	running := v.stream != nil
	v.overflow = false
	v.mu.Unlock()

	if !running {
		return
	}

	v.stopStream(true)
	v.manager.EnableAutoRefresh(false)
	v.progress.Complete()
	v.transition(eventEnd)
}

// Close tears everything down; later loads fail
func (v *Viewer) Close() {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	v.closed = true
	v.mu.Unlock()

	v.stopAndClear()
	v.manager.Close()
	v.cancel()
	v.transition(eventReset)
}

// begin tears down the current stream and enters loadingInstances
func (v *Viewer) begin() error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()

	if closed {
		return errors.ErrViewerClosed
	}

	v.stopAndClear()
	v.transition(eventLoad)

	return nil
}

func (v *Viewer) instancesFailed(err error) error {
	v.mu.Lock()
	v.lastErr = err
	v.mu.Unlock()

	v.log.Error().Err(err).Msg("Failed to load instances")
	v.reporter.Report(err, map[string]string{
		"component":   "instances",
		"owner":       v.target.OwnerID,
		"application": v.target.ApplicationID,
	})

	v.transition(eventInstancesFailed)

	return err
}

// start publishes the loaded instances and opens the stream for r
func (v *Viewer) start(ctx context.Context, r DateRange, selection []string) error {
	v.mu.Lock()
	v.dateRange = r
	v.selection = slices.Clone(selection)
	v.mu.Unlock()

	v.bus.Publish(bus.Message{
		Type: bus.EventInstancesChanged,
		Data: bus.InstancesChanged{Instances: v.manager.Instances()},
	})

	v.manager.EnableAutoRefresh(r.IsLive())

	return v.openStream(ctx)
}

// stopAndClear closes the stream and forgets everything derived from it
func (v *Viewer) stopAndClear() {
	v.stopStream(false)
	v.manager.EnableAutoRefresh(false)
	v.progress.Cancel()

	v.mu.Lock()
	v.overflow = false
	v.lastErr = nil
	v.mu.Unlock()
}

func (v *Viewer) pauseProgress() {
	switch v.progress.State() {
	case progress.Started, progress.Waiting, progress.Running:
		v.progress.Pause()
	}
}

// transition applies an event; stale or impossible events are logged and ignored
func (v *Viewer) transition(event string) bool {
	from := v.fsm.Current()

	err := v.fsm.Event(context.Background(), event)
	if err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return true
		}

		v.log.Debug().Err(err).Str("event", event).Str("state", from).Msg("Ignoring viewer event")

		return false
	}

	v.publishState(from)

	return true
}

func (v *Viewer) publishState(previous string) {
	v.mu.Lock()
	view := v.viewLocked()
	v.mu.Unlock()

	if previous == "" {
		previous = view.State
	}

	v.bus.Publish(bus.Message{
		Type: bus.EventStateChanged,
		Data: bus.StateChanged{
			State:     view.State,
			Previous:  previous,
			Err:       view.Err,
			Overflow:  view.Overflow,
			Selection: view.Selection,
		},
		Critical: true,
	})
}
