package progress

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"logview/internal/app/errors"
	"logview/internal/app/logstream"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// FSM states
const (
	None      = "none"
	Init      = "init"
	Started   = "started"
	Waiting   = "waiting"
	Running   = "running"
	Paused    = "paused"
	Completed = "completed"
)

// FSM events
const (
	ActionInit            = "init"
	ActionStart           = "start"
	ActionProgress        = "progress"
	ActionPause           = "pause"
	ActionComplete        = "complete"
	ActionCancel          = "cancel"
	ActionNothingReceived = "nothingReceived"
)

// maxPartialPercent keeps a bounded load below 100 until it is completed
const maxPartialPercent = 99.9

var allStates = []string{None, Init, Started, Waiting, Running, Paused, Completed}

// Options bounds a loading pass
type Options struct {
	Limit                int
	WatermarkOffset      int
	NothingReceivedDelay time.Duration
}

// OptionsFromConfig converts the configured progress section
func OptionsFromConfig(cfg config.Progress) Options {
	return Options{
		Limit:                cfg.Limit,
		WatermarkOffset:      cfg.WatermarkOffset,
		NothingReceivedDelay: cfg.NothingReceivedDelay,
	}
}

// Snapshot is the derived view of a loading pass
type Snapshot struct {
	State                    string
	Live                     bool
	Percent                  *float64
	Value                    int
	Limit                    int
	Overflowing              bool
	OverflowWatermarkReached bool
	LastLogDate              *time.Time
}

// Controller tracks the progress of a log loading pass
type Controller struct {
	opts Options
	log  logger.Logger

	mu          sync.Mutex
	fsm         *fsm.FSM
	onChange    func(Snapshot)
	onWatermark func(Snapshot)

	live           bool
	since          time.Time
	span           time.Duration
	value          int
	percent        float64
	lastLogDate    *time.Time
	watermarkFired bool

	timer    *time.Timer
	timerGen uint64
}

// New creates a controller in the none state
func New(opts Options, log logger.Logger) *Controller {
	c := &Controller{
		opts: opts,
		log:  log.WithComponent("PROGRESS"),
	}

	c.fsm = fsm.NewFSM(
		None,
		fsm.Events{
			{Name: ActionInit, Src: allStates, Dst: Init},
			{Name: ActionStart, Src: []string{Init}, Dst: Started},
			{Name: ActionStart, Src: []string{Paused}, Dst: Running},
			{Name: ActionProgress, Src: []string{Init, Started, Waiting, Running, Completed}, Dst: Running},
			{Name: ActionPause, Src: []string{Started, Waiting, Running}, Dst: Paused},
			{Name: ActionComplete, Src: allStates, Dst: Completed},
			{Name: ActionCancel, Src: allStates, Dst: None},
			{Name: ActionNothingReceived, Src: []string{Started}, Dst: Waiting},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				c.log.Debug().Msgf("STATE %s → %s (trigger: %s)", e.Src, e.Dst, e.Event)
			},
		},
	)

	return c
}

// OnChange registers the callback receiving every new snapshot
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onChange = fn
}

// OnWatermark registers the callback fired once per pass when the watermark is reached
func (c *Controller) OnWatermark(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onWatermark = fn
}

// effects are the callbacks collected under the lock and run after it is released
type effects struct {
	onChange    func(Snapshot)
	onWatermark func(Snapshot)
	changed     *Snapshot
	watermark   *Snapshot
}

func (fx effects) run() {
	if fx.changed != nil && fx.onChange != nil {
		fx.onChange(*fx.changed)
	}

	if fx.watermark != nil && fx.onWatermark != nil {
		fx.onWatermark(*fx.watermark)
	}
}

func (c *Controller) changedLocked(fx *effects) {
	snap := c.snapshotLocked()
	fx.onChange = c.onChange
	fx.changed = &snap
}

// Init resets the controller for a new pass over [since, until]; nil until means live
func (c *Controller) Init(since time.Time, until *time.Time) {
	var fx effects

	c.mu.Lock()
	c.resetLocked()

	c.live = until == nil
	c.since = since

	if until != nil {
		c.span = until.Sub(since)
	}

	if c.transitionLocked(ActionInit) {
		c.changedLocked(&fx)
	}
	c.mu.Unlock()

	fx.run()
}

// Start begins receiving; from paused it resumes running
func (c *Controller) Start() {
	var fx effects

	c.mu.Lock()
	from := c.fsm.Current()

	if c.transitionLocked(ActionStart) {
		if from == Init {
			c.armTimerLocked()
		}

		c.changedLocked(&fx)
	}
	c.mu.Unlock()

	fx.run()
}

// Progress accounts for a batch of received entries; late entries reopen a completed pass
func (c *Controller) Progress(entries []logstream.Entry) {
	if len(entries) == 0 {
		return
	}

	var fx effects

	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	state := c.fsm.Current()
	if state == Paused {
		c.accountLocked(entries, &fx)
		c.changedLocked(&fx)

		return
	}

	if !c.transitionLocked(ActionProgress) {
		return
	}

	if state == Completed {
		c.percent = 0
	}

	c.accountLocked(entries, &fx)
	c.changedLocked(&fx)
}

func (c *Controller) accountLocked(entries []logstream.Entry, fx *effects) {
	c.stopTimerLocked()

	c.value += len(entries)

	for _, e := range entries {
		if c.lastLogDate == nil || e.Date.After(*c.lastLogDate) {
			date := e.Date
			c.lastLogDate = &date
		}
	}

	if !c.live && c.span > 0 && c.lastLogDate != nil {
		p := 100 * float64(c.lastLogDate.Sub(c.since)) / float64(c.span)
		p = min(max(p, 0), maxPartialPercent)
		c.percent = max(c.percent, p)
	}

	if !c.watermarkFired && c.value >= c.watermarkLocked() {
		c.watermarkFired = true

		snap := c.snapshotLocked()
		fx.onWatermark = c.onWatermark
		fx.watermark = &snap
	}
}

// Pause suspends a receiving pass
func (c *Controller) Pause() {
	c.event(ActionPause)
}

// Complete ends the pass at 100 percent
func (c *Controller) Complete() {
	c.event(ActionComplete)
}

// Cancel resets the controller to none
func (c *Controller) Cancel() {
	var fx effects

	c.mu.Lock()
	c.resetLocked()

	if c.transitionLocked(ActionCancel) {
		c.changedLocked(&fx)
	}
	c.mu.Unlock()

	fx.run()
}

// Reset is Cancel
func (c *Controller) Reset() {
	c.Cancel()
}

func (c *Controller) event(action string) {
	var fx effects

	c.mu.Lock()
	if c.transitionLocked(action) {
		c.stopTimerLocked()

		if action == ActionComplete {
			c.percent = 100
		}

		c.changedLocked(&fx)
	}
	c.mu.Unlock()

	fx.run()
}

// State returns the current state name
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fsm.Current()
}

// Snapshot returns the derived values of the current pass
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	state := c.fsm.Current()

	snap := Snapshot{
		State:                    state,
		Live:                     c.live,
		Value:                    c.value,
		Limit:                    c.opts.Limit,
		Overflowing:              c.value > c.opts.Limit,
		OverflowWatermarkReached: c.value >= c.watermarkLocked(),
	}

	if !c.live || state == Completed {
		percent := c.percent
		snap.Percent = &percent
	}

	if c.lastLogDate != nil {
		date := *c.lastLogDate
		snap.LastLogDate = &date
	}

	return snap
}

func (c *Controller) watermarkLocked() int {
	return c.opts.Limit - c.opts.WatermarkOffset
}

// transitionLocked applies an action; invalid combinations are logged and ignored
func (c *Controller) transitionLocked(action string) bool {
	err := c.fsm.Event(context.Background(), action)
	if err == nil {
		return true
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return true
	}

	c.log.Warn().Err(err).Str("action", action).Str("state", c.fsm.Current()).Msg("Ignoring progress action")

	return false
}

func (c *Controller) resetLocked() {
	c.stopTimerLocked()

	c.live = false
	c.since = time.Time{}
	c.span = 0
	c.value = 0
	c.percent = 0
	c.lastLogDate = nil
	c.watermarkFired = false
}

func (c *Controller) armTimerLocked() {
	c.stopTimerLocked()

	gen := c.timerGen
	c.timer = time.AfterFunc(c.opts.NothingReceivedDelay, func() {
		c.nothingReceived(gen)
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.timerGen++
}

// nothingReceived moves an empty live pass to waiting and completes an empty bounded one
func (c *Controller) nothingReceived(gen uint64) {
	var fx effects

	c.mu.Lock()
	if gen != c.timerGen || c.fsm.Current() != Started || c.value > 0 {
		c.mu.Unlock()
		return
	}

	c.timer = nil

	action := ActionNothingReceived
	if !c.live {
		action = ActionComplete
	}

	if c.transitionLocked(action) {
		if action == ActionComplete {
			c.percent = 100
		}

		c.changedLocked(&fx)
	}
	c.mu.Unlock()

	fx.run()
}
