package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"logview/internal/app/api"
	"logview/internal/app/errors"
	"logview/internal/config"
	"logview/internal/config/logger"
)

var (
	errPaused      = errors.New("stream paused")
	errClosed      = errors.New("stream closed by caller")
	errEndOfStream = errors.New("end of stream received")
)

// Requester prepares signed requests and opens long-lived responses
type Requester interface {
	NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error)
	Stream(req *http.Request) (*http.Response, error)
}

// URLFunc returns the URL of the next connection attempt
type URLFunc func() string

// Options tunes connection, heartbeat and retry behaviour
type Options struct {
	Retry              RetryPolicy
	ConnectTimeout     time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatThreshold time.Duration
	EventsBuffer       int
}

// OptionsFromConfig converts the configured stream section
func OptionsFromConfig(cfg config.Stream) Options {
	return Options{
		Retry:              PolicyFromConfig(cfg.Retry),
		ConnectTimeout:     cfg.ConnectTimeout,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		HeartbeatThreshold: cfg.HeartbeatThreshold,
		EventsBuffer:       cfg.Events,
	}
}

// Client is a resumable event-stream consumer with retry and heartbeat detection
type Client struct {
	requester Requester
	url       URLFunc
	opts      Options
	log       logger.Logger

	events  chan Event
	done    chan struct{}
	closing chan struct{}

	contact atomic.Int64

	mu          sync.Mutex
	state       State
	started     bool
	cancel      context.CancelCauseFunc
	wake        chan struct{}
	retryCount  int
	serverRetry time.Duration
	lastID      string
	reason      json.RawMessage
	closeReason json.RawMessage
	err         error
}

// New creates a client; nothing happens until Start
func New(requester Requester, url URLFunc, opts Options, log logger.Logger) *Client {
	if opts.EventsBuffer <= 0 {
		opts.EventsBuffer = config.EventsBufferSize
	}

	return &Client{
		requester: requester,
		url:       url,
		opts:      opts,
		log:       log.WithComponent("SSE"),
		events:    make(chan Event, opts.EventsBuffer),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
		state:     StateInit,
		wake:      make(chan struct{}),
	}
}

// Events delivers the stream events; it is closed after the final Closed event
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed once the stream terminates permanently
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// LastEventID returns the resume cursor sent on reconnect
func (c *Client) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastID
}

// Start connects in the background; calling it again has no effect
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.state == StateClosed {
		return
	}

	c.started = true
	c.state = StateConnecting

	go c.run(ctx)
}

// Wait blocks until the stream terminates and returns its close reason
func (c *Client) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reason, c.err
}

// Pause aborts the current connection and suspends retries
func (c *Client) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting && c.state != StateOpen {
		return
	}

	c.state = StatePaused
	c.abortLocked(errPaused)
	c.signalLocked()
}

// Resume reconnects a paused stream from the last received event id
func (c *Client) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return
	}

	c.state = StateConnecting
	c.signalLocked()
}

// Close terminates the stream with the given reason; later calls are ignored
func (c *Client) Close(reason json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed || c.isClosing() {
		return
	}

	close(c.closing)
	c.closeReason = reason

	if !c.started {
		c.state = StateClosed
		c.reason = reason
		close(c.events)
		close(c.done)

		return
	}

	c.abortLocked(errClosed)
	c.signalLocked()
}

func (c *Client) abortLocked(cause error) {
	if c.cancel != nil {
		c.cancel(cause)
	}
}

// signalLocked wakes every goroutine waiting on the current wake channel
func (c *Client) signalLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

func (c *Client) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Client) run(ctx context.Context) {
	for {
		if !c.waitRunnable(ctx) {
			break
		}

		err := c.attempt(ctx)

		if c.isClosing() {
			c.finish(nil, nil)
			return
		}

		if c.State() == StatePaused || errors.Is(err, errPaused) {
			c.log.Debug().Msg("Stream paused")
			continue
		}

		if err == nil {
			c.mu.Lock()
			reason := c.reason
			c.mu.Unlock()

			c.log.Debug().RawJSON("reason", reason).Msg("End of stream received")
			c.finish(reason, nil)

			return
		}

		if ctx.Err() != nil {
			c.finish(nil, ctx.Err())
			return
		}

		delay, fatal := c.nextRetry(err)
		if fatal != nil {
			c.log.Error().Err(fatal).Msg("Stream failed")
			c.finish(nil, fatal)

			return
		}

		c.mu.Lock()
		attempt := c.retryCount
		c.mu.Unlock()

		c.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Stream interrupted, retrying")

		if !c.emit(ctx, Errored{Err: err, Attempt: attempt}) {
			continue
		}

		c.sleep(ctx, delay)
	}

	if c.isClosing() {
		c.finish(nil, nil)
		return
	}

	c.finish(nil, ctx.Err())
}

// nextRetry returns the backoff before the next attempt, or the fatal error
func (c *Client) nextRetry(err error) (time.Duration, error) {
	if !c.opts.Retry.Enabled || !IsRetryable(err) {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retryCount >= c.opts.Retry.MaxRetryCount {
		return 0, fmt.Errorf("%w: %w", errors.ErrMaxRetriesExceeded, err)
	}

	c.retryCount++

	if c.state == StateOpen {
		c.state = StateConnecting
	}

	policy := c.opts.Retry
	if c.serverRetry > 0 {
		policy.InitRetryTimeout = c.serverRetry
	}

	return policy.Delay(c.retryCount), nil
}

// waitRunnable blocks while paused; false means the stream must stop
func (c *Client) waitRunnable(ctx context.Context) bool {
	for {
		c.mu.Lock()
		state := c.state
		wake := c.wake
		c.mu.Unlock()

		if c.isClosing() || ctx.Err() != nil {
			return false
		}

		if state != StatePaused {
			return true
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return false
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	wake := c.wake
	c.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-wake:
	case <-ctx.Done():
	}
}

// attempt performs one connection and reads it until it ends
func (c *Client) attempt(ctx context.Context) error {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	if c.isClosing() {
		c.mu.Unlock()
		return errClosed
	}

	if c.state == StatePaused {
		c.mu.Unlock()
		return errPaused
	}

	c.cancel = cancel
	c.state = StateConnecting
	lastID := c.lastID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	req, err := c.requester.NewRequest(attemptCtx, http.MethodGet, c.url())
	if err != nil {
		return err
	}

	req.Header.Set("Accept", config.EventStreamContentType)
	req.Header.Set("Cache-Control", "no-cache")

	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	timer := time.AfterFunc(c.opts.ConnectTimeout, func() {
		cancel(errors.ErrConnectTimeout)
	})

	resp, err := c.requester.Stream(req)
	timer.Stop()

	if err != nil {
		return causeOf(attemptCtx, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	if !c.opened(attemptCtx) {
		return causeOf(attemptCtx, context.Canceled)
	}

	go c.watchdog(attemptCtx, cancel)

	conn := &connection{client: c, ctx: attemptCtx, cancel: cancel}
	conn.parser = NewParser(conn.dispatch, c.setServerRetry)

	_, err = io.Copy(conn, resp.Body)

	switch {
	case conn.endErr != nil:
		return conn.endErr
	case conn.ended:
		return nil
	case err != nil:
		return causeOf(attemptCtx, err)
	default:
		return errors.ErrUnexpectedClose
	}
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return api.NewHTTPError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, config.EventStreamContentType) {
		return fmt.Errorf("%w: %q", errors.ErrInvalidContentType, contentType)
	}

	return nil
}

func (c *Client) opened(ctx context.Context) bool {
	c.mu.Lock()
	c.state = StateOpen
	c.retryCount = 0
	c.mu.Unlock()

	c.touch()
	c.log.Debug().Msg("Stream opened")

	return c.emit(ctx, Opened{})
}

func (c *Client) watchdog(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, c.contact.Load())
			if time.Since(last) > c.opts.HeartbeatThreshold {
				cancel(errors.ErrHeartbeatTimeout)
				return
			}
		}
	}
}

func (c *Client) touch() {
	c.contact.Store(time.Now().UnixNano())
}

func (c *Client) setServerRetry(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.serverRetry = d
}

// emit delivers an event unless the stream is closing or ctx is done
func (c *Client) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closing:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) finish(reason json.RawMessage, err error) {
	c.mu.Lock()
	if c.isClosing() {
		reason = c.closeReason
		err = nil
	}

	c.state = StateClosed
	c.reason = reason
	c.err = err
	c.mu.Unlock()

	select {
	case c.events <- Closed{Reason: reason, Err: err}:
	default:
		c.log.Debug().Msg("Closed event dropped, events buffer full")
	}

	close(c.events)
	close(c.done)
}

// connection feeds one response body through the parser
type connection struct {
	client *Client
	ctx    context.Context
	cancel context.CancelCauseFunc
	parser *Parser

	ended  bool
	endErr error
}

func (cn *connection) Write(b []byte) (int, error) {
	if cn.ended || cn.endErr != nil {
		return 0, errEndOfStream
	}

	cn.client.touch()

	return cn.parser.Write(b)
}

func (cn *connection) dispatch(msg Message) {
	if cn.ended || cn.endErr != nil {
		return
	}

	c := cn.client

	switch msg.Name {
	case config.EventHeartbeat:
		return
	case config.EventEndOfStream:
		if !json.Valid([]byte(msg.Data)) {
			cn.endErr = fmt.Errorf("%w: %q", errors.ErrMalformedEndOfStream, msg.Data)
		} else {
			cn.ended = true

			c.mu.Lock()
			c.reason = json.RawMessage(msg.Data)
			c.mu.Unlock()
		}

		cn.cancel(errEndOfStream)

		return
	}

	if !c.emit(cn.ctx, msg) {
		return
	}

	c.touch()

	if msg.ID != "" {
		c.mu.Lock()
		c.lastID = msg.ID
		c.mu.Unlock()
	}
}

func causeOf(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}

	return err
}
