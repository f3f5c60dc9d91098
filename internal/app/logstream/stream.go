package logstream

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"logview/internal/app/sse"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// API is the part of the platform client the log stream needs
type API interface {
	sse.Requester
	LogsURL(ownerID, appID string) string
}

// Params selects which logs to stream
type Params struct {
	OwnerID       string
	ApplicationID string
	Since         time.Time
	Until         *time.Time
	InstanceIDs   []string
	Limit         int
}

// BuildURL renders the logs endpoint; limit is what remains after received entries
func BuildURL(base string, p Params, received int) string {
	query := url.Values{}

	if !p.Since.IsZero() {
		query.Set("since", p.Since.UTC().Format(time.RFC3339Nano))
	}

	if p.Until != nil {
		query.Set("until", p.Until.UTC().Format(time.RFC3339Nano))
	}

	for _, id := range p.InstanceIDs {
		query.Add("instanceId", id)
	}

	if p.Limit > 0 {
		query.Set("limit", strconv.Itoa(max(p.Limit-received, 0)))
	}

	if len(query) == 0 {
		return base
	}

	return base + "?" + query.Encode()
}

// Handler receives stream callbacks serially from Run
type Handler interface {
	OnOpen()
	OnLog(entry Entry)
	OnError(err error)
	OnEvent(msg sse.Message)
}

// HandlerFuncs adapts plain functions to a Handler; nil fields are skipped
type HandlerFuncs struct {
	Open  func()
	Log   func(entry Entry)
	Error func(err error)
	Event func(msg sse.Message)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnLog(entry Entry) {
	if h.Log != nil {
		h.Log(entry)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnEvent(msg sse.Message) {
	if h.Event != nil {
		h.Event(msg)
	}
}

// OnLog returns a handler that only receives log entries
func OnLog(fn func(entry Entry)) Handler {
	return HandlerFuncs{Log: fn}
}

// Stream tails application logs over the event stream client
type Stream struct {
	client   *sse.Client
	params   Params
	log      logger.Logger
	received atomic.Int64
}

// New prepares a stream; the URL is rebuilt on every reconnect
func New(api API, params Params, opts sse.Options, log logger.Logger) *Stream {
	s := &Stream{
		params: params,
		log:    log.WithComponent("STREAM"),
	}

	base := api.LogsURL(params.OwnerID, params.ApplicationID)
	s.client = sse.New(api, func() string {
		return BuildURL(base, s.params, s.Received())
	}, opts, log)

	return s
}

// Received returns how many log entries were delivered so far
func (s *Stream) Received() int {
	return int(s.received.Load())
}

// State returns the underlying connection state
func (s *Stream) State() sse.State {
	return s.client.State()
}

// Run connects and dispatches events to h until the stream terminates
func (s *Stream) Run(ctx context.Context, h Handler) (json.RawMessage, error) {
	s.client.Start(ctx)

	for ev := range s.client.Events() {
		switch e := ev.(type) {
		case sse.Opened:
			h.OnOpen()
		case sse.Errored:
			h.OnError(e.Err)
		case sse.Message:
			s.dispatch(h, e)
		}
	}

	<-s.client.Done()

	return s.client.Wait(context.Background())
}

func (s *Stream) dispatch(h Handler, msg sse.Message) {
	if msg.Name != config.EventApplicationLog {
		h.OnEvent(msg)
		return
	}

	entry, err := ParseEntry(msg.Data)
	if err != nil {
		s.log.Warn().Err(err).Str("id", msg.ID).Msg("Dropping malformed log event")
		return
	}

	s.received.Add(1)
	h.OnLog(entry)
}

// Pause suspends the connection
func (s *Stream) Pause() {
	s.client.Pause()
}

// Resume reconnects from the last received event
func (s *Stream) Resume() {
	s.client.Resume()
}

// Close terminates the stream
func (s *Stream) Close() {
	s.client.Close(nil)
}

// Done is closed once the stream terminated
func (s *Stream) Done() <-chan struct{} {
	return s.client.Done()
}
