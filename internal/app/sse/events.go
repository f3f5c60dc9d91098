package sse

import "encoding/json"

// State is the connection state of a Client
type State string

const (
	StateInit       State = "init"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StatePaused     State = "paused"
	StateClosed     State = "closed"
)

// Event is one of Opened, Message, Errored or Closed
type Event interface {
	isEvent()
}

// Opened is emitted every time a connection attempt succeeds
type Opened struct{}

// Message is a dispatched event-stream frame
type Message struct {
	ID   string
	Name string
	Data string
}

// Errored reports a transient failure; a retry is scheduled
type Errored struct {
	Err     error
	Attempt int
}

// Closed is the final event; Err is nil for a clean end of stream or an explicit Close
type Closed struct {
	Reason json.RawMessage
	Err    error
}

func (Opened) isEvent()  {}
func (Message) isEvent() {}
func (Errored) isEvent() {}
func (Closed) isEvent()  {}
