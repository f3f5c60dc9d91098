package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"logview/internal/app/instances"
	"logview/internal/app/logstream"
	"logview/internal/app/progress"
	"logview/internal/config"
	"logview/internal/config/logger"
)

// MessageType represents the type of message
type MessageType string

// Event types
const (
	EventStateChanged     MessageType = "state_changed"
	EventLogsAppended     MessageType = "logs_appended"
	EventInstancesChanged MessageType = "instances_changed"
	EventProgressChanged  MessageType = "progress_changed"
)

// Message represents a bus message
type Message struct {
	Type      MessageType
	Timestamp time.Time
	Data      interface{}
	Critical  bool
}

// StateChanged carries the published viewer state
type StateChanged struct {
	State     string
	Previous  string
	Err       error
	Overflow  bool
	Selection []string
}

// LogsAppended carries one flushed batch of annotated entries
type LogsAppended struct {
	Entries []logstream.Entry
}

// InstancesChanged carries every known instance after a meaningful change
type InstancesChanged struct {
	Instances []*instances.Instance
}

// ProgressChanged carries the loading progress snapshot
type ProgressChanged struct {
	Snapshot progress.Snapshot
}

// Bus handles pub/sub messaging
type Bus interface {
	Subscribe(ctx context.Context) <-chan Message
	Publish(msg Message)
	Close()
}

// bus implements the Bus interface with pub/sub messaging
type bus struct {
	size        int
	subscribers []chan Message
	mu          sync.RWMutex
	closed      bool
	log         logger.Logger
}

// New creates a new Bus
func New(cfg *config.Config, log logger.Logger) Bus {
	size := cfg.Stream.Events
	if size <= 0 {
		size = config.EventsBufferSize
	}

	return &bus{
		size:        size,
		subscribers: make([]chan Message, 0),
		log:         log,
	}
}

// Subscribe creates a new subscription channel
func (b *bus) Subscribe(ctx context.Context) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.size)

	if b.closed {
		close(ch)
		return ch
	}

	b.subscribers = append(b.subscribers, ch)

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()

	return ch
}

// Publish sends a message to all subscribers
func (b *bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	msg.Timestamp = time.Now()

	if b.log != nil {
		b.log.Debug().Msgf("%s %s", msg.Type, formatData(msg.Data))
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			if msg.Critical {
				go func(c chan Message, m Message) {
					defer func() { recover() }()

					c <- m
				}(ch, msg)
			}
		}
	}
}

// Close closes all subscriber channels
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for _, ch := range b.subscribers {
		close(ch)
	}

	b.subscribers = nil
}

func (b *bus) unsubscribe(ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)

			close(ch)

			break
		}
	}
}

func formatData(data interface{}) string {
	switch d := data.(type) {
	case StateChanged:
		if d.Err != nil {
			return fmt.Sprintf("{state: %s, from: %s, error: %v}", d.State, d.Previous, d.Err)
		}

		return fmt.Sprintf("{state: %s, from: %s, overflow: %t, selection: %v}", d.State, d.Previous, d.Overflow, d.Selection)
	case LogsAppended:
		return fmt.Sprintf("{entries: %d}", len(d.Entries))
	case InstancesChanged:
		return fmt.Sprintf("{instances: %d}", len(d.Instances))
	case ProgressChanged:
		return fmt.Sprintf("{progress: %s, value: %d/%d}", d.Snapshot.State, d.Snapshot.Value, d.Snapshot.Limit)
	default:
		return fmt.Sprintf("%+v", data)
	}
}

// NoOp returns a no-op bus for when messaging is disabled
func NoOp() Bus {
	return &noOpBus{}
}

// noOpBus implements Bus interface with no-op methods for testing
type noOpBus struct{}

func (n *noOpBus) Subscribe(ctx context.Context) <-chan Message {
	ch := make(chan Message)

	go func() {
		<-ctx.Done()
		close(ch)
	}()

	return ch
}

func (n *noOpBus) Publish(msg Message) {}
func (n *noOpBus) Close()              {}
