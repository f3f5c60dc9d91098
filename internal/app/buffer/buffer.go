package buffer

import (
	"sync"
	"time"

	"logview/internal/app/errors"
	"logview/internal/config"
)

// Config bounds a batch by age and by size; zero disables a bound
type Config struct {
	Timeout time.Duration
	Length  int
}

// FromConfig converts the configured buffer section
func FromConfig(cfg config.Buffer) Config {
	return Config{Timeout: cfg.Timeout, Length: cfg.Length}
}

// Validate requires at least one positive bound
func (c Config) Validate() error {
	if c.Timeout == 0 && c.Length == 0 {
		return errors.ErrBufferNotConfigured
	}

	if c.Timeout < 0 {
		return errors.ErrInvalidBufferDelay
	}

	if c.Length < 0 {
		return errors.ErrInvalidBufferLength
	}

	return nil
}

// Buffer batches items and hands them to a callback, never with an empty batch
type Buffer[T any] struct {
	cfg      Config
	callback func(batch []T)

	mu         sync.Mutex
	items      []T
	timer      *time.Timer
	generation uint64

	// flushMu keeps batches delivered in the order they were cut
	flushMu sync.Mutex
}

// New creates a buffer calling back with every flushed batch
func New[T any](cfg Config, callback func(batch []T)) (*Buffer[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Buffer[T]{
		cfg:      cfg,
		callback: callback,
	}, nil
}

// Add queues an item, arming the timer on the first one and flushing once full
func (b *Buffer[T]) Add(item T) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	b.items = append(b.items, item)

	if b.cfg.Length > 0 && len(b.items) >= b.cfg.Length {
		batch := b.takeLocked()
		b.mu.Unlock()

		b.callback(batch)

		return
	}

	if b.cfg.Timeout > 0 && b.timer == nil {
		gen := b.generation
		b.timer = time.AfterFunc(b.cfg.Timeout, func() {
			b.fire(gen)
		})
	}
	b.mu.Unlock()
}

// Flush delivers the queued items now
func (b *Buffer[T]) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()

	if len(batch) > 0 {
		b.callback(batch)
	}
}

// Clear discards the queued items without calling back
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.takeLocked()
}

// Len returns the number of queued items
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.items)
}

// takeLocked empties the queue and cancels the pending timer
func (b *Buffer[T]) takeLocked() []T {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	b.generation++

	batch := b.items
	b.items = nil

	return batch
}

// fire flushes on timeout unless a flush or clear already superseded the timer
func (b *Buffer[T]) fire(gen uint64) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}

	batch := b.takeLocked()
	b.mu.Unlock()

	if len(batch) > 0 {
		b.callback(batch)
	}
}
