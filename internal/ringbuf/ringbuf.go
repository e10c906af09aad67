// Package ringbuf provides a bounded, auto-resizing FIFO ring buffer that
// notifies a consumer after every write.
//
// The buffer sits between a fast producer and a slow consumer. Storage grows
// by a fixed step when full and snaps back to its initial length once drained.
// When the unread count reaches the configured maximum, the oldest items are
// discarded in batches and a warning diagnostic is reported for each one.
package ringbuf

import (
	"fmt"
	"sync"
)

// RingBuffer is a FIFO queue backed by a circular slice. One slot is always
// left empty so that readIdx == writeIdx means "empty".
//
// All methods are safe for concurrent use. The drain callback and the
// reporter run after the internal lock is released, so a callback may call
// Read directly.
type RingBuffer[T any] struct {
	mu sync.Mutex

	storage    []T
	initialCap int
	maxSize    int
	step       int
	readIdx    int
	writeIdx   int
	pending    int

	drain    func()
	source   string
	reporter Reporter

	writes  uint64
	reads   uint64
	drops   uint64
	grows   uint64
	shrinks uint64
}

// New creates a ring buffer. It returns an error wrapping ErrInvalidConfig
// when cfg is unusable.
func New[T any](cfg Config, opts ...Option) (*RingBuffer[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	return &RingBuffer[T]{
		storage:    make([]T, cfg.InitialCapacity),
		initialCap: cfg.InitialCapacity,
		maxSize:    cfg.MaxSize,
		step:       cfg.GrowthStep,
		drain:      o.drain,
		source:     o.source,
		reporter:   o.reporter,
	}, nil
}

// Write appends item. If the buffer holds MaxSize unread items, the oldest
// GrowthStep items are dropped first. The drain callback, if any, is invoked
// once per call.
func (rb *RingBuffer[T]) Write(item T) {
	rb.mu.Lock()

	var diags []Diagnostic
	if rb.pending == rb.maxSize {
		for i := 0; i < rb.step; i++ {
			diags = append(diags, rb.diagnostic(LevelWarning, EventDropped, VerbosityDrop,
				fmt.Sprintf("max buffer size reached, %d messages will not be logged", rb.step),
				map[string]interface{}{"pending": rb.pending, "max_size": rb.maxSize}))
			rb.dropOldest()
		}
	}

	if rb.pending == len(rb.storage)-1 {
		rb.grow()
		diags = append(diags, rb.diagnostic(LevelInfo, EventGrown, VerbosityResize,
			fmt.Sprintf("buffer grown to %d slots", len(rb.storage)),
			map[string]interface{}{"size": len(rb.storage), "pending": rb.pending}))
	}

	rb.storage[rb.writeIdx] = item
	rb.pending++
	rb.writeIdx = (rb.writeIdx + 1) % len(rb.storage)
	rb.writes++
	drain := rb.drain

	rb.mu.Unlock()

	rb.report(diags)
	if drain != nil {
		drain()
	}
}

// Read removes and returns the oldest unread item. The second result is false
// when the buffer is empty; that is the normal "nothing to do" outcome.
func (rb *RingBuffer[T]) Read() (T, bool) {
	var zero T

	rb.mu.Lock()
	if rb.pending == 0 {
		rb.mu.Unlock()
		return zero, false
	}

	item := rb.storage[rb.readIdx]
	rb.storage[rb.readIdx] = zero
	rb.readIdx = (rb.readIdx + 1) % len(rb.storage)
	rb.pending--
	rb.reads++

	var diags []Diagnostic
	if rb.pending == 0 {
		if len(rb.storage) > rb.initialCap {
			rb.storage = make([]T, rb.initialCap)
			rb.shrinks++
			diags = append(diags, rb.diagnostic(LevelInfo, EventShrunk, VerbosityResize,
				fmt.Sprintf("buffer shrunk to %d slots", len(rb.storage)),
				map[string]interface{}{"size": len(rb.storage)}))
		}
		rb.readIdx, rb.writeIdx = 0, 0
	}
	rb.mu.Unlock()

	rb.report(diags)
	return item, true
}

// RegisterDrainCallback sets the function invoked after every Write,
// replacing any callback registered before. Passing nil removes it.
func (rb *RingBuffer[T]) RegisterDrainCallback(fn func()) {
	rb.mu.Lock()
	rb.drain = fn
	rb.mu.Unlock()
}

// Len returns the number of unread items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.pending
}

// Cap returns the current storage length, including the empty slot.
func (rb *RingBuffer[T]) Cap() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.storage)
}

// Source returns the tag attached to this buffer's diagnostics.
func (rb *RingBuffer[T]) Source() string {
	return rb.source
}

// Stats is a point-in-time view of a RingBuffer.
type Stats struct {
	Source          string `json:"source"`
	Pending         int    `json:"pending"`
	Capacity        int    `json:"capacity"`
	InitialCapacity int    `json:"initial_capacity"`
	MaxSize         int    `json:"max_size"`
	GrowthStep      int    `json:"growth_step"`
	ReadIndex       int    `json:"read_index"`
	WriteIndex      int    `json:"write_index"`
	Writes          uint64 `json:"writes"`
	Reads           uint64 `json:"reads"`
	Drops           uint64 `json:"drops"`
	Grows           uint64 `json:"grows"`
	Shrinks         uint64 `json:"shrinks"`
}

// Stats returns a consistent snapshot of counters and cursors.
func (rb *RingBuffer[T]) Stats() Stats {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return Stats{
		Source:          rb.source,
		Pending:         rb.pending,
		Capacity:        len(rb.storage),
		InitialCapacity: rb.initialCap,
		MaxSize:         rb.maxSize,
		GrowthStep:      rb.step,
		ReadIndex:       rb.readIdx,
		WriteIndex:      rb.writeIdx,
		Writes:          rb.writes,
		Reads:           rb.reads,
		Drops:           rb.drops,
		Grows:           rb.grows,
		Shrinks:         rb.shrinks,
	}
}

// dropOldest discards the item under the read cursor. Caller holds mu.
func (rb *RingBuffer[T]) dropOldest() {
	var zero T
	rb.storage[rb.readIdx] = zero
	rb.readIdx = (rb.readIdx + 1) % len(rb.storage)
	rb.pending--
	rb.drops++
}

// grow inserts step empty slots right after the write cursor. Items ahead of
// the write cursor keep their relative order; if the unread region wraps past
// the old end of storage the read cursor moves with its items.
// Caller holds mu.
func (rb *RingBuffer[T]) grow() {
	grown := make([]T, len(rb.storage)+rb.step)
	split := rb.writeIdx + 1
	copy(grown, rb.storage[:split])
	copy(grown[split+rb.step:], rb.storage[split:])
	if rb.readIdx > rb.writeIdx {
		rb.readIdx += rb.step
	}
	rb.storage = grown
	rb.grows++
}

func (rb *RingBuffer[T]) diagnostic(level Level, event string, verbosity int, msg string, fields map[string]interface{}) Diagnostic {
	return Diagnostic{
		Level:     level,
		Source:    rb.source,
		Event:     event,
		Message:   msg,
		Verbosity: verbosity,
		Fields:    fields,
	}
}

func (rb *RingBuffer[T]) report(diags []Diagnostic) {
	for _, d := range diags {
		rb.reporter.Report(d)
	}
}
