// Package chatlog moves chat messages from the ring buffer into the message
// log. The producer side writes into the buffer; Relay is the consumer task
// that drains it into a Sink, one network call per message.
package chatlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minofeel/TuringBot/internal/events"
)

// DefaultAppendTimeout bounds a single Sink.Append call.
const DefaultAppendTimeout = 5 * time.Second

// Sink stores messages. Append is expected to be slow (network I/O).
type Sink interface {
	Append(ctx context.Context, msg Message) error
}

// Buffer is the part of ringbuf.RingBuffer[Message] the relay consumes.
type Buffer interface {
	Read() (Message, bool)
	RegisterDrainCallback(fn func())
}

// Relay drains a Buffer into a Sink. The buffer's drain callback only
// signals the relay; all sink I/O happens on the goroutine running Run.
type Relay struct {
	buf           Buffer
	sink          Sink
	appendTimeout time.Duration

	wake    chan struct{}
	drainMu sync.Mutex

	running   atomic.Bool
	delivered atomic.Uint64
	failed    atomic.Uint64

	errMu       sync.Mutex
	errorLogged bool
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithAppendTimeout overrides DefaultAppendTimeout. Non-positive values are ignored.
func WithAppendTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.appendTimeout = d
		}
	}
}

// NewRelay creates a relay and registers it as buf's drain callback.
func NewRelay(buf Buffer, sink Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		buf:           buf,
		sink:          sink,
		appendTimeout: DefaultAppendTimeout,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	buf.RegisterDrainCallback(r.signal)
	return r
}

// signal is the drain callback. It never blocks the writer.
func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run delivers buffered messages until ctx is cancelled. Each wake-up drains
// the buffer until it reports empty. Run returns nil on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	// Pick up anything written before Run started.
	r.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
			r.drain(ctx)
		}
	}
}

// Flush synchronously drains the buffer and returns the number of messages
// the sink accepted.
func (r *Relay) Flush(ctx context.Context) int {
	n := r.drain(ctx)
	_ = events.Emit("info", "sink.flushed", "", map[string]interface{}{
		"delivered": n,
	})
	return n
}

func (r *Relay) drain(ctx context.Context) int {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	n := 0
	for ctx.Err() == nil {
		msg, ok := r.buf.Read()
		if !ok {
			break
		}
		if r.deliver(ctx, msg) {
			n++
		}
	}
	return n
}

// deliver appends one message. Cancelling ctx stops drain from reading more,
// but an append already started runs to completion or to appendTimeout,
// because the message has left the buffer and would otherwise be lost.
func (r *Relay) deliver(ctx context.Context, msg Message) bool {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.appendTimeout)
	defer cancel()

	if err := r.sink.Append(actx, msg); err != nil {
		r.failed.Add(1)
		r.reportError(msg, err)
		return false
	}

	r.delivered.Add(1)
	_ = events.Publish(events.Event{
		Level:     "info",
		Name:      "message.logged",
		Verbosity: 4,
		Fields: map[string]interface{}{
			"id":         msg.ID,
			"channel_id": msg.ChannelID,
		},
	})
	return true
}

// reportError emits sink.error for every failure and system.error once.
func (r *Relay) reportError(msg Message, err error) {
	_ = events.Publish(events.Event{
		Level:     "error",
		Name:      "sink.error",
		Message:   "message append failed",
		Verbosity: 1,
		Fields: map[string]interface{}{
			"id":         msg.ID,
			"channel_id": msg.ChannelID,
			"error":      err.Error(),
		},
	})

	r.errMu.Lock()
	first := !r.errorLogged
	r.errorLogged = true
	r.errMu.Unlock()

	if first {
		_ = events.Emit("error", "system.error", "message sink unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Running reports whether Run is active.
func (r *Relay) Running() bool {
	return r.running.Load()
}

// RelayStats counts relay outcomes since startup.
type RelayStats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Running   bool   `json:"running"`
}

// Stats returns the relay counters.
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Running:   r.running.Load(),
	}
}
