package ringbuf

import (
	"errors"
	"fmt"
)

// DefaultSource is the source tag used when none is configured.
const DefaultSource = "ringbuf"

// ErrInvalidConfig is returned by New when the sizing parameters are unusable.
var ErrInvalidConfig = errors.New("invalid ring buffer config")

// Config holds the sizing parameters of a RingBuffer.
type Config struct {
	// InitialCapacity is the starting storage length and the floor it shrinks back to.
	InitialCapacity int `yaml:"initial_capacity" json:"initial_capacity"`
	// MaxSize is the ceiling on unread items; reaching it triggers forced drops.
	MaxSize int `yaml:"max_size" json:"max_size"`
	// GrowthStep is the number of slots added per resize and items dropped per overflow.
	GrowthStep int `yaml:"growth_step" json:"growth_step"`
}

// Validate reports whether the config can build a buffer.
func (c Config) Validate() error {
	switch {
	case c.InitialCapacity <= 0:
		return fmt.Errorf("%w: initial capacity must be positive, got %d", ErrInvalidConfig, c.InitialCapacity)
	case c.MaxSize <= 0:
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, c.MaxSize)
	case c.GrowthStep <= 0:
		return fmt.Errorf("%w: growth step must be positive, got %d", ErrInvalidConfig, c.GrowthStep)
	case c.GrowthStep >= c.MaxSize:
		return fmt.Errorf("%w: growth step %d must be less than max size %d", ErrInvalidConfig, c.GrowthStep, c.MaxSize)
	}
	return nil
}

// Option configures a RingBuffer at construction.
type Option func(*options)

type options struct {
	source   string
	reporter Reporter
	drain    func()
}

// WithSource sets the source tag attached to every diagnostic.
func WithSource(source string) Option {
	return func(o *options) {
		if source != "" {
			o.source = source
		}
	}
}

// WithReporter sets the diagnostic sink. A nil reporter is ignored.
func WithReporter(r Reporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithDrainCallback installs the drain callback at construction time.
// It occupies the same slot as RegisterDrainCallback.
func WithDrainCallback(fn func()) Option {
	return func(o *options) {
		o.drain = fn
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		source:   DefaultSource,
		reporter: nopReporter{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
