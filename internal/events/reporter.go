package events

import (
	"github.com/minofeel/TuringBot/internal/ringbuf"
)

// BufferReporter forwards ring buffer diagnostics into the event stream.
type BufferReporter struct{}

// Report implements ringbuf.Reporter.
func (BufferReporter) Report(d ringbuf.Diagnostic) {
	_ = Publish(Event{
		Level:     string(d.Level),
		Name:      d.Event,
		Source:    d.Source,
		Message:   d.Message,
		Verbosity: d.Verbosity,
		Fields:    d.Fields,
	})
}
