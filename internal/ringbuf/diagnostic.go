package ringbuf

// Level is the severity of a diagnostic emitted by a RingBuffer.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event names carried by diagnostics. They match the names registered in the
// events package so a Reporter can forward them unchanged.
const (
	EventGrown   = "buffer.grown"
	EventShrunk  = "buffer.shrunk"
	EventDropped = "buffer.dropped"
)

// Verbosity thresholds attached to diagnostics. Lower is more important.
const (
	VerbosityDrop   = 1
	VerbosityResize = 3
)

// Diagnostic is an observational event about buffer state.
type Diagnostic struct {
	Level     Level
	Source    string
	Event     string
	Message   string
	Verbosity int
	Fields    map[string]interface{}
}

// Reporter receives diagnostics. Report is called outside the buffer lock and
// must not block; the buffer ignores anything the reporter does.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a plain function to the Reporter interface.
type ReporterFunc func(d Diagnostic)

// Report calls f(d).
func (f ReporterFunc) Report(d Diagnostic) {
	f(d)
}

type nopReporter struct{}

func (nopReporter) Report(Diagnostic) {}
