package events

import (
	"time"
)

var buffer = newHistory(256)

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Source    string                 `json:"source,omitempty"`
	Message   string                 `json:"msg,omitempty"`
	Verbosity int                    `json:"verbosity,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an event that is always written to the log.
func Emit(level, name, msg string, fields map[string]interface{}) error {
	return Publish(Event{
		Level:   level,
		Name:    name,
		Message: msg,
		Fields:  fields,
	})
}

// Publish validates e, stamps it if needed, and hands it to the history
// buffer, the websocket subscribers and the log output. It never blocks on
// slow subscribers.
func Publish(e Event) error {
	if err := Validate(e.Name); err != nil {
		return err
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	buffer.Add(e)
	broadcast(e)
	write(e)
	return nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events published since startup.
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
