package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// buffer
	"buffer.grown":   {},
	"buffer.shrunk":  {},
	"buffer.dropped": {},

	// message
	"message.received": {},
	"message.invalid":  {},
	"message.logged":   {},

	// sink
	"sink.error":   {},
	"sink.flushed": {},

	// channel
	"channel.subscribed": {},
	"channel.error":      {},

	// mqtt
	"mqtt.connected":    {},
	"mqtt.disconnected": {},

	// operator
	"operator.flush": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
