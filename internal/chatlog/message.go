package chatlog

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessage is returned for payloads that carry no content.
var ErrInvalidMessage = errors.New("invalid chat message")

// Message is a single chat line as it is logged.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

type wireMessage struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"ts"`
}

// ParseMessage builds a Message from a raw payload received on channelID.
// JSON payloads are decoded; anything else is taken as the message text.
// Missing IDs get a fresh UUID and missing timestamps get receivedAt.
func ParseMessage(channelID string, payload []byte, receivedAt time.Time) (Message, error) {
	msg := Message{
		ChannelID: channelID,
		Timestamp: receivedAt.UTC(),
	}

	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err == nil {
		msg.ID = wire.ID
		msg.Author = wire.Author
		msg.Content = wire.Content
		if wire.Timestamp != nil && !wire.Timestamp.IsZero() {
			msg.Timestamp = wire.Timestamp.UTC()
		}
	} else {
		msg.Content = string(payload)
	}

	if strings.TrimSpace(msg.Content) == "" {
		return Message{}, ErrInvalidMessage
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg, nil
}
