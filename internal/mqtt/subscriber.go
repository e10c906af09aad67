package mqtt

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/minofeel/TuringBot/internal/chatlog"
	"github.com/minofeel/TuringBot/internal/events"
)

// TopicSubscriber is the part of Client the subscriber needs.
type TopicSubscriber interface {
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
}

// MessageWriter accepts parsed chat messages, typically a ring buffer.
type MessageWriter interface {
	Write(msg chatlog.Message)
}

// ChannelSubscriber subscribes to chat channel topics and writes every
// incoming message to the buffer. It ensures idempotent subscription
// handling across reconnects.
type ChannelSubscriber struct {
	mu         sync.RWMutex
	client     TopicSubscriber
	registry   *ChannelRegistry
	out        MessageWriter
	qos        byte
	subscribed map[string]bool // topic -> subscribed
	now        func() time.Time
}

// NewChannelSubscriber creates a new channel subscriber.
func NewChannelSubscriber(client TopicSubscriber, registry *ChannelRegistry, out MessageWriter, qos byte) *ChannelSubscriber {
	return &ChannelSubscriber{
		client:     client,
		registry:   registry,
		out:        out,
		qos:        qos,
		subscribed: make(map[string]bool),
		now:        time.Now,
	}
}

// SubscribeChannel subscribes to a channel's topic if not already subscribed.
func (s *ChannelSubscriber) SubscribeChannel(ch *Channel) error {
	if ch.Topic == "" {
		return nil
	}

	s.mu.Lock()
	if s.subscribed[ch.Topic] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	handler := s.createHandler(ch.ID)
	if err := s.client.Subscribe(ch.Topic, s.qos, handler); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed[ch.Topic] = true
	s.mu.Unlock()

	_ = events.Emit("info", "channel.subscribed", "", map[string]interface{}{
		"channel_id": ch.ID,
		"topic":      ch.Topic,
	})
	return nil
}

// SubscribeAll subscribes to every registered channel. Failures are reported
// per channel and the remaining channels are still attempted.
func (s *ChannelSubscriber) SubscribeAll() error {
	var errs []error
	for _, ch := range s.registry.All() {
		if err := s.SubscribeChannel(ch); err != nil {
			_ = events.Emit("error", "channel.error", "failed to subscribe to channel", map[string]interface{}{
				"channel_id": ch.ID,
				"topic":      ch.Topic,
				"error":      err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resubscribe forgets tracked subscriptions and subscribes again. Use it as
// the client's OnConnect hook.
func (s *ChannelSubscriber) Resubscribe() {
	s.ClearSubscriptions()
	_ = s.SubscribeAll()
}

// createHandler turns payloads on a channel topic into buffered messages.
func (s *ChannelSubscriber) createHandler(channelID string) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		receivedAt := s.now()
		msg, err := chatlog.ParseMessage(channelID, m.Payload(), receivedAt)
		if err != nil {
			s.registry.RecordRejected(channelID)
			_ = events.Publish(events.Event{
				Level:     "warning",
				Name:      "message.invalid",
				Message:   err.Error(),
				Verbosity: 2,
				Fields: map[string]interface{}{
					"channel_id": channelID,
					"topic":      m.Topic(),
				},
			})
			return
		}

		s.registry.RecordMessage(channelID, receivedAt)
		s.out.Write(msg)

		_ = events.Publish(events.Event{
			Level:     "info",
			Name:      "message.received",
			Verbosity: 5,
			Fields: map[string]interface{}{
				"id":         msg.ID,
				"channel_id": channelID,
			},
		})
	}
}

// IsSubscribed returns true if the topic is already subscribed.
func (s *ChannelSubscriber) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed[topic]
}

// SubscribedTopics returns a list of all subscribed topics.
func (s *ChannelSubscriber) SubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	return topics
}

// ClearSubscriptions clears the subscription tracking.
// Call this on disconnect to allow re-subscription on reconnect.
func (s *ChannelSubscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}
