package mqtt

import (
	"sort"
	"sync"
	"time"
)

// Channel holds runtime information about a logged chat channel.
type Channel struct {
	ID          string
	Topic       string
	Received    uint64
	Rejected    uint64
	LastMessage time.Time
}

// ChannelRegistry maps chat channel IDs to their topics and counters.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewChannelRegistry creates a new empty channel registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]*Channel),
	}
}

// Register adds or replaces a channel, resetting its counters.
func (r *ChannelRegistry) Register(id, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[id] = &Channel{ID: id, Topic: topic}
}

// Unregister removes a channel from the registry.
func (r *ChannelRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
}

// Get returns a copy of a channel, or nil if not found.
func (r *ChannelRegistry) Get(id string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch, ok := r.channels[id]; ok {
		cpy := *ch
		return &cpy
	}
	return nil
}

// Exists returns true if the channel is registered.
func (r *ChannelRegistry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[id]
	return ok
}

// RecordMessage counts an accepted message for the channel.
func (r *ChannelRegistry) RecordMessage(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[id]; ok {
		ch.Received++
		ch.LastMessage = at
	}
}

// RecordRejected counts a payload that could not be turned into a message.
func (r *ChannelRegistry) RecordRejected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[id]; ok {
		ch.Rejected++
	}
}

// All returns copies of all channels ordered by ID.
func (r *ChannelRegistry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		cpy := *ch
		result = append(result, &cpy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Clear removes all channels from the registry.
func (r *ChannelRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string]*Channel)
}
