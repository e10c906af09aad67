package events

import "sync"

// history keeps the most recent events for the API, overwriting the oldest.
type history struct {
	mu     sync.RWMutex
	size   int
	events []Event
	index  int
	full   bool
	total  uint64
}

func newHistory(size int) *history {
	return &history{
		size:   size,
		events: make([]Event, size),
	}
}

func (h *history) Add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[h.index] = e
	h.index = (h.index + 1) % h.size
	if h.index == 0 {
		h.full = true
	}
	h.total++
}

func (h *history) Snapshot() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		return append([]Event{}, h.events[:h.index]...)
	}

	out := make([]Event, 0, h.size)
	out = append(out, h.events[h.index:]...)
	out = append(out, h.events[:h.index]...)
	return out
}

func (h *history) Total() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *history) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = make([]Event, h.size)
	h.index = 0
	h.full = false
}
