// Package hub fans completed attendance records out to live subscribers.
package hub

import (
	"sync"

	"tutortrack/internal/record"
)

// Hub broadcasts records to any number of subscribers. A subscriber that
// cannot keep up has the message dropped rather than blocking the webhook
// path.
type Hub struct {
	mu   sync.Mutex
	subs map[chan record.Record]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[chan record.Record]struct{})}
}

// Subscribe registers a buffered channel receiving future records. The
// returned cancel func removes the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan record.Record, func()) {
	ch := make(chan record.Record, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers rec to every subscriber, dropping on full buffers.
func (h *Hub) Broadcast(rec record.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
