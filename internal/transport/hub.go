package transport

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// defaultQueueSize is the number of frames a subscriber may fall behind
// before it is dropped.
const defaultQueueSize = 16

// Hub fans applied payload frames out to the subscribers of a location.
// A subscriber whose queue is full is dropped: its frame channel is
// closed and it must resubscribe and refetch the snapshot.
type Hub struct {
	mu        sync.Mutex
	subs      map[types.Location]map[string]chan []byte
	queueSize int
	closed    bool

	onChange func(delta int)
	onDrop   func()
}

// NewHub creates a Hub whose subscriber queues hold queueSize frames.
// queueSize <= 0 selects the default.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		subs:      make(map[types.Location]map[string]chan []byte),
		queueSize: queueSize,
	}
}

// Subscribe registers a subscriber for loc. Frames arrive on the returned
// channel until cancel is called, the subscriber is dropped, or the hub
// closes; in every case the channel is closed. cancel is idempotent.
func (h *Hub) Subscribe(loc types.Location) (id string, frames <-chan []byte, cancel func()) {
	ch := make(chan []byte, h.queueSize)
	id = uuid.NewString()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return id, ch, func() {}
	}
	if h.subs[loc] == nil {
		h.subs[loc] = make(map[string]chan []byte)
	}
	h.subs[loc][id] = ch
	h.changed(1)
	h.mu.Unlock()

	return id, ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeLocked(loc, id)
	}
}

// Broadcast queues frame for every subscriber of loc and returns how many
// received it.
func (h *Hub) Broadcast(loc types.Location, frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for id, ch := range h.subs[loc] {
		select {
		case ch <- frame:
			sent++
		default:
			h.removeLocked(loc, id)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
	return sent
}

// Count returns the number of subscribers of loc.
func (h *Hub) Count(loc types.Location) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[loc])
}

// Close drops every subscriber. Later subscriptions receive a closed
// channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for loc, subs := range h.subs {
		for id := range subs {
			h.removeLocked(loc, id)
		}
	}
	h.closed = true
}

func (h *Hub) removeLocked(loc types.Location, id string) {
	subs := h.subs[loc]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.subs, loc)
	}
	close(ch)
	h.changed(-1)
}

func (h *Hub) changed(delta int) {
	if h.onChange != nil {
		h.onChange(delta)
	}
}
