package events

import (
	"sync"
	"time"
)

// Progress event severity levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is one timestamped, leveled progress message for an operation.
// Metadata carries freeform scalar context attached by collaborators.
type Event struct {
	OperationID string            `json:"operation_id"`
	Level       string            `json:"level"`
	Message     string            `json:"message"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Subscription is one live delivery channel for a single operation's events.
// C is closed when the operation reaches a terminal state or the subscription
// is removed from the hub.
type Subscription struct {
	C <-chan Event

	hub     *Hub
	opID    string
	ch      chan Event
	dropped uint64
}

// Dropped reports deliveries skipped because the subscriber's buffer was full.
func (s *Subscription) Dropped() uint64 {
	if s == nil || s.hub == nil {
		return 0
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

// Hub fans out operation events to registered subscribers. Each operation's
// stream moves idle -> streaming -> closed; subscribers that join late miss
// earlier events (no backlog replay) and should read current state from the
// status store instead.
type Hub struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*Subscription]struct{}
	closed map[string]struct{}
}

// NewHub constructs a hub whose subscribers buffer up to buffer events each.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
		closed: make(map[string]struct{}),
	}
}

// Subscribe registers a delivery channel for the operation. Subscribing to an
// already-closed stream returns a subscription whose channel is closed, so
// consumers uniformly observe "drain then closed".
func (h *Hub) Subscribe(opID string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, hub: h, opID: opID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, done := h.closed[opID]; done {
		close(ch)
		return sub
	}
	set := h.subs[opID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[opID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// after the hub already closed the operation's stream.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if h == nil || sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.opID]
	if !ok {
		return
	}
	if _, registered := set[sub]; !registered {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.opID)
	}
	close(sub.ch)
}

// Publish delivers the event to every current subscriber of its operation.
// A subscriber whose buffer is full misses the event rather than stalling the
// writer; the durable journal remains the complete record.
func (h *Hub) Publish(evt Event) {
	if h == nil || evt.OperationID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[evt.OperationID] {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped++
		}
	}
}

// Close marks the operation's stream terminal: all subscriber channels are
// closed after any buffered events drain, and future subscribers observe an
// immediately closed channel.
func (h *Hub) Close(opID string) {
	if h == nil || opID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, done := h.closed[opID]; done {
		return
	}
	h.closed[opID] = struct{}{}
	for sub := range h.subs[opID] {
		close(sub.ch)
	}
	delete(h.subs, opID)
}

// SubscriberCount reports the number of live subscriptions for an operation.
func (h *Hub) SubscriberCount(opID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[opID])
}
