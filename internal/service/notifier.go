package service

import (
	"log/slog"
	"sync"
)

// Event is one message pushed over a user's live stream.
type Event struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Event types emitted on the food-analysis stream.
const (
	EventConnected        = "connected"
	EventAnalysisComplete = "analysis_complete"
	EventError            = "error"
)

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Notifier is the registry of per-user live connections. At most one entry
// exists per user id; a new subscription replaces (and closes) the previous
// one. Delivery is at-most-once: Notify drops the event when no subscriber
// is registered. The client-side polling fallback covers that gap.
type Notifier struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool
}

// NewNotifier creates an empty registry. Its lifecycle belongs to the
// server: Close on shutdown ends every open stream.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]*subscriber)}
}

// Subscribe registers a live connection for userID and returns its event
// channel plus a cancel function. The channel immediately carries a
// "connected" acknowledgment. Subscribing twice for the same user closes
// the earlier channel (last writer wins).
func (n *Notifier) Subscribe(userID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 8)}
	// Enqueue the acknowledgment before the channel is visible to writers.
	sub.ch <- Event{Type: EventConnected, Message: "SSE connection established"}

	n.mu.Lock()
	if n.closed {
		sub.close()
		n.mu.Unlock()
		return sub.ch, func() {}
	}
	if prev, ok := n.subs[userID]; ok {
		prev.close()
	}
	n.subs[userID] = sub
	n.mu.Unlock()

	slog.Debug("live connection registered", "user_id", userID)

	cancel := func() {
		n.mu.Lock()
		if current, ok := n.subs[userID]; ok && current == sub {
			delete(n.subs, userID)
		}
		// Close under the lock so no send can race the close.
		sub.close()
		n.mu.Unlock()
		slog.Debug("live connection removed", "user_id", userID)
	}
	return sub.ch, cancel
}

// Notify sends a single event to userID's live connection. It reports false
// when no connection is registered or the connection cannot keep up; in the
// latter case the stale entry is removed. There is no queuing and no retry.
// The send happens under the registry lock: channels are only ever closed
// while the lock is held, so the send cannot hit a closed channel. The
// channel is buffered and the send non-blocking, so the lock is never held
// waiting on a consumer.
func (n *Notifier) Notify(userID string, ev Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, ok := n.subs[userID]
	if !ok {
		slog.Debug("no live connection for user", "user_id", userID, "event", ev.Type)
		return false
	}

	select {
	case sub.ch <- ev:
		return true
	default:
		// Consumer stopped draining; treat the connection as dead.
		delete(n.subs, userID)
		sub.close()
		slog.Warn("dropped stalled live connection", "user_id", userID)
		return false
	}
}

// Connections returns the number of registered live connections.
func (n *Notifier) Connections() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close ends every open stream and rejects further subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs {
		sub.close()
	}
	n.subs = make(map[string]*subscriber)
	n.closed = true
}
