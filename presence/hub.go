package presence

import (
	"context"
	"sync"

	"shifttrack/model"
	"shifttrack/utils"
)

// Hub fans snapshots out to the in-process subscribers (SSE streams) and keeps an
// advisory count of open connections per user. Nothing here feeds accounting.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan *model.PresenceSnapshot]string
	connections map[string]int
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan *model.PresenceSnapshot]string),
		connections: make(map[string]int),
	}
}

// Subscribe registers a buffered channel for userID. The returned func unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan *model.PresenceSnapshot, func()) {
	ch := make(chan *model.PresenceSnapshot, 1)

	h.mu.Lock()
	h.subscribers[ch] = userID
	if userID != "" {
		h.connections[userID]++
	}
	h.mu.Unlock()
	utils.StreamSubscribers.Inc()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(ch)
	}
}

// remove drops a subscriber once; callers hold the write lock.
func (h *Hub) remove(ch chan *model.PresenceSnapshot) {
	userID, ok := h.subscribers[ch]
	if !ok {
		return
	}
	delete(h.subscribers, ch)
	if userID != "" {
		h.connections[userID]--
		if h.connections[userID] <= 0 {
			delete(h.connections, userID)
		}
	}
	close(ch)
	utils.StreamSubscribers.Dec()
}

// Close ends every subscription, which lets open streams return.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		h.remove(ch)
	}
}

// Publish delivers the snapshot to every subscriber. A subscriber still holding an
// older snapshot has it replaced, so slow readers only ever see the latest state.
func (h *Hub) Publish(_ context.Context, snap *model.PresenceSnapshot) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return nil
}

func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connections[userID] > 0
}

// Connected returns the ids of users with at least one open stream.
func (h *Hub) Connected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
