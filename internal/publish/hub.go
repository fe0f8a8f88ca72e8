package publish

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrSubscriberNotFound = errors.New("subscriber id not found")
	ErrHubClosed          = errors.New("hub is closed")
)

// DefaultBuffer is the per-subscriber channel size when Subscribe is
// given zero.
const DefaultBuffer = 64

// Hub distributes notifications to dashboard subscribers. A subscriber
// whose channel is full misses the notification; Publish never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool

	published atomic.Uint64
}

type subscriber struct {
	ch      chan Notification
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Subscription is a live registration. C is closed on Unsubscribe or
// Close.
type Subscription struct {
	ID string
	C  <-chan Notification
}

type HubStats struct {
	Published   uint64 `json:"published"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

func (h *Hub) Subscribe(buffer int) (Subscription, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Subscription{}, ErrHubClosed
	}

	id := uuid.NewString()
	s := &subscriber{ch: make(chan Notification, buffer)}
	h.subs[id] = s
	return Subscription{ID: id, C: s.ch}, nil
}

func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	s, ok := h.subs[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	delete(h.subs, id)
	close(s.ch)
	return nil
}

// Publish sends n to every subscriber without blocking. Publishing to a
// closed hub is a no-op.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	h.published.Add(1)

	for _, s := range h.subs {
		select {
		case s.ch <- n:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := HubStats{Published: h.published.Load(), Subscribers: len(h.subs)}
	for _, s := range h.subs {
		st.Sent += s.sent.Load()
		st.Dropped += s.dropped.Load()
	}
	return st
}

// Close unsubscribes everyone. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}
