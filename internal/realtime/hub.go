// Package realtime provides the subscribe-on-path change feed that sits in front of the
// user store. Writers publish the path they changed; subscribers are notified and read
// a fresh snapshot of whatever their path covers.
package realtime

import (
	"strings"
	"sync"
)

// Change tells a subscriber that something at or around its path was written.
// Seq increases monotonically per hub.
type Change struct {
	Path string
	Seq  uint64
}

type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seq    uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives coalesced changes for one path.
type Subscription struct {
	hub  *Hub
	path string
	ch   chan Change
}

// Subscribe registers interest in path. The returned subscription must be closed.
// Subscribing on a closed hub returns a subscription whose channel is already closed.
func (h *Hub) Subscribe(path string) *Subscription {
	s := &Subscription{hub: h, path: CleanPath(path), ch: make(chan Change, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish notifies every subscription whose path is related to path. It never blocks:
// a subscriber that has not consumed its previous notification only keeps the latest.
func (h *Hub) Publish(path string) {
	if h == nil {
		return
	}
	path = CleanPath(path)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	change := Change{Path: path, Seq: h.seq}
	for s := range h.subs {
		if !Related(s.path, path) {
			continue
		}
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- change:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}

// C returns the notification channel. It is closed when the subscription or hub closes.
func (s *Subscription) C() <-chan Change {
	return s.ch
}

func (s *Subscription) Path() string {
	return s.path
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}

// CleanPath trims slashes and drops empty segments: "/users//a/" -> "users/a".
func CleanPath(p string) string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, "/")
}

// Related reports whether a write at written affects the snapshot at subscribed:
// the paths are equal, or one is an ancestor of the other.
func Related(subscribed, written string) bool {
	if subscribed == written || subscribed == "" || written == "" {
		return true
	}
	return strings.HasPrefix(written, subscribed+"/") || strings.HasPrefix(subscribed, written+"/")
}
