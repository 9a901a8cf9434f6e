// Package hub fans delivery notifications out to live stream subscribers.
package hub

import "sync"

// DefaultCapacity is the replay buffer size used by New.
const DefaultCapacity = 100

// ring is a fixed-capacity circular buffer of lines.
type ring struct {
	buf []string
	pos int // next write position
}

// lines returns the buffered lines in order from oldest to newest.
func (r *ring) lines() []string {
	n := len(r.buf)
	if n < cap(r.buf) || r.pos == 0 {
		out := make([]string, n)
		copy(out, r.buf)
		return out
	}
	// Buffer is full and has wrapped: pos points to the oldest entry.
	out := make([]string, n)
	copy(out, r.buf[r.pos:])
	copy(out[n-r.pos:], r.buf[:r.pos])
	return out
}

func (r *ring) append(line string) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, line)
	} else {
		r.buf[r.pos] = line
	}
	r.pos = (r.pos + 1) % cap(r.buf)
}

// Hub broadcasts lines to every subscriber. The most recent lines are
// replayed to subscribers that join late.
type Hub struct {
	mu      sync.Mutex
	recent  ring
	clients map[chan string]struct{}
	closed  bool
}

// New creates a Hub with DefaultCapacity lines of replay.
func New() *Hub {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Hub that replays up to n lines. n < 1 is treated as 1.
func NewWithCapacity(n int) *Hub {
	if n < 1 {
		n = 1
	}
	return &Hub{
		recent:  ring{buf: make([]string, 0, n)},
		clients: make(map[chan string]struct{}),
	}
}

// Publish records line and sends it to all current subscribers. Sends are
// non-blocking so a slow consumer cannot stall the request path; a full
// subscriber misses the line.
func (h *Hub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.recent.append(line)
	for ch := range h.clients {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe returns a channel that first yields the replay buffer and then
// live lines, plus an unsubscribe function. After Close the channel is
// closed once the replay has been drained.
func (h *Hub) Subscribe() (<-chan string, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan string, cap(h.recent.buf)+64)
	for _, line := range h.recent.lines() {
		ch <- line
	}

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	h.clients[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Subscribers reports how many clients are currently subscribed.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		close(ch)
	}
	h.clients = nil
}
