package app

import "sync"

// hub fans values out to subscribers. A full subscriber buffer loses its
// oldest value so publishers never block on slow readers.
type hub[T any] struct {
	mu     sync.Mutex
	size   int
	closed bool
	subs   map[chan T]struct{}
}

func newHub[T any](size int) *hub[T] {
	return &hub[T]{size: size, subs: make(map[chan T]struct{})}
}

// subscribe registers a channel, optionally primed with an initial value.
// The returned cancel func closes the channel and is safe to call twice.
func (h *hub[T]) subscribe(initial func() (T, bool)) (<-chan T, func()) {
	ch := make(chan T, h.size)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	if initial != nil {
		if v, ok := initial(); ok {
			ch <- v
		}
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// close ends every subscription; later subscribers get a closed channel.
func (h *hub[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
