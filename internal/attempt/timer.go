package attempt

import (
	"context"
	"sync"
	"time"
)

// Timer counts down whole seconds and signals expiry at most once.
// A Timer is single-use: once it expires or is cancelled it stays stopped.
type Timer struct {
	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool
	expired   bool
	done      chan struct{}

	onExpire func()
	onTick   func(remaining int)
}

// NewTimer returns an idle timer. onExpire may be nil.
func NewTimer(onExpire func()) *Timer {
	return &Timer{
		onExpire: onExpire,
		done:     make(chan struct{}),
	}
}

// OnTick registers an observer called after every tick with the seconds left.
// It must be set before the timer starts.
func (t *Timer) OnTick(fn func(remaining int)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// Start arms the timer. Starting a running or stopped timer does nothing.
func (t *Timer) Start(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	t.remaining = seconds
	t.started = true
}

// Tick consumes one second. When the count reaches zero the expiry callback
// fires once and the timer stops. Callbacks run without the timer lock held.
func (t *Timer) Tick() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	if t.remaining > 0 {
		t.remaining--
	}
	remaining := t.remaining
	fire := remaining == 0
	if fire {
		t.expired = true
		t.stopLocked()
	}
	onTick, onExpire := t.onTick, t.onExpire
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if fire && onExpire != nil {
		onExpire()
	}
}

// Cancel stops the timer without firing expiry.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Remaining returns the seconds left on the clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Expired reports whether the expiry signal has fired.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Done is closed once the timer expires or is cancelled.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

// Run ticks every interval until the timer stops or ctx is done.
func (t *Timer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

func (t *Timer) stopLocked() {
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}
