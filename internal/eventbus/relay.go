package eventbus

import (
	"sync"
	"sync/atomic"
)

// Relay hands values from the control loop goroutine to other goroutines
// through buffered channels. Send never blocks: a value is dropped for a
// listener whose buffer is full.
type Relay[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	size    int
	closed  bool
	dropped atomic.Uint64
}

// NewRelay creates a Relay whose listener channels hold size values.
func NewRelay[T any](size int) *Relay[T] {
	if size <= 0 {
		size = 8
	}
	return &Relay[T]{size: size}
}

// Send forwards v to every listener.
func (r *Relay[T]) Send(v T) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, ch := range r.subs {
		select {
		case ch <- v:
		default:
			r.dropped.Add(1)
		}
	}
}

// Listen returns a new listener channel.
func (r *Relay[T]) Listen() <-chan T {
	ch := make(chan T, r.size)
	r.mu.Lock()
	if r.closed {
		close(ch)
	} else {
		r.subs = append(r.subs, ch)
	}
	r.mu.Unlock()
	return ch
}

// Dropped returns how many values were discarded on full buffers.
func (r *Relay[T]) Dropped() uint64 { return r.dropped.Load() }

// Close closes every listener channel.
func (r *Relay[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.subs {
		close(ch)
	}
	r.subs = nil
}
