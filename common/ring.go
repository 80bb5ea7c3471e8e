package common

import (
	"sync"
)

// RingBuffer is a fixed-size FIFO that overwrites its oldest element once full.
// It backs the sliding windows of the filters and the transition history
// of the environment classifier, so it is safe for concurrent use.
type RingBuffer[T any] struct {
	buffer []T
	size   int
	mu     sync.Mutex
	write  int
	count  int
}

// NewRingBuffer creates a new ring buffer with a fixed size.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{
		buffer: make([]T, size),
		size:   size,
	}
}

// Add inserts a new element into the buffer, overwriting the oldest if full.
func (rb *RingBuffer[T]) Add(value T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buffer[rb.write] = value
	rb.write = (rb.write + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// index maps the i'th oldest element to its slot.
func (rb *RingBuffer[T]) index(i int) int {
	return (rb.write + rb.size - rb.count + i) % rb.size
}

func (rb *RingBuffer[T]) span(from, to int) []T {
	out := make([]T, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, rb.buffer[rb.index(i)])
	}
	return out
}

// Get returns the contents of the buffer in FIFO order.
func (rb *RingBuffer[T]) Get() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.span(0, rb.count)
}

// Head returns the first (oldest) n elements in the buffer.
func (rb *RingBuffer[T]) Head(n int) []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if n > rb.count {
		n = rb.count
	}
	return rb.span(0, n)
}

// Tail returns the last (newest) n elements in the buffer.
func (rb *RingBuffer[T]) Tail(n int) []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if n > rb.count {
		n = rb.count
	}
	return rb.span(rb.count-n, rb.count)
}

// Len returns the current number of elements in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the fixed size of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	return rb.size
}

// Full reports whether the buffer holds Cap elements.
func (rb *RingBuffer[T]) Full() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count == rb.size
}

// Last returns the newest element, or the zero value when empty.
func (rb *RingBuffer[T]) Last() T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count == 0 {
		var zero T
		return zero
	}
	return rb.buffer[(rb.write+rb.size-1)%rb.size]
}

// First returns the oldest element, or the zero value when empty.
func (rb *RingBuffer[T]) First() T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count == 0 {
		var zero T
		return zero
	}
	return rb.buffer[rb.index(0)]
}

// Scan calls fn on each element oldest first until fn returns false.
func (rb *RingBuffer[T]) Scan(fn func(T) bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for i := 0; i < rb.count; i++ {
		if !fn(rb.buffer[rb.index(i)]) {
			break
		}
	}
}

// Reset empties the buffer.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	var zero T
	for i := range rb.buffer {
		rb.buffer[i] = zero
	}
	rb.write = 0
	rb.count = 0
}
