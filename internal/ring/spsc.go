package ring

import "sync/atomic"

// Ring is a bounded, lock-free, single-producer single-consumer queue of
// AudioFrame values. Push is safe to call from a device audio callback: it
// never allocates and never blocks. The ring is the only synchronization
// between a capture callback and its encoder worker (or, on playback, a
// decoder worker and the output callback).
type Ring struct {
	slots    []AudioFrame
	capacity uint64

	head atomic.Uint64 // next write position, producer-owned
	tail atomic.Uint64 // next read position, consumer-owned

	overflowCount atomic.Uint64
	underrunCount atomic.Uint64
}

// New creates a ring with the given fixed capacity. Capacity must be at
// least 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		slots:    make([]AudioFrame, capacity),
		capacity: uint64(capacity),
	}
}

// Push enqueues frame at the tail. It returns false and increments
// overflowCount if the ring is full. Never blocks, never allocates.
func (r *Ring) Push(frame AudioFrame) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= r.capacity {
		r.overflowCount.Add(1)
		return false
	}

	r.slots[head%r.capacity] = frame
	r.head.Add(1)
	return true
}

// Pop dequeues the oldest frame. It returns ok=false and increments
// underrunCount if the ring is empty.
func (r *Ring) Pop() (frame AudioFrame, ok bool) {
	head := r.head.Load()
	tail := r.tail.Load()

	if head == tail {
		r.underrunCount.Add(1)
		return AudioFrame{}, false
	}

	frame = r.slots[tail%r.capacity]
	r.tail.Add(1)
	return frame, true
}

// TryPop behaves like Pop but does not count an underrun. Used by consumers
// that intentionally drain without expecting data to be present.
func (r *Ring) TryPop() (frame AudioFrame, ok bool) {
	head := r.head.Load()
	tail := r.tail.Load()

	if head == tail {
		return AudioFrame{}, false
	}

	frame = r.slots[tail%r.capacity]
	r.tail.Add(1)
	return frame, true
}

// Len returns the current number of occupied slots. Derived, not authoritative.
func (r *Ring) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// Capacity returns the fixed capacity.
func (r *Ring) Capacity() int { return int(r.capacity) }

// IsEmpty reports whether the ring currently has no occupied slots.
func (r *Ring) IsEmpty() bool { return r.head.Load() == r.tail.Load() }

// IsFull reports whether the ring currently has no free slots.
func (r *Ring) IsFull() bool { return r.head.Load()-r.tail.Load() >= r.capacity }

// FillLevel returns Len/Capacity as a fraction in [0,1].
func (r *Ring) FillLevel() float64 {
	return float64(r.Len()) / float64(r.capacity)
}

// OverflowCount returns the number of pushes refused because the ring was full.
func (r *Ring) OverflowCount() uint64 { return r.overflowCount.Load() }

// UnderrunCount returns the number of pops that found the ring empty.
func (r *Ring) UnderrunCount() uint64 { return r.underrunCount.Load() }

// ResetStats zeroes overflowCount and underrunCount.
func (r *Ring) ResetStats() {
	r.overflowCount.Store(0)
	r.underrunCount.Store(0)
}
