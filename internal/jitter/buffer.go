// Package jitter implements the per-track reorder buffer that bridges UDP
// arrival jitter to a steady pull cadence.
package jitter

import (
	"sync/atomic"

	"netaudio/internal/ring"
)

// Buffer is a power-of-two sequence-indexed slot array. Insert places
// frames by sequence; Get/ForceGet drain them in sequence order, gated by a
// minimum occupancy (Get) or not (ForceGet).
//
// A single Buffer is owned by one goroutine (the track's decode+jitter
// worker), which both inserts and drains it; the playback pump never
// touches it. The counters are atomic only so the control plane can read
// them opportunistically from another goroutine without locking.
type Buffer struct {
	slots    []slot
	capacity uint32
	mask     uint32

	nextSequence uint32
	minDelay     uint32
	level        atomic.Uint32

	received atomic.Uint64
	lost     atomic.Uint64
	late     atomic.Uint64
}

type slot struct {
	frame    ring.AudioFrame
	occupied bool
}

// New creates a jitter buffer. capacity must be a power of two.
func New(capacity int, minDelay int) *Buffer {
	if capacity < 1 || capacity&(capacity-1) != 0 {
		panic("jitter: capacity must be a power of two")
	}
	return &Buffer{
		slots:    make([]slot, capacity),
		capacity: uint32(capacity),
		mask:     uint32(capacity - 1),
		minDelay: uint32(minDelay),
	}
}

// Insert places frame in slots[seq&mask]. If seq is behind nextSequence by
// no more than capacity/2 (wrap-aware), the frame is late and is dropped
// without mutating the slot. Otherwise it is accepted; if the target slot
// was already occupied, the frame is overwritten without changing level
// (duplicate or wrap collision, treated as replacement per the wire
// protocol's no-retransmission guarantee).
func (b *Buffer) Insert(frame ring.AudioFrame) bool {
	seq := frame.Sequence

	diff := b.nextSequence - seq // unsigned, wraps naturally mod 2^32
	if diff != 0 && diff <= b.capacity/2 {
		b.late.Add(1)
		return false
	}

	idx := seq & b.mask
	if !b.slots[idx].occupied {
		b.level.Add(1)
	}
	b.slots[idx] = slot{frame: frame, occupied: true}
	b.received.Add(1)
	return true
}

// Get returns the next frame in sequence order, or ok=false without
// advancing if level is below minDelay (prebuffer gate). If the slot at
// nextSequence is empty, it counts as lost and nextSequence still advances.
func (b *Buffer) Get() (frame ring.AudioFrame, ok bool) {
	if b.level.Load() < b.minDelay {
		return ring.AudioFrame{}, false
	}
	return b.take()
}

// ForceGet behaves like Get but ignores the minDelay gate. Used when the
// output device has starved and must emit silence or concealment rather
// than stall.
func (b *Buffer) ForceGet() (frame ring.AudioFrame, ok bool) {
	return b.take()
}

// take drains slots[nextSequence&mask], advances nextSequence, and reports
// whether a frame was actually present at that slot (false counts as lost).
func (b *Buffer) take() (ring.AudioFrame, bool) {
	idx := b.nextSequence & b.mask
	s := b.slots[idx]
	b.slots[idx] = slot{}

	b.nextSequence++

	if !s.occupied {
		b.lost.Add(1)
		return ring.AudioFrame{}, false
	}
	if cur := b.level.Load(); cur > 0 {
		b.level.Add(^uint32(0)) // atomic decrement by 1
	}
	return s.frame, true
}

// Reset clears all slots, zeroes level, and resets nextSequence to 0.
func (b *Buffer) Reset() {
	for i := range b.slots {
		b.slots[i] = slot{}
	}
	b.nextSequence = 0
	b.level.Store(0)
}

// SetNextSequence resets the buffer then anchors nextSequence to seq. Used
// on stream start or resync.
func (b *Buffer) SetNextSequence(seq uint32) {
	b.Reset()
	b.nextSequence = seq
}

// NextSequence returns the sequence the next Get/ForceGet will attempt.
func (b *Buffer) NextSequence() uint32 { return b.nextSequence }

// Capacity returns the fixed slot count.
func (b *Buffer) Capacity() int { return int(b.capacity) }

// Level returns the current occupied-slot count.
func (b *Buffer) Level() int { return int(b.level.Load()) }

// Stats is a point-in-time snapshot of buffer counters. Fields are read
// opportunistically and are not transactionally consistent with each other.
type Stats struct {
	Level    int
	Capacity int
	Received uint64
	Lost     uint64
	Late     uint64
}

// LossRate returns Lost/(Received+Lost), or 0 if no loss has occurred.
func (s Stats) LossRate() float64 {
	total := s.Received + s.Lost
	if total == 0 {
		return 0
	}
	return float64(s.Lost) / float64(total)
}

// StatsSnapshot returns the current counters.
func (b *Buffer) StatsSnapshot() Stats {
	return Stats{
		Level:    b.Level(),
		Capacity: int(b.capacity),
		Received: b.received.Load(),
		Lost:     b.lost.Load(),
		Late:     b.late.Load(),
	}
}
