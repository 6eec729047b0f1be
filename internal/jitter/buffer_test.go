package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"netaudio/internal/ring"
)

func frame(seq uint32) ring.AudioFrame {
	return ring.AudioFrame{Sequence: seq}
}

// Inserting sequences 0..7 into a min_delay=2 buffer: the gate is checked
// before each take, so once level drops below min_delay the next Get
// returns nothing — the eighth call — with sequence 7 still unconsumed.
func TestInOrderDelivery(t *testing.T) {
	b := New(16, 2)
	for seq := uint32(0); seq < 8; seq++ {
		require.True(t, b.Insert(frame(seq)))
	}

	for seq := uint32(0); seq < 7; seq++ {
		f, ok := b.Get()
		require.True(t, ok)
		assert.Equal(t, seq, f.Sequence)
	}

	_, ok := b.Get()
	require.False(t, ok)

	st := b.StatsSnapshot()
	assert.EqualValues(t, 0, st.Lost)
	assert.EqualValues(t, 0, st.Late)
}

// Out-of-order arrivals [2,0,1] with min_delay=2: sequences come back in
// order, and the gate stops the drain once level falls below min_delay, so
// sequence 2 stays buffered after the first two Gets.
func TestReordering(t *testing.T) {
	b := New(16, 2)
	require.True(t, b.Insert(frame(2)))
	require.True(t, b.Insert(frame(0)))
	require.True(t, b.Insert(frame(1)))

	f, ok := b.Get()
	require.True(t, ok)
	assert.EqualValues(t, 0, f.Sequence)

	f, ok = b.Get()
	require.True(t, ok)
	assert.EqualValues(t, 1, f.Sequence)

	_, ok = b.Get()
	require.False(t, ok)

	st := b.StatsSnapshot()
	assert.EqualValues(t, 0, st.Late)
	assert.EqualValues(t, 0, st.Lost)
}

func TestLoss(t *testing.T) {
	b := New(16, 1)
	require.True(t, b.Insert(frame(0)))
	require.True(t, b.Insert(frame(2)))
	require.True(t, b.Insert(frame(3)))

	f, ok := b.Get()
	require.True(t, ok)
	assert.EqualValues(t, 0, f.Sequence)

	_, ok = b.Get()
	require.False(t, ok)
	assert.EqualValues(t, 1, b.StatsSnapshot().Lost)

	f, ok = b.Get()
	require.True(t, ok)
	assert.EqualValues(t, 2, f.Sequence)

	f, ok = b.Get()
	require.True(t, ok)
	assert.EqualValues(t, 3, f.Sequence)
}

func TestLatePacket(t *testing.T) {
	b := New(16, 0)
	b.SetNextSequence(10)

	ok := b.Insert(frame(3))
	require.False(t, ok)
	assert.EqualValues(t, 1, b.StatsSnapshot().Late)
}

func TestSequenceWrap(t *testing.T) {
	b := New(16, 0)
	b.SetNextSequence(^uint32(0) - 1) // 2^32 - 2

	seqs := []uint32{^uint32(0) - 1, ^uint32(0), 0, 1}
	for _, s := range seqs {
		require.True(t, b.Insert(frame(s)))
	}

	for _, want := range seqs {
		f, ok := b.Get()
		require.True(t, ok)
		assert.Equal(t, want, f.Sequence)
	}
	assert.EqualValues(t, 0, b.StatsSnapshot().Late)
}

func TestInsertCollisionDoesNotChangeLevel(t *testing.T) {
	b := New(4, 0)
	require.True(t, b.Insert(frame(0)))
	require.Equal(t, 1, b.Level())

	// sequence 4 maps to the same slot as 0 (mask 3) and that slot is still
	// occupied (not yet drained); the insert overwrites without changing
	// level.
	require.True(t, b.Insert(frame(4)))
	assert.Equal(t, 1, b.Level())
}

func TestForceGetIgnoresMinDelay(t *testing.T) {
	b := New(16, 8)
	require.True(t, b.Insert(frame(0)))

	_, ok := b.Get()
	require.False(t, ok, "level below min_delay")

	f, ok := b.ForceGet()
	require.True(t, ok)
	assert.EqualValues(t, 0, f.Sequence)
}

// TestJitterMonotonicOutputProperty checks that over any
// schedule, successive non-none returns from Get carry strictly increasing
// sequence values modulo 2^32 (except after reset).
func TestJitterMonotonicOutputProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const capacity = 16
		b := New(capacity, 0)

		// Arrivals jitter within the buffer's valid future window
		// (next_sequence .. next_sequence+C/2); anything further is a peer
		// reset, which the property exempts.
		n := rapid.IntRange(1, 200).Draw(t, "n")
		var lastOut uint32
		first := true
		for i := 0; i < n; i++ {
			offset := rapid.Uint32Range(0, capacity/2).Draw(t, "offset")
			b.Insert(frame(b.NextSequence() + offset))
			if f, ok := b.Get(); ok {
				if !first {
					require.Greater(t, f.Sequence, lastOut)
				}
				lastOut = f.Sequence
				first = false
			}
		}
	})
}

// TestJitterLevelConsistencyProperty checks that level equals
// the count of occupied slots after every operation.
func TestJitterLevelConsistencyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := 16
		b := New(capacity, 0)

		n := rapid.IntRange(1, 200).Draw(t, "n")
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "isInsert") {
				seq := rapid.Uint32Range(0, 100).Draw(t, "seq")
				b.Insert(frame(seq))
			} else {
				b.Get()
			}

			occupied := 0
			for _, s := range b.slots {
				if s.occupied {
					occupied++
				}
			}
			require.Equal(t, occupied, b.Level())
		}
	})
}
