package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netaudio/internal/jitter"
	"netaudio/internal/ring"
)

func TestPerTrackSequencesIndependent(t *testing.T) {
	recv, err := NewReceiver("127.0.0.1:0")
	require.NoError(t, err)
	defer recv.Stop()

	go recv.Loop()

	sender, err := NewSender("127.0.0.1:0", recv.conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Send(1, 0, false, false, []byte{1}))
	}
	require.NoError(t, sender.Send(2, 0, false, false, []byte{2}))

	seqs := map[uint8][]uint32{}
	for i := 0; i < 4; i++ {
		select {
		case pkt := <-recv.Packets():
			seqs[pkt.TrackID] = append(seqs[pkt.TrackID], pkt.Sequence)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for packets")
		}
	}

	assert.Equal(t, []uint32{0, 1, 2}, seqs[1])
	assert.Equal(t, []uint32{0}, seqs[2])
	assert.EqualValues(t, 3, sender.Sequence(1))
	assert.EqualValues(t, 1, sender.Sequence(2))
}

// A track restart rewinds its wire sequence to 0. The receiving jitter
// buffer, already advanced well past 0, must classify the first
// post-restart packet as a future frame (peer reset) rather than a late
// one, and return to prebuffering until min_delay refills.
func TestSequenceResetTreatedAsFutureByJitterBuffer(t *testing.T) {
	sender, err := NewSender("127.0.0.1:0", "127.0.0.1:9")
	require.NoError(t, err)
	defer sender.Close()

	for i := 0; i < 500; i++ {
		_ = sender.Send(1, 0, false, false, []byte{1})
	}
	require.EqualValues(t, 500, sender.Sequence(1))

	sender.ResetSequence(1)
	require.EqualValues(t, 0, sender.Sequence(1))

	b := jitter.New(32, 2)
	b.SetNextSequence(500)

	ok := b.Insert(ring.AudioFrame{Sequence: 0})
	require.True(t, ok, "post-restart sequence 0 is a future frame, not late")

	st := b.StatsSnapshot()
	assert.EqualValues(t, 0, st.Late)
	assert.Equal(t, 1, st.Level)

	_, got := b.Get()
	assert.False(t, got, "level below min_delay: buffer prebuffers again")
}
