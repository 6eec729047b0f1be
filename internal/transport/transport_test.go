package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	recv, err := NewReceiver("127.0.0.1:0")
	require.NoError(t, err)
	defer recv.Stop()

	go recv.Loop()

	sender, err := NewSender("127.0.0.1:0", recv.conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(5, 100, true, false, []byte{9, 9, 9}))

	select {
	case pkt := <-recv.Packets():
		assert.EqualValues(t, 5, pkt.TrackID)
		assert.EqualValues(t, 0, pkt.Sequence)
		assert.EqualValues(t, 100, pkt.TimestampUs)
		assert.True(t, pkt.IsStereo)
		assert.Equal(t, []byte{9, 9, 9}, pkt.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}

	assert.EqualValues(t, 1, sender.Sent())
	assert.EqualValues(t, 1, recv.Received())
}

func TestReceiverCountsInvalidPackets(t *testing.T) {
	recv, err := NewReceiver("127.0.0.1:0")
	require.NoError(t, err)
	defer recv.Stop()

	go recv.Loop()

	sender, err := NewSender("127.0.0.1:0", recv.conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	// a bare 1-byte datagram is shorter than HeaderSize+1 and invalid.
	_, err = sender.conn.WriteToUDP([]byte{0xFF}, sender.target)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recv.InvalidPackets() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// a valid packet after the junk still flows.
	require.NoError(t, sender.Send(1, 0, false, false, []byte{1}))
	select {
	case pkt := <-recv.Packets():
		assert.EqualValues(t, 1, pkt.TrackID)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not survive the invalid datagram")
	}
}
