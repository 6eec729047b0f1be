package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"netaudio/internal/apperr"
)

func TestBuildParseRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	dst := make([]byte, MaxPacketSize)

	pkt, err := Build(dst, 7, 42, 1_000_000, true, false, payload)
	require.NoError(t, err)
	assert.Len(t, pkt, HeaderSize+len(payload))

	got, err := Parse(pkt)
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.TrackID)
	assert.EqualValues(t, 42, got.Sequence)
	assert.EqualValues(t, 1_000_000, got.TimestampUs)
	assert.True(t, got.IsStereo)
	assert.False(t, got.IsFEC)
	assert.Equal(t, payload, got.Payload)
}

func TestBuildRejectsOversizedPayload(t *testing.T) {
	dst := make([]byte, MaxPacketSize)
	payload := make([]byte, MaxDeclaredPayloadLen+1)

	_, err := Build(dst, 0, 0, 0, false, false, payload)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PacketTooLarge))
}

func TestParseRejectsTooShort(t *testing.T) {
	_, err := Parse(make([]byte, HeaderSize))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidPacket))
}

func TestParseRejectsPayloadLenMismatch(t *testing.T) {
	dst := make([]byte, MaxPacketSize)
	pkt, err := Build(dst, 0, 0, 0, false, false, []byte{1, 2, 3})
	require.NoError(t, err)

	// truncate so payload_len (3) no longer matches the datagram length.
	truncated := pkt[:len(pkt)-1]
	_, err = Parse(truncated)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidPacket))
}

func TestParseRejectsReservedFlagBits(t *testing.T) {
	dst := make([]byte, MaxPacketSize)
	pkt, err := Build(dst, 0, 0, 0, false, false, []byte{1})
	require.NoError(t, err)

	pkt[1] |= 1 << 7 // set a reserved bit

	_, err = Parse(pkt)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidPacket))
}

// TestWireRoundTripProperty checks that for any valid field
// combination, Parse(Build(fields)) reproduces every field exactly.
func TestWireRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		trackID := uint8(rapid.IntRange(0, 255).Draw(t, "trackID"))
		sequence := rapid.Uint32Range(0, 0xFFFFFFFF).Draw(t, "sequence")
		timestamp := rapid.Uint64Range(0, 1<<62).Draw(t, "timestamp")
		stereo := rapid.Bool().Draw(t, "stereo")
		fec := rapid.Bool().Draw(t, "fec")
		payloadLen := rapid.IntRange(1, MaxDeclaredPayloadLen).Draw(t, "payloadLen")
		payload := rapid.SliceOfN(rapid.Byte(), payloadLen, payloadLen).Draw(t, "payload")

		dst := make([]byte, MaxPacketSize)
		pkt, err := Build(dst, trackID, sequence, timestamp, stereo, fec, payload)
		require.NoError(t, err)

		got, err := Parse(pkt)
		require.NoError(t, err)

		require.Equal(t, trackID, got.TrackID)
		require.Equal(t, sequence, got.Sequence)
		require.Equal(t, timestamp, got.TimestampUs)
		require.Equal(t, stereo, got.IsStereo)
		require.Equal(t, fec, got.IsFEC)
		require.Equal(t, payload, got.Payload)
	})
}
