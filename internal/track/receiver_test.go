package track

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netaudio/internal/codec"
	"netaudio/internal/config"
	"netaudio/internal/wire"
)

// Feeds encoded tone packets straight into the pipeline's packet handler
// and drains through the jitter buffer into the playback ring, exercising
// the full receive path short of the output device.
func TestReceivePathDecodesAndPaces(t *testing.T) {
	cfg := Config{
		TrackID: 1, Name: "tone", DeviceID: "default",
		SampleRate: 48000, Channels: 1, FrameSizeMs: 10, Type: config.TrackVoice,
	}
	p, err := NewReceiverPipeline(cfg, 16, 2, slog.Default())
	require.NoError(t, err)

	enc, err := codec.NewEncoder(cfg.SampleRate, cfg.Channels, codec.ApplicationVoIP)
	require.NoError(t, err)

	frameSamples := cfg.FrameSamplesPerChannel()
	decodeBuf := make([]float32, codec.MaxFrameSamples())

	const frames = 10
	for seq := uint32(0); seq < frames; seq++ {
		pcm := make([]float32, frameSamples)
		for i := range pcm {
			pcm[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(cfg.SampleRate)))
		}
		payload, err := enc.Encode(pcm)
		require.NoError(t, err)

		p.handlePacket(wire.ReceivedPacket{
			TrackID:  cfg.TrackID,
			Sequence: seq,
			Payload:  append([]byte(nil), payload...),
		}, decodeBuf)
	}

	st := p.jitter.StatsSnapshot()
	assert.EqualValues(t, frames, st.Received)
	assert.EqualValues(t, 0, st.Late)

	p.drain(decodeBuf)

	// The gate re-checks level before every take, so gets succeed while
	// level >= min_delay: 9 of 10 frames release, one stays gated.
	require.Equal(t, frames-1, p.ring.Len())
	assert.EqualValues(t, 0, p.jitter.StatsSnapshot().Lost)

	dst := make([]float32, frameSamples/2)
	p.pull(dst)
	assert.Equal(t, frames-2, p.ring.Len(), "half a frame consumed, remainder buffered")
	p.pull(dst)
	assert.Equal(t, frames-2, p.ring.Len(), "second half served from the remainder")
}

func TestPacketChannelDropsWhenFull(t *testing.T) {
	cfg := Config{
		TrackID: 2, Name: "flood", DeviceID: "default",
		SampleRate: 48000, Channels: 1, FrameSizeMs: 10, Type: config.TrackVoice,
	}
	p, err := NewReceiverPipeline(cfg, 16, 2, slog.Default())
	require.NoError(t, err)

	// Without a running worker the channel fills; surplus packets drop.
	for i := 0; i < packetChannelDepth+5; i++ {
		p.OnPacket(wire.ReceivedPacket{TrackID: cfg.TrackID, Sequence: uint32(i), Payload: []byte{1}})
	}
	assert.EqualValues(t, 5, p.StatsSnapshot().PacketsDropped)
}
