// Package codec wraps gopkg.in/hraban/opus.v2 (a cgo binding to libopus)
// behind the fixed float32 encode/decode contract used by the rest of the
// audio path.
package codec

import (
	"sync"
	"sync/atomic"

	"gopkg.in/hraban/opus.v2"

	"netaudio/internal/apperr"
)

// Application selects the libopus encoder tuning profile.
type Application int

const (
	ApplicationVoIP Application = iota
	ApplicationAudio
	ApplicationLowDelay
)

func (a Application) toOpus() int {
	switch a {
	case ApplicationAudio:
		return opus.AppAudio
	case ApplicationLowDelay:
		return opus.AppRestrictedLowdelay
	default:
		return opus.AppVoIP
	}
}

// maxFrameSamples bounds the scratch decode buffer; 120ms at 48kHz stereo is
// the largest frame libopus will ever produce per channel-sample.
const maxFrameSamples = 48000 / 1000 * 120 * 2

// maxPayloadBytes matches the wire protocol's payload_len ceiling; the
// encoder never produces more (libopus caps a frame at 1275 bytes, and the
// configured bitrates stay far below even that).
const maxPayloadBytes = 1200

// Encoder wraps a single *opus.Encoder. Calls are serialized by an internal
// mutex; each sender pipeline owns exactly one, used by its encoder worker.
type Encoder struct {
	mu       sync.Mutex
	enc      *opus.Encoder
	frames   atomic.Uint64
	bytesOut atomic.Uint64
	outBuf   []byte
	sampleHz int
	channels int
	app      Application
}

// NewEncoder constructs an encoder for the given sample rate, channel count
// and application profile.
func NewEncoder(sampleRate, channels int, app Application) (*Encoder, error) {
	const op = "codec.NewEncoder"

	enc, err := opus.NewEncoder(sampleRate, channels, app.toOpus())
	if err != nil {
		return nil, apperr.Wrap(apperr.EncoderInit, op, err)
	}
	return &Encoder{
		enc:      enc,
		outBuf:   make([]byte, maxPayloadBytes),
		sampleHz: sampleRate,
		channels: channels,
		app:      app,
	}, nil
}

// Encode produces one compressed frame from an interleaved float32 PCM
// buffer. The returned slice aliases the Encoder's internal output buffer
// and is overwritten by the next call — copy it before retaining.
func (e *Encoder) Encode(pcm []float32) ([]byte, error) {
	const op = "codec.Encoder.Encode"

	if !e.validFrameLen(len(pcm)) {
		return nil, apperr.New(apperr.InvalidFrameSize, op)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.enc.EncodeFloat32(pcm, e.outBuf)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncodingFailed, op, err)
	}
	e.frames.Add(1)
	e.bytesOut.Add(uint64(n))
	return e.outBuf[:n], nil
}

// validFrameLen reports whether an interleaved sample count corresponds to
// a legal opus frame duration (2.5, 5, 10, 20, 40, or 60 ms) at the
// encoder's rate and channel count.
func (e *Encoder) validFrameLen(n int) bool {
	if n == 0 || n%e.channels != 0 {
		return false
	}
	perChannel := n / e.channels
	switch perChannel * 10_000 / e.sampleHz {
	case 25, 50, 100, 200, 400, 600:
		return perChannel*10_000%e.sampleHz == 0
	default:
		return false
	}
}

// SetBitrate adjusts the target bitrate in bits per second without
// resetting encoder state.
func (e *Encoder) SetBitrate(bps int) error {
	const op = "codec.Encoder.SetBitrate"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.SetBitrate(bps); err != nil {
		return apperr.Wrap(apperr.EncodingFailed, op, err)
	}
	return nil
}

// SetFEC enables or disables in-band forward error correction and informs
// the encoder of the expected channel loss percentage, without resetting
// encoder state.
func (e *Encoder) SetFEC(enabled bool, lossPercent int) error {
	const op = "codec.Encoder.SetFEC"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.SetInBandFEC(enabled); err != nil {
		return apperr.Wrap(apperr.EncodingFailed, op, err)
	}
	if err := e.enc.SetPacketLossPerc(lossPercent); err != nil {
		return apperr.Wrap(apperr.EncodingFailed, op, err)
	}
	return nil
}

// SetComplexity trades encoder CPU for quality, 0 (cheapest) to 10.
func (e *Encoder) SetComplexity(complexity int) error {
	const op = "codec.Encoder.SetComplexity"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.SetComplexity(complexity); err != nil {
		return apperr.Wrap(apperr.EncodingFailed, op, err)
	}
	return nil
}

// SetDTX enables or disables discontinuous transmission during silence.
func (e *Encoder) SetDTX(enabled bool) error {
	const op = "codec.Encoder.SetDTX"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.SetDTX(enabled); err != nil {
		return apperr.Wrap(apperr.EncodingFailed, op, err)
	}
	return nil
}

// EncoderStats is a point-in-time snapshot of encoder counters.
type EncoderStats struct {
	FramesEncoded     uint64
	BytesProduced     uint64
	AverageFrameBytes float64
}

// Stats returns the current encoder counters.
func (e *Encoder) Stats() EncoderStats {
	frames := e.frames.Load()
	bytes := e.bytesOut.Load()
	avg := 0.0
	if frames > 0 {
		avg = float64(bytes) / float64(frames)
	}
	return EncoderStats{FramesEncoded: frames, BytesProduced: bytes, AverageFrameBytes: avg}
}

// Decoder wraps a single *opus.Decoder. Calls are serialized by an internal
// mutex; each receiver pipeline owns exactly one, used by its decode+jitter
// worker.
type Decoder struct {
	mu       sync.Mutex
	dec      *opus.Decoder
	sampleHz int
	channels int

	decoded    atomic.Uint64
	lost       atomic.Uint64
	samplesOut atomic.Uint64
}

// NewDecoder constructs a decoder for the given sample rate and channel
// count.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	const op = "codec.NewDecoder"

	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecoderInit, op, err)
	}
	return &Decoder{dec: dec, sampleHz: sampleRate, channels: channels}, nil
}

// Decode decompresses one primary frame. buf is sized to the decoder's
// maximum possible frame; the returned slice is a sub-slice of buf sized to
// the actual number of interleaved samples produced.
func (d *Decoder) Decode(data []byte, buf []float32) ([]float32, error) {
	const op = "codec.Decoder.Decode"

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.dec.DecodeFloat32(data, buf)
	if err != nil {
		d.lost.Add(1)
		return nil, apperr.Wrap(apperr.DecodingFailed, op, err)
	}
	d.decoded.Add(1)
	samples := n * d.channels
	d.samplesOut.Add(uint64(samples))
	return buf[:samples], nil
}

// DecodeFEC recovers the redundant representation of the frame immediately
// preceding data's primary payload, embedded by the sender's in-band FEC.
// Per libopus semantics this is the SAME packet bytes that Decode would
// otherwise consume for the current frame; callers invoke DecodeFEC on the
// packet that arrived one sequence AFTER the frame reported missing by the
// jitter buffer, then still hand that same packet to Decode for its own
// (current) frame.
func (d *Decoder) DecodeFEC(data []byte, buf []float32) ([]float32, error) {
	const op = "codec.Decoder.DecodeFEC"

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.dec.DecodeFECFloat32(data, buf)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecodingFailed, op, err)
	}
	d.decoded.Add(1)
	samples := n * d.channels
	d.samplesOut.Add(uint64(samples))
	return buf[:samples], nil
}

// DecodePLC synthesizes concealment audio for a frame with no data at all,
// via libopus's native packet-loss-concealment path (triggered by a nil
// payload).
func (d *Decoder) DecodePLC(buf []float32) ([]float32, error) {
	const op = "codec.Decoder.DecodePLC"

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.dec.DecodeFloat32(nil, buf)
	if err != nil {
		d.lost.Add(1)
		return nil, apperr.Wrap(apperr.DecodingFailed, op, err)
	}
	d.lost.Add(1)
	samples := n * d.channels
	d.samplesOut.Add(uint64(samples))
	return buf[:samples], nil
}

// Reset discards decoder history by reconstructing the underlying
// *opus.Decoder; the binding exposes no in-place reset.
func (d *Decoder) Reset() error {
	const op = "codec.Decoder.Reset"

	d.mu.Lock()
	defer d.mu.Unlock()

	dec, err := opus.NewDecoder(d.sampleHz, d.channels)
	if err != nil {
		return apperr.Wrap(apperr.DecoderInit, op, err)
	}
	d.dec = dec
	d.decoded.Store(0)
	d.lost.Store(0)
	d.samplesOut.Store(0)
	return nil
}

// DecoderStats is a point-in-time snapshot of decoder counters.
type DecoderStats struct {
	FramesDecoded uint64
	FramesLost    uint64
	SamplesOutput uint64
}

// LossRate returns FramesLost/(FramesDecoded+FramesLost), or 0 if nothing
// has been decoded yet.
func (s DecoderStats) LossRate() float64 {
	total := s.FramesDecoded + s.FramesLost
	if total == 0 {
		return 0
	}
	return float64(s.FramesLost) / float64(total)
}

// Stats returns the current decoder counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		FramesDecoded: d.decoded.Load(),
		FramesLost:    d.lost.Load(),
		SamplesOutput: d.samplesOut.Load(),
	}
}

// MaxFrameSamples is the largest interleaved sample count any Decode call on
// this package can produce; callers size scratch buffers to it.
func MaxFrameSamples() int { return maxFrameSamples }
