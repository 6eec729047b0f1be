// Package ring implements the per-device lock-free SPSC audio ring and the
// AudioFrame value it carries.
package ring

// AudioFrame is the unit of PCM audio passed between a device callback and
// its encoder/decoder worker. Frames are value-like: ownership passes from
// producer to consumer on a successful Push/Pop, and the producer must not
// mutate Samples afterward.
type AudioFrame struct {
	// Samples holds interleaved 32-bit float PCM, length = SamplesPerChannel*Channels.
	Samples []float32
	// Channels is 1 (mono) or 2 (stereo).
	Channels uint16
	// TimestampUs is a sender-local monotonic microsecond timestamp.
	TimestampUs uint64
	// Sequence is a fetch-and-increment counter local to the producing device.
	Sequence uint32
}

// SamplesPerChannel returns the number of samples carried per channel.
func (f AudioFrame) SamplesPerChannel() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Samples) / int(f.Channels)
}

// DurationUs returns the frame's duration in microseconds at sampleRate.
func (f AudioFrame) DurationUs(sampleRate uint32) uint64 {
	if sampleRate == 0 {
		return 0
	}
	return uint64(f.SamplesPerChannel()) * 1_000_000 / uint64(sampleRate)
}
