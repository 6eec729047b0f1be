package device

// LinearResampler performs simple linear-interpolation rate conversion,
// carrying a fractional phase across calls so a stream of short capture
// callbacks resamples as if it were one continuous signal. Grounded on the
// upsampling fallback used when a polyphase filter is unavailable; adequate
// for the modest rate mismatches a sound card reports (e.g. 44100 vs
// 48000), not intended for large decimation ratios.
type LinearResampler struct {
	fromRate int
	toRate   int
	channels int

	phase float64
	prev  []float32
	have  bool
	out   []float32
}

// NewLinearResampler builds a resampler converting fromRate to toRate for
// interleaved audio with the given channel count.
func NewLinearResampler(fromRate, toRate, channels int) *LinearResampler {
	return &LinearResampler{fromRate: fromRate, toRate: toRate, channels: channels}
}

// Process resamples one chunk of interleaved input. The returned slice is
// the resampler's own scratch buffer, valid until the next call; phase
// state carries across calls.
func (r *LinearResampler) Process(in []float32) []float32 {
	if r.fromRate == r.toRate || len(in) == 0 {
		return in
	}

	frames := len(in) / r.channels
	ratio := float64(r.fromRate) / float64(r.toRate)

	out := r.out[:0]
	pos := r.phase

	for pos < float64(frames) {
		i0 := int(pos)
		i1 := i0 + 1
		frac := float32(pos - float64(i0))

		for c := 0; c < r.channels; c++ {
			s0 := r.sampleAt(in, i0, c)
			s1 := r.sampleAt(in, i1, c)
			out = append(out, s0+(s1-s0)*frac)
		}
		pos += ratio
	}

	r.phase = pos - float64(frames)
	r.prev = append(r.prev[:0], in[len(in)-r.channels:]...)
	r.have = true
	r.out = out

	return out
}

// sampleAt returns the sample for channel c at frame index i, falling back
// to the last frame of the previous chunk for i < 0 (continuity across
// calls) and clamping to the last available frame for i beyond the chunk.
func (r *LinearResampler) sampleAt(in []float32, i, c int) float32 {
	frames := len(in) / r.channels
	if i < 0 {
		if r.have {
			return r.prev[c]
		}
		return in[c]
	}
	if i >= frames {
		i = frames - 1
	}
	return in[i*r.channels+c]
}
