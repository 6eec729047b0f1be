package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearResamplerNoopWhenRatesMatch(t *testing.T) {
	r := NewLinearResampler(48000, 48000, 1)
	in := []float32{1, 2, 3}
	out := r.Process(in)
	assert.Equal(t, in, out)
}

func TestLinearResamplerUpsampleLengthApproximatesRatio(t *testing.T) {
	r := NewLinearResampler(44100, 48000, 1)
	in := make([]float32, 441)
	out := r.Process(in)

	want := float64(len(in)) * 48000.0 / 44100.0
	assert.InDelta(t, want, float64(len(out)), 2)
}

func TestLinearResamplerDownsampleLengthApproximatesRatio(t *testing.T) {
	r := NewLinearResampler(48000, 44100, 2)
	in := make([]float32, 48000*2/100) // 10ms stereo
	out := r.Process(in)

	wantFrames := float64(len(in)/2) * 44100.0 / 48000.0
	assert.InDelta(t, wantFrames, float64(len(out)/2), 2)
}
