package device

import (
	"encoding/binary"
	"math"
	"time"
)

// bytesToFloat32 decodes a little-endian f32 PCM byte buffer into a newly
// allocated sample slice; the result does not alias data.
func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// float32ToBytes writes samples into dst as little-endian f32 PCM.
func float32ToBytes(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

var startTime = time.Now()

// nowMonotonicUs returns microseconds elapsed since process start, matching
// the sender-local monotonic clock the wire protocol's timestamp field
// expects.
func nowMonotonicUs() uint64 {
	return uint64(time.Since(startTime).Microseconds())
}
