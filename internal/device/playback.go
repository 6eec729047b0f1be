package device

import (
	"sync"

	"github.com/gen2brain/malgo"

	"netaudio/internal/apperr"
)

// PullFunc supplies interleaved float32 samples to fill an output request.
// It must return quickly and must fill every requested sample, zeroing any
// it cannot supply (silence on underrun).
type PullFunc func(dst []float32)

// Playback owns one output device and pulls samples from a caller-supplied
// PullFunc on every callback. It resamples when the device's native rate
// differs from the requested track rate, the mirror of Capture.
type Playback struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	targetRate uint32
	deviceRate uint32
	channels   int
	pull       PullFunc

	resampler *LinearResampler
	pullBuf   []float32
	carry     []float32
	scratch   []float32

	mu      sync.Mutex
	running bool
}

// NewPlayback opens the system default output device at the requested
// sample rate and channel count, pulling samples from pull on every
// hardware callback. deviceID is not used: no device other than the
// default is selected.
func NewPlayback(deviceID string, sampleRate int, channels int, pull PullFunc) (*Playback, error) {
	const op = "device.NewPlayback"

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.DeviceNotFound, op, err)
	}

	p := &Playback{
		ctx:        ctx,
		targetRate: uint32(sampleRate),
		channels:   channels,
		pull:       pull,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = p.targetRate
	cfg.PeriodSizeInMilliseconds = 10

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: p.onData})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, apperr.Wrap(apperr.StreamError, op, err)
	}
	p.device = dev
	p.deviceRate = dev.SampleRate()

	if p.deviceRate != p.targetRate {
		p.resampler = NewLinearResampler(sampleRate, int(p.deviceRate), channels)
	}

	return p, nil
}

// onData is the miniaudio output callback. Samples are pulled at the
// track's rate and resampled to the device rate when the hardware opened
// at a different one; resampled samples beyond the request carry over to
// the next callback.
func (p *Playback) onData(output []byte, _ []byte, framecount uint32) {
	n := int(framecount) * p.channels
	if cap(p.scratch) < n {
		p.scratch = make([]float32, n)
	}
	samples := p.scratch[:n]

	if p.resampler == nil {
		p.pull(samples)
		float32ToBytes(output, samples)
		return
	}

	filled := copy(samples, p.carry)
	p.carry = append(p.carry[:0], p.carry[filled:]...)

	for filled < n {
		needFrames := (n-filled)/p.channels*int(p.targetRate)/int(p.deviceRate) + 1
		need := needFrames * p.channels
		if cap(p.pullBuf) < need {
			p.pullBuf = make([]float32, need)
		}
		src := p.pullBuf[:need]
		p.pull(src)

		out := p.resampler.Process(src)
		c := copy(samples[filled:], out)
		filled += c
		p.carry = append(p.carry, out[c:]...)
	}

	float32ToBytes(output, samples)
}

// Start begins playback.
func (p *Playback) Start() error {
	const op = "device.Playback.Start"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := p.device.Start(); err != nil {
		return apperr.Wrap(apperr.StreamError, op, err)
	}
	p.running = true
	return nil
}

// Stop halts playback and releases the device and context.
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.device.Stop()
	p.device.Uninit()
	p.ctx.Uninit()
	p.ctx.Free()
	p.running = false
	return nil
}

// DeviceSampleRate returns the rate the hardware actually opened at, which
// may differ from the requested track rate.
func (p *Playback) DeviceSampleRate() uint32 { return p.deviceRate }
