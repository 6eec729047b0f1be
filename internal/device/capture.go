// Package device binds the capture/playback pumps to physical audio
// hardware via github.com/gen2brain/malgo.
package device

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"netaudio/internal/apperr"
	"netaudio/internal/ring"
)

// Capture owns one input device and feeds decoded float32 frames into a
// caller-supplied ring. It resamples when the device's native rate differs
// from the requested track rate.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	targetRate uint32
	deviceRate uint32
	channels   int

	dest      *ring.Ring
	sequence  atomic.Uint32
	resampler *LinearResampler

	mu      sync.Mutex
	running bool
}

// NewCapture opens the system default input device at the requested sample
// rate and channel count, and wires its callback to push AudioFrame values
// into dest. deviceID is not used: no device other than the default is
// selected.
func NewCapture(deviceID string, sampleRate int, channels int, dest *ring.Ring) (*Capture, error) {
	const op = "device.NewCapture"

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.DeviceNotFound, op, err)
	}

	c := &Capture{
		ctx:        ctx,
		targetRate: uint32(sampleRate),
		channels:   channels,
		dest:       dest,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = c.targetRate
	cfg.PeriodSizeInMilliseconds = 10

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: c.onData})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, apperr.Wrap(apperr.StreamError, op, err)
	}
	c.device = dev
	c.deviceRate = dev.SampleRate()

	if c.deviceRate != c.targetRate {
		c.resampler = NewLinearResampler(int(c.deviceRate), int(c.targetRate), channels)
	}

	return c, nil
}

// onData is the miniaudio callback: it must return quickly. Samples are
// copied into a fresh frame (ownership passes to the encoder worker on
// push); the push itself is lock-free and never waits. A refused push
// drops the frame and counts an overflow rather than stalling the driver.
func (c *Capture) onData(_ []byte, input []byte, framecount uint32) {
	samples := bytesToFloat32(input)

	if c.resampler != nil {
		samples = c.resampler.Process(samples)
	}

	frame := ring.AudioFrame{
		Samples:     append([]float32(nil), samples...),
		Channels:    uint16(c.channels),
		Sequence:    c.sequence.Add(1) - 1,
		TimestampUs: nowMonotonicUs(),
	}
	c.dest.Push(frame)
}

// Start begins capture.
func (c *Capture) Start() error {
	const op = "device.Capture.Start"
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := c.device.Start(); err != nil {
		return apperr.Wrap(apperr.StreamError, op, err)
	}
	c.running = true
	return nil
}

// Stop halts capture and releases the device and context.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.device.Stop()
	c.device.Uninit()
	c.ctx.Uninit()
	c.ctx.Free()
	c.running = false
	return nil
}

// DeviceSampleRate returns the rate the hardware actually opened at, which
// may differ from the requested track rate.
func (c *Capture) DeviceSampleRate() uint32 { return c.deviceRate }
