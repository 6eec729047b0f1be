package track

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"netaudio/internal/apperr"
	"netaudio/internal/codec"
	"netaudio/internal/config"
	"netaudio/internal/device"
	"netaudio/internal/ring"
	"netaudio/internal/transport"
)

const captureRingCapacity = 64

// SenderPipeline is one sender-side track: device capture → SPSC ring →
// encoder worker → UDP sender.
type SenderPipeline struct {
	cfg    Config
	logger *slog.Logger
	sender *transport.Sender

	capture *device.Capture
	ring    *ring.Ring
	encoder *codec.Encoder

	state atomic.Int32

	pktSent    atomic.Uint64
	pktDropped atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSenderPipeline constructs a sender pipeline in the Created state. It
// does not open the device until Start.
func NewSenderPipeline(cfg Config, sender *transport.Sender, logger *slog.Logger) (*SenderPipeline, error) {
	const op = "track.NewSenderPipeline"

	app := applicationFor(cfg.Type)
	enc, err := codec.NewEncoder(cfg.SampleRate, cfg.Channels, app)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncoderInit, op, err)
	}
	if err := enc.SetBitrate(cfg.Bitrate); err != nil {
		return nil, err
	}
	if cfg.FECEnabled {
		if err := enc.SetFEC(true, 5); err != nil {
			return nil, err
		}
	}
	if err := enc.SetDTX(cfg.DTXEnabled); err != nil {
		return nil, err
	}
	if cfg.Type == config.TrackLowLatency {
		if err := enc.SetComplexity(5); err != nil {
			return nil, err
		}
	}

	p := &SenderPipeline{
		cfg:     cfg,
		logger:  logger.With("track_id", cfg.TrackID, "track_name", cfg.Name),
		sender:  sender,
		ring:    ring.New(captureRingCapacity),
		encoder: enc,
		stopCh:  make(chan struct{}),
	}
	p.state.Store(int32(Created))
	return p, nil
}

func applicationFor(t config.TrackType) codec.Application {
	switch t {
	case config.TrackMusic:
		return codec.ApplicationAudio
	case config.TrackLowLatency:
		return codec.ApplicationLowDelay
	default:
		return codec.ApplicationVoIP
	}
}

// Start opens the capture device and launches the encoder worker.
func (p *SenderPipeline) Start() error {
	const op = "track.SenderPipeline.Start"

	if State(p.state.Load()) == Running {
		return nil
	}

	capDev, err := device.NewCapture(p.cfg.DeviceID, p.cfg.SampleRate, p.cfg.Channels, p.ring)
	if err != nil {
		return apperr.Wrap(apperr.StreamError, op, err)
	}
	p.capture = capDev

	p.ring.ResetStats()
	p.pktSent.Store(0)
	p.pktDropped.Store(0)
	p.sender.ResetSequence(p.cfg.TrackID)
	p.stopCh = make(chan struct{})

	if err := capDev.Start(); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.encodeWorker()

	p.state.Store(int32(Running))
	p.logger.Info("track started")
	return nil
}

// Stop flips the running flag, joins the encoder worker, and releases the
// device stream before the ring.
func (p *SenderPipeline) Stop() error {
	if State(p.state.Load()) != Running {
		return nil
	}

	close(p.stopCh)
	p.wg.Wait()

	if p.capture != nil {
		if err := p.capture.Stop(); err != nil {
			return err
		}
		p.capture = nil
	}

	p.state.Store(int32(Stopped))
	p.logger.Info("track stopped")
	return nil
}

// encodeWorker pulls frames from the ring, accumulates them into
// full codec frames, encodes, and sends.
func (p *SenderPipeline) encodeWorker() {
	defer p.wg.Done()

	frameLen := p.cfg.FrameSamplesPerChannel() * p.cfg.Channels
	acc := make([]float32, 0, frameLen*2)
	stereo := p.cfg.Channels == 2
	var lastTimestamp uint64

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		f, ok := p.ring.TryPop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		acc = append(acc, f.Samples...)
		lastTimestamp = f.TimestampUs

		for len(acc) >= frameLen {
			payload, err := p.encoder.Encode(acc[:frameLen])
			acc = append(acc[:0], acc[frameLen:]...)
			if err != nil {
				p.logger.Warn("encode failed", "err", err)
				continue
			}

			if err := p.sender.Send(p.cfg.TrackID, lastTimestamp, stereo, p.cfg.FECEnabled, payload); err != nil {
				p.pktDropped.Add(1)
				p.logger.Warn("send failed", "err", err)
			} else {
				p.pktSent.Add(1)
			}
		}
	}
}

// State returns the pipeline's current lifecycle state.
func (p *SenderPipeline) State() State { return State(p.state.Load()) }

// Config returns the pipeline's track configuration.
func (p *SenderPipeline) Config() Config { return p.cfg }

// Stats is a point-in-time snapshot of a sender pipeline's counters.
type Stats struct {
	TrackID        uint8
	Name           string
	State          State
	Bitrate        int
	RingOverflow   uint64
	RingUnderrun   uint64
	PacketsSent    uint64
	PacketsDropped uint64
	Encoder        codec.EncoderStats
}

// StatsSnapshot returns the current counters.
func (p *SenderPipeline) StatsSnapshot() Stats {
	return Stats{
		TrackID:        p.cfg.TrackID,
		Name:           p.cfg.Name,
		State:          p.State(),
		Bitrate:        p.cfg.Bitrate,
		RingOverflow:   p.ring.OverflowCount(),
		RingUnderrun:   p.ring.UnderrunCount(),
		PacketsSent:    p.pktSent.Load(),
		PacketsDropped: p.pktDropped.Load(),
		Encoder:        p.encoder.Stats(),
	}
}
