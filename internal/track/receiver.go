package track

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"netaudio/internal/apperr"
	"netaudio/internal/codec"
	"netaudio/internal/device"
	"netaudio/internal/jitter"
	"netaudio/internal/ring"
	"netaudio/internal/wire"
)

const (
	jitterCapacityDefault = 32
	playbackRingCapacity  = 64
	packetChannelDepth    = 64
)

// ReceiverPipeline is one receiver-side track: per-track packet channel →
// decode+jitter worker → playback SPSC ring → device callback. The worker
// goroutine is the only owner of the decoder and the jitter buffer; the
// device callback touches nothing but the ring and the remainder buffer.
type ReceiverPipeline struct {
	cfg    Config
	logger *slog.Logger

	decoder *codec.Decoder
	jitter  *jitter.Buffer
	ring    *ring.Ring
	play    *device.Playback

	packets    chan wire.ReceivedPacket
	pktDropped atomic.Uint64

	// remainder carries the unconsumed tail of a popped frame across output
	// callbacks; the device callback is its only user.
	remainder []float32

	graceDuration time.Duration
	lastRelease   atomic.Int64 // unix nanos of the last frame handed to the ring
	lastPacket    atomic.Int64 // unix nanos of the last packet seen

	anchored bool

	state atomic.Int32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReceiverPipeline constructs a receiver pipeline in the Created state.
func NewReceiverPipeline(cfg Config, jitterCapacity, jitterMinDelay int, logger *slog.Logger) (*ReceiverPipeline, error) {
	const op = "track.NewReceiverPipeline"

	dec, err := codec.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecoderInit, op, err)
	}
	if jitterCapacity <= 0 {
		jitterCapacity = jitterCapacityDefault
	}

	p := &ReceiverPipeline{
		cfg:           cfg,
		logger:        logger.With("track_id", cfg.TrackID, "track_name", cfg.Name),
		decoder:       dec,
		jitter:        jitter.New(jitterCapacity, jitterMinDelay),
		ring:          ring.New(playbackRingCapacity),
		packets:       make(chan wire.ReceivedPacket, packetChannelDepth),
		graceDuration: time.Duration(cfg.FrameSizeMs * float64(time.Millisecond)),
		stopCh:        make(chan struct{}),
	}
	p.state.Store(int32(Created))
	return p, nil
}

// OnPacket enqueues one packet for the track's worker. It never blocks the
// demux goroutine; a full channel drops the packet and counts it.
func (p *ReceiverPipeline) OnPacket(pkt wire.ReceivedPacket) {
	select {
	case p.packets <- pkt:
	default:
		p.pktDropped.Add(1)
	}
}

// Start opens the playback device and launches the decode+jitter worker.
func (p *ReceiverPipeline) Start() error {
	const op = "track.ReceiverPipeline.Start"

	if State(p.state.Load()) == Running {
		return nil
	}

	play, err := device.NewPlayback(p.cfg.DeviceID, p.cfg.SampleRate, p.cfg.Channels, p.pull)
	if err != nil {
		return apperr.Wrap(apperr.StreamError, op, err)
	}
	p.play = play

	p.ring.ResetStats()
	p.stopCh = make(chan struct{})
	now := time.Now().UnixNano()
	p.lastRelease.Store(now)
	p.lastPacket.Store(now)

	if err := play.Start(); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.worker()

	p.state.Store(int32(Running))
	p.logger.Info("track started")
	return nil
}

// Stop flips the running flag, joins the worker, and releases the device
// stream before the ring.
func (p *ReceiverPipeline) Stop() error {
	if State(p.state.Load()) != Running {
		return nil
	}

	close(p.stopCh)
	p.wg.Wait()

	if p.play != nil {
		if err := p.play.Stop(); err != nil {
			return err
		}
		p.play = nil
	}

	p.state.Store(int32(Stopped))
	p.logger.Info("track stopped")
	return nil
}

// worker is the track's single decode+jitter goroutine: it ingests packets
// from the per-track channel, inserts decoded frames into the jitter
// buffer, and drains released frames into the playback ring. Owning both
// stages in one goroutine keeps the decoder state and the jitter buffer's
// slots single-threaded.
func (p *ReceiverPipeline) worker() {
	defer p.wg.Done()

	decodeBuf := make([]float32, codec.MaxFrameSamples())
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case pkt := <-p.packets:
			p.handlePacket(pkt, decodeBuf)
		case <-tick.C:
		}
		p.drain(decodeBuf)
	}
}

// handlePacket decodes one packet's payload and inserts the resulting frame
// into the jitter buffer. The first packet a pipeline ever sees anchors the
// buffer's sequence cursor (stream start). If the packet carries in-band
// FEC and the immediately preceding sequence has not been released yet, the
// embedded redundant frame is recovered and inserted too.
func (p *ReceiverPipeline) handlePacket(pkt wire.ReceivedPacket, decodeBuf []float32) {
	p.lastPacket.Store(time.Now().UnixNano())

	if !p.anchored {
		p.jitter.SetNextSequence(pkt.Sequence)
		p.anchored = true
	}

	if pkt.IsFEC && pkt.Sequence != 0 {
		prevSeq := pkt.Sequence - 1
		if prevSeq-p.jitter.NextSequence() < uint32(p.jitter.Capacity()) {
			if recovered, err := p.decoder.DecodeFEC(pkt.Payload, decodeBuf); err == nil {
				p.jitter.Insert(ring.AudioFrame{
					Samples:     append([]float32(nil), recovered...),
					Channels:    uint16(p.cfg.Channels),
					TimestampUs: pkt.TimestampUs,
					Sequence:    prevSeq,
				})
			}
		}
	}

	decoded, err := p.decoder.Decode(pkt.Payload, decodeBuf)
	if err != nil {
		p.logger.Warn("decode failed", "err", err, "sequence", pkt.Sequence)
		return
	}
	samples := append([]float32(nil), decoded...)
	if len(samples) == 0 {
		samples = make([]float32, p.cfg.FrameSamplesPerChannel()*p.cfg.Channels)
	}

	p.jitter.Insert(ring.AudioFrame{
		Samples:     samples,
		Channels:    uint16(p.cfg.Channels),
		TimestampUs: pkt.TimestampUs,
		Sequence:    pkt.Sequence,
	})
}

// drain moves released frames from the jitter buffer into the playback
// ring, falling back to ForceGet and then decoder concealment once the ring
// has stayed dry past the grace period.
func (p *ReceiverPipeline) drain(decodeBuf []float32) {
	for !p.ring.IsFull() {
		f, ok := p.jitter.Get()
		if !ok {
			starved := time.Since(time.Unix(0, p.lastRelease.Load())) > p.graceDuration
			if !starved || !p.ring.IsEmpty() {
				return
			}
			if f, ok = p.jitter.ForceGet(); !ok {
				f = p.concealmentFrame(decodeBuf)
			}
		}
		p.lastRelease.Store(time.Now().UnixNano())
		p.ring.Push(f)
	}
}

// concealmentFrame asks the decoder for native packet-loss concealment when
// the jitter buffer itself has nothing to offer.
func (p *ReceiverPipeline) concealmentFrame(decodeBuf []float32) ring.AudioFrame {
	samples, err := p.decoder.DecodePLC(decodeBuf)
	if err != nil {
		return ring.AudioFrame{
			Samples:  make([]float32, p.cfg.FrameSamplesPerChannel()*p.cfg.Channels),
			Channels: uint16(p.cfg.Channels),
		}
	}
	return ring.AudioFrame{
		Samples:  append([]float32(nil), samples...),
		Channels: uint16(p.cfg.Channels),
	}
}

// pull is the device.PullFunc handed to the playback device. It drains the
// remainder buffer first, then the playback ring, zeroing any shortfall. A
// failed pop counts as a playback underrun.
func (p *ReceiverPipeline) pull(dst []float32) {
	n := 0
	for n < len(dst) {
		if len(p.remainder) > 0 {
			c := copy(dst[n:], p.remainder)
			p.remainder = p.remainder[c:]
			n += c
			continue
		}

		f, ok := p.ring.Pop()
		if !ok {
			break
		}
		p.remainder = f.Samples
	}

	for ; n < len(dst); n++ {
		dst[n] = 0
	}
}

// State returns the pipeline's current lifecycle state.
func (p *ReceiverPipeline) State() State { return State(p.state.Load()) }

// Config returns the pipeline's track configuration.
func (p *ReceiverPipeline) Config() Config { return p.cfg }

// ReceiverStats is a point-in-time snapshot of a receiver pipeline's
// counters.
type ReceiverStats struct {
	TrackID        uint8
	Name           string
	State          State
	RingOverflow   uint64
	RingUnderrun   uint64
	PacketsDropped uint64
	SilentFor      time.Duration
	Jitter         jitter.Stats
	Decoder        codec.DecoderStats
}

// StatsSnapshot returns the current counters.
func (p *ReceiverPipeline) StatsSnapshot() ReceiverStats {
	return ReceiverStats{
		TrackID:        p.cfg.TrackID,
		Name:           p.cfg.Name,
		State:          p.State(),
		RingOverflow:   p.ring.OverflowCount(),
		RingUnderrun:   p.ring.UnderrunCount(),
		PacketsDropped: p.pktDropped.Load(),
		SilentFor:      time.Since(time.Unix(0, p.lastPacket.Load())),
		Jitter:         p.jitter.StatsSnapshot(),
		Decoder:        p.decoder.Stats(),
	}
}
