package track

import (
	"fmt"
	"log/slog"
	"sync"

	"netaudio/internal/apperr"
	"netaudio/internal/config"
	"netaudio/internal/transport"
	"netaudio/internal/wire"
)

const maxTracks = 16

// Registry owns every track pipeline on one side of the stream (sender or
// receiver), keyed by track id, and assigns ids for tracks configured
// without one.
type Registry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	senders  map[uint8]*SenderPipeline
	receiver receiverState
}

type receiverState struct {
	jitterCapacity int
	jitterMinDelay int
	pipelines      map[uint8]*ReceiverPipeline
}

// NewSenderRegistry builds an empty sender-side registry.
func NewSenderRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger, senders: map[uint8]*SenderPipeline{}}
}

// NewReceiverRegistry builds an empty receiver-side registry. Pipelines are
// created lazily on first packet per track id, or eagerly via
// CreateReceiver for configured tracks.
func NewReceiverRegistry(logger *slog.Logger, jitterCapacity, jitterMinDelay int) *Registry {
	return &Registry{
		logger: logger,
		receiver: receiverState{
			jitterCapacity: jitterCapacity,
			jitterMinDelay: jitterMinDelay,
			pipelines:      map[uint8]*ReceiverPipeline{},
		},
	}
}

// resolveTrackID assigns the next free id in 0..255 when t.TrackID is nil.
func resolveTrackID(t config.Track, used map[uint8]bool) (uint8, error) {
	if t.TrackID != nil {
		return *t.TrackID, nil
	}
	for id := 0; id <= 255; id++ {
		if !used[uint8(id)] {
			return uint8(id), nil
		}
	}
	return 0, apperr.New(apperr.MaxTracksReached, "track.resolveTrackID")
}

// CreateSender builds and registers a sender pipeline for t, auto-assigning
// a track id if t.TrackID is nil.
func (r *Registry) CreateSender(t config.Track, sender *transport.Sender) (*SenderPipeline, error) {
	const op = "track.Registry.CreateSender"

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.senders) >= maxTracks {
		return nil, apperr.New(apperr.MaxTracksReached, op)
	}

	used := make(map[uint8]bool, len(r.senders))
	for id := range r.senders {
		used[id] = true
	}
	id, err := resolveTrackID(t, used)
	if err != nil {
		return nil, err
	}
	if _, exists := r.senders[id]; exists {
		return nil, apperr.New(apperr.TrackAlreadyExists, fmt.Sprintf("%s: track_id %d", op, id))
	}

	cfg := Config{
		TrackID: id, Name: t.Name, DeviceID: t.DeviceID, SampleRate: t.SampleRate,
		Channels: t.Channels, Bitrate: t.Bitrate, FrameSizeMs: t.FrameSizeMs,
		Type: t.Type, FECEnabled: t.FECEnabled, DTXEnabled: t.DTXEnabled,
	}

	p, err := NewSenderPipeline(cfg, sender, r.logger)
	if err != nil {
		return nil, err
	}
	r.senders[id] = p
	return p, nil
}

// Sender returns the sender pipeline for id, if any.
func (r *Registry) Sender(id uint8) (*SenderPipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.senders[id]
	return p, ok
}

// Senders returns a snapshot of every registered sender pipeline, ordered
// by track id.
func (r *Registry) Senders() []*SenderPipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*SenderPipeline, 0, len(r.senders))
	for id := 0; id <= 255; id++ {
		if p, ok := r.senders[uint8(id)]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ReceiverForPacket returns the receiver pipeline for the packet's track,
// creating it lazily on first sight if it does not already exist. The
// first packet fixes the track's channel count via its stereo flag, so the
// decoder is constructed for the stream actually being sent.
func (r *Registry) ReceiverForPacket(pkt wire.ReceivedPacket) (*ReceiverPipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := pkt.TrackID
	if p, ok := r.receiver.pipelines[id]; ok {
		return p, nil
	}

	if len(r.receiver.pipelines) >= maxTracks {
		return nil, apperr.New(apperr.MaxTracksReached, "track.Registry.ReceiverForPacket")
	}

	channels := 1
	if pkt.IsStereo {
		channels = 2
	}
	cfg := Config{
		TrackID: id, Name: fmt.Sprintf("track-%d", id), DeviceID: "default",
		SampleRate: 48000, Channels: channels, FrameSizeMs: 10, Type: config.TrackVoice,
	}
	p, err := NewReceiverPipeline(cfg, r.receiver.jitterCapacity, r.receiver.jitterMinDelay, r.logger)
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	r.receiver.pipelines[id] = p
	return p, nil
}

// CreateReceiver eagerly registers and starts a receiver pipeline for a
// configured track, auto-assigning a track id if t.TrackID is nil.
func (r *Registry) CreateReceiver(t config.Track) (*ReceiverPipeline, error) {
	const op = "track.Registry.CreateReceiver"

	r.mu.Lock()
	if len(r.receiver.pipelines) >= maxTracks {
		r.mu.Unlock()
		return nil, apperr.New(apperr.MaxTracksReached, op)
	}
	used := make(map[uint8]bool, len(r.receiver.pipelines))
	for id := range r.receiver.pipelines {
		used[id] = true
	}
	id, err := resolveTrackID(t, used)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if _, exists := r.receiver.pipelines[id]; exists {
		r.mu.Unlock()
		return nil, apperr.New(apperr.TrackAlreadyExists, fmt.Sprintf("%s: track_id %d", op, id))
	}
	r.mu.Unlock()

	cfg := Config{
		TrackID: id, Name: t.Name, DeviceID: t.DeviceID, SampleRate: t.SampleRate,
		Channels: t.Channels, Bitrate: t.Bitrate, FrameSizeMs: t.FrameSizeMs,
		Type: t.Type, FECEnabled: t.FECEnabled, DTXEnabled: t.DTXEnabled,
	}
	p, err := NewReceiverPipeline(cfg, r.receiver.jitterCapacity, r.receiver.jitterMinDelay, r.logger)
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.receiver.pipelines[id] = p
	r.mu.Unlock()
	return p, nil
}

// Receivers returns a snapshot of every registered receiver pipeline,
// ordered by track id.
func (r *Registry) Receivers() []*ReceiverPipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ReceiverPipeline, 0, len(r.receiver.pipelines))
	for id := 0; id <= 255; id++ {
		if p, ok := r.receiver.pipelines[uint8(id)]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Dispatch resolves (or lazily creates) the target pipeline for one packet
// and enqueues it on that track's channel.
func (r *Registry) Dispatch(pkt wire.ReceivedPacket) {
	p, err := r.ReceiverForPacket(pkt)
	if err != nil {
		r.logger.Warn("dropping packet for unregistrable track", "track_id", pkt.TrackID, "err", err)
		return
	}
	p.OnPacket(pkt)
}

// Demux consumes the transport's packet channel until it closes, routing
// each packet to its track's pipeline. Meant to run on its own goroutine.
func (r *Registry) Demux(packets <-chan wire.ReceivedPacket) {
	for pkt := range packets {
		r.Dispatch(pkt)
	}
}

// StopAll stops every pipeline this registry owns, sender or receiver.
func (r *Registry) StopAll() {
	for _, p := range r.Senders() {
		_ = p.Stop()
	}
	for _, p := range r.Receivers() {
		_ = p.Stop()
	}
}
