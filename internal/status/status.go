// Package status exposes a read-only HTTP JSON snapshot of every known
// track's counters.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"netaudio/internal/track"
)

// Snapshot is the top-level JSON document served at GET /status.
type Snapshot struct {
	Senders   []SenderTrack   `json:"senders,omitempty"`
	Receivers []ReceiverTrack `json:"receivers,omitempty"`
}

// SenderTrack is one sender-side track's status fields.
type SenderTrack struct {
	TrackID           uint8   `json:"track_id"`
	Name              string  `json:"name"`
	State             string  `json:"state"`
	PacketsSent       uint64  `json:"packets_sent"`
	PacketsDropped    uint64  `json:"packets_dropped"`
	BytesProduced     uint64  `json:"bytes_produced"`
	RingOverflow      uint64  `json:"ring_overflow"`
	RingUnderrun      uint64  `json:"ring_underrun"`
	EncoderBitrate    int     `json:"encoder_bitrate"`
	AverageFrameBytes float64 `json:"avg_frame_bytes"`
	FramesEncoded     uint64  `json:"frames_encoded"`
}

// ReceiverTrack is one receiver-side track's status fields.
type ReceiverTrack struct {
	TrackID         uint8   `json:"track_id"`
	Name            string  `json:"name"`
	State           string  `json:"state"`
	RingOverflow    uint64  `json:"ring_overflow"`
	RingUnderrun    uint64  `json:"ring_underrun"`
	JitterLevel     int     `json:"jitter_level"`
	JitterCapacity  int     `json:"jitter_capacity"`
	PacketsReceived uint64  `json:"packets_received"`
	PacketsLost     uint64  `json:"packets_lost"`
	PacketsLate     uint64  `json:"packets_late"`
	PacketsDropped  uint64  `json:"packets_dropped"`
	LossRate        float64 `json:"loss_rate"`
	FramesDecoded   uint64  `json:"frames_decoded"`
	SilentSeconds   float64 `json:"silent_seconds"`
}

// Source supplies the registries a Server reads on every request.
type Source interface {
	Senders() []*track.SenderPipeline
	Receivers() []*track.ReceiverPipeline
}

// Server serves GET /status from a Source.
type Server struct {
	addr   string
	source Source
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds a status server bound to addr, reading from source.
func NewServer(addr string, source Source, logger *slog.Logger) *Server {
	s := &Server{addr: addr, source: source, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := Snapshot{}

	for _, p := range s.source.Senders() {
		st := p.StatsSnapshot()
		snap.Senders = append(snap.Senders, SenderTrack{
			TrackID:           st.TrackID,
			Name:              st.Name,
			State:             st.State.String(),
			PacketsSent:       st.PacketsSent,
			PacketsDropped:    st.PacketsDropped,
			BytesProduced:     st.Encoder.BytesProduced,
			RingOverflow:      st.RingOverflow,
			RingUnderrun:      st.RingUnderrun,
			EncoderBitrate:    st.Bitrate,
			AverageFrameBytes: st.Encoder.AverageFrameBytes,
			FramesEncoded:     st.Encoder.FramesEncoded,
		})
	}

	for _, p := range s.source.Receivers() {
		st := p.StatsSnapshot()
		snap.Receivers = append(snap.Receivers, ReceiverTrack{
			TrackID:         st.TrackID,
			Name:            st.Name,
			State:           st.State.String(),
			RingOverflow:    st.RingOverflow,
			RingUnderrun:    st.RingUnderrun,
			JitterLevel:     st.Jitter.Level,
			JitterCapacity:  st.Jitter.Capacity,
			PacketsReceived: st.Jitter.Received,
			PacketsLost:     st.Jitter.Lost,
			PacketsLate:     st.Jitter.Late,
			PacketsDropped:  st.PacketsDropped,
			LossRate:        st.Jitter.LossRate(),
			FramesDecoded:   st.Decoder.FramesDecoded,
			SilentSeconds:   st.SilentFor.Seconds(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("status encode failed", "err", err)
	}
}

// ListenAndServe starts the HTTP server; it blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("status server listening", "addr", s.addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the server down.
func (s *Server) Close() error { return s.srv.Close() }
