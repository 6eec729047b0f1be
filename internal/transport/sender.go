// Package transport implements the UDP send/receive/demux halves of the
// wire protocol.
package transport

import (
	"net"
	"sync"
	"sync/atomic"

	"netaudio/internal/apperr"
	"netaudio/internal/wire"
)

// Sender owns one UDP socket and sends packets to a fixed target address.
// The per-track wire sequence counters live here, not in the encoders, so a
// re-queued or dropped encode never desynchronizes the wire. Safe for
// concurrent use by multiple track pipelines.
type Sender struct {
	conn   *net.UDPConn
	target *net.UDPAddr

	mu  sync.Mutex
	buf []byte

	sequences [256]atomic.Uint32

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewSender binds a UDP socket at localAddr (""=ephemeral) and targets
// target for every Send call.
func NewSender(localAddr, target string) (*Sender, error) {
	const op = "transport.NewSender"

	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.BindFailed, op, err)
	}
	taddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, apperr.Wrap(apperr.BindFailed, op, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.BindFailed, op, err)
	}
	return &Sender{conn: conn, target: taddr, buf: make([]byte, wire.MaxPacketSize)}, nil
}

// Send assigns the track's next wire sequence, builds one packet, and
// writes it. Failures are non-fatal on the audio path: Send counts them and
// returns the error for the caller to log, it never blocks waiting for the
// network.
func (s *Sender) Send(trackID uint8, timestampUs uint64, stereo, fec bool, payload []byte) error {
	const op = "transport.Sender.Send"

	sequence := s.sequences[trackID].Add(1) - 1

	s.mu.Lock()
	pkt, err := wire.Build(s.buf, trackID, sequence, timestampUs, stereo, fec, payload)
	if err != nil {
		s.mu.Unlock()
		s.dropped.Add(1)
		return err
	}

	_, err = s.conn.WriteToUDP(pkt, s.target)
	s.mu.Unlock()
	if err != nil {
		s.dropped.Add(1)
		return apperr.Wrap(apperr.SendFailed, op, err)
	}
	s.sent.Add(1)
	return nil
}

// Sequence returns the track's next unassigned wire sequence.
func (s *Sender) Sequence(trackID uint8) uint32 { return s.sequences[trackID].Load() }

// ResetSequence rewinds a track's wire sequence to 0. Called when a track
// pipeline (re)starts; the receiver sees the first packet after a reset as
// a future frame and prebuffers again.
func (s *Sender) ResetSequence(trackID uint8) { s.sequences[trackID].Store(0) }

// Close releases the socket.
func (s *Sender) Close() error { return s.conn.Close() }

// Sent returns the number of packets successfully written.
func (s *Sender) Sent() uint64 { return s.sent.Load() }

// Dropped returns the number of packets that failed to build or send.
func (s *Sender) Dropped() uint64 { return s.dropped.Load() }
