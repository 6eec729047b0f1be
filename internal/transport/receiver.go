package transport

import (
	"net"
	"sync/atomic"
	"time"

	"netaudio/internal/apperr"
	"netaudio/internal/wire"
)

const (
	// recvTimeout bounds each blocking read so Loop can observe stop without a
	// separate cancellation channel on the hot path.
	recvTimeout = time.Millisecond

	// recvSocketBuffer is the OS receive buffer size requested on the socket;
	// sized so a burst across all tracks survives a scheduling hiccup.
	recvSocketBuffer = 512 << 10

	// packetQueueDepth bounds the channel between the receive loop and the
	// demultiplexer.
	packetQueueDepth = 512
)

// Receiver owns one UDP socket and feeds parsed packets into a bounded
// channel consumed by the demultiplexer.
type Receiver struct {
	conn *net.UDPConn

	packets chan wire.ReceivedPacket

	invalidPackets atomic.Uint64
	received       atomic.Uint64
	queueDropped   atomic.Uint64

	stop atomic.Bool
}

// NewReceiver binds a UDP socket at listenAddr.
func NewReceiver(listenAddr string) (*Receiver, error) {
	const op = "transport.NewReceiver"

	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.BindFailed, op, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, apperr.Wrap(apperr.BindFailed, op, err)
	}
	_ = conn.SetReadBuffer(recvSocketBuffer)
	return &Receiver{conn: conn, packets: make(chan wire.ReceivedPacket, packetQueueDepth)}, nil
}

// Packets returns the channel of parsed packets. It is closed when Loop
// returns.
func (r *Receiver) Packets() <-chan wire.ReceivedPacket { return r.packets }

// Loop reads, parses, and enqueues packets until Stop is called. It is
// meant to run on its own goroutine; a full packet queue drops the datagram
// rather than blocking the socket read.
func (r *Receiver) Loop() {
	defer close(r.packets)

	buf := make([]byte, wire.MaxPacketSize)

	for !r.stop.Load() {
		_ = r.conn.SetReadDeadline(time.Now().Add(recvTimeout))

		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if r.stop.Load() {
				return
			}
			continue
		}

		pkt, err := wire.Parse(buf[:n])
		if err != nil {
			r.invalidPackets.Add(1)
			continue
		}

		select {
		case r.packets <- pkt:
			r.received.Add(1)
		default:
			r.queueDropped.Add(1)
		}
	}
}

// Stop halts Loop and closes the socket.
func (r *Receiver) Stop() {
	r.stop.Store(true)
	_ = r.conn.Close()
}

// Received returns the number of successfully parsed packets enqueued.
func (r *Receiver) Received() uint64 { return r.received.Load() }

// InvalidPackets returns the number of datagrams that failed to parse.
func (r *Receiver) InvalidPackets() uint64 { return r.invalidPackets.Load() }

// QueueDropped returns the number of valid packets discarded because the
// demux queue was full.
func (r *Receiver) QueueDropped() uint64 { return r.queueDropped.Load() }
