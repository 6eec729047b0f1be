// Package wire implements the fixed 16-byte packet header used to
// multiplex audio tracks onto a single UDP flow, plus build/parse.
package wire

import (
	"encoding/binary"

	"netaudio/internal/apperr"
)

const (
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 16

	// MaxPacketSize is the Ethernet MTU minus typical IP/UDP headers.
	MaxPacketSize = 1472

	// MaxPayloadSize is how much payload fits after the header; the
	// protocol caps the declared length lower, at MaxDeclaredPayloadLen.
	MaxPayloadSize = MaxPacketSize - HeaderSize

	// MaxDeclaredPayloadLen is the largest payload_len a valid packet may declare.
	MaxDeclaredPayloadLen = 1200

	flagStereo = 1 << 0
	flagFEC    = 1 << 1
	flagsMask  = flagStereo | flagFEC
)

// ReceivedPacket is the typed result of a successful Parse.
type ReceivedPacket struct {
	TrackID     uint8
	Sequence    uint32
	TimestampUs uint64
	IsStereo    bool
	IsFEC       bool
	Payload     []byte
}

// Build composes a packet into dst (which must have length >=
// HeaderSize+len(payload)) and returns the slice written. Build is
// allocation-free given a reusable dst buffer. It fails with
// PacketTooLarge if the payload exceeds MaxDeclaredPayloadLen or the total
// packet would exceed MaxPacketSize.
func Build(dst []byte, trackID uint8, sequence uint32, timestampUs uint64, stereo, fec bool, payload []byte) ([]byte, error) {
	const op = "wire.Build"

	if len(payload) > MaxDeclaredPayloadLen {
		return nil, apperr.New(apperr.PacketTooLarge, op)
	}
	total := HeaderSize + len(payload)
	if total > MaxPacketSize {
		return nil, apperr.New(apperr.PacketTooLarge, op)
	}
	if len(dst) < total {
		return nil, apperr.New(apperr.PacketTooLarge, op)
	}

	var flags uint8
	if stereo {
		flags |= flagStereo
	}
	if fec {
		flags |= flagFEC
	}

	dst[0] = trackID
	dst[1] = flags
	binary.BigEndian.PutUint32(dst[2:6], sequence)
	binary.BigEndian.PutUint64(dst[6:14], timestampUs)
	binary.BigEndian.PutUint16(dst[14:16], uint16(len(payload)))
	copy(dst[HeaderSize:total], payload)

	return dst[:total], nil
}

// Parse validates and decodes a received datagram. It rejects packets
// shorter than HeaderSize+1, packets whose payload_len does not match the
// datagram size, and packets with non-zero reserved flag bits.
func Parse(datagram []byte) (ReceivedPacket, error) {
	const op = "wire.Parse"

	if len(datagram) < HeaderSize+1 {
		return ReceivedPacket{}, apperr.New(apperr.InvalidPacket, op)
	}

	flags := datagram[1]
	if flags&^flagsMask != 0 {
		return ReceivedPacket{}, apperr.New(apperr.InvalidPacket, op)
	}

	payloadLen := binary.BigEndian.Uint16(datagram[14:16])
	if int(payloadLen)+HeaderSize != len(datagram) {
		return ReceivedPacket{}, apperr.New(apperr.InvalidPacket, op)
	}
	if payloadLen == 0 || payloadLen > MaxDeclaredPayloadLen {
		return ReceivedPacket{}, apperr.New(apperr.InvalidPacket, op)
	}

	payload := make([]byte, payloadLen)
	copy(payload, datagram[HeaderSize:])

	return ReceivedPacket{
		TrackID:     datagram[0],
		Sequence:    binary.BigEndian.Uint32(datagram[2:6]),
		TimestampUs: binary.BigEndian.Uint64(datagram[6:14]),
		IsStereo:    flags&flagStereo != 0,
		IsFEC:       flags&flagFEC != 0,
		Payload:     payload,
	}, nil
}
