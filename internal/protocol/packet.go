package protocol

import (
	"encoding/binary"
	"fmt"
)

// PacketKind identifies the wire-level purpose of a framed packet.
type PacketKind byte

const (
	KindHandshake     PacketKind = 0
	KindHandshakeAck  PacketKind = 1
	KindPing          PacketKind = 2
	KindPong          PacketKind = 3
	KindDisconnect    PacketKind = 4
	KindData          PacketKind = 10
	KindPlayerMove    PacketKind = 11
	KindPlayerAttack  PacketKind = 12
	KindPlayerState   PacketKind = 13
	KindEntitySpawn   PacketKind = 20
	KindEntityDespawn PacketKind = 21
	KindEntityUpdate  PacketKind = 22
	KindChat          PacketKind = 30
)

func (k PacketKind) String() string {
	switch k {
	case KindHandshake:
		return "HANDSHAKE"
	case KindHandshakeAck:
		return "HANDSHAKE_ACK"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindDisconnect:
		return "DISCONNECT"
	case KindData:
		return "DATA"
	case KindPlayerMove:
		return "PLAYER_MOVE"
	case KindPlayerAttack:
		return "PLAYER_ATTACK"
	case KindPlayerState:
		return "PLAYER_STATE"
	case KindEntitySpawn:
		return "ENTITY_SPAWN"
	case KindEntityDespawn:
		return "ENTITY_DESPAWN"
	case KindEntityUpdate:
		return "ENTITY_UPDATE"
	case KindChat:
		return "CHAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(k))
	}
}

// ChannelTag selects the delivery mode of the transport.
type ChannelTag byte

const (
	ChannelReliable   ChannelTag = 0 // ordered, retransmitted
	ChannelUnreliable ChannelTag = 1 // fire-and-forget
	ChannelSequenced  ChannelTag = 2 // unreliable, drop older
)

func (c ChannelTag) String() string {
	switch c {
	case ChannelReliable:
		return "RELIABLE"
	case ChannelUnreliable:
		return "UNRELIABLE"
	case ChannelSequenced:
		return "SEQUENCED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(c))
	}
}

// Wire framing constants. All integers are little-endian on the wire:
// kind:u8 | channel:u8 | sequence:u16 | ack:u16 | ackbits:u32 | len:u16 | payload.
const (
	HeaderSize = 12
	// MaxPayload keeps the frame under a conservative UDP MTU.
	MaxPayload = 1188
	MaxFrame   = HeaderSize + MaxPayload
)

// ackWindow is the width of the receive window carried by ack+ackbits:
// the ack sequence itself plus 32 bits for the ones before it.
const ackWindow = 32

// Packet is the wire envelope. The payload lives in a reusable buffer owned
// by the packet; rent packets from a Pool and return them exactly once.
type Packet struct {
	Kind     PacketKind
	Channel  ChannelTag
	Sequence uint16
	Ack      uint16
	AckBits  uint32

	buf []byte
	n   int
}

// NewPacket returns a standalone packet with a full-size payload buffer.
// Production code rents from a Pool instead; this exists for tests and for
// the pool's own constructor.
func NewPacket() *Packet {
	return &Packet{buf: make([]byte, MaxPayload)}
}

// Reset zeroes every logical field but keeps the payload buffer for reuse.
func (p *Packet) Reset() {
	p.Kind = 0
	p.Channel = 0
	p.Sequence = 0
	p.Ack = 0
	p.AckBits = 0
	p.n = 0
}

// Payload returns the current payload bytes. The slice aliases the packet's
// internal buffer and is invalidated by Reset or SetPayload.
func (p *Packet) Payload() []byte {
	return p.buf[:p.n]
}

// SetPayload copies b into the packet's buffer.
func (p *Packet) SetPayload(b []byte) error {
	if len(b) > len(p.buf) {
		return fmt.Errorf("payload %d exceeds buffer size %d", len(b), len(p.buf))
	}
	p.n = copy(p.buf, b)
	return nil
}

// PayloadBuffer hands out the whole payload buffer for in-place encoding.
// Call SetPayloadLen with the number of bytes actually written.
func (p *Packet) PayloadBuffer() []byte {
	return p.buf
}

// SetPayloadLen records how many bytes of the payload buffer are in use.
func (p *Packet) SetPayloadLen(n int) error {
	if n < 0 || n > len(p.buf) {
		return fmt.Errorf("payload length %d out of range (buffer %d)", n, len(p.buf))
	}
	p.n = n
	return nil
}

// Encode writes the framed packet into dst and returns the frame length.
func (p *Packet) Encode(dst []byte) (int, error) {
	total := HeaderSize + p.n
	if len(dst) < total {
		return 0, fmt.Errorf("encode packet: buffer too small (need %d, have %d)", total, len(dst))
	}
	dst[0] = byte(p.Kind)
	dst[1] = byte(p.Channel)
	binary.LittleEndian.PutUint16(dst[2:4], p.Sequence)
	binary.LittleEndian.PutUint16(dst[4:6], p.Ack)
	binary.LittleEndian.PutUint32(dst[6:10], p.AckBits)
	binary.LittleEndian.PutUint16(dst[10:12], uint16(p.n))
	copy(dst[HeaderSize:total], p.buf[:p.n])
	return total, nil
}

// Decode parses one framed packet from src into p.
func (p *Packet) Decode(src []byte) error {
	if len(src) < HeaderSize {
		return fmt.Errorf("decode packet: frame too short (%d bytes)", len(src))
	}
	payloadLen := int(binary.LittleEndian.Uint16(src[10:12]))
	if payloadLen > MaxPayload {
		return fmt.Errorf("decode packet: payload %d exceeds max %d", payloadLen, MaxPayload)
	}
	if len(src) < HeaderSize+payloadLen {
		return fmt.Errorf("decode packet: truncated payload (declared %d, have %d)", payloadLen, len(src)-HeaderSize)
	}
	p.Kind = PacketKind(src[0])
	p.Channel = ChannelTag(src[1])
	p.Sequence = binary.LittleEndian.Uint16(src[2:4])
	p.Ack = binary.LittleEndian.Uint16(src[4:6])
	p.AckBits = binary.LittleEndian.Uint32(src[6:10])
	p.n = copy(p.buf[:payloadLen], src[HeaderSize:HeaderSize+payloadLen])
	return nil
}

// IsSequenceNewer reports whether sequence a is newer than b, wrap-aware
// over the uint16 space: a wins when it is ahead by at most half the space.
func IsSequenceNewer(a, b uint16) bool {
	return (a > b && a-b <= 1<<15) || (a < b && b-a > 1<<15)
}

// AckContains reports whether sequence s falls inside the 33-packet
// receive window described by (ack, bits).
func AckContains(ack uint16, bits uint32, s uint16) bool {
	if s == ack {
		return true
	}
	d := ack - s // uint16 arithmetic is wrap-aware
	if d >= 1 && d <= ackWindow {
		return bits&(1<<(d-1)) != 0
	}
	return false
}

// AckMark folds receipt of sequence s into the window (ack, bits).
// A newer s becomes the new ack and the window shifts; an older s inside
// the window sets its bit; anything older than the window is dropped.
func AckMark(ack uint16, bits uint32, s uint16) (uint16, uint32) {
	if s == ack {
		return ack, bits
	}
	if IsSequenceNewer(s, ack) {
		shift := uint32(s - ack)
		if shift >= ackWindow {
			bits = 0
		} else {
			bits <<= shift
		}
		if shift <= ackWindow {
			// This bit now stands for the previous ack.
			bits |= 1 << (shift - 1)
		}
		return s, bits
	}
	d := ack - s
	if d >= 1 && d <= ackWindow {
		bits |= 1 << (d - 1)
	}
	return ack, bits
}

// IsAcked reports whether sequence s falls inside the receive window
// recorded by the packet's Ack/AckBits fields.
func (p *Packet) IsAcked(s uint16) bool {
	return AckContains(p.Ack, p.AckBits, s)
}

// MarkAcked records receipt of sequence s in the packet's Ack/AckBits.
func (p *Packet) MarkAcked(s uint16) {
	p.Ack, p.AckBits = AckMark(p.Ack, p.AckBits, s)
}
