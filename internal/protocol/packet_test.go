package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketEncodeDecodeRoundtrip(t *testing.T) {
	src := NewPacket()
	src.Kind = KindData
	src.Channel = ChannelReliable
	src.Sequence = 42
	src.Ack = 41
	src.AckBits = 0xDEADBEEF
	require.NoError(t, src.SetPayload([]byte("hello world")))

	var frame [MaxFrame]byte
	n, err := src.Encode(frame[:])
	require.NoError(t, err)
	require.Equal(t, HeaderSize+11, n)

	dst := NewPacket()
	require.NoError(t, dst.Decode(frame[:n]))
	require.Equal(t, KindData, dst.Kind)
	require.Equal(t, ChannelReliable, dst.Channel)
	require.Equal(t, uint16(42), dst.Sequence)
	require.Equal(t, uint16(41), dst.Ack)
	require.Equal(t, uint32(0xDEADBEEF), dst.AckBits)
	require.Equal(t, []byte("hello world"), dst.Payload())
}

func TestPacketDecodeRejectsMalformed(t *testing.T) {
	p := NewPacket()

	// Too short for a header.
	require.Error(t, p.Decode(make([]byte, HeaderSize-1)))

	// Declared payload longer than the frame actually carries.
	var frame [MaxFrame]byte
	src := NewPacket()
	require.NoError(t, src.SetPayload([]byte("abcdef")))
	n, err := src.Encode(frame[:])
	require.NoError(t, err)
	require.Error(t, p.Decode(frame[:n-1]))
}

func TestPacketRejectsOversizedPayload(t *testing.T) {
	p := NewPacket()
	require.Error(t, p.SetPayload(make([]byte, MaxPayload+1)))
	require.NoError(t, p.SetPayload(make([]byte, MaxPayload)))
}

func TestIsSequenceNewerWrapAround(t *testing.T) {
	require.True(t, IsSequenceNewer(1, 0))
	require.False(t, IsSequenceNewer(0, 1))
	require.False(t, IsSequenceNewer(5, 5))

	// Wrap boundary: 0 is newer than 0xFFFF.
	require.True(t, IsSequenceNewer(0, 0xFFFF))
	require.False(t, IsSequenceNewer(0xFFFF, 0))
	require.True(t, IsSequenceNewer(1, 0xFFFF))

	// Half-space rule.
	require.True(t, IsSequenceNewer(1<<15, 0))
	require.False(t, IsSequenceNewer((1<<15)+1, 0))
}

func TestAckWindowMarkAndContains(t *testing.T) {
	var ack uint16
	var bits uint32

	ack, bits = AckMark(ack, bits, 1)
	ack, bits = AckMark(ack, bits, 2)
	ack, bits = AckMark(ack, bits, 3)
	require.Equal(t, uint16(3), ack)
	require.True(t, AckContains(ack, bits, 3))
	require.True(t, AckContains(ack, bits, 2))
	require.True(t, AckContains(ack, bits, 1))
	require.False(t, AckContains(ack, bits, 4))

	// Out-of-order receipt fills a hole.
	ack, bits = AckMark(ack, bits, 7)
	require.Equal(t, uint16(7), ack)
	require.False(t, AckContains(ack, bits, 5))
	ack, bits = AckMark(ack, bits, 5)
	require.Equal(t, uint16(7), ack)
	require.True(t, AckContains(ack, bits, 5))
	require.False(t, AckContains(ack, bits, 4))
}

func TestAckWindowSlidesOutOldSequences(t *testing.T) {
	var ack uint16
	var bits uint32
	ack, bits = AckMark(ack, bits, 1)

	// Jump far enough that sequence 1 leaves the 33-packet window.
	ack, bits = AckMark(ack, bits, 1+40)
	require.Equal(t, uint16(41), ack)
	require.False(t, AckContains(ack, bits, 1))
	require.True(t, AckContains(ack, bits, 41))
}

func TestAckWindowAcrossWrap(t *testing.T) {
	ack := uint16(0xFFFE)
	var bits uint32
	ack, bits = AckMark(ack, bits, 0xFFFF)
	ack, bits = AckMark(ack, bits, 0) // wraps
	ack, bits = AckMark(ack, bits, 1)

	require.Equal(t, uint16(1), ack)
	require.True(t, AckContains(ack, bits, 0))
	require.True(t, AckContains(ack, bits, 0xFFFF))
	require.True(t, AckContains(ack, bits, 0xFFFE))
}

func TestMarkAckedDuplicateIsStable(t *testing.T) {
	p := NewPacket()
	p.MarkAcked(9)
	ack, bits := p.Ack, p.AckBits
	p.MarkAcked(9)
	require.Equal(t, ack, p.Ack)
	require.Equal(t, bits, p.AckBits)
}
