package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/udisondev/netplay/internal/protocol"
)

// Retransmission tuning for the reliable channel.
const (
	retransmitInterval = 200 * time.Millisecond
	maxRetransmits     = 10
)

// pendingFrame is one reliable frame waiting for acknowledgement.
type pendingFrame struct {
	frame    []byte
	lastSent time.Time
	retries  int
}

// link holds the per-peer channel state shared by the server listener and
// the client connection: outgoing sequence assignment, the reliable resend
// queue, and the receive-side ordering and ack windows.
//
// A link is touched by the socket worker and by the send path, so it
// carries its own mutex. Delivered packets are owned by the caller.
type link struct {
	mu sync.Mutex

	// Outgoing. seq holds the last assigned sequence per channel tag.
	seq     [3]uint16
	pending map[uint16]*pendingFrame

	// Incoming reliable: ack window plus in-order delivery state.
	recvAck     uint16
	recvAckBits uint32
	expected    uint16
	future      map[uint16]*protocol.Packet

	// Incoming sequenced: newest sequence seen.
	lastSequenced uint16
	sequencedSeen bool

	lastActivity time.Time
}

func newLink() *link {
	return &link{
		pending:      make(map[uint16]*pendingFrame),
		future:       make(map[uint16]*protocol.Packet),
		expected:     1,
		lastActivity: time.Now(),
	}
}

// touch records inbound activity.
func (l *link) touch() {
	l.mu.Lock()
	l.lastActivity = time.Now()
	l.mu.Unlock()
}

// idleSince returns the time of the last inbound activity.
func (l *link) idleSince() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActivity
}

// stampOutgoing assigns the next sequence for the packet's channel and
// piggybacks the current receive window onto the frame.
func (l *link) stampOutgoing(p *protocol.Packet, ch protocol.ChannelTag) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.Channel = ch
	l.seq[ch]++
	p.Sequence = l.seq[ch]
	p.Ack = l.recvAck
	p.AckBits = l.recvAckBits
}

// trackReliable stores an encoded frame for retransmission until acked.
// The frame bytes must not be reused by the caller.
func (l *link) trackReliable(seq uint16, frame []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[seq] = &pendingFrame{frame: frame, lastSent: time.Now()}
}

// onAcks drops every pending frame covered by the incoming ack window.
func (l *link) onAcks(ack uint16, bits uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for seq := range l.pending {
		if protocol.AckContains(ack, bits, seq) {
			delete(l.pending, seq)
		}
	}
}

// due returns the reliable frames whose retransmit interval elapsed and
// bumps their retry counters. It fails once any frame exhausts its retries.
func (l *link) due(now time.Time) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var frames [][]byte
	for seq, pf := range l.pending {
		if now.Sub(pf.lastSent) < retransmitInterval {
			continue
		}
		pf.retries++
		if pf.retries > maxRetransmits {
			return nil, fmt.Errorf("reliable sequence %d unacked after %d retransmits", seq, maxRetransmits)
		}
		pf.lastSent = now
		frames = append(frames, pf.frame)
	}
	return frames, nil
}

// admitReliable feeds one received reliable packet through the ordering
// window. It returns the packets now deliverable in order (possibly
// including earlier out-of-order arrivals). Duplicates are returned to the
// pool here; ownership of deliverable packets passes to the caller.
func (l *link) admitReliable(p *protocol.Packet, pool *protocol.Pool) []*protocol.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recvAck, l.recvAckBits = protocol.AckMark(l.recvAck, l.recvAckBits, p.Sequence)

	if p.Sequence != l.expected && protocol.IsSequenceNewer(l.expected, p.Sequence) {
		// Older than anything still owed: duplicate of a delivered frame.
		pool.Return(p)
		return nil
	}
	if p.Sequence != l.expected {
		if _, dup := l.future[p.Sequence]; dup {
			pool.Return(p)
			return nil
		}
		l.future[p.Sequence] = p
		return nil
	}

	deliver := []*protocol.Packet{p}
	l.expected++
	for {
		next, ok := l.future[l.expected]
		if !ok {
			break
		}
		delete(l.future, l.expected)
		deliver = append(deliver, next)
		l.expected++
	}
	return deliver
}

// admitSequenced reports whether a sequenced packet is newer than anything
// seen so far; older packets are dropped by the caller.
func (l *link) admitSequenced(seq uint16) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sequencedSeen && !protocol.IsSequenceNewer(seq, l.lastSequenced) {
		return false
	}
	l.lastSequenced = seq
	l.sequencedSeen = true
	return true
}

// recvWindow returns the current receive-side ack window.
func (l *link) recvWindow() (uint16, uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recvAck, l.recvAckBits
}

// drainBuffers returns every buffered out-of-order packet to the pool.
// Called on peer teardown so no rented packet leaks.
func (l *link) drainBuffers(pool *protocol.Pool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for seq, p := range l.future {
		delete(l.future, seq)
		pool.Return(p)
	}
	for seq := range l.pending {
		delete(l.pending, seq)
	}
}
