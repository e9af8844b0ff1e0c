package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/udisondev/netplay/internal/protocol"
)

// Handshake retry schedule for Dial.
const (
	handshakeTimeout = time.Second
	handshakeRetries = 5
)

// Conn is the client end of the transport: one link to one server, with
// the same channel semantics and the same drain-per-tick ingress contract
// as the server side.
type Conn struct {
	conn   *net.UDPConn
	pool   *protocol.Pool
	link   *link
	peerID PeerID

	events chan Event
	cancel context.CancelFunc
}

// Dial connects to a server, performs the admission handshake with the
// preshared key, and starts the socket worker. The returned Conn is ready
// to send on.
func Dial(ctx context.Context, addr, connectionKey string, pool *protocol.Pool) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	sock, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	c := &Conn{
		conn:   sock,
		pool:   pool,
		link:   newLink(),
		events: make(chan Event, defaultQueueSize),
	}

	id, err := c.handshake(connectionKey)
	if err != nil {
		sock.Close()
		return nil, err
	}
	c.peerID = id

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.readLoop(runCtx)
	go c.retransmitLoop(runCtx)
	return c, nil
}

// PeerID returns the id the server assigned during the handshake.
func (c *Conn) PeerID() PeerID { return c.peerID }

// handshake sends the admission request until the server answers.
func (c *Conn) handshake(key string) (PeerID, error) {
	req := c.pool.Rent()
	req.Kind = protocol.KindHandshake
	req.Channel = protocol.ChannelUnreliable
	if err := req.SetPayload([]byte(key)); err != nil {
		c.pool.Return(req)
		return 0, fmt.Errorf("handshake: %w", err)
	}
	var frame [protocol.MaxFrame]byte
	n, err := req.Encode(frame[:])
	c.pool.Return(req)
	if err != nil {
		return 0, fmt.Errorf("handshake: %w", err)
	}

	buf := make([]byte, protocol.MaxFrame)
	for attempt := 0; attempt < handshakeRetries; attempt++ {
		if _, err := c.conn.Write(frame[:n]); err != nil {
			return 0, fmt.Errorf("handshake write: %w", err)
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
			return 0, fmt.Errorf("handshake deadline: %w", err)
		}
		rn, err := c.conn.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return 0, fmt.Errorf("handshake read: %w", err)
		}
		resp := c.pool.Rent()
		if err := resp.Decode(buf[:rn]); err != nil {
			c.pool.Return(resp)
			continue
		}
		switch resp.Kind {
		case protocol.KindHandshakeAck:
			payload := resp.Payload()
			if len(payload) < 4 {
				c.pool.Return(resp)
				continue
			}
			id := PeerID(binary.LittleEndian.Uint32(payload[:4]))
			c.pool.Return(resp)
			c.conn.SetReadDeadline(time.Time{})
			return id, nil
		case protocol.KindDisconnect:
			reason := string(resp.Payload())
			c.pool.Return(resp)
			return 0, fmt.Errorf("handshake refused: %s", reason)
		default:
			c.pool.Return(resp)
		}
	}
	return 0, fmt.Errorf("handshake: no answer after %d attempts", handshakeRetries)
}

// readLoop decodes incoming frames and queues deliverable packets.
func (c *Conn) readLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	buf := make([]byte, protocol.MaxFrame)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.emit(Event{Kind: EventError, Reason: fmt.Sprintf("socket read: %v", err)})
			continue
		}

		pkt := c.pool.Rent()
		if err := pkt.Decode(buf[:n]); err != nil {
			c.pool.Return(pkt)
			slog.Warn("malformed datagram", "err", err)
			continue
		}

		c.link.touch()
		c.link.onAcks(pkt.Ack, pkt.AckBits)

		switch pkt.Kind {
		case protocol.KindHandshakeAck:
			c.pool.Return(pkt)

		case protocol.KindDisconnect:
			reason := string(pkt.Payload())
			c.pool.Return(pkt)
			c.emit(Event{Kind: EventPeerDisconnected, Peer: c.peerID, Reason: reason})

		default:
			switch pkt.Channel {
			case protocol.ChannelReliable:
				for _, d := range c.link.admitReliable(pkt, c.pool) {
					c.emitPacket(d)
				}
				c.sendPureAck()
			case protocol.ChannelSequenced:
				if !c.link.admitSequenced(pkt.Sequence) {
					c.pool.Return(pkt)
					continue
				}
				c.emitPacket(pkt)
			default:
				c.emitPacket(pkt)
			}
		}
	}
}

func (c *Conn) emitPacket(pkt *protocol.Packet) {
	select {
	case c.events <- Event{Kind: EventPacketReceived, Peer: c.peerID, Packet: pkt}:
	default:
		c.pool.Return(pkt)
		slog.Warn("client ingress queue full, dropping packet")
	}
}

func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		slog.Warn("client ingress queue full, dropping event", "kind", ev.Kind)
	}
}

// Send transmits a packet over the given channel. Packet ownership
// transfers to the connection.
func (c *Conn) Send(pkt *protocol.Packet, ch protocol.ChannelTag) error {
	c.link.stampOutgoing(pkt, ch)

	var frame [protocol.MaxFrame]byte
	n, err := pkt.Encode(frame[:])
	if err != nil {
		c.pool.Return(pkt)
		return fmt.Errorf("send: %w", err)
	}
	if ch == protocol.ChannelReliable {
		cp := make([]byte, n)
		copy(cp, frame[:n])
		c.link.trackReliable(pkt.Sequence, cp)
	}
	c.pool.Return(pkt)

	if _, err := c.conn.Write(frame[:n]); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *Conn) sendPureAck() {
	pkt := c.pool.Rent()
	pkt.Kind = protocol.KindHandshakeAck
	pkt.Channel = protocol.ChannelUnreliable
	pkt.Ack, pkt.AckBits = c.link.recvWindow()
	var frame [protocol.HeaderSize]byte
	if n, err := pkt.Encode(frame[:]); err == nil {
		c.conn.Write(frame[:n])
	}
	c.pool.Return(pkt)
}

// ProcessIncoming drains queued events, firing fn synchronously for each.
// Call once per client tick.
func (c *Conn) ProcessIncoming(fn func(Event)) int {
	n := 0
	for {
		select {
		case ev := <-c.events:
			fn(ev)
			n++
		default:
			return n
		}
	}
}

// retransmitLoop resends unacked reliable frames.
func (c *Conn) retransmitLoop(ctx context.Context) {
	ticker := time.NewTicker(retransmitInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frames, err := c.link.due(now)
			if err != nil {
				slog.Warn("server unresponsive", "err", err)
				c.emit(Event{Kind: EventPeerDisconnected, Peer: c.peerID, Reason: "timeout"})
				continue
			}
			for _, f := range frames {
				if _, err := c.conn.Write(f); err != nil {
					slog.Warn("retransmit write", "err", err)
				}
			}
		}
	}
}

// Close notifies the server and shuts the socket down.
func (c *Conn) Close() error {
	pkt := c.pool.Rent()
	pkt.Kind = protocol.KindDisconnect
	pkt.Channel = protocol.ChannelUnreliable
	if err := pkt.SetPayload([]byte("client quit")); err == nil {
		var frame [protocol.MaxFrame]byte
		if n, encErr := pkt.Encode(frame[:]); encErr == nil {
			c.conn.Write(frame[:n])
		}
	}
	c.pool.Return(pkt)

	if c.cancel != nil {
		c.cancel()
	}
	c.link.drainBuffers(c.pool)
	return c.conn.Close()
}
