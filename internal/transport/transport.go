package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/udisondev/netplay/internal/protocol"
)

// Config holds the transport-level settings of a listener.
type Config struct {
	BindAddress   string
	Port          int
	MaxPeers      int
	ConnectionKey string
	// QueueSize caps the ingress event queue drained once per tick.
	QueueSize int
}

// DisconnectReasonServerFull is sent when a handshake would exceed capacity.
const DisconnectReasonServerFull = "server full"

const defaultQueueSize = 4096

// peer is one admitted remote address.
type peer struct {
	id   PeerID
	addr *net.UDPAddr
	ip   string
	link *link
}

// Transport is the UDP listener: it admits peers via the handshake, decodes
// datagrams on its own worker, runs the per-channel delivery rules, and
// queues events for the simulation thread.
//
// The ingress contract: no handler runs on the socket worker. Everything is
// enqueued and the owner drains the queue once per tick via ProcessIncoming.
type Transport struct {
	cfg  Config
	pool *protocol.Pool

	conn *net.UDPConn

	mu     sync.Mutex
	peers  map[PeerID]*peer
	byAddr map[string]*peer
	nextID PeerID

	events chan Event
}

// New creates a transport. The pool is process-wide and shared with the
// owning service.
func New(cfg Config, pool *protocol.Pool) *Transport {
	qs := cfg.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	return &Transport{
		cfg:    cfg,
		pool:   pool,
		peers:  make(map[PeerID]*peer),
		byAddr: make(map[string]*peer),
		events: make(chan Event, qs),
	}
}

// Run binds the socket and serves until ctx is canceled.
func (t *Transport) Run(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.ParseIP(t.cfg.BindAddress), Port: t.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s:%d: %w", t.cfg.BindAddress, t.cfg.Port, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	slog.Info("transport listening", "address", conn.LocalAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go t.retransmitLoop(ctx)

	buf := make([]byte, protocol.MaxFrame)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.emit(Event{Kind: EventError, Reason: fmt.Sprintf("socket read: %v", err)})
			continue
		}
		t.handleDatagram(raddr, buf[:n])
	}
}

// Addr returns the bound address, or nil before Run.
func (t *Transport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// PeerCount returns the number of admitted peers.
func (t *Transport) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// handleDatagram decodes one datagram and runs the channel admission rules.
// Runs on the socket worker; only enqueues, never dispatches.
func (t *Transport) handleDatagram(raddr *net.UDPAddr, data []byte) {
	pkt := t.pool.Rent()
	if err := pkt.Decode(data); err != nil {
		t.pool.Return(pkt)
		slog.Warn("malformed datagram", "remote", raddr, "err", err)
		return
	}

	t.mu.Lock()
	p := t.byAddr[raddr.String()]
	t.mu.Unlock()

	if p == nil {
		if pkt.Kind == protocol.KindHandshake {
			t.handleHandshake(raddr, pkt)
			return
		}
		// Unadmitted source; nothing to ack, nothing to deliver.
		t.pool.Return(pkt)
		return
	}

	p.link.touch()
	p.link.onAcks(pkt.Ack, pkt.AckBits)

	switch pkt.Kind {
	case protocol.KindHandshake:
		// HandshakeAck got lost; repeat it.
		t.pool.Return(pkt)
		t.sendHandshakeAck(p)

	case protocol.KindHandshakeAck:
		// Pure ack carrier, already consumed above.
		t.pool.Return(pkt)

	case protocol.KindDisconnect:
		reason := string(pkt.Payload())
		t.pool.Return(pkt)
		t.removePeer(p.id)
		t.emit(Event{Kind: EventPeerDisconnected, Peer: p.id, Reason: reason})

	default:
		t.admit(p, pkt)
	}
}

// admit applies the channel delivery rules and enqueues deliverable packets.
func (t *Transport) admit(p *peer, pkt *protocol.Packet) {
	switch pkt.Channel {
	case protocol.ChannelReliable:
		deliver := p.link.admitReliable(pkt, t.pool)
		for _, d := range deliver {
			t.enqueuePacket(p.id, d)
		}
		// Flush the window back even when no app traffic flows the other
		// way, so the sender's resend queue clears.
		t.sendPureAck(p)

	case protocol.ChannelSequenced:
		if !p.link.admitSequenced(pkt.Sequence) {
			t.pool.Return(pkt)
			return
		}
		t.enqueuePacket(p.id, pkt)

	default:
		t.enqueuePacket(p.id, pkt)
	}
}

func (t *Transport) enqueuePacket(id PeerID, pkt *protocol.Packet) {
	select {
	case t.events <- Event{Kind: EventPacketReceived, Peer: id, Packet: pkt}:
	default:
		// Queue overflow: drop, the envelope must still go home.
		t.pool.Return(pkt)
		slog.Warn("ingress queue full, dropping packet", "peer", id)
	}
}

func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		slog.Warn("ingress queue full, dropping event", "kind", ev.Kind)
	}
}

// handleHandshake admits a new peer or refuses the handshake outright.
func (t *Transport) handleHandshake(raddr *net.UDPAddr, pkt *protocol.Packet) {
	key := string(pkt.Payload())
	t.pool.Return(pkt)

	if t.cfg.ConnectionKey != "" && key != t.cfg.ConnectionKey {
		slog.Warn("handshake with bad connection key", "remote", raddr)
		t.refuse(raddr, "invalid connection key")
		return
	}

	t.mu.Lock()
	if t.cfg.MaxPeers > 0 && len(t.peers) >= t.cfg.MaxPeers {
		t.mu.Unlock()
		slog.Warn("handshake refused, at capacity", "remote", raddr, "max", t.cfg.MaxPeers)
		t.refuse(raddr, DisconnectReasonServerFull)
		return
	}
	t.nextID++
	p := &peer{id: t.nextID, addr: raddr, ip: raddr.IP.String(), link: newLink()}
	t.peers[p.id] = p
	t.byAddr[raddr.String()] = p
	t.mu.Unlock()

	slog.Info("peer connected", "peer", p.id, "remote", raddr)
	t.sendHandshakeAck(p)
	t.emit(Event{Kind: EventPeerConnected, Peer: p.id, Addr: p.ip})
}

// refuse answers a handshake with a disconnect frame without creating a peer.
func (t *Transport) refuse(raddr *net.UDPAddr, reason string) {
	pkt := t.pool.Rent()
	pkt.Kind = protocol.KindDisconnect
	pkt.Channel = protocol.ChannelUnreliable
	if err := pkt.SetPayload([]byte(reason)); err != nil {
		t.pool.Return(pkt)
		return
	}
	t.writeRaw(raddr, pkt)
	t.pool.Return(pkt)
}

func (t *Transport) sendHandshakeAck(p *peer) {
	pkt := t.pool.Rent()
	pkt.Kind = protocol.KindHandshakeAck
	var idbuf [4]byte
	idbuf[0] = byte(p.id)
	idbuf[1] = byte(p.id >> 8)
	idbuf[2] = byte(p.id >> 16)
	idbuf[3] = byte(p.id >> 24)
	if err := pkt.SetPayload(idbuf[:]); err != nil {
		t.pool.Return(pkt)
		return
	}
	pkt.Channel = protocol.ChannelUnreliable
	pkt.Ack, pkt.AckBits = p.link.recvWindow()
	t.writeRaw(p.addr, pkt)
	t.pool.Return(pkt)
}

// sendPureAck flushes the receive window in an empty HandshakeAck frame.
func (t *Transport) sendPureAck(p *peer) {
	pkt := t.pool.Rent()
	pkt.Kind = protocol.KindHandshakeAck
	pkt.Channel = protocol.ChannelUnreliable
	pkt.Ack, pkt.AckBits = p.link.recvWindow()
	t.writeRaw(p.addr, pkt)
	t.pool.Return(pkt)
}

// writeRaw encodes and writes one frame as-is (no sequencing, no tracking).
func (t *Transport) writeRaw(raddr *net.UDPAddr, pkt *protocol.Packet) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}
	var frame [protocol.MaxFrame]byte
	n, err := pkt.Encode(frame[:])
	if err != nil {
		slog.Warn("encode frame", "err", err)
		return
	}
	if _, err := conn.WriteToUDP(frame[:n], raddr); err != nil {
		slog.Warn("socket write", "remote", raddr, "err", err)
	}
}

// SendTo sends a packet to a peer over the given channel. Ownership of the
// packet transfers to the transport: it is returned to the pool once the
// bytes are queued on the socket (reliable frames keep an encoded copy for
// retransmission, not the packet itself).
func (t *Transport) SendTo(id PeerID, pkt *protocol.Packet, ch protocol.ChannelTag) error {
	t.mu.Lock()
	p := t.peers[id]
	conn := t.conn
	t.mu.Unlock()
	if p == nil || conn == nil {
		t.pool.Return(pkt)
		return fmt.Errorf("send to peer %d: no such peer", id)
	}

	p.link.stampOutgoing(pkt, ch)

	var frame [protocol.MaxFrame]byte
	n, err := pkt.Encode(frame[:])
	if err != nil {
		t.pool.Return(pkt)
		return fmt.Errorf("send to peer %d: %w", id, err)
	}
	if ch == protocol.ChannelReliable {
		cp := make([]byte, n)
		copy(cp, frame[:n])
		p.link.trackReliable(pkt.Sequence, cp)
	}
	t.pool.Return(pkt)

	if _, err := conn.WriteToUDP(frame[:n], p.addr); err != nil {
		return fmt.Errorf("send to peer %d: %w", id, err)
	}
	return nil
}

// Disconnect tears a peer down: a disconnect frame is sent, the peer is
// forgotten, and a PeerDisconnected event is queued so the simulation
// thread runs its one teardown path.
func (t *Transport) Disconnect(id PeerID, reason string) {
	t.mu.Lock()
	p := t.peers[id]
	t.mu.Unlock()
	if p == nil {
		return
	}

	pkt := t.pool.Rent()
	pkt.Kind = protocol.KindDisconnect
	pkt.Channel = protocol.ChannelUnreliable
	if err := pkt.SetPayload([]byte(reason)); err == nil {
		t.writeRaw(p.addr, pkt)
	}
	t.pool.Return(pkt)

	t.removePeer(id)
	t.emit(Event{Kind: EventPeerDisconnected, Peer: id, Reason: reason})
}

func (t *Transport) removePeer(id PeerID) {
	t.mu.Lock()
	p := t.peers[id]
	if p != nil {
		delete(t.peers, id)
		delete(t.byAddr, p.addr.String())
	}
	t.mu.Unlock()
	if p != nil {
		p.link.drainBuffers(t.pool)
		slog.Info("peer removed", "peer", id)
	}
}

// LastActivity returns the time of the peer's last inbound datagram.
func (t *Transport) LastActivity(id PeerID) (time.Time, bool) {
	t.mu.Lock()
	p := t.peers[id]
	t.mu.Unlock()
	if p == nil {
		return time.Time{}, false
	}
	return p.link.idleSince(), true
}

// ProcessIncoming drains the ingress queue and fires fn for each event,
// synchronously on the caller's goroutine. Called exactly once per tick by
// the simulation loop; this is the single place handlers run.
func (t *Transport) ProcessIncoming(fn func(Event)) int {
	n := 0
	for {
		select {
		case ev := <-t.events:
			fn(ev)
			n++
		default:
			return n
		}
	}
}

// retransmitLoop periodically resends unacked reliable frames and tears
// down peers whose frames exhausted their retries.
func (t *Transport) retransmitLoop(ctx context.Context) {
	ticker := time.NewTicker(retransmitInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.mu.Lock()
			peers := make([]*peer, 0, len(t.peers))
			for _, p := range t.peers {
				peers = append(peers, p)
			}
			conn := t.conn
			t.mu.Unlock()
			if conn == nil {
				continue
			}
			for _, p := range peers {
				frames, err := p.link.due(now)
				if err != nil {
					slog.Warn("peer unresponsive", "peer", p.id, "err", err)
					t.removePeer(p.id)
					t.emit(Event{Kind: EventPeerDisconnected, Peer: p.id, Reason: "timeout"})
					continue
				}
				for _, f := range frames {
					if _, err := conn.WriteToUDP(f, p.addr); err != nil {
						slog.Warn("retransmit write", "peer", p.id, "err", err)
					}
				}
			}
		}
	}
}
