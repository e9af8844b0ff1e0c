package transport

import "github.com/udisondev/netplay/internal/protocol"

// PeerID identifies one connected peer for the lifetime of its connection.
type PeerID uint32

// EventKind tags a transport event.
type EventKind int

const (
	EventPeerConnected EventKind = iota
	EventPeerDisconnected
	EventPacketReceived
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPeerConnected:
		return "PEER_CONNECTED"
	case EventPeerDisconnected:
		return "PEER_DISCONNECTED"
	case EventPacketReceived:
		return "PACKET_RECEIVED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the single kind of value the transport hands to the simulation
// thread. The transport workers enqueue; the tick loop drains via
// ProcessIncoming. For EventPacketReceived the consumer takes ownership of
// Packet and must return it to the pool.
type Event struct {
	Kind   EventKind
	Peer   PeerID
	Addr   string // peer IP, set on EventPeerConnected
	Reason string // disconnect reason or error text
	Packet *protocol.Packet
}
