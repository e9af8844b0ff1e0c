package gameserver

import (
	"log/slog"

	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/transport"
)

type message interface {
	Encode(buf []byte) (int, error)
}

// send encodes a message into a rented packet and hands it to the transport.
func (s *Server) send(peer transport.PeerID, m message, ch protocol.ChannelTag) {
	pkt := s.pool.Rent()
	pkt.Kind = protocol.KindData
	n, err := m.Encode(pkt.PayloadBuffer())
	if err != nil {
		s.pool.Return(pkt)
		slog.Error("encoding message", "peer", peer, "err", err)
		return
	}
	if err := pkt.SetPayloadLen(n); err != nil {
		s.pool.Return(pkt)
		slog.Error("encoding message", "peer", peer, "err", err)
		return
	}
	if err := s.tr.SendTo(peer, pkt, ch); err != nil {
		slog.Warn("sending message", "peer", peer, "err", err)
	}
}

// broadcastToInGame sends one message to every spawned player.
func (s *Server) broadcastToInGame(m message, ch protocol.ChannelTag) {
	s.registry.ForEach(func(sess *PlayerSession) {
		if sess.State != StateInGame {
			return
		}
		s.send(sess.Peer, m, ch)
	})
}

// broadcastWorldSnapshot ships everyone's state to everyone. Snapshots ride
// the unreliable channel: a lost one is superseded by the next interval.
// With more players than fit one frame the roster is chunked; each chunk is
// self-contained and stamped with the same tick.
func (s *Server) broadcastWorldSnapshot() {
	var players []netmsg.WorldPlayer
	s.registry.ForEach(func(sess *PlayerSession) {
		if sess.State != StateInGame {
			return
		}
		players = append(players, netmsg.WorldPlayer{
			UserID: sess.UserID.String(),
			State:  sess.Snapshot,
		})
	})
	if len(players) == 0 {
		return
	}

	for start := 0; start < len(players); start += netmsg.MaxWorldPlayers {
		end := start + netmsg.MaxWorldPlayers
		if end > len(players) {
			end = len(players)
		}
		snap := netmsg.WorldSnapshot{Tick: s.tick, Players: players[start:end]}
		s.broadcastToInGame(snap, protocol.ChannelUnreliable)
	}
}
