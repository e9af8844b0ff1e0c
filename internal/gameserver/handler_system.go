package gameserver

import (
	"log/slog"

	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
)

// handlePing answers with the echoed timestamp and the current tick so the
// client can track server time.
func (s *Server) handlePing(sess *PlayerSession, payload []byte) {
	var msg netmsg.Ping
	if err := msg.Decode(payload); err != nil {
		slog.Warn("bad ping", "peer", sess.Peer, "err", err)
		return
	}
	s.send(sess.Peer, netmsg.Pong{Timestamp: msg.Timestamp, ServerTick: s.tick}, protocol.ChannelUnreliable)
}

// handleDisconnectMsg is the voluntary quit path.
func (s *Server) handleDisconnectMsg(sess *PlayerSession, payload []byte) {
	var msg netmsg.Disconnect
	if err := msg.Decode(payload); err != nil {
		slog.Warn("bad disconnect", "peer", sess.Peer, "err", err)
		return
	}
	reason := msg.Reason
	if reason == "" {
		reason = "client quit"
	}
	s.tr.Disconnect(sess.Peer, reason)
}

// handleChat drops chat for now. The kind is routed so it does not pollute
// the unknown-message counter while the feature is out.
func (s *Server) handleChat(sess *PlayerSession, payload []byte) {
	if !s.requireInGame(sess) {
		return
	}
	slog.Debug("chat message ignored", "peer", sess.Peer)
}
