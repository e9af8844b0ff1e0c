package gameserver

import (
	"errors"
	"log/slog"

	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/token"
)

// handleGameAuth runs the game-join handshake: verify the session token,
// enforce the one-session-per-account rule, spawn the player.
func (s *Server) handleGameAuth(sess *PlayerSession, payload []byte) {
	var req netmsg.GameAuthRequest
	if err := req.Decode(payload); err != nil {
		slog.Warn("bad game auth request", "peer", sess.Peer, "err", err)
		return
	}

	if sess.State != StateConnected {
		// Re-auth on a live session is not a thing; refuse and close.
		slog.Warn("game auth in wrong state", "peer", sess.Peer, "state", sess.State)
		s.send(sess.Peer, netmsg.GameAuthResponse{Result: netmsg.GameAuthAlreadyConnected}, protocol.ChannelReliable)
		sess.State = StateDisconnecting
		s.tr.Disconnect(sess.Peer, "already authenticated")
		return
	}
	if err := sess.Transition(StateAuthenticating); err != nil {
		slog.Warn("game auth", "err", err)
		return
	}

	result := s.authenticate(sess, req)
	metrics.GameAuthOutcomes.WithLabelValues(result.String()).Inc()

	if result != netmsg.GameAuthSuccess {
		slog.Warn("game auth refused", "peer", sess.Peer, "result", result)
		s.send(sess.Peer, netmsg.GameAuthResponse{Result: result}, protocol.ChannelReliable)
		sess.State = StateDisconnecting
		s.tr.Disconnect(sess.Peer, "authentication failed")
		return
	}

	if err := sess.Transition(StateAuthenticated); err != nil {
		slog.Error("game auth", "err", err)
		return
	}
	sess.Spawn(s.tick)
	if err := sess.Transition(StateInGame); err != nil {
		slog.Error("game auth", "err", err)
		return
	}

	slog.Info("player joined",
		"peer", sess.Peer, "user", sess.UserID, "username", sess.Username, "tick", s.tick)
	s.send(sess.Peer, netmsg.GameAuthResponse{
		Result:     netmsg.GameAuthSuccess,
		UserID:     sess.UserID.String(),
		Username:   sess.Username,
		ServerTick: s.tick,
	}, protocol.ChannelReliable)
}

// authenticate checks version, token and the account slot. On success the
// session carries the verified identity.
func (s *Server) authenticate(sess *PlayerSession, req netmsg.GameAuthRequest) netmsg.GameAuthResult {
	if compareVersions(req.ClientVersion, s.cfg.MinClientVersion) < 0 {
		slog.Info("client too old",
			"peer", sess.Peer, "version", req.ClientVersion, "min", s.cfg.MinClientVersion)
		return netmsg.GameAuthVersionMismatch
	}

	claims, err := s.verifier.Verify(req.Token)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return netmsg.GameAuthTokenExpired
		}
		slog.Warn("token rejected", "peer", sess.Peer, "err", err)
		return netmsg.GameAuthInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		slog.Warn("token rejected", "peer", sess.Peer, "err", err)
		return netmsg.GameAuthInvalidToken
	}

	if s.registry.InGameCount() >= s.cfg.MaxPlayers {
		return netmsg.GameAuthServerFull
	}

	// The existing session stays; the newcomer is refused.
	if err := s.registry.Bind(sess, userID); err != nil {
		slog.Info("duplicate login refused", "peer", sess.Peer, "user", userID)
		return netmsg.GameAuthAlreadyConnected
	}

	sess.Username = claims.Username
	return netmsg.GameAuthSuccess
}
