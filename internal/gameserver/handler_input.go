package gameserver

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/sim"
)

// requireInGame enforces the state machine at the gameplay boundary: a peer
// that sends gameplay traffic before it finished the join handshake gets an
// auth-error response and is forcibly disconnected.
func (s *Server) requireInGame(sess *PlayerSession) bool {
	if sess.State == StateInGame {
		return true
	}
	metrics.InputsRejected.WithLabelValues("not_in_game").Inc()
	slog.Warn("gameplay message before authentication", "peer", sess.Peer, "state", sess.State)
	s.send(sess.Peer, netmsg.GameAuthResponse{Result: netmsg.GameAuthInvalidToken}, protocol.ChannelReliable)
	sess.State = StateDisconnecting
	s.tr.Disconnect(sess.Peer, "not authenticated")
	return false
}

// handlePlayerInput applies one intent tick and acknowledges the committed
// state so the client can reconcile.
func (s *Server) handlePlayerInput(sess *PlayerSession, payload []byte) {
	if !s.requireInGame(sess) {
		return
	}
	var msg netmsg.PlayerInput
	if err := msg.Decode(payload); err != nil {
		slog.Warn("bad player input", "peer", sess.Peer, "err", err)
		return
	}
	if !s.applyInput(sess, msg.Input) {
		return
	}
	s.ackState(sess)
}

// handlePlayerInputBatch applies a redundant input burst in ascending
// sequence order. Only the final committed state is acknowledged; the
// intermediate ones are implied.
func (s *Server) handlePlayerInputBatch(sess *PlayerSession, payload []byte) {
	if !s.requireInGame(sess) {
		return
	}
	var msg netmsg.PlayerInputBatch
	if err := msg.Decode(payload); err != nil {
		slog.Warn("bad input batch", "peer", sess.Peer, "err", err)
		return
	}
	// The wire order is whatever the client's resend window produced; the
	// stale-sequence filter would eat inputs that arrive behind a newer one.
	slices.SortFunc(msg.Inputs, func(a, b sim.InputData) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	applied := false
	for _, in := range msg.Inputs {
		if s.applyInput(sess, in) {
			applied = true
		}
	}
	if applied {
		s.ackState(sess)
	}
}

// applyInput validates and commits one input. Returns false when the input
// was rejected; rejection never mutates the session.
func (s *Server) applyInput(sess *PlayerSession, in sim.InputData) bool {
	if sess.State != StateInGame {
		metrics.InputsRejected.WithLabelValues("not_in_game").Inc()
		return false
	}
	// Duplicates and reordered retransmits are expected, drop quietly.
	if in.Sequence <= sess.LastInputSeq {
		metrics.InputsRejected.WithLabelValues("stale_sequence").Inc()
		return false
	}
	if !in.Valid() {
		metrics.InputsRejected.WithLabelValues("invalid_move").Inc()
		slog.Warn("input rejected, oversized move",
			"peer", sess.Peer, "user", sess.UserID, "seq", in.Sequence)
		return false
	}

	next := sim.Execute(sess.Snapshot, in, s.cfg.Movement, s.dt)

	// Authoritative speed check: horizontal displacement per tick is capped
	// regardless of what the client claims it pressed.
	moved := next.Position.Sub(sess.Snapshot.Position).HorizontalSqrMagnitude()
	max := sim.MaxDisplacement(s.cfg.Movement, s.dt)
	if moved > max*max {
		metrics.InputsRejected.WithLabelValues("speed").Inc()
		slog.Warn("input rejected, speed violation",
			"peer", sess.Peer, "user", sess.UserID, "seq", in.Sequence,
			"moved_sqr", moved, "max", max)
		return false
	}

	sess.Snapshot = next
	sess.LastInputSeq = in.Sequence
	return true
}

// ackState sends the authoritative post-input state on the reliable channel.
func (s *Server) ackState(sess *PlayerSession) {
	s.send(sess.Peer, netmsg.PlayerState{State: sess.Snapshot}, protocol.ChannelReliable)
}
