// Package gameserver is the authoritative simulation: it admits players by
// session token, advances the shared movement model at a fixed tick, and
// reconciles clients against the committed state.
package gameserver

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/netplay/internal/config"
	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/token"
	"github.com/udisondev/netplay/internal/transport"
)

const serviceLabel = "game"

// Server owns the tick loop. Every handler, the maintenance pass and the
// snapshot broadcast run on the tick goroutine; the transport and the
// retransmit worker are the only other goroutines touching the socket.
type Server struct {
	cfg      config.GameServer
	pool     *protocol.Pool
	tr       *transport.Transport
	verifier *token.Issuer
	registry *Registry
	dispatch *Dispatcher

	tick uint32
	dt   float32

	// Exponential moving average of tick duration, for the overload log.
	tickEWMA float64

	disconnectTimeout time.Duration
	authGrace         time.Duration
}

// New assembles the game server.
func New(cfg config.GameServer) *Server {
	pool := protocol.NewPool()
	s := &Server{
		cfg:  cfg,
		pool: pool,
		tr: transport.New(transport.Config{
			BindAddress:   cfg.BindAddress,
			Port:          cfg.Port,
			MaxPeers:      cfg.MaxPlayers,
			ConnectionKey: cfg.ConnectionKey,
		}, pool),
		verifier:          token.NewIssuer(cfg.JWT),
		registry:          NewRegistry(),
		dispatch:          NewDispatcher(),
		dt:                1.0 / float32(cfg.TickRate),
		disconnectTimeout: time.Duration(cfg.DisconnectTimeoutSeconds) * time.Second,
		authGrace:         time.Duration(cfg.AuthGracePeriodSeconds) * time.Second,
	}

	s.dispatch.Register(netmsg.KindPing, s.handlePing)
	s.dispatch.Register(netmsg.KindDisconnect, s.handleDisconnectMsg)
	s.dispatch.Register(netmsg.KindGameAuthRequest, s.handleGameAuth)
	s.dispatch.Register(netmsg.KindPlayerInput, s.handlePlayerInput)
	s.dispatch.Register(netmsg.KindPlayerInputBatch, s.handlePlayerInputBatch)
	s.dispatch.Register(netmsg.KindChatMessage, s.handleChat)

	return s
}

// Transport exposes the listener, mainly so tests can dial its address.
func (s *Server) Transport() *transport.Transport {
	return s.tr
}

// Tick returns the current simulation tick.
func (s *Server) Tick() uint32 {
	return s.tick
}

// Run serves until ctx is canceled, then disconnects every session.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tr.Run(gctx) })
	g.Go(func() error { return s.tickLoop(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, s.cfg.MetricsAddr) })
	err := g.Wait()

	// The socket is already down; just run the teardown path so sessions
	// are not leaked if Run is reused in tests.
	s.registry.ForEach(func(sess *PlayerSession) {
		s.registry.Remove(sess.Peer)
	})
	return err
}

// tickLoop advances the simulation at the configured fixed rate.
func (s *Server) tickLoop(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("simulation running", "tick_rate", s.cfg.TickRate, "dt", s.dt)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			s.runTick()
			took := time.Since(start)

			metrics.TickDuration.WithLabelValues(serviceLabel).Observe(took.Seconds())
			metrics.PacketsInUse.Set(float64(s.pool.InUse()))
			s.tickEWMA = 0.9*s.tickEWMA + 0.1*took.Seconds()
			if took > interval {
				slog.Warn("tick over budget",
					"tick", s.tick, "took", took, "budget", interval,
					"avg", time.Duration(s.tickEWMA*float64(time.Second)))
			}
		}
	}
}

// runTick is one simulation step. A panicking handler loses its tick, not
// the server: the recover boundary is here so state from a half-applied
// tick never crosses into the next one unnoticed.
func (s *Server) runTick() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick panicked", "tick", s.tick, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	s.tick++
	s.tr.ProcessIncoming(s.onEvent)
	s.maintain()

	if s.cfg.SnapshotIntervalTicks > 0 && s.tick%uint32(s.cfg.SnapshotIntervalTicks) == 0 {
		s.broadcastWorldSnapshot()
	}
}

func (s *Server) onEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerConnected:
		sess := NewPlayerSession(ev.Peer, ev.Addr)
		s.registry.Add(sess)
		metrics.ConnectedPeers.WithLabelValues(serviceLabel).Set(float64(s.registry.Count()))
		slog.Info("session opened", "peer", ev.Peer, "addr", ev.Addr)

	case transport.EventPeerDisconnected:
		s.teardown(ev.Peer, ev.Reason)

	case transport.EventPacketReceived:
		pkt := ev.Packet
		sess := s.registry.ByPeer(ev.Peer)
		if sess == nil || sess.State == StateDisconnecting {
			s.pool.Return(pkt)
			return
		}
		if pkt.Kind != protocol.KindData {
			// Transport-level kinds are consumed before the queue; anything
			// else reaching here is a client speaking the wrong dialect.
			metrics.UnknownMessages.WithLabelValues(serviceLabel).Inc()
			slog.Warn("unhandled packet kind", "peer", ev.Peer, "kind", pkt.Kind)
			s.pool.Return(pkt)
			return
		}
		s.dispatch.Dispatch(sess, pkt.Payload())
		s.pool.Return(pkt)

	case transport.EventError:
		slog.Warn("transport error", "reason", ev.Reason)
	}
}

// teardown is the single session removal path. Both voluntary disconnects
// and timeouts funnel through here via the transport's event queue.
func (s *Server) teardown(peer transport.PeerID, reason string) {
	sess := s.registry.Remove(peer)
	if sess == nil {
		return
	}
	sess.State = StateDisconnecting
	metrics.ConnectedPeers.WithLabelValues(serviceLabel).Set(float64(s.registry.Count()))
	slog.Info("session closed",
		"peer", peer, "user", sess.UserID, "username", sess.Username, "reason", reason)
}

// maintain reaps idle peers and sessions that never authenticated.
func (s *Server) maintain() {
	now := time.Now()
	s.registry.ForEach(func(sess *PlayerSession) {
		last, ok := s.tr.LastActivity(sess.Peer)
		if ok && now.Sub(last) > s.disconnectTimeout {
			slog.Info("peer idle, disconnecting", "peer", sess.Peer, "idle", now.Sub(last))
			s.tr.Disconnect(sess.Peer, "timeout")
			return
		}
		if sess.State != StateInGame && now.Sub(sess.ConnectedAt) > s.authGrace {
			slog.Info("auth grace expired", "peer", sess.Peer, "state", sess.State)
			s.tr.Disconnect(sess.Peer, "authentication timeout")
		}
	})
}
