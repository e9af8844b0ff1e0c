// Package authserver is the login service: it owns accounts, verifies
// credentials, and issues the session tokens the game service admits.
package authserver

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/netplay/internal/config"
	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/token"
	"github.com/udisondev/netplay/internal/transport"
)

// attemptRetention bounds how long login attempt rows are kept; the rate
// limiter only ever looks back one window, the rest is audit history.
const attemptRetention = 24 * time.Hour

const serviceLabel = "auth"

type message interface {
	Encode(buf []byte) (int, error)
}

// Server drives the auth endpoints over the UDP transport. All handlers
// run on the tick goroutine; the transport only queues.
type Server struct {
	cfg     config.AuthServer
	pool    *protocol.Pool
	tr      *transport.Transport
	handler *Handler
	repo    AccountRepository

	tick    uint32
	peerIPs map[transport.PeerID]string
}

// New assembles the auth service.
func New(cfg config.AuthServer, repo AccountRepository) *Server {
	pool := protocol.NewPool()
	return &Server{
		cfg:  cfg,
		pool: pool,
		tr: transport.New(transport.Config{
			BindAddress:   cfg.BindAddress,
			Port:          cfg.Port,
			MaxPeers:      cfg.MaxClients,
			ConnectionKey: cfg.ConnectionKey,
		}, pool),
		handler: NewHandler(cfg, repo, token.NewIssuer(cfg.JWT)),
		repo:    repo,
		peerIPs: make(map[transport.PeerID]string),
	}
}

// Transport exposes the listener, mainly so tests can dial its address.
func (s *Server) Transport() *transport.Transport {
	return s.tr
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tr.Run(ctx) })
	g.Go(func() error { return s.tickLoop(ctx) })
	g.Go(func() error { return s.cleanupLoop(ctx) })
	g.Go(func() error { return metrics.Serve(ctx, s.cfg.MetricsAddr) })
	return g.Wait()
}

// tickLoop drains the ingress queue at the configured rate. Auth traffic
// is request/response, so a low rate keeps the service cheap.
func (s *Server) tickLoop(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			s.tick++
			s.tr.ProcessIncoming(func(ev transport.Event) {
				s.onEvent(ctx, ev)
			})
			metrics.TickDuration.WithLabelValues(serviceLabel).Observe(time.Since(start).Seconds())
			metrics.PacketsInUse.Set(float64(s.pool.InUse()))
		}
	}
}

// cleanupLoop prunes old login attempt rows once an hour.
func (s *Server) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.repo.CleanupLoginAttempts(ctx, attemptRetention)
			if err != nil {
				slog.Warn("login attempt cleanup", "err", err)
				continue
			}
			if removed > 0 {
				slog.Info("login attempts pruned", "removed", removed)
			}
		}
	}
}

func (s *Server) onEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerConnected:
		s.peerIPs[ev.Peer] = ev.Addr
		metrics.ConnectedPeers.WithLabelValues(serviceLabel).Set(float64(len(s.peerIPs)))

	case transport.EventPeerDisconnected:
		delete(s.peerIPs, ev.Peer)
		metrics.ConnectedPeers.WithLabelValues(serviceLabel).Set(float64(len(s.peerIPs)))

	case transport.EventPacketReceived:
		s.handlePacket(ctx, ev.Peer, ev.Packet)

	case transport.EventError:
		slog.Warn("transport error", "reason", ev.Reason)
	}
}

func (s *Server) handlePacket(ctx context.Context, peer transport.PeerID, pkt *protocol.Packet) {
	defer s.pool.Return(pkt)

	if pkt.Kind != protocol.KindData {
		return
	}
	kind, err := netmsg.PeekKind(pkt.Payload())
	if err != nil {
		slog.Warn("undecodable message", "peer", peer, "err", err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(serviceLabel, kind.String()).Inc()

	switch kind {
	case netmsg.KindPing:
		var m netmsg.Ping
		if err := m.Decode(pkt.Payload()); err != nil {
			slog.Warn("bad ping", "peer", peer, "err", err)
			return
		}
		s.send(peer, netmsg.Pong{Timestamp: m.Timestamp, ServerTick: s.tick}, protocol.ChannelUnreliable)

	case netmsg.KindRegisterRequest:
		var m netmsg.RegisterRequest
		if err := m.Decode(pkt.Payload()); err != nil {
			slog.Warn("bad register request", "peer", peer, "err", err)
			return
		}
		s.send(peer, s.handler.Register(ctx, m), protocol.ChannelReliable)

	case netmsg.KindLoginRequest:
		var m netmsg.LoginRequest
		if err := m.Decode(pkt.Payload()); err != nil {
			slog.Warn("bad login request", "peer", peer, "err", err)
			return
		}
		s.send(peer, s.handler.Login(ctx, s.peerIPs[peer], m), protocol.ChannelReliable)

	case netmsg.KindTokenValidationRequest:
		var m netmsg.TokenValidationRequest
		if err := m.Decode(pkt.Payload()); err != nil {
			slog.Warn("bad token validation request", "peer", peer, "err", err)
			return
		}
		s.send(peer, s.handler.ValidateToken(m), protocol.ChannelReliable)

	case netmsg.KindDisconnect:
		var m netmsg.Disconnect
		if err := m.Decode(pkt.Payload()); err == nil {
			s.tr.Disconnect(peer, m.Reason)
		}

	default:
		metrics.UnknownMessages.WithLabelValues(serviceLabel).Inc()
		slog.Warn("unhandled message kind", "peer", peer, "kind", kind)
	}
}

// send encodes a message into a rented packet and hands it to the transport.
func (s *Server) send(peer transport.PeerID, m message, ch protocol.ChannelTag) {
	pkt := s.pool.Rent()
	pkt.Kind = protocol.KindData
	n, err := m.Encode(pkt.PayloadBuffer())
	if err != nil {
		s.pool.Return(pkt)
		slog.Error("encoding response", "peer", peer, "err", err)
		return
	}
	if err := pkt.SetPayloadLen(n); err != nil {
		s.pool.Return(pkt)
		slog.Error("encoding response", "peer", peer, "err", err)
		return
	}
	if err := s.tr.SendTo(peer, pkt, ch); err != nil {
		slog.Warn("sending response", "peer", peer, "err", err)
	}
}
