package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/sim"
	"github.com/udisondev/netplay/internal/transport"
)

// redundantInputs is how many trailing unacked inputs ride along with every
// fresh one. Input batches go unreliable; redundancy covers the loss.
const redundantInputs = 3

// joinTimeout bounds how long Connect waits for the game-auth response.
const joinTimeout = 5 * time.Second

// Config is everything a client needs to join a game server.
type Config struct {
	ServerAddr    string
	ConnectionKey string
	Token         string
	ClientVersion string
	TickRate      int
	PingInterval  time.Duration
	Movement      sim.MovementSettings
}

// InputFunc produces the player intent for one client tick.
type InputFunc func(tick uint32) (move sim.Vec2, rotation float32, actions byte)

// ErrJoinRefused wraps a non-success game-auth result.
var ErrJoinRefused = errors.New("join refused")

// Client is a connected, authenticated game client running the prediction
// pipeline. Remote player states from world snapshots are kept for reading.
type Client struct {
	cfg  Config
	pool *protocol.Pool
	conn *transport.Conn
	pred *Predictor

	userID   string
	username string

	tick       uint32
	serverTick uint32

	mu      sync.RWMutex
	remotes map[string]sim.StateSnapshot

	disconnected chan string
}

// Connect dials the server, presents the session token and waits for the
// join verdict. On success the returned client is in game and ready to Run.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	pool := protocol.NewPool()
	conn, err := transport.Dial(ctx, cfg.ServerAddr, cfg.ConnectionKey, pool)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.ServerAddr, err)
	}

	c := &Client{
		cfg:          cfg,
		pool:         pool,
		conn:         conn,
		pred:         NewPredictor(cfg.Movement, cfg.TickRate),
		remotes:      make(map[string]sim.StateSnapshot),
		disconnected: make(chan string, 1),
	}

	if err := c.join(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// UserID returns the authenticated account id.
func (c *Client) UserID() string { return c.userID }

// Username returns the authenticated account name.
func (c *Client) Username() string { return c.username }

// State returns the current predicted local state.
func (c *Client) State() sim.StateSnapshot { return c.pred.State() }

// ServerTick returns the last tick the server reported.
func (c *Client) ServerTick() uint32 { return c.serverTick }

// Remotes returns a copy of the last known remote player states.
func (c *Client) Remotes() map[string]sim.StateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]sim.StateSnapshot, len(c.remotes))
	for k, v := range c.remotes {
		out[k] = v
	}
	return out
}

// join sends the game-auth request and polls for the verdict.
func (c *Client) join(ctx context.Context) error {
	if err := c.send(netmsg.GameAuthRequest{
		Token:         c.cfg.Token,
		ClientVersion: c.cfg.ClientVersion,
	}, protocol.ChannelReliable); err != nil {
		return err
	}

	deadline := time.Now().Add(joinTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var verdict *netmsg.GameAuthResponse
		var refusal string
		c.conn.ProcessIncoming(func(ev transport.Event) {
			switch ev.Kind {
			case transport.EventPacketReceived:
				defer c.pool.Return(ev.Packet)
				if ev.Packet.Kind != protocol.KindData {
					return
				}
				kind, err := netmsg.PeekKind(ev.Packet.Payload())
				if err != nil || kind != netmsg.KindGameAuthResponse {
					return
				}
				var resp netmsg.GameAuthResponse
				if err := resp.Decode(ev.Packet.Payload()); err == nil {
					verdict = &resp
				}
			case transport.EventPeerDisconnected:
				refusal = ev.Reason
			}
		})
		if refusal != "" {
			return fmt.Errorf("%w: %s", ErrJoinRefused, refusal)
		}
		if verdict != nil {
			if verdict.Result != netmsg.GameAuthSuccess {
				return fmt.Errorf("%w: %s", ErrJoinRefused, verdict.Result)
			}
			c.userID = verdict.UserID
			c.username = verdict.Username
			c.serverTick = verdict.ServerTick
			c.tick = verdict.ServerTick
			c.pred.Reset(sim.StateSnapshot{Tick: verdict.ServerTick, Flags: sim.FlagGrounded})
			slog.Info("joined game", "user", c.userID, "username", c.username, "tick", c.tick)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("%w: no answer within %s", ErrJoinRefused, joinTimeout)
}

// Run ticks the client until ctx ends or the server disconnects it. input
// is called once per tick for the player intent.
func (c *Client) Run(ctx context.Context, input InputFunc) error {
	interval := time.Second / time.Duration(c.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pingEvery := c.cfg.PingInterval
	if pingEvery <= 0 {
		pingEvery = time.Second
	}
	lastPing := time.Now()

	for {
		select {
		case <-ctx.Done():
			return c.conn.Close()
		case reason := <-c.disconnected:
			c.conn.Close()
			return fmt.Errorf("disconnected by server: %s", reason)
		case <-ticker.C:
			c.tick++
			c.conn.ProcessIncoming(c.onEvent)

			move, rot, actions := input(c.tick)
			c.pred.Step(c.tick, move, rot, actions)
			c.sendInputs()

			if time.Since(lastPing) >= pingEvery {
				lastPing = time.Now()
				if err := c.send(netmsg.Ping{Timestamp: lastPing.UnixMilli()}, protocol.ChannelUnreliable); err != nil {
					slog.Warn("ping", "err", err)
				}
			}
		}
	}
}

// sendInputs ships the tail of the pending buffer as one batch. The batch
// is unreliable; the redundancy and the server's stale-sequence filter do
// the rest.
func (c *Client) sendInputs() {
	pending := c.pred.Pending()
	if len(pending) == 0 {
		return
	}
	start := len(pending) - redundantInputs
	if start < 0 {
		start = 0
	}
	batch := pending[start:]
	if len(batch) > netmsg.MaxInputBatch {
		batch = batch[len(batch)-netmsg.MaxInputBatch:]
	}
	if err := c.send(netmsg.PlayerInputBatch{Inputs: batch}, protocol.ChannelUnreliable); err != nil {
		slog.Warn("sending inputs", "err", err)
	}
}

func (c *Client) onEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerDisconnected:
		select {
		case c.disconnected <- ev.Reason:
		default:
		}

	case transport.EventPacketReceived:
		defer c.pool.Return(ev.Packet)
		if ev.Packet.Kind != protocol.KindData {
			return
		}
		c.onMessage(ev.Packet.Payload())

	case transport.EventError:
		slog.Warn("transport error", "reason", ev.Reason)
	}
}

func (c *Client) onMessage(payload []byte) {
	kind, err := netmsg.PeekKind(payload)
	if err != nil {
		slog.Warn("undecodable message", "err", err)
		return
	}

	switch kind {
	case netmsg.KindPlayerState:
		var msg netmsg.PlayerState
		if err := msg.Decode(payload); err != nil {
			slog.Warn("bad player state", "err", err)
			return
		}
		res := c.pred.Reconcile(msg.State)
		if res.Mispredicted {
			metrics.Mispredictions.Inc()
			metrics.ReplayedInputs.Add(float64(res.Replayed))
			slog.Debug("reconciled",
				"acked", res.Acked, "replayed", res.Replayed, "error_sqr", res.ErrorSqr)
		}

	case netmsg.KindWorldSnapshot:
		var msg netmsg.WorldSnapshot
		if err := msg.Decode(payload); err != nil {
			slog.Warn("bad world snapshot", "err", err)
			return
		}
		if msg.Tick > c.serverTick {
			c.serverTick = msg.Tick
		}
		c.mu.Lock()
		for _, p := range msg.Players {
			if p.UserID == c.userID {
				continue
			}
			c.remotes[p.UserID] = p.State
		}
		c.mu.Unlock()

	case netmsg.KindPong:
		var msg netmsg.Pong
		if err := msg.Decode(payload); err != nil {
			slog.Warn("bad pong", "err", err)
			return
		}
		rtt := time.Since(time.UnixMilli(msg.Timestamp))
		// Lead the server by half the round trip so inputs land on time.
		lead := uint32(rtt.Seconds()/2*float64(c.cfg.TickRate)) + 1
		c.serverTick = msg.ServerTick
		target := msg.ServerTick + lead
		if c.tick < target {
			c.tick = target
		}

	default:
		slog.Debug("message ignored", "kind", kind)
	}
}

func (c *Client) send(m interface {
	Encode(buf []byte) (int, error)
}, ch protocol.ChannelTag) error {
	pkt := c.pool.Rent()
	pkt.Kind = protocol.KindData
	n, err := m.Encode(pkt.PayloadBuffer())
	if err != nil {
		c.pool.Return(pkt)
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := pkt.SetPayloadLen(n); err != nil {
		c.pool.Return(pkt)
		return fmt.Errorf("encoding message: %w", err)
	}
	return c.conn.Send(pkt, ch)
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}
