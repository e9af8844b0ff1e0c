// Command botclient is a headless game client: it logs in against the auth
// server, joins the game server with the issued token and wanders in a
// circle. Useful for soak testing and as a wire-level usage example.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/udisondev/netplay/internal/client"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/protocol"
	"github.com/udisondev/netplay/internal/sim"
	"github.com/udisondev/netplay/internal/transport"
)

const authTimeout = 5 * time.Second

func main() {
	authAddr := flag.String("auth", "127.0.0.1:2106", "auth server address")
	gameAddr := flag.String("game", "127.0.0.1:7777", "game server address")
	key := flag.String("key", "", "transport connection key")
	username := flag.String("user", "bot", "account username")
	password := flag.String("pass", "botpassword", "account password")
	register := flag.Bool("register", false, "register the account first")
	version := flag.String("version", "1.0.0", "client version to report")
	tickRate := flag.Int("tick-rate", 30, "client tick rate, must match the server")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *authAddr, *gameAddr, *key, *username, *password, *version, *tickRate, *register); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, authAddr, gameAddr, key, username, password, version string, tickRate int, register bool) error {
	if register {
		if err := registerAccount(ctx, authAddr, key, username, password); err != nil {
			return err
		}
	}

	token, err := login(ctx, authAddr, key, username, password)
	if err != nil {
		return err
	}
	slog.Info("logged in", "username", username)

	cl, err := client.Connect(ctx, client.Config{
		ServerAddr:    gameAddr,
		ConnectionKey: key,
		Token:         token,
		ClientVersion: version,
		TickRate:      tickRate,
		PingInterval:  time.Second,
		Movement:      sim.DefaultMovementSettings(),
	})
	if err != nil {
		return fmt.Errorf("joining game: %w", err)
	}
	defer cl.Close()
	slog.Info("in game", "user", cl.UserID())

	// Wander in a slow circle, sprinting on the straights.
	return cl.Run(ctx, func(tick uint32) (sim.Vec2, float32, byte) {
		angle := float64(tick) / float64(tickRate) / 8 * 2 * math.Pi
		move := sim.Vec2{X: float32(math.Cos(angle)), Y: float32(math.Sin(angle))}
		var actions byte
		if tick%uint32(tickRate*4) < uint32(tickRate) {
			actions |= sim.ActionSprint
		}
		return move, float32(angle), actions
	})
}

// registerAccount creates the bot account; an existing account is fine.
func registerAccount(ctx context.Context, addr, key, username, password string) error {
	var resp netmsg.RegisterResponse
	err := authRequest(ctx, addr, key, netmsg.RegisterRequest{
		Username: username,
		Email:    username + "@bots.local",
		Password: password,
		Confirm:  password,
	}, netmsg.KindRegisterResponse, func(payload []byte) error {
		return resp.Decode(payload)
	})
	if err != nil {
		return err
	}
	if resp.Result != netmsg.AuthSuccess && resp.Result != netmsg.AuthUserExists {
		return fmt.Errorf("register refused: %s (%s)", resp.Result, resp.Message)
	}
	return nil
}

// login authenticates and returns the session token.
func login(ctx context.Context, addr, key, username, password string) (string, error) {
	var resp netmsg.LoginResponse
	err := authRequest(ctx, addr, key, netmsg.LoginRequest{
		Identifier: username,
		Password:   password,
	}, netmsg.KindLoginResponse, func(payload []byte) error {
		return resp.Decode(payload)
	})
	if err != nil {
		return "", err
	}
	if resp.Result != netmsg.AuthSuccess {
		return "", fmt.Errorf("login refused: %s (%s)", resp.Result, resp.Message)
	}
	return resp.Token, nil
}

// authRequest runs one request/response round trip against the auth server.
func authRequest(ctx context.Context, addr, key string, req interface {
	Encode(buf []byte) (int, error)
}, want netmsg.Kind, decode func(payload []byte) error) error {
	pool := protocol.NewPool()
	conn, err := transport.Dial(ctx, addr, key, pool)
	if err != nil {
		return fmt.Errorf("connecting to auth server: %w", err)
	}
	defer conn.Close()

	pkt := pool.Rent()
	pkt.Kind = protocol.KindData
	n, err := req.Encode(pkt.PayloadBuffer())
	if err != nil {
		pool.Return(pkt)
		return fmt.Errorf("encoding request: %w", err)
	}
	if err := pkt.SetPayloadLen(n); err != nil {
		pool.Return(pkt)
		return fmt.Errorf("encoding request: %w", err)
	}
	if err := conn.Send(pkt, protocol.ChannelReliable); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	deadline := time.Now().Add(authTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var decErr error
		done := false
		conn.ProcessIncoming(func(ev transport.Event) {
			if ev.Kind != transport.EventPacketReceived {
				return
			}
			defer pool.Return(ev.Packet)
			if ev.Packet.Kind != protocol.KindData {
				return
			}
			kind, err := netmsg.PeekKind(ev.Packet.Payload())
			if err != nil || kind != want {
				return
			}
			decErr = decode(ev.Packet.Payload())
			done = true
		})
		if done {
			return decErr
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("auth server: no answer within %s", authTimeout)
}
