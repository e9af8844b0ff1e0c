package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/udisondev/netplay/internal/sim"
)

// GameServer holds all configuration for the game server.
type GameServer struct {
	// Network
	BindAddress string `yaml:"bind_address" env:"NETPLAY_BIND_ADDRESS"`
	Port        int    `yaml:"port" env:"NETPLAY_PORT"`
	MaxPlayers  int    `yaml:"max_players" env:"NETPLAY_MAX_PLAYERS"`

	// Simulation
	TickRate              int `yaml:"tick_rate" env:"NETPLAY_TICK_RATE"`
	SnapshotIntervalTicks int `yaml:"snapshot_interval_ticks" env:"NETPLAY_SNAPSHOT_INTERVAL_TICKS"`

	// Transport admission
	ConnectionKey string `yaml:"connection_key" env:"NETPLAY_CONNECTION_KEY"`

	// Session policy
	DisconnectTimeoutSeconds int    `yaml:"disconnect_timeout_seconds" env:"NETPLAY_DISCONNECT_TIMEOUT_SECONDS"`
	AuthGracePeriodSeconds   int    `yaml:"auth_grace_period_seconds" env:"NETPLAY_AUTH_GRACE_PERIOD_SECONDS"`
	PingIntervalSeconds      int    `yaml:"ping_interval_seconds" env:"NETPLAY_PING_INTERVAL_SECONDS"`
	MinClientVersion         string `yaml:"min_client_version" env:"NETPLAY_MIN_CLIENT_VERSION"`

	// Token verification (must match the auth service)
	JWT JWTConfig `yaml:"jwt"`

	// Shared movement constants. Must be bit-identical on every client.
	Movement sim.MovementSettings `yaml:"movement"`

	// Diagnostics. Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr" env:"NETPLAY_METRICS_ADDR"`
}

// DefaultGameServer returns GameServer config with sensible defaults.
// The JWT secret has no default: configuration fails closed without one.
func DefaultGameServer() GameServer {
	return GameServer{
		BindAddress:              "0.0.0.0",
		Port:                     7777,
		MaxPlayers:               100,
		TickRate:                 30,
		SnapshotIntervalTicks:    3,
		DisconnectTimeoutSeconds: 10,
		AuthGracePeriodSeconds:   10,
		PingIntervalSeconds:      1,
		MinClientVersion:         "1.0.0",
		JWT: JWTConfig{
			Issuer:            "netplay-auth",
			Audience:          "netplay-game",
			ExpirationMinutes: 60,
		},
		Movement: sim.DefaultMovementSettings(),
	}
}

// Validate checks the configuration before anything binds.
func (c GameServer) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxPlayers <= 0 {
		return fmt.Errorf("max_players must be positive (have %d)", c.MaxPlayers)
	}
	if c.TickRate < 10 || c.TickRate > 128 {
		return fmt.Errorf("tick_rate %d out of range 10..128", c.TickRate)
	}
	if c.SnapshotIntervalTicks <= 0 {
		return fmt.Errorf("snapshot_interval_ticks must be positive (have %d)", c.SnapshotIntervalTicks)
	}
	if c.DisconnectTimeoutSeconds <= 0 || c.AuthGracePeriodSeconds <= 0 || c.PingIntervalSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive (disconnect %d, grace %d, ping %d)",
			c.DisconnectTimeoutSeconds, c.AuthGracePeriodSeconds, c.PingIntervalSeconds)
	}
	if c.Movement.WalkSpeed <= 0 || c.Movement.SprintSpeed < c.Movement.WalkSpeed {
		return fmt.Errorf("movement speeds invalid (walk %v, sprint %v)",
			c.Movement.WalkSpeed, c.Movement.SprintSpeed)
	}
	if err := c.JWT.validate(); err != nil {
		return fmt.Errorf("jwt config: %w", err)
	}
	return nil
}

// LoadGameServer loads game server config from a YAML file, then applies
// environment overrides. A missing file means defaults.
func LoadGameServer(path string) (GameServer, error) {
	cfg := DefaultGameServer()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}
