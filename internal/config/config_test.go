package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthServerFailsClosedWithoutSecret(t *testing.T) {
	cfg := DefaultAuthServer()
	require.Error(t, cfg.Validate())

	cfg.JWT.Secret = testSecret
	require.NoError(t, cfg.Validate())
}

func TestAuthServerValidateBounds(t *testing.T) {
	base := DefaultAuthServer()
	base.JWT.Secret = testSecret

	cases := []struct {
		name   string
		mutate func(*AuthServer)
	}{
		{"port too high", func(c *AuthServer) { c.Port = 70000 }},
		{"port zero", func(c *AuthServer) { c.Port = 0 }},
		{"tick rate too low", func(c *AuthServer) { c.TickRate = 5 }},
		{"tick rate too high", func(c *AuthServer) { c.TickRate = 500 }},
		{"no rate limit window", func(c *AuthServer) { c.RateLimitWindowMinutes = 0 }},
		{"short secret", func(c *AuthServer) { c.JWT.Secret = "short" }},
		{"no expiry", func(c *AuthServer) { c.JWT.ExpirationMinutes = 0 }},
		{"no password floor", func(c *AuthServer) { c.MinPasswordLength = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestGameServerValidateBounds(t *testing.T) {
	base := DefaultGameServer()
	base.JWT.Secret = testSecret
	require.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*GameServer)
	}{
		{"no players", func(c *GameServer) { c.MaxPlayers = 0 }},
		{"tick rate out of range", func(c *GameServer) { c.TickRate = 1000 }},
		{"no snapshot interval", func(c *GameServer) { c.SnapshotIntervalTicks = 0 }},
		{"zero timeouts", func(c *GameServer) { c.DisconnectTimeoutSeconds = 0 }},
		{"sprint slower than walk", func(c *GameServer) { c.Movement.SprintSpeed = c.Movement.WalkSpeed - 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadAuthServerMissingFileMeansDefaults(t *testing.T) {
	cfg, err := LoadAuthServer(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultAuthServer().Port, cfg.Port)
}

func TestLoadAuthServerYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authserver.yaml")
	yaml := `
port: 3000
jwt:
  secret: "` + testSecret + `"
rate_limit_max_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("NETPLAY_PORT", "4000")

	cfg, err := LoadAuthServer(path)
	require.NoError(t, err)
	// Environment wins over the file.
	require.Equal(t, 4000, cfg.Port)
	require.Equal(t, 3, cfg.RateLimitMaxAttempts)
	require.Equal(t, testSecret, cfg.JWT.Secret)
	require.NoError(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "svc", Password: "pw",
		DBName: "netplay", SSLMode: "require",
	}
	require.Equal(t, "postgres://svc:pw@db.internal:5433/netplay?sslmode=require", d.DSN())

	d.URL = "postgres://override"
	require.Equal(t, "postgres://override", d.DSN())
}
