package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds PostgreSQL connection parameters. URL, when set,
// is used verbatim and the individual fields are ignored.
type DatabaseConfig struct {
	URL      string `yaml:"url" env:"NETPLAY_DATABASE_URL"`
	Host     string `yaml:"host" env:"NETPLAY_DB_HOST"`
	Port     int    `yaml:"port" env:"NETPLAY_DB_PORT"`
	User     string `yaml:"user" env:"NETPLAY_DB_USER"`
	Password string `yaml:"password" env:"NETPLAY_DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"NETPLAY_DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"NETPLAY_DB_SSLMODE"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// JWTConfig holds the session-token signing parameters. The same values
// must be configured on the auth and game services; the game server only
// verifies.
type JWTConfig struct {
	Secret            string `yaml:"secret" env:"NETPLAY_JWT_SECRET"`
	Issuer            string `yaml:"issuer" env:"NETPLAY_JWT_ISSUER"`
	Audience          string `yaml:"audience" env:"NETPLAY_JWT_AUDIENCE"`
	ExpirationMinutes int    `yaml:"expiration_minutes" env:"NETPLAY_JWT_EXPIRATION_MINUTES"`
}

func (j JWTConfig) validate() error {
	if len(j.Secret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes (have %d)", len(j.Secret))
	}
	if j.Issuer == "" {
		return fmt.Errorf("jwt issuer must not be empty")
	}
	if j.ExpirationMinutes <= 0 {
		return fmt.Errorf("jwt expiration must be positive (have %d)", j.ExpirationMinutes)
	}
	return nil
}

// AuthServer holds all configuration for the auth service.
type AuthServer struct {
	// Network
	BindAddress string `yaml:"bind_address" env:"NETPLAY_BIND_ADDRESS"`
	Port        int    `yaml:"port" env:"NETPLAY_PORT"`
	MaxClients  int    `yaml:"max_clients" env:"NETPLAY_MAX_CLIENTS"`
	TickRate    int    `yaml:"tick_rate" env:"NETPLAY_TICK_RATE"`

	// Transport admission
	ConnectionKey string `yaml:"connection_key" env:"NETPLAY_CONNECTION_KEY"`

	// Credentials
	JWT JWTConfig `yaml:"jwt"`

	// Rate limiting
	RateLimitWindowMinutes int `yaml:"rate_limit_window_minutes" env:"NETPLAY_RATE_LIMIT_WINDOW_MINUTES"`
	RateLimitMaxAttempts   int `yaml:"rate_limit_max_attempts" env:"NETPLAY_RATE_LIMIT_MAX_ATTEMPTS"`

	// Password policy
	MinPasswordLength int `yaml:"min_password_length" env:"NETPLAY_MIN_PASSWORD_LENGTH"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Diagnostics. Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr" env:"NETPLAY_METRICS_ADDR"`
}

// DefaultAuthServer returns AuthServer config with sensible defaults.
// The JWT secret has no default: configuration fails closed without one.
func DefaultAuthServer() AuthServer {
	return AuthServer{
		BindAddress:            "0.0.0.0",
		Port:                   2106,
		MaxClients:             1000,
		TickRate:               10,
		RateLimitWindowMinutes: 15,
		RateLimitMaxAttempts:   5,
		MinPasswordLength:      8,
		JWT: JWTConfig{
			Issuer:            "netplay-auth",
			Audience:          "netplay-game",
			ExpirationMinutes: 60,
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "netplay",
			Password: "netplay",
			DBName:   "netplay",
			SSLMode:  "disable",
		},
	}
}

// Validate checks the configuration before anything binds.
func (c AuthServer) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("max_clients must be positive (have %d)", c.MaxClients)
	}
	if c.TickRate < 10 || c.TickRate > 128 {
		return fmt.Errorf("tick_rate %d out of range 10..128", c.TickRate)
	}
	if c.RateLimitWindowMinutes <= 0 || c.RateLimitMaxAttempts <= 0 {
		return fmt.Errorf("rate limit window/attempts must be positive (have %d/%d)",
			c.RateLimitWindowMinutes, c.RateLimitMaxAttempts)
	}
	if c.MinPasswordLength <= 0 {
		return fmt.Errorf("min_password_length must be positive (have %d)", c.MinPasswordLength)
	}
	if err := c.JWT.validate(); err != nil {
		return fmt.Errorf("jwt config: %w", err)
	}
	return nil
}

// LoadAuthServer loads auth service config from a YAML file, then applies
// environment overrides. A missing file means defaults.
func LoadAuthServer(path string) (AuthServer, error) {
	cfg := DefaultAuthServer()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// loadYAML fills cfg from a YAML file if it exists.
func loadYAML(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
