package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process settings for the relay.
type Config struct {
	Addr     string `env:"MITMLAB_ADDR" envDefault:":3001"`
	GRPCAddr string `env:"MITMLAB_GRPC_ADDR"`
	PGDSN    string `env:"MITMLAB_PG_DSN"`

	JWTSecret string `env:"MITMLAB_JWT_SECRET"`
	JWTIssuer string `env:"MITMLAB_JWT_ISSUER"`

	LogLevel       string   `env:"MITMLAB_LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"MITMLAB_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Per-connection inbound event limiter.
	EventRatePerSec int `env:"MITMLAB_WS_RATE_PER_SEC" envDefault:"20"`
	EventRateBurst  int `env:"MITMLAB_WS_RATE_BURST" envDefault:"40"`

	// Per-IP limiter on WebSocket upgrades.
	UpgradeRatePerSec int `env:"MITMLAB_UPGRADE_RATE_PER_SEC" envDefault:"5"`
	UpgradeRateBurst  int `env:"MITMLAB_UPGRADE_RATE_BURST" envDefault:"10"`
	// Proxies (IPs or CIDRs) whose X-Forwarded-For is believed.
	TrustedProxies []string `env:"MITMLAB_TRUSTED_PROXIES" envSeparator:","`

	MaxMessageBytes int64         `env:"MITMLAB_MAX_MESSAGE_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"MITMLAB_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

var errMissingSecret = errors.New("config: MITMLAB_JWT_SECRET is required")

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants env tags cannot express.
func (c *Config) Validate() error {
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	if c.JWTSecret == "" {
		return errMissingSecret
	}
	if c.EventRatePerSec <= 0 || c.EventRateBurst <= 0 {
		return errors.New("config: event rate and burst must be positive")
	}
	if c.UpgradeRatePerSec <= 0 || c.UpgradeRateBurst <= 0 {
		return errors.New("config: upgrade rate and burst must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return errors.New("config: max message bytes must be positive")
	}
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	return nil
}

// OriginAllowed reports whether a browser origin may open a connection.
// An empty origin (non-browser client) is always allowed.
func (c Config) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
