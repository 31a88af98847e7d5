package config

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     Server
	Bun        BunConfig
	Identity   Identity
	Federation Federation
	LoggerMode LoggerMode
}

type Server struct {
	Port        string
	Environment string
}

type BunConfig struct {
	DSN string
}

type LoggerMode struct {
	Development bool
	Prod        bool
	Level       string
}

// Identity configures actor-token signing and the legacy
// bare-user-id fallback policy.
type Identity struct {
	Secret string

	// LegacyOverride is "allow", "deny" or empty (no override).
	LegacyOverride string
	Strict         bool
	// FallbackExpiry is an RFC3339 instant; bare user ids are accepted
	// only before it. Empty means no expiry.
	FallbackExpiry string
}

// Federation configures this server's identity on the federation and
// its trust relationships with peer servers.
type Federation struct {
	// ServerName is this server's canonical federation name. Empty
	// disables outbound federation.
	ServerName string

	// Secrets maps peer server name to the shared secret used to sign
	// and verify deliveries with that peer. DefaultSecret applies to
	// peers without a dedicated entry.
	Secrets       map[string]string
	DefaultSecret string

	DispatchKey  string
	InsecureHTTP bool

	MaxAttempts        int
	SkewToleranceMs    int
	DispatchLimit      int
	HTTPTimeoutSeconds int
	DispatchIntervalMs int
}

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath("config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Federation.MaxAttempts <= 0 {
		c.Federation.MaxAttempts = 10
	}
	if c.Federation.SkewToleranceMs <= 0 {
		c.Federation.SkewToleranceMs = int(5 * time.Minute / time.Millisecond)
	}
	if c.Federation.DispatchLimit <= 0 {
		c.Federation.DispatchLimit = 25
	}
	if c.Federation.HTTPTimeoutSeconds <= 0 {
		c.Federation.HTTPTimeoutSeconds = 10
	}
}

// SkewTolerance returns the federation clock-skew window as a duration.
func (c *Config) SkewTolerance() time.Duration {
	return time.Duration(c.Federation.SkewToleranceMs) * time.Millisecond
}

// PeerSecret resolves the shared secret for a peer server, falling back
// to the default secret. Empty string means no trust is configured.
func (c *Config) PeerSecret(server string) string {
	if s, ok := c.Federation.Secrets[server]; ok && s != "" {
		return s
	}
	return c.Federation.DefaultSecret
}
