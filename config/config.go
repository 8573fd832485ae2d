// Package config loads the ipcd server configuration from a JSON file that
// may carry comments and trailing commas.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tailscale/hujson"
)

// Environment variables that override the file.
const (
	EnvSecret    = "IPC_SECRET"
	EnvRedisAddr = "REDIS_ADDR"
)

// Duration is a time.Duration written as a string such as "10s" in the file.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the ipcd server configuration. Load starts from Default and
// decodes the file over it, so omitted fields keep their defaults.
type Config struct {
	Name     string `json:"name" validate:"required"`
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"gte=1,lte=65535"`
	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	Secret           string   `json:"secret" validate:"required_if=RequireAuth true"`
	RequireAuth      bool     `json:"require_auth"`
	HandshakeTimeout Duration `json:"handshake_timeout"`

	MaxConnections   int `json:"max_connections" validate:"gte=0"`
	MessageRateLimit int `json:"message_rate_limit" validate:"gte=0"`

	HealthPath  string `json:"health_path" validate:"omitempty,startswith=/"`
	MetricsPath string `json:"metrics_path" validate:"omitempty,startswith=/"`

	Ping  Ping  `json:"ping"`
	TLS   TLS   `json:"tls"`
	Store Store `json:"store"`
}

// Ping configures websocket keep-alives. A zero interval disables them.
type Ping struct {
	Interval Duration `json:"interval"`
	Timeout  Duration `json:"timeout"`
}

// TLS selects how the listener is secured. Dev generates a self-signed
// certificate; otherwise Cert and Key name PEM files.
type TLS struct {
	Enabled bool   `json:"enabled"`
	Dev     bool   `json:"dev"`
	Cert    string `json:"cert" validate:"required_if=Enabled true Dev false"`
	Key     string `json:"key" validate:"required_if=Enabled true Dev false"`
}

// Store selects where processed request uuids are kept.
type Store struct {
	Backend   string   `json:"backend" validate:"oneof=memory redis"`
	RedisAddr string   `json:"redis_addr" validate:"required_if=Backend redis"`
	Size      int      `json:"size" validate:"gte=0"`
	TTL       Duration `json:"ttl"`
}

// Default returns the configuration used for fields the file leaves out.
func Default() Config {
	return Config{
		Name:             "server",
		Host:             "localhost",
		Port:             9999,
		LogLevel:         "info",
		HandshakeTimeout: Duration(10 * time.Second),
		HealthPath:       "/health",
		Store: Store{
			Backend: "memory",
			TTL:     Duration(24 * time.Hour),
		},
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a JSON-with-comments document into cfg. Fields missing from
// the document keep their current values.
func Parse(b []byte, cfg *Config) error {
	std, err := hujson.Standardize(b)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(std)))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSecret); v != "" {
		c.Secret = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.RedisAddr = v
		c.Store.Backend = "redis"
	}
}

// Validate checks the struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
