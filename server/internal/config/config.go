package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beaconrelay/beacon/server/internal/allowlist"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort     = 50051
	DefaultHTTPPort     = 2223
	DefaultSnapshotTTL  = time.Hour
	DefaultKeepAlive    = 10 * time.Second
	DefaultAllowListEnv = "ALLOW_LIST"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the presence ingestion endpoint listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the query API, SSE and WebSocket streams listen on (default 2223).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error (default info).
	LogLevel string `yaml:"log_level"`

	// Auth configures how the server authenticates ingestion clients.
	Auth AuthConfig `yaml:"auth"`

	// Snapshot controls the freshness window of point-in-time queries.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Stream controls SSE and WebSocket delivery.
	Stream StreamConfig `yaml:"stream"`

	// ReapInterval enables periodic pruning of disconnected subscribers.
	// Zero leaves pruning to the next publish on each user.
	ReapInterval time.Duration `yaml:"reap_interval"`

	// AllowList holds the user ids beacon relays.
	AllowList []uint64 `yaml:"allow_list"`

	// AllowListEnv names an environment variable holding a comma-separated
	// list of additional user ids (default ALLOW_LIST).
	AllowListEnv string `yaml:"allow_list_env"`
}

// AuthConfig controls client authentication on the ingestion endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// SnapshotConfig controls snapshot retention.
type SnapshotConfig struct {
	// TTL is how long a user's last state answers queries after it was
	// received. Default: 1h.
	TTL time.Duration `yaml:"ttl"`
}

// StreamConfig controls live delivery.
type StreamConfig struct {
	// KeepAlive is the interval between SSE keep-alive comments (default 10s).
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// AllowedUsers merges the configured allow list with the ids found in
// AllowListEnv.
func (s ServerConfig) AllowedUsers() ([]uint64, error) {
	ids := append([]uint64(nil), s.AllowList...)
	if s.AllowListEnv == "" {
		return ids, nil
	}
	fromEnv, err := allowlist.ParseIDs(os.Getenv(s.AllowListEnv))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.AllowListEnv, err)
	}
	return append(ids, fromEnv...), nil
}

// SlogLevel converts LogLevel to a slog.Level.
func (s ServerConfig) SlogLevel() slog.Level {
	switch s.LogLevel {
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

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort:     DefaultGRPCPort,
			HTTPPort:     DefaultHTTPPort,
			LogLevel:     "info",
			Snapshot:     SnapshotConfig{TTL: DefaultSnapshotTTL},
			Stream:       StreamConfig{KeepAlive: DefaultKeepAlive},
			AllowListEnv: DefaultAllowListEnv,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", s.GRPCPort)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Snapshot.TTL <= 0 {
		return fmt.Errorf("server.snapshot.ttl must be positive")
	}
	if s.Stream.KeepAlive <= 0 {
		return fmt.Errorf("server.stream.keep_alive must be positive")
	}
	if s.ReapInterval < 0 {
		return fmt.Errorf("server.reap_interval must not be negative")
	}
	if _, err := s.AllowedUsers(); err != nil {
		return fmt.Errorf("server.allow_list_env: %w", err)
	}
	return nil
}
