// ABOUTME: Configuration loading and parsing for homie-server
// ABOUTME: Supports YAML or TOML files with .env loading, env var expansion, and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Auth modes select which credential verifier guards registration and login.
const (
	AuthModePassword = "password"
	AuthModePasskey  = "passkey"
)

// Challenge store backends.
const (
	ChallengeBackendMemory = "memory"
	ChallengeBackendRedis  = "redis"
)

// Config represents the complete homie-server configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Challenges  ChallengesConfig  `yaml:"challenges" toml:"challenges"`
	Sync        SyncConfig        `yaml:"sync" toml:"sync"`
	Inventories InventoriesConfig `yaml:"inventories" toml:"inventories"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig holds the HTTP listener and browser-facing settings
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	// BaseURL is the external URL users reach the app at. WebAuthn derives
	// its relying party id and origin from it.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Origins are allowed cross-origin callers (CORS with credentials) and
	// WebSocket origin patterns.
	Origins []string `yaml:"origins" toml:"origins"`

	// TrustProxy honours X-Forwarded-Proto when deciding the cookie Secure flag.
	TrustProxy bool `yaml:"trust_proxy" toml:"trust_proxy"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve HTTPS with Tailscale-provisioned certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds session and credential configuration
type AuthConfig struct {
	Mode              string        `yaml:"mode" toml:"mode"`
	CookieName        string        `yaml:"cookie_name" toml:"cookie_name"`
	MinPasswordLength int           `yaml:"min_password_length" toml:"min_password_length"`
	JWTSecret         string        `yaml:"jwt_secret" toml:"jwt_secret"`
	Passkey           PasskeyConfig `yaml:"passkey" toml:"passkey"`

	SessionTTL           time.Duration `yaml:"-" toml:"-"`
	SessionSweepInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SessionTTLRaw           string `yaml:"session_ttl" toml:"session_ttl"`
	SessionSweepIntervalRaw string `yaml:"session_sweep_interval" toml:"session_sweep_interval"`
}

// PasskeyConfig holds WebAuthn relying party settings
type PasskeyConfig struct {
	RPDisplayName   string `yaml:"rp_display_name" toml:"rp_display_name"`
	StrictSignCount *bool  `yaml:"strict_sign_count" toml:"strict_sign_count"`

	ChallengeTTL    time.Duration `yaml:"-" toml:"-"`
	ChallengeTTLRaw string        `yaml:"challenge_ttl" toml:"challenge_ttl"`
}

// RejectSignCountRegression reports whether a passkey login whose counter did
// not advance must fail. Defaults to true.
func (p PasskeyConfig) RejectSignCountRegression() bool {
	return p.StrictSignCount == nil || *p.StrictSignCount
}

// ChallengesConfig selects where in-flight ceremony challenges live
type ChallengesConfig struct {
	Backend    string `yaml:"backend" toml:"backend"`
	RedisURL   string `yaml:"redis_url" toml:"redis_url"`
	MaxEntries int    `yaml:"max_entries" toml:"max_entries"`
}

// SyncConfig holds WebSocket document sync configuration
type SyncConfig struct {
	Path            string `yaml:"path" toml:"path"`
	MaxMessageBytes int64  `yaml:"max_message_bytes" toml:"max_message_bytes"`

	PingInterval time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	PingIntervalRaw string `yaml:"ping_interval" toml:"ping_interval"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// InventoriesConfig holds inventory defaults
type InventoriesConfig struct {
	DefaultName string `yaml:"default_name" toml:"default_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool   `yaml:"insecure" toml:"insecure"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config is loaded into the environment first (existing
// variables win). Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads a .env file if present. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModePassword
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "session"
	}
	if c.Auth.MinPasswordLength == 0 {
		c.Auth.MinPasswordLength = 8
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 7 * 24 * time.Hour
	}
	if c.Auth.SessionSweepInterval == 0 {
		c.Auth.SessionSweepInterval = time.Hour
	}
	if c.Auth.Passkey.RPDisplayName == "" {
		c.Auth.Passkey.RPDisplayName = "homie"
	}
	if c.Auth.Passkey.ChallengeTTL == 0 {
		c.Auth.Passkey.ChallengeTTL = 5 * time.Minute
	}
	if c.Challenges.Backend == "" {
		c.Challenges.Backend = ChallengeBackendMemory
	}
	if c.Challenges.MaxEntries == 0 {
		c.Challenges.MaxEntries = 10000
	}
	if c.Sync.Path == "" {
		c.Sync.Path = "/sync"
	}
	if c.Sync.PingInterval == 0 {
		c.Sync.PingInterval = 30 * time.Second
	}
	if c.Sync.WriteTimeout == 0 {
		c.Sync.WriteTimeout = 10 * time.Second
	}
	if c.Sync.MaxMessageBytes == 0 {
		c.Sync.MaxMessageBytes = 1 << 20
	}
	if c.Inventories.DefaultName == "" {
		c.Inventories.DefaultName = "Inventory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "homie"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Auth.Mode {
	case AuthModePassword, AuthModePasskey:
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModePassword, AuthModePasskey, c.Auth.Mode)
	}

	if c.Auth.MinPasswordLength < 1 || c.Auth.MinPasswordLength > 72 {
		return fmt.Errorf("auth.min_password_length must be between 1 and 72")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	switch c.Challenges.Backend {
	case ChallengeBackendMemory:
	case ChallengeBackendRedis:
		if c.Challenges.RedisURL == "" {
			return fmt.Errorf("challenges.redis_url is required when challenges.backend is redis")
		}
	default:
		return fmt.Errorf("challenges.backend must be %q or %q, got %q", ChallengeBackendMemory, ChallengeBackendRedis, c.Challenges.Backend)
	}

	if !strings.HasPrefix(c.Sync.Path, "/") {
		return fmt.Errorf("sync.path must start with /")
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"auth.session_sweep_interval", cfg.Auth.SessionSweepIntervalRaw, &cfg.Auth.SessionSweepInterval},
		{"auth.passkey.challenge_ttl", cfg.Auth.Passkey.ChallengeTTLRaw, &cfg.Auth.Passkey.ChallengeTTL},
		{"sync.ping_interval", cfg.Sync.PingIntervalRaw, &cfg.Sync.PingInterval},
		{"sync.write_timeout", cfg.Sync.WriteTimeoutRaw, &cfg.Sync.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
