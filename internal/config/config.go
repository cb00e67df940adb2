// Package config defines all configuration for the FIX trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via FIXENGINE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Sessions      []SessionConfig     `mapstructure:"sessions"`
	SequenceStore SequenceStoreConfig `mapstructure:"sequence_store"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Dashboard     DashboardConfig     `mapstructure:"dashboard"`
}

// EngineConfig tunes the shared envelope/buffer pool and the default
// session heartbeat applied when a SessionConfig entry omits one.
type EngineConfig struct {
	SenderCompID       string        `mapstructure:"sender_comp_id"`
	PoolEnvelopeCount  int           `mapstructure:"pool_envelope_count"`
	PoolBufferCount    int           `mapstructure:"pool_buffer_count"`
	MaxMessageBytes    int           `mapstructure:"max_message_bytes"`
	DefaultHeartBtInt  time.Duration `mapstructure:"default_heartbeat"`
	HealthCooldown     time.Duration `mapstructure:"health_cooldown"`
	HousekeepingPeriod time.Duration `mapstructure:"housekeeping_interval"`
	PendingNewTimeout  time.Duration `mapstructure:"pending_new_timeout"`
}

// SessionConfig describes one FIX session to a venue. It has no password
// or TLS key material fields.
type SessionConfig struct {
	TargetCompID      string          `mapstructure:"target_comp_id"`
	Host              string          `mapstructure:"host"`
	Port              int             `mapstructure:"port"`
	UseTLS            bool            `mapstructure:"use_tls"`
	TLSPeerName       string          `mapstructure:"tls_peer_name"`
	PinnedFingerprint string          `mapstructure:"pinned_fingerprint"`
	HeartBtInt        time.Duration   `mapstructure:"heartbeat"`
	ResetOnLogon      bool            `mapstructure:"reset_on_logon"`
	Reconnect         ReconnectConfig `mapstructure:"reconnect"`
}

// ReconnectConfig mirrors session.ReconnectPolicy's shape in YAML form.
type ReconnectConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Initial   time.Duration `mapstructure:"initial"`
	Max       time.Duration `mapstructure:"max"`
	JitterPct float64       `mapstructure:"jitter_pct"`
}

// SequenceStoreConfig selects and configures the sequence-number
// persistence backend: "file" (default) or "redis".
type SequenceStoreConfig struct {
	Backend string `mapstructure:"backend"`

	FileDir string `mapstructure:"file_dir"`

	RedisURL       string        `mapstructure:"redis_url"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisPoolSize  int           `mapstructure:"redis_pool_size"`
	RedisKeyPrefix string        `mapstructure:"redis_key_prefix"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the operator web dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: FIXENGINE_REDIS_URL, FIXENGINE_LOG_LEVEL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FIXENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("FIXENGINE_REDIS_URL"); url != "" {
		cfg.SequenceStore.RedisURL = url
	}
	if level := os.Getenv("FIXENGINE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Engine.SenderCompID == "" {
		return fmt.Errorf("engine.sender_comp_id is required")
	}
	if len(c.Sessions) == 0 {
		return fmt.Errorf("at least one entry under sessions is required")
	}
	seen := make(map[string]bool, len(c.Sessions))
	for i, s := range c.Sessions {
		if s.TargetCompID == "" {
			return fmt.Errorf("sessions[%d].target_comp_id is required", i)
		}
		if seen[s.TargetCompID] {
			return fmt.Errorf("sessions[%d].target_comp_id %q is duplicated", i, s.TargetCompID)
		}
		seen[s.TargetCompID] = true
		if s.Host == "" {
			return fmt.Errorf("sessions[%d].host is required", i)
		}
		if s.Port <= 0 {
			return fmt.Errorf("sessions[%d].port must be > 0", i)
		}
		if s.UseTLS && s.TLSPeerName == "" {
			return fmt.Errorf("sessions[%d].tls_peer_name is required when use_tls is true", i)
		}
	}
	switch c.SequenceStore.Backend {
	case "", "file":
	case "redis":
		if c.SequenceStore.RedisURL == "" {
			return fmt.Errorf("sequence_store.redis_url is required when backend is redis")
		}
	default:
		return fmt.Errorf("sequence_store.backend must be one of: file, redis")
	}
	return nil
}
