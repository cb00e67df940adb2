package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

const validConfigYAML = `
engine:
  sender_comp_id: ENGINE
  default_heartbeat: 30s
sessions:
  - target_comp_id: VENUE1
    host: 127.0.0.1
    port: 9001
logging:
  level: info
  format: json
`

func TestLoadParsesYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, validConfigYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.SenderCompID != "ENGINE" {
		t.Errorf("SenderCompID = %q, want ENGINE", cfg.Engine.SenderCompID)
	}
	if len(cfg.Sessions) != 1 || cfg.Sessions[0].TargetCompID != "VENUE1" {
		t.Fatalf("Sessions = %+v, want one VENUE1 entry", cfg.Sessions)
	}
	if cfg.Sessions[0].Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Sessions[0].Port)
	}
}

func TestLoadEnvOverridesRedisURL(t *testing.T) {
	path := writeConfigFile(t, validConfigYAML)
	t.Setenv("FIXENGINE_REDIS_URL", "redis://override:6379/0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SequenceStore.RedisURL != "redis://override:6379/0" {
		t.Errorf("RedisURL = %q, want overridden value", cfg.SequenceStore.RedisURL)
	}
}

func TestValidateRequiresSenderCompID(t *testing.T) {
	t.Parallel()

	cfg := &Config{Sessions: []SessionConfig{{TargetCompID: "V1", Host: "h", Port: 1}}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for missing sender_comp_id")
	}
}

func TestValidateRequiresAtLeastOneSession(t *testing.T) {
	t.Parallel()

	cfg := &Config{Engine: EngineConfig{SenderCompID: "ENGINE"}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for empty sessions")
	}
}

func TestValidateRejectsDuplicateTargetCompID(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Engine: EngineConfig{SenderCompID: "ENGINE"},
		Sessions: []SessionConfig{
			{TargetCompID: "V1", Host: "h", Port: 1},
			{TargetCompID: "V1", Host: "h2", Port: 2},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for duplicate target_comp_id")
	}
}

func TestValidateRequiresTLSPeerNameWhenTLSEnabled(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Engine:   EngineConfig{SenderCompID: "ENGINE"},
		Sessions: []SessionConfig{{TargetCompID: "V1", Host: "h", Port: 1, UseTLS: true}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for TLS without peer name")
	}
}

func TestValidateRejectsRedisBackendWithoutURL(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Engine:        EngineConfig{SenderCompID: "ENGINE"},
		Sessions:      []SessionConfig{{TargetCompID: "V1", Host: "h", Port: 1}},
		SequenceStore: SequenceStoreConfig{Backend: "redis"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for redis backend without URL")
	}
}
