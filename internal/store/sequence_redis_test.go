package store

import "testing"

func TestRedisConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := RedisConfig{}.withDefaults()
	if cfg.KeyPrefix != "fixengine:seq:" {
		t.Errorf("KeyPrefix = %q, want default", cfg.KeyPrefix)
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want default 10", cfg.PoolSize)
	}
}

func TestRedisSequenceStoreKeyNamespacing(t *testing.T) {
	t.Parallel()

	s := &RedisSequenceStore{prefix: "fixengine:seq:"}
	got := s.key("ENGINE->VENUE1")
	want := "fixengine:seq:ENGINE->VENUE1"
	if got != want {
		t.Errorf("key() = %q, want %q", got, want)
	}
}
