package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSequenceStore persists sequence numbers in Redis, keyed by session
// id, for deployments that run the engine across multiple hosts or want
// sequence state to survive a full host replacement. The connection
// setup mirrors the pack's Redis client construction: ParseURL plus pool
// sizing, rather than field-by-field option assembly.
type RedisSequenceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures the sequence store's Redis connection.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int

	// KeyPrefix namespaces sequence keys, default "fixengine:seq:".
	KeyPrefix string
	// TTL bounds how long a sequence record survives with no session
	// activity. Zero means no expiry.
	TTL time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "fixengine:seq:"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	return c
}

// NewRedisSequenceStore connects to Redis per cfg.
func NewRedisSequenceStore(cfg RedisConfig) (*RedisSequenceStore, error) {
	cfg = cfg.withDefaults()

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSequenceStore{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (r *RedisSequenceStore) key(sessionID string) string {
	return r.prefix + sessionID
}

// Save writes outSeq/inSeq for sessionID.
func (r *RedisSequenceStore) Save(sessionID string, outSeq, inSeq uint32) error {
	data, err := json.Marshal(sequenceRecord{OutSeq: outSeq, InSeq: inSeq})
	if err != nil {
		return fmt.Errorf("marshal sequence record: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.key(sessionID), data, r.ttl).Err()
}

// Load restores outSeq/inSeq for sessionID. Returns 0, 0 with no error if
// the key doesn't exist yet.
func (r *RedisSequenceStore) Load(sessionID string) (outSeq, inSeq uint32, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err == redis.Nil {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get sequence record: %w", err)
	}

	var rec sequenceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, 0, fmt.Errorf("unmarshal sequence record: %w", err)
	}
	return rec.OutSeq, rec.InSeq, nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisSequenceStore) Close() error {
	return r.client.Close()
}
