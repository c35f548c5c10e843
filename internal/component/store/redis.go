package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wasmcache/component-cache/internal/component"
)

// RedisConfig mirrors the connection settings the teacher's
// internal/infrastructure/cache.RedisCache constructs a client from.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TTL          time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	return c
}

// RedisStore is a CompiledArtifactStore backed by Redis, shared across
// every process that shares the same engine fingerprint namespace.
type RedisStore struct {
	client *redis.Client
	codec  Codec
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to Redis and returns a RedisStore. The connection
// is verified with a Ping, exactly as the teacher's NewRedisCache does.
func NewRedisStore(cfg RedisConfig, codec Codec, logger *slog.Logger) (*RedisStore, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &Error{Op: "connect", Cause: err}
	}

	return &RedisStore{client: client, codec: codec, ttl: cfg.TTL, logger: logger}, nil
}

// Get returns (nil, false, nil) on an ordinary miss, matching
// CompiledArtifactStore's contract. A Redis-side failure is a store Error.
func (s *RedisStore) Get(ctx context.Context, id component.Id, version component.Version, engineFingerprint string) (component.Compiled, bool, error) {
	raw, err := s.client.Get(ctx, key(id, version, engineFingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, &Error{Op: "get", Cause: err}
	}

	artifact, err := s.codec.Deserialize(raw)
	if err != nil {
		return nil, false, &Error{Op: "deserialize", Cause: err}
	}
	return artifact, true, nil
}

// Put is best-effort from the caller's perspective, but still reports a
// concrete error so the facade can log it at warn and move on.
func (s *RedisStore) Put(ctx context.Context, id component.Id, version component.Version, engineFingerprint string, artifact component.Compiled) error {
	raw, err := s.codec.Serialize(artifact)
	if err != nil {
		return &Error{Op: "serialize", Cause: err}
	}
	if err := s.client.Set(ctx, key(id, version, engineFingerprint), raw, s.ttl).Err(); err != nil {
		return &Error{Op: "set", Cause: err}
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
