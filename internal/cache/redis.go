package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const defaultRedisTimeout = 5 * time.Second
const redisKeyPrefix = "authgate:"

// hitScript implements the fixed-window counter atomically:
// new or expired key starts at 1, an exhausted window is left untouched.
var hitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local window = tonumber(ARGV[2])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
local count = tonumber(current)
if count >= tonumber(ARGV[1]) then
  return {count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
return {count, ttl, 1}
`)

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection so misconfiguration
// surfaces during start-up.
func NewRedisStore(cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}
	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Address, err)
	}

	o := buildOptions(opts)
	return &RedisStore{client: client, now: o.now}, nil
}

func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}

	options := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		host := cfg.Address
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		options.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(options), nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks connectivity for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Hit runs the fixed-window script against the prefixed key.
func (s *RedisStore) Hit(ctx context.Context, key string, limit int64, window time.Duration) (HitResult, error) {
	if window <= 0 {
		window = time.Minute
	}
	raw, err := hitScript.Run(ctx, s.client, []string{prefixed(key)}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return HitResult{}, fmt.Errorf("redis: hit %s: %w", key, err)
	}
	if len(raw) != 3 {
		return HitResult{}, fmt.Errorf("redis: unexpected hit reply %v", raw)
	}

	return HitResult{
		Count:   raw[0],
		ResetAt: s.now().Add(time.Duration(raw[1]) * time.Millisecond),
		Allowed: raw[2] == 1,
	}, nil
}

func prefixed(key string) string {
	if strings.HasPrefix(key, redisKeyPrefix) {
		return normalizeKey(key)
	}
	return normalizeKey(redisKeyPrefix + key)
}

func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
