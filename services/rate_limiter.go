package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window attempt counter
type RateLimiter interface {
	// Allow records an attempt for key and reports whether it is within the limit
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryRateLimiter keeps windows in process memory. It is only correct for a
// single API instance.
type MemoryRateLimiter struct {
	clock   clock.Clock
	limit   int
	window  time.Duration
	windows map[string]*window
	mu      sync.Mutex
}

// NewMemoryRateLimiter allows limit attempts per key per window; limit <= 0 disables it
func NewMemoryRateLimiter(clk clock.Clock, limit int, d time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		clock:   clk,
		limit:   limit,
		window:  d,
		windows: make(map[string]*window),
	}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if m.limit <= 0 {
		return true, nil
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.window)) {
		w = &window{start: now}
		m.windows[key] = w
		m.evictExpired(now)
	}
	w.count++
	return w.count <= m.limit, nil
}

// evictExpired drops finished windows; caller holds mu
func (m *MemoryRateLimiter) evictExpired(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.start.Add(m.window)) {
			delete(m.windows, k)
		}
	}
}

// incrWindow counts an attempt and starts the window expiry in one step. A key
// left without a TTL gets one on its next attempt.
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisRateLimiter shares windows between API instances through Redis
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisRateLimiter connects to the Redis server at url
func NewRedisRateLimiter(ctx context.Context, url string, limit int, d time.Duration) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRateLimiter{client: client, limit: limit, window: d, prefix: "ratelimit:login:"}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	k := r.prefix + key

	count, err := incrWindow.Run(ctx, r.client, []string{k}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit increment failed: %w", err)
	}
	return count <= int64(r.limit), nil
}

// Close releases the redis connection pool
func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}
