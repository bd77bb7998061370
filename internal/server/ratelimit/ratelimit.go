// Package ratelimit throttles login attempts per client key. Counts live in
// Redis when an address is configured, otherwise in process memory.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Limit         int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

// Store counts attempts for key within a fixed window. When the limit is
// exceeded it reports how long until the window resets.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type Limiter struct {
	limit  int
	window time.Duration
	store  Store

	mu      sync.Mutex
	buckets map[string]*keyBucket
	now     func() time.Time
}

type keyBucket struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	l := &Limiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		buckets: make(map[string]*keyBucket),
		now:     time.Now,
	}
	if l.limit < 0 {
		l.limit = 0
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	if cfg.RedisAddr != "" && l.limit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			MaxRetries:   2,
		})
		l.store = NewRedisStore(client, timeout)
	}
	return l
}

// WithStore replaces the counter backend.
func (l *Limiter) WithStore(s Store) *Limiter {
	l.store = s
	return l
}

// Allow records an attempt for key. A zero limit disables limiting.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.limit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	if l.store != nil {
		return l.store.Allow(ctx, "yourtube:login:"+key, l.limit, l.window)
	}

	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		rate := float64(l.limit) / l.window.Seconds()
		b = &keyBucket{bucket: newTokenBucket(rate, l.limit, now)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.cleanupLocked(now)
	l.mu.Unlock()

	if b.bucket.allow(now) {
		return true, 0, nil
	}
	return false, b.bucket.wait(), nil
}

func (l *Limiter) cleanupLocked(now time.Time) {
	cutoff := now.Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if elapsed := now.Sub(tb.lastCheck).Seconds(); elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		tb.lastCheck = now
	}
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// wait is how long until the next token is available.
func (tb *tokenBucket) wait() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	missing := 1 - tb.tokens
	if missing <= 0 {
		return 0
	}
	d := time.Duration(missing / tb.rate * float64(time.Second))
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}
