package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

// RateLimiter decides whether another attempt from key is allowed at now.
type RateLimiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// LoginRateLimit throttles credential endpoints per client IP. Limiter
// errors let the request through.
func LoginRateLimit(limiter RateLimiter, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := observability.ClientIP(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), ip, time.Now().UTC())
			if err != nil {
				logger.Warn("login_rate_limit_unavailable", map[string]any{"ip": ip, "error": err.Error()})
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httpx.WriteMessage(w, http.StatusTooManyRequests, "too_many_login_attempts")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type MemoryLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitByKey  map[string][]time.Time
	maxMemory int
}

func NewMemoryLimiter(maxHits int, window time.Duration) *MemoryLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &MemoryLimiter{
		maxHits:   maxHits,
		window:    window,
		hitByKey:  make(map[string][]time.Time),
		maxMemory: 5000,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= l.maxHits {
		retryAfter := filtered[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		l.hitByKey[key] = filtered
		return false, retryAfter, nil
	}

	filtered = append(filtered, now)
	l.hitByKey[key] = filtered

	if len(l.hitByKey) > l.maxMemory {
		for k, value := range l.hitByKey {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(l.hitByKey, k)
			}
		}
	}

	return true, 0, nil
}

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	client  redis.UniversalClient
	maxHits int64
	window  time.Duration
	prefix  string
}

func NewRedisLimiter(client redis.UniversalClient, maxHits int, window time.Duration) *RedisLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RedisLimiter{client: client, maxHits: int64(maxHits), window: window, prefix: "ratelimit:login:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	redisKey := l.prefix + key

	hits, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("increment login counter: %w", err)
	}
	if hits == 1 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire login counter: %w", err)
		}
	}
	if hits <= l.maxHits {
		return true, 0, nil
	}

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("read login counter ttl: %w", err)
	}
	if ttl < 0 {
		// The expire call was lost; re-arm it so the key cannot block forever.
		_ = l.client.PExpire(ctx, redisKey, l.window).Err()
		ttl = l.window
	}

	return false, ttl, nil
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
