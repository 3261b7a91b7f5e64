package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig bounds requests per client IP inside a sliding window.
// Scope namespaces the Redis keys so separate limiters don't share budgets.
type RateLimitConfig struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// RateLimiter is a per-IP sliding-window limiter on Redis sorted sets: one
// member per request, scored by timestamp, old members trimmed on each hit.
// A Redis outage fails open: the request passes and the error is logged.
type RateLimiter struct {
	client redis.Cmdable
	cfg    RateLimitConfig
}

func NewRateLimiter(client redis.Cmdable, cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimiter{client: client, cfg: cfg}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		count, err := rl.hit(r.Context(), ip)
		if err != nil {
			slog.Warn("rate limiter unavailable, failing open",
				"error", err, "scope", rl.cfg.Scope, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.cfg.Limit) {
			retryAfter := int(rl.cfg.Window / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hit records the request and returns how many requests, including this
// one, the client made inside the current window.
func (rl *RateLimiter) hit(ctx context.Context, ip string) (int64, error) {
	now := time.Now()
	key := "ratelimit:" + rl.cfg.Scope + ":" + ip
	cutoff := strconv.FormatInt(now.Add(-rl.cfg.Window).UnixMicro(), 10)

	var count *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMicro()),
			Member: now.UnixNano(),
		})
		count = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, rl.cfg.Window+time.Second)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count.Val(), nil
}

// clientIP prefers proxy headers, falling back to the socket address. Only
// addresses that actually parse are trusted, so a forged header cannot
// smuggle an unbounded number of distinct keys through garbage values.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
