package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/frankmark94/channel-play-pen/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Pattern  string // "METHOD /path" prefix
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// DefaultLimits are checked in order; the first matching pattern applies.
// The webhook is mounted outside the limiter and has no entry.
var DefaultLimits = []RateLimit{
	{"POST /api/connect", 10, time.Minute, ipKey},
	{"POST /api/send-message", 60, time.Minute, sessionOrIPKey},
	{"POST /api/", 120, time.Minute, sessionOrIPKey},
	{"GET /api/", 240, time.Minute, ipKey},
}

// Auto-block policy: this many violations within violationWindow blocks the IP for blockDuration.
const (
	violationThreshold = 10
	violationWindow    = time.Hour
	blockDuration      = 24 * time.Hour
)

func blockKey(ip string) string     { return "blocked:ip:" + ip }
func violationKey(ip string) string { return "violations:ip:" + ip }

// RateLimiter keeps a sliding log of request times per key in Redis. With a
// nil Redis client it lets every request through; Redis errors fail open.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit
	whitelist []*net.IPNet
	autoBlock bool
	logger    zerolog.Logger
	seq       atomic.Uint64
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		limits:    DefaultLimits,
		whitelist: parseWhitelist(cfg.Whitelist, logger),
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
	}
	if client == nil {
		logger.Info().Msg("rate limiting disabled: no redis configured")
	}
	return rl
}

// parseWhitelist turns IPs and CIDRs into networks; a single IP becomes a host network.
func parseWhitelist(entries []string, logger zerolog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil && ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid whitelist entry")
			continue
		}
		nets = append(nets, ipNet)
	}
	if len(nets) > 0 {
		logger.Info().Int("entries", len(nets)).Msg("rate limit whitelist configured")
	}
	return nets
}

// WithLimits replaces the limit table. Used by tests.
func (rl *RateLimiter) WithLimits(limits ...RateLimit) *RateLimiter {
	rl.limits = limits
	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// sessionOrIPKey returns the session key when the call is session scoped, otherwise the IP key.
func sessionOrIPKey(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return "ratelimit:session:" + id
	}
	return ipKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// take records one request under key and reports whether it is within limit,
// how many remain, and when the oldest request in the window leaves it.
func (rl *RateLimiter) take(ctx context.Context, key string, limit RateLimit) (bool, int, time.Time) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(rl.seq.Add(1), 10)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-limit.Window).UnixMilli(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, limit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit.Requests, now.Add(limit.Window)
	}

	resetAt := now.Add(limit.Window)
	if z := oldest.Val(); len(z) > 0 {
		resetAt = time.UnixMilli(int64(z[0].Score)).Add(limit.Window)
	}
	remaining := max(limit.Requests-int(count.Val())-1, 0)
	return count.Val() < int64(limit.Requests), remaining, resetAt
}

func (rl *RateLimiter) isBlocked(ctx context.Context, ip string) bool {
	n, err := rl.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.isBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.take(r.Context(), key, *limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := max(int(time.Until(resetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("session_id", r.Header.Get(SessionHeader)).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")
			metrics.RateLimitHits.WithLabelValues(limit.Pattern).Inc()

			if rl.autoBlock {
				rl.recordViolation(r.Context(), ip)
			}
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the first matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path
	for i := range rl.limits {
		if strings.HasPrefix(key, rl.limits[i].Pattern) {
			return &rl.limits[i]
		}
	}
	return nil
}

// recordViolation counts a rejected request and blocks the IP once it crosses the threshold.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, violationKey(ip))
	pipe.Expire(ctx, violationKey(ip), violationWindow)
	if _, err := pipe.Exec(ctx); err != nil || count.Val() < violationThreshold {
		return
	}

	rl.client.Set(ctx, blockKey(ip), "repeated rate limit violations", blockDuration)
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count.Val()).
		Msg("IP auto-blocked for repeated violations")
}
