package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/geo-regions/internal/config"
)

// tokenBucket refills continuously at refill_tokens per interval_ms and
// takes one token.  The level is kept as a float so partial refills are
// not lost between calls.  Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local rate = tonumber(ARGV[3]) / tonumber(ARGV[4])
	local ttl_ms = tonumber(ARGV[5]) * 1000

	local bucket = redis.call('HMGET', KEYS[1], 'level', 'at')
	local level = tonumber(bucket[1]) or capacity
	local at = tonumber(bucket[2]) or now
	if now > at then
		level = math.min(capacity, level + (now - at) * rate)
		at = now
	end

	local allowed, wait = 0, 0
	if level >= 1 then
		allowed = 1
		level = level - 1
	else
		wait = math.ceil((1 - level) / rate)
	end

	redis.call('HSET', KEYS[1], 'level', tostring(level), 'at', at)
	redis.call('PEXPIRE', KEYS[1], ttl_ms)
	return { allowed, math.floor(level), wait }
`)

// RateLimit enforces a Redis token bucket per key (see
// config.RateLimitConfig.KeyStrategy).  It is a pass-through when disabled
// or when rdb is nil, and fails open on Redis errors.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, logger *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			args := []any{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}
			vals, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
			if err != nil || len(vals) != 3 {
				logger.Warn("rate limiter unavailable", "key", key, "error", err)
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userKey(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
