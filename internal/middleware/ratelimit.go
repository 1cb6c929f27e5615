package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/motorbid/vehicle-auction/internal/config"
)

// tokenBucketScript implements an atomic token bucket in Redis. Keys hold
// the remaining tokens and the last refill timestamp; the script refills,
// then either spends a token or reports how long until one is available.
var tokenBucketScript = redis.NewScript(`
    local key      = KEYS[1]
    local now_ms   = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill   = tonumber(ARGV[3])
    local interval = tonumber(ARGV[4])
    local ttl_ms   = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'ts')
    local tokens = tonumber(state[1])
    local ts = tonumber(state[2])
    if tokens == nil then
        tokens = capacity
        ts = now_ms
    end

    local elapsed = now_ms - ts
    if elapsed > 0 then
        local refills = math.floor(elapsed / interval)
        if refills > 0 then
            tokens = math.min(capacity, tokens + refills * refill)
            ts = ts + refills * interval
        end
    end

    local allowed = 0
    local retry_ms = 0
    if tokens >= 1 then
        tokens = tokens - 1
        allowed = 1
    else
        retry_ms = interval - (now_ms - ts)
        if retry_ms < 0 then retry_ms = 0 end
    end

    redis.call('HSET', key, 'tokens', tokens, 'ts', ts)
    redis.call('PEXPIRE', key, ttl_ms)
    return {allowed, tokens, retry_ms}
`)

// NewTokenBucket returns a distributed rate limiter keyed by authenticated
// user (falling back to client IP) and route. Disabled configuration or a
// nil Redis client yields a pass-through middleware; a Redis failure at
// request time fails open so bidding never stalls on the limiter.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	intervalMs := cfg.RefillInterval.Milliseconds()
	ttlMs := cfg.TTL.Milliseconds()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("%s:%s:%s", cfg.Prefix, subjectKey(c), c.Path())
			nowMs := time.Now().UnixMilli()

			res, err := tokenBucketScript.Run(c.Request().Context(), rdb,
				[]string{key}, nowMs, cfg.Capacity, cfg.RefillTokens, intervalMs, ttlMs).Int64Slice()
			if err != nil || len(res) != 3 {
				return next(c) // fail open
			}
			if res[0] == 0 {
				retryAfter := (time.Duration(res[2]) * time.Millisecond).Round(time.Second)
				if retryAfter < time.Second {
					retryAfter = time.Second
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}

// subjectKey identifies the caller for rate limiting: the authenticated
// user when present, otherwise the client IP.
func subjectKey(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		return fmt.Sprintf("u%v", v)
	}
	return "ip" + c.RealIP()
}
