package echoapi

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// ipRateLimiter keeps one token bucket per client IP. Idle buckets expire from the cache.
type ipRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL/2),
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	if v, ok := l.limiters.Get(ip); ok {
		l.limiters.SetDefault(ip, v) // refresh TTL
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(ip, limiter, cache.DefaultExpiration); err != nil {
		// lost the race against a concurrent request from the same IP
		if v, ok := l.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// middleware rejects requests over the limit with 429 Too Many Requests.
// Only RemoteAddr is used: forwarding headers can be spoofed.
func (l *ipRateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			limiter := l.get(clientIP(ctx.Request()))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				return errTooManyRequests
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
