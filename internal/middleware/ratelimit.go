// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/metrics"
)

// Quota is rate requests per period with the given burst.
func Quota(rate, burst int, period time.Duration) redis_rate.Limit {
	return redis_rate.Limit{Rate: rate, Burst: burst, Period: period}
}

// RateLimit is a named GCRA limit backed by redis. When redis errors the
// limit is enforced per process instead; FailOpen lets the request through
// only if even that fails.
type RateLimit struct {
	Scope    string
	Limit    redis_rate.Limit
	Key      func(*http.Request) string
	Skip     func(*http.Request) bool
	FailOpen bool
}

type rateLimiter struct {
	cfg   RateLimit
	redis *redis_rate.Limiter
	local *localLimiter
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimit) func(http.Handler) http.Handler {
	if cfg.Key == nil {
		cfg.Key = KeyByIP
	}
	if cfg.Scope == "" {
		cfg.Scope = "default"
	}
	rl := &rateLimiter{cfg: cfg, local: &localLimiter{}}
	if rdb != nil {
		rl.redis = redis_rate.NewLimiter(rdb)
	}
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := "rl:" + rl.cfg.Scope + ":" + rl.cfg.Key(r)
		res, err := rl.take(r.Context(), key)
		if err != nil {
			if !rl.cfg.FailOpen {
				core.JSONError(w, core.NewAppError(err,
					"service temporarily unavailable",
					http.StatusServiceUnavailable, "UNAVAILABLE"))
				return
			}
			slog.Warn("rate limiter failing open", "scope", rl.cfg.Scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		writeQuotaHeaders(w.Header(), rl.cfg.Limit, res)

		if res.Allowed == 0 {
			metrics.RateLimited.WithLabelValues(rl.cfg.Scope, "limited").Inc()
			retry := max(int(res.RetryAfter.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			core.JSONError(w, core.NewAppError(nil,
				fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retry),
				http.StatusTooManyRequests, "RATE_LIMITED"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) take(ctx context.Context, key string) (*redis_rate.Result, error) {
	if rl.redis != nil {
		res, err := rl.redis.Allow(ctx, key, rl.cfg.Limit)
		if err == nil {
			return res, nil
		}
		metrics.RateLimited.WithLabelValues(rl.cfg.Scope, "local_fallback").Inc()
	}
	return rl.local.take(key, rl.cfg.Limit, time.Now())
}

// writeQuotaHeaders sets both the legacy X-RateLimit trio and the IETF
// RateLimit/RateLimit-Policy pair.
func writeQuotaHeaders(h http.Header, limit redis_rate.Limit, res *redis_rate.Result) {
	reset := max(res.ResetAfter, 0)
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", res.Remaining, int(reset.Seconds())))
}

// KeyByIP expects chi's RealIP middleware to have resolved RemoteAddr.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// KeyByCaller keys signed-in members by user id and everyone else by IP.
func KeyByCaller(r *http.Request) string {
	if id := GetUserID(r.Context()); id != "" {
		return "user:" + id
	}
	return KeyByIP(r)
}

// KeyByCallerAndRoute gives each route its own bucket per caller. The
// route pattern is used so /programs/a and /programs/b share one.
func KeyByCallerAndRoute(r *http.Request) string {
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			route = p
		}
	}
	return KeyByCaller(r) + ":" + r.Method + " " + route
}

const localIdle = 10 * time.Minute

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// localLimiter is the in-process stand-in used while redis is unreachable.
// Idle buckets are swept on access.
type localLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	swept   time.Time
}

func (l *localLimiter) take(key string, limit redis_rate.Limit, now time.Time) (*redis_rate.Result, error) {
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("rate limit: invalid quota %d/%s", limit.Rate, limit.Period)
	}
	perSec := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSec)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buckets == nil {
		l.buckets = map[string]*localBucket{}
	}
	if now.Sub(l.swept) > localIdle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > localIdle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(rate.Limit(perSec), limit.Burst)}
		l.buckets[key] = b
	}
	b.seen = now

	res := &redis_rate.Result{Limit: limit, ResetAfter: interval, RetryAfter: -1}
	if b.lim.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	res.Remaining = max(int(b.lim.TokensAt(now)), 0)
	return res, nil
}
