// Package ratelimit provides a rate limiting interceptor using the cache subsystem.
package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/api"
	svccfg "github.com/chikitsa-cloud/chikitsa-go/internal/frameworks/service/cfg"
	"github.com/chikitsa-cloud/chikitsa-go/internal/interceptors"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/appctx"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/deps"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config defines rate limiting parameters decoded from interceptor config.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`
	// KeyPrefix namespaces counters so profiles do not share windows.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ratelimit:"
	}
}

// Limiter counts requests per key in fixed windows backed by a cache.Counter.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	prefix  string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// NewLimiter builds a limiter over counter. keyFunc defaults to ActorOrIP
// with no trusted proxies.
func NewLimiter(counter cache.Counter, keyFunc func(*http.Request) string, c Config, log *slog.Logger) *Limiter {
	c.ApplyDefaults()
	if keyFunc == nil {
		keyFunc = ActorOrIP(nil)
	}
	return &Limiter{
		cache:   counter,
		keyFunc: keyFunc,
		prefix:  c.KeyPrefix,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}
}

// New creates a new ratelimit interceptor from the given config.
// The config should be the profile config from [http.interceptors.ratelimit.profiles.<name>].
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}

	d := deps.GetDeps()
	if d == nil || d.Cache == nil {
		return nil, errors.New("ratelimit: shared cache is not configured")
	}

	return NewLimiter(d.Cache, ActorOrIP(d.RealIP), c, log).Wrap, nil
}

// clientIPer is satisfied by *realip.TrustedProxies.
type clientIPer interface {
	ClientIPString(r *http.Request) string
}

// ActorOrIP keys authenticated requests by actor id and the rest by client IP,
// so one account cannot spread attempts across addresses.
func ActorOrIP(ips clientIPer) func(*http.Request) string {
	return func(r *http.Request) string {
		if actor, ok := appctx.ActorID(r.Context()); ok && actor != "" {
			return "actor:" + actor
		}
		if ips == nil {
			return "ip:unknown"
		}
		return "ip:" + ips.ClientIPString(r)
	}
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), l.prefix+key, 1, l.window)
		if err != nil {
			// Fail open: a broken counter backend must not take the API down.
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			l.log.Info("rate limited", "key", key, "count", count, "limit", l.limit)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithKeyFunc returns a new Limiter with a custom key function.
func (l *Limiter) WithKeyFunc(fn func(*http.Request) string) *Limiter {
	cp := *l
	cp.keyFunc = fn
	return &cp
}
