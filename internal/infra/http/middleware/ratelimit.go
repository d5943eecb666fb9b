package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gatherhq/api/internal/config"
	"github.com/gatherhq/api/pkg/apierror"
	"github.com/gatherhq/api/pkg/logger"
)

// visitor tracks a rate limiter for a single client.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-client token bucket rate limiting.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	log      *logger.Logger
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter from config.
func NewRateLimiter(cfg *config.RateLimitConfig, log *logger.Logger) *RateLimiter {
	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = time.Minute
	}

	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.RequestsPerSec),
		burst:    cfg.Burst,
		cleanup:  cleanup,
		log:      log,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	go rl.cleanupVisitors()

	return rl
}

// Stop stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
	<-rl.stopped
}

// getVisitor retrieves or creates a rate limiter for a client key.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[key] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors removes stale visitor entries.
func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	defer close(rl.stopped)

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware returns the rate limiting middleware keyed by client IP.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return rl.MiddlewareWithKey(func(r *http.Request) string {
		return getClientIP(r)
	})
}

// MiddlewareWithKey returns a rate limiting middleware with a custom key
// function, e.g. per-user instead of per-IP.
func (rl *RateLimiter) MiddlewareWithKey(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			limiter := rl.getVisitor(key)

			// Report remaining tokens before Allow() consumes one.
			tokens := limiter.Tokens()
			remaining := int(math.Max(0, math.Floor(tokens)-1))

			tokensToRefill := float64(rl.burst) - tokens
			var resetTime time.Time
			if tokensToRefill > 0 && rl.rate > 0 {
				secondsToRefill := tokensToRefill / float64(rl.rate)
				resetTime = time.Now().Add(time.Duration(secondsToRefill * float64(time.Second)))
			} else {
				resetTime = time.Now()
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !limiter.Allow() {
				rl.log.Warn("rate limit exceeded",
					"key", key,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				apierror.TooManyRequests("Rate limit exceeded").WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitWithStop creates a rate limiting middleware and returns a stop
// function to be called during graceful shutdown.
func RateLimitWithStop(cfg *config.RateLimitConfig, log *logger.Logger) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}, func() {}
	}

	rl := NewRateLimiter(cfg, log)
	return rl.Middleware(), rl.Stop
}

// getClientIP extracts the real client IP from the request.
// Behind a trusted proxy, configure the proxy to set X-Real-IP or the
// rightmost X-Forwarded-For IP.
func getClientIP(r *http.Request) string {
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		return ip[:idx]
	}
	return ip
}

// UserKeyFunc keys rate limits by authenticated user ID, falling back to
// client IP for unauthenticated requests.
func UserKeyFunc(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + getClientIP(r)
}

// =============================================================================
// Auth-Specific Rate Limiting
// =============================================================================

// AuthRateLimiter provides stricter rate limiting for authentication
// endpoints to slow down credential stuffing.
type AuthRateLimiter struct {
	loginLimiter    *RateLimiter
	registerLimiter *RateLimiter
	log             *logger.Logger
}

// AuthRateLimitConfig configures auth-specific rate limits.
type AuthRateLimitConfig struct {
	// LoginRatePerMin is the max login attempts per minute per IP.
	// Default: 5
	LoginRatePerMin int
	// RegisterRatePerMin is the max registration attempts per minute per IP.
	// Default: 3
	RegisterRatePerMin int
	// CleanupInterval for visitor entries.
	// Default: 1 minute
	CleanupInterval time.Duration
}

// DefaultAuthRateLimitConfig returns secure defaults for auth rate limiting.
func DefaultAuthRateLimitConfig() AuthRateLimitConfig {
	return AuthRateLimitConfig{
		LoginRatePerMin:    5,
		RegisterRatePerMin: 3,
		CleanupInterval:    time.Minute,
	}
}

// NewAuthRateLimiter creates a rate limiter specialized for auth endpoints.
func NewAuthRateLimiter(cfg AuthRateLimitConfig, log *logger.Logger) *AuthRateLimiter {
	if cfg.LoginRatePerMin == 0 {
		cfg.LoginRatePerMin = 5
	}
	if cfg.RegisterRatePerMin == 0 {
		cfg.RegisterRatePerMin = 3
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}

	return &AuthRateLimiter{
		loginLimiter: NewRateLimiter(&config.RateLimitConfig{
			Enabled:         true,
			RequestsPerSec:  float64(cfg.LoginRatePerMin) / 60.0,
			Burst:           cfg.LoginRatePerMin,
			CleanupInterval: cfg.CleanupInterval,
		}, log),
		registerLimiter: NewRateLimiter(&config.RateLimitConfig{
			Enabled:         true,
			RequestsPerSec:  float64(cfg.RegisterRatePerMin) / 60.0,
			Burst:           cfg.RegisterRatePerMin,
			CleanupInterval: cfg.CleanupInterval,
		}, log),
		log: log,
	}
}

// Stop gracefully shuts down all auth rate limiters.
func (a *AuthRateLimiter) Stop() {
	a.loginLimiter.Stop()
	a.registerLimiter.Stop()
}

// LoginMiddleware returns middleware for login endpoints.
func (a *AuthRateLimiter) LoginMiddleware() func(http.Handler) http.Handler {
	return a.loginLimiter.Middleware()
}

// RegisterMiddleware returns middleware for registration endpoints.
func (a *AuthRateLimiter) RegisterMiddleware() func(http.Handler) http.Handler {
	return a.registerLimiter.Middleware()
}
