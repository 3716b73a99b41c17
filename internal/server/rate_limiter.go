package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/sarraf/internal/config"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	limiterTTL             = time.Hour
	limiterCleanupInterval = 5 * time.Minute
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles API requests per client IP
type RateLimiter struct {
	clients     map[string]*ipLimiter
	lastCleanup time.Time
	log         zerolog.Logger
	rps         rate.Limit
	burst       int
	mu          sync.Mutex
}

// NewRateLimiter creates a per-IP limiter. A non-positive RPS disables limiting.
func NewRateLimiter(cfg config.RateLimitConfig, log zerolog.Logger) *RateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients:     make(map[string]*ipLimiter),
		lastCleanup: time.Now(),
		log:         log.With().Str("component", "rate_limiter").Logger(),
		rps:         rate.Limit(cfg.RPS),
		burst:       burst,
	}
}

// Enabled reports whether requests are limited at all
func (rl *RateLimiter) Enabled() bool {
	return rl.rps > 0
}

// Allow reports whether the client at ip may make another request now
func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.Enabled() {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	if now.Sub(rl.lastCleanup) > limiterCleanupInterval {
		for key, c := range rl.clients {
			if now.Sub(c.lastAccess) > limiterTTL {
				delete(rl.clients, key)
			}
		}
		rl.lastCleanup = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastAccess = now
	rl.mu.Unlock()

	return c.limiter.Allow()
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			rl.log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			utils.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"}, rl.log)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr, which RealIP has already rewritten
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
