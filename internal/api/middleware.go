// Package api implements the local HTTP API of combatlens: live combat
// statistics, session history, operator controls and a websocket push
// channel for dashboards.
package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// bucketIdle is how long an untouched client bucket is kept.
const bucketIdle = 10 * time.Minute

// RateLimiter is a per-IP token bucket. Dashboards poll /api/data at the
// realtime tick, so the burst is twice the sustained rate.
type RateLimiter struct {
	mu        sync.Mutex
	perSecond float64
	burst     float64
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows rps requests per second per client. rps <= 0
// disables limiting.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		perSecond: float64(rps),
		burst:     float64(rps * 2),
		buckets:   make(map[string]*bucket),
	}
}

// Middleware rejects requests over the limit with 429. The websocket
// endpoint is exempt once upgraded, so only the handshake counts.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.perSecond <= 0 || rl.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	}
}

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > bucketIdle {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) > bucketIdle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[ip] = b
	}
	b.tokens = min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.perSecond)
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// SecurityHeaders sets response headers for JSON routes. The websocket
// upgrade response is left alone.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Server", "combatlens")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")

		if p := c.Request.URL.Path; strings.HasPrefix(p, "/api/") && p != "/api/ws" {
			h.Set("Cache-Control", "no-store")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		c.Next()
	}
}

// RequestLogger logs each request at debug, or warn for 5xx.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		if status >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("took", time.Since(started)).
			Str("client", c.ClientIP()).
			Msg("api request")
	}
}
