package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultLimiterIdle is how long a sender's bucket survives without traffic.
const DefaultLimiterIdle = 10 * time.Minute

type senderLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// SenderRateLimiter keeps one token bucket per key, usually the normalized
// sender phone. Buckets idle for longer than Idle are dropped, so the map is
// bounded by the senders active within that window.
type SenderRateLimiter struct {
	Idle time.Duration

	limiters  sync.Map
	rate      rate.Limit
	burst     int
	log       zerolog.Logger
	now       func() time.Time
	mu        sync.Mutex
	lastSweep time.Time
}

// NewSenderRateLimiter allows perMinute events per key with the given burst.
func NewSenderRateLimiter(perMinute, burst int, log zerolog.Logger) *SenderRateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &SenderRateLimiter{
		Idle:  DefaultLimiterIdle,
		rate:  rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		log:   log,
		now:   time.Now,
	}
}

func (s *SenderRateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	v, ok := s.limiters.Load(key)
	if !ok {
		v, _ = s.limiters.LoadOrStore(key, &senderLimiter{limiter: rate.NewLimiter(s.rate, s.burst)})
	}
	l := v.(*senderLimiter)
	l.lastSeen.Store(now.UnixNano())
	return l.limiter
}

func (s *SenderRateLimiter) Allow(key string) bool {
	now := s.now()
	s.sweep(now)
	return s.limiter(key, now).AllowN(now, 1)
}

// sweep drops idle buckets, at most once per Idle window.
func (s *SenderRateLimiter) sweep(now time.Time) {
	s.mu.Lock()
	if now.Sub(s.lastSweep) < s.Idle {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	s.mu.Unlock()

	cutoff := now.Add(-s.Idle).UnixNano()
	s.limiters.Range(func(k, v any) bool {
		if v.(*senderLimiter).lastSeen.Load() < cutoff {
			s.limiters.Delete(k)
		}
		return true
	})
}

// Len is the number of live buckets.
func (s *SenderRateLimiter) Len() int {
	n := 0
	s.limiters.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// RateLimit limits by the key keyFn extracts. An empty key falls back to
// the client IP.
func (s *SenderRateLimiter) RateLimit(keyFn func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !s.Allow(key) {
			s.log.Warn().Str("key", key).Str("path", c.Request.URL.Path).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many messages, slow down",
				},
			})
			return
		}
		c.Next()
	}
}
