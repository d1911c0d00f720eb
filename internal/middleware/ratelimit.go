package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aura-interview/attention/pkg/response"
)

// LimiterManager keeps one token bucket per key and evicts idle keys.
type LimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	done     chan struct{}
	once     sync.Once
}

// NewLimiterManager creates a manager allowing perSecond events with the given burst.
// Keys idle for longer than evictAfter are dropped; zero disables the sweeper.
func NewLimiterManager(perSecond float64, burst int, evictAfter time.Duration) *LimiterManager {
	if burst < 1 {
		burst = 1
	}
	m := &LimiterManager{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		done:     make(chan struct{}),
	}
	if evictAfter > 0 {
		go m.cleanupRoutine(evictAfter)
	}
	return m
}

// Get returns the limiter for key, creating it on first use.
func (m *LimiterManager) Get(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = l
	}
	m.lastSeen[key] = time.Now()
	return l
}

// Allow reports whether one more event for key fits the budget.
func (m *LimiterManager) Allow(key string) bool {
	return m.Get(key).Allow()
}

// Len returns the number of tracked keys.
func (m *LimiterManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}

func (m *LimiterManager) cleanupRoutine(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup(every)
		case <-m.done:
			return
		}
	}
}

func (m *LimiterManager) cleanup(age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, seen := range m.lastSeen {
		if now.Sub(seen) > age {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}
}

// Close stops the sweeper.
func (m *LimiterManager) Close() {
	m.once.Do(func() { close(m.done) })
}

// RateLimit rejects requests over budget with 429. Authenticated callers are keyed
// by user id, others by client IP.
func RateLimit(m *LimiterManager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := UserID(c); ok {
			key = "user:" + id.String()
		}
		if !m.Allow(key) {
			logger.Info("rate limit exceeded", zap.String("key", key), zap.String("path", c.Request.URL.Path))
			response.TooManyRequests(c, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
