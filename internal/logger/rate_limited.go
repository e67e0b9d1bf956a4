package logger

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Log categories for high-frequency events.
const (
	CategoryTimestampRepair = "timestamp_repair"
	CategoryWouldBlock      = "would_block"
	CategoryRechunk         = "rechunk"
)

// RateLimitedLogger drops log lines in a category once its token bucket is
// empty. Each emitted line carries the count of lines suppressed since the
// previous one in that category.
type RateLimitedLogger struct {
	base Logger

	mu       sync.RWMutex
	limiters map[string]*categoryLimiter
}

type categoryLimiter struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
	emitted    atomic.Int64
}

// NewRateLimitedLogger creates a logger that forwards to base.
func NewRateLimitedLogger(base Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		base:     base,
		limiters: make(map[string]*categoryLimiter),
	}
}

// WithLimit configures a category to emit at most perSecond lines per second
// after an initial burst. Categories without a limit always log.
func (r *RateLimitedLogger) WithLimit(category string, perSecond float64, burst int) *RateLimitedLogger {
	if burst < 1 {
		burst = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[category] = &categoryLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
	return r
}

// Log emits msg at level unless the category is over its rate.
func (r *RateLimitedLogger) Log(level logrus.Level, category, msg string, fields map[string]interface{}) bool {
	r.mu.RLock()
	cl, ok := r.limiters[category]
	r.mu.RUnlock()

	entry := r.base
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}

	if !ok {
		entry.WithField("category", category).Log(level, msg)
		return true
	}

	if !cl.limiter.Allow() {
		cl.suppressed.Add(1)
		return false
	}

	cl.emitted.Add(1)
	entry = entry.WithField("category", category)
	if dropped := cl.suppressed.Swap(0); dropped > 0 {
		entry = entry.WithField("suppressed", dropped)
	}
	entry.Log(level, msg)
	return true
}

// Warn is shorthand for Log at warn level.
func (r *RateLimitedLogger) Warn(category, msg string, fields map[string]interface{}) bool {
	return r.Log(logrus.WarnLevel, category, msg, fields)
}

// Debug is shorthand for Log at debug level.
func (r *RateLimitedLogger) Debug(category, msg string, fields map[string]interface{}) bool {
	return r.Log(logrus.DebugLevel, category, msg, fields)
}

// Stats returns emitted and currently suppressed counts for a category.
func (r *RateLimitedLogger) Stats(category string) (emitted, suppressed int64) {
	r.mu.RLock()
	cl, ok := r.limiters[category]
	r.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return cl.emitted.Load(), cl.suppressed.Load()
}

// Base returns the wrapped logger.
func (r *RateLimitedLogger) Base() Logger {
	return r.base
}
