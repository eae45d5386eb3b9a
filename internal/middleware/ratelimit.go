package middleware

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity   int
	tokens     float64 // Use float for precise refill
	refillRate int     // tokens per second
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes one token if available and reports the tokens left
func (tb *TokenBucket) Allow() (bool, int) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens based on elapsed time (fractional)
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*float64(tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, int(math.Floor(tb.tokens))
	}
	return false, 0
}

// retryAfter is how long until the next token arrives
func (tb *TokenBucket) retryAfter() time.Duration {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	if tb.refillRate <= 0 {
		return time.Minute
	}
	missing := 1 - tb.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(tb.refillRate) * float64(time.Second))
}

type limit struct {
	capacity   int
	refillRate int
}

// RateLimiter manages rate limiting for different endpoint classes
type RateLimiter struct {
	buckets map[string]*TokenBucket
	mutex   sync.RWMutex

	// Default limits
	defaultCapacity   int
	defaultRefillRate int

	// Per-endpoint limits, keyed by endpoint class
	endpointLimits map[string]limit
}

// NewRateLimiter creates a new rate limiter with configurable parameters
func NewRateLimiter(rps, burst int) *RateLimiter {
	rps = max(rps, 1)
	burst = max(burst, 1)

	rl := &RateLimiter{
		buckets:           make(map[string]*TokenBucket),
		defaultCapacity:   burst,
		defaultRefillRate: rps,
		endpointLimits:    make(map[string]limit),
	}

	// Every compile is an LLM round trip, keep it scarce
	rl.endpointLimits["compile"] = limit{max(burst/10, 2), max(rps/10, 1)}
	rl.endpointLimits["rules"] = limit{max(burst/2, 1), max(rps/2, 1)}
	rl.endpointLimits["events"] = limit{burst * 2, rps * 2}
	rl.endpointLimits["health"] = limit{20, 2}
	rl.endpointLimits["metrics"] = limit{20, 2}

	return rl
}

// endpointClass groups request paths so that per-rule URLs share a bucket
func endpointClass(path string) string {
	switch {
	case path == "/v1/rules/compile" || strings.HasPrefix(path, "/v1/rules/compile/"):
		return "compile"
	case path == "/v1/rules" || strings.HasPrefix(path, "/v1/rules/"):
		return "rules"
	case strings.HasPrefix(path, "/v1/events"):
		return "events"
	case strings.HasPrefix(path, "/health"):
		return "health"
	case strings.HasPrefix(path, "/metrics"):
		return "metrics"
	default:
		return "default"
	}
}

// limitsFor returns the limits that apply to an endpoint class
func (rl *RateLimiter) limitsFor(class string) limit {
	if l, ok := rl.endpointLimits[class]; ok {
		return l
	}
	return limit{rl.defaultCapacity, rl.defaultRefillRate}
}

// getBucket gets or creates a token bucket for a client+endpoint combination
func (rl *RateLimiter) getBucket(clientID, class string) *TokenBucket {
	key := clientID + ":" + class

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()

	if exists {
		return bucket
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}

	l := rl.limitsFor(class)
	bucket = NewTokenBucket(l.capacity, l.refillRate)
	rl.buckets[key] = bucket

	return bucket
}

// getClientID extracts client identifier from request
func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	if apiKey := c.Get("X-API-Key"); apiKey != "" {
		return "api:" + apiKey
	}
	if auth := c.Get("Authorization"); auth != "" {
		return "auth:" + auth
	}
	return "ip:" + c.IP()
}

// Middleware returns a Fiber middleware for rate limiting
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)
		class := endpointClass(c.Path())
		l := rl.limitsFor(class)

		bucket := rl.getBucket(clientID, class)
		allowed, remaining := bucket.Allow()

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.capacity))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			wait := bucket.retryAfter()
			retrySeconds := max(int(math.Ceil(wait.Seconds())), 1)

			appErr := domain.NewAppError(
				domain.ErrRateLimit,
				"Rate limit exceeded",
				fiber.StatusTooManyRequests,
				map[string]any{
					"endpoint":    class,
					"retry_after": retrySeconds,
				},
			).WithContext(c.UserContext(), "rate_limit")

			c.Set("Retry-After", strconv.Itoa(retrySeconds))
			c.Set("X-RateLimit-Reset", time.Now().Add(wait).UTC().Format(time.RFC3339))

			return c.Status(appErr.StatusCode).JSON(fiber.Map{
				"status":  "error",
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
		}

		return c.Next()
	}
}

// CleanupOldBuckets removes buckets idle for longer than maxIdle
func (rl *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.lastRefill)
		bucket.mutex.Unlock()
		if idle > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine starts a background routine to clean up old buckets
// Returns a stop function to cancel the routine
func (rl *RateLimiter) StartCleanupRoutine() (stop func()) {
	ticker := time.NewTicker(10 * time.Minute)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.CleanupOldBuckets(time.Hour)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]any {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	limits := make(map[string]any, len(rl.endpointLimits))
	for class, l := range rl.endpointLimits {
		limits[class] = map[string]int{"capacity": l.capacity, "refill_rate": l.refillRate}
	}

	return map[string]any{
		"active_buckets":      len(rl.buckets),
		"default_capacity":    rl.defaultCapacity,
		"default_refill_rate": rl.defaultRefillRate,
		"endpoint_limits":     limits,
	}
}
