package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// node represents a node in the doubly-linked list
type node struct {
	key   string
	value *domain.CompileResult
	prev  *node
	next  *node
}

// LRUCache memoizes compile results using LRU eviction.
// Values are deep-copied on the way in and out, so callers may mutate what they get.
type LRUCache struct {
	maxSize int
	size    int

	// Doubly-linked list for LRU ordering
	head *node
	tail *node

	cache map[string]*node

	mutex sync.RWMutex

	hits   int64
	misses int64

	lastHealthCheck time.Time
	healthMutex     sync.RWMutex
}

// NewLRUCache creates a new LRU cache with the specified maximum size
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 256
	}

	// Create dummy head and tail nodes for easier list manipulation
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head

	return &LRUCache{
		maxSize:         maxSize,
		head:            head,
		tail:            tail,
		cache:           make(map[string]*node),
		lastHealthCheck: time.Now(),
	}
}

// Get retrieves a result from the cache and marks it as recently used
func (c *LRUCache) Get(key string) (*domain.CompileResult, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	found, exists := c.cache[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.moveToFront(found)
	atomic.AddInt64(&c.hits, 1)

	return found.value.Clone(), true
}

// Set adds or updates a result in the cache
func (c *LRUCache) Set(key string, result *domain.CompileResult) {
	if result == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, exists := c.cache[key]; exists {
		existing.value = result.Clone()
		c.moveToFront(existing)
		return
	}

	newNode := &node{key: key, value: result.Clone()}
	c.addToFront(newNode)
	c.cache[key] = newNode
	c.size++

	if c.size > c.maxSize {
		c.evictLRU()
	}
}

// Invalidate removes a specific key from the cache
func (c *LRUCache) Invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, exists := c.cache[key]; exists {
		c.removeNode(existing)
		delete(c.cache, key)
		c.size--
	}
}

// Clear removes all entries from the cache and resets the counters
func (c *LRUCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head

	c.cache = make(map[string]*node)
	c.size = 0

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns current cache statistics
func (c *LRUCache) Stats() domain.CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses

	var hitRatio float64
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return domain.CacheStats{
		Hits:     hits,
		Misses:   misses,
		Size:     c.size,
		MaxSize:  c.maxSize,
		HitRatio: hitRatio,
	}
}

// HealthCheck reports utilization. Compile caches legitimately run with a low
// hit ratio, so only near-capacity is treated as degraded.
func (c *LRUCache) HealthCheck(ctx context.Context) domain.HealthStatus {
	c.healthMutex.Lock()
	defer c.healthMutex.Unlock()

	now := time.Now()
	c.lastHealthCheck = now

	stats := c.Stats()

	status := domain.HealthStatusHealthy
	message := "Compile cache is operating normally"
	details := map[string]any{
		"size":      stats.Size,
		"max_size":  stats.MaxSize,
		"hit_ratio": stats.HitRatio,
		"hits":      stats.Hits,
		"misses":    stats.Misses,
	}

	if stats.Size >= int(float64(stats.MaxSize)*0.9) {
		status = domain.HealthStatusDegraded
		message = "Compile cache is near capacity"
		details["warning"] = "Cache utilization above 90%"
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}

func (c *LRUCache) moveToFront(n *node) {
	c.removeNode(n)
	c.addToFront(n)
}

func (c *LRUCache) addToFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRUCache) removeNode(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// evictLRU removes the least recently used item from the cache
func (c *LRUCache) evictLRU() {
	if c.tail.prev == c.head {
		return
	}

	lru := c.tail.prev
	c.removeNode(lru)
	delete(c.cache, lru.key)
	c.size--
}
