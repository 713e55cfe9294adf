// Package cache remembers the match result of recently seen lines. Log
// streams repeat the same lines often, so the matcher consults it before
// scanning the rules.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

const (
	// DefaultMaxEntries is used when a non-positive size is requested
	DefaultMaxEntries = 10000
	// DefaultMaxBytes bounds the total length of cached lines
	DefaultMaxBytes = 32 << 20
)

type entry struct {
	line   string
	result domain.MatchResult
}

// LRUCache implements domain.CacheManager. Entries are evicted least
// recently used first once either the entry count or the byte budget is
// exceeded.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	maxBytes int64
	bytes    int64
	order    *list.List // front is most recently used
	lines    map[string]*list.Element

	hits      int64
	misses    int64
	evictions int64
}

// NewLRUCache creates a cache holding at most maxSize lines
func NewLRUCache(maxSize int) *LRUCache {
	return NewLRUCacheWithBudget(maxSize, DefaultMaxBytes)
}

// NewLRUCacheWithBudget creates a cache bounded by entry count and by the
// summed byte length of the cached lines
func NewLRUCacheWithBudget(maxSize int, maxBytes int64) *LRUCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &LRUCache{
		maxSize:  maxSize,
		maxBytes: maxBytes,
		order:    list.New(),
		lines:    make(map[string]*list.Element),
	}
}

// Get returns a copy of the result cached for line
func (c *LRUCache) Get(line string) (*domain.MatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.lines[line]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++

	result := el.Value.(*entry).result
	result.CacheHit = true
	result.Timestamp = time.Now()
	return &result, true
}

// Set caches a copy of result for line. A line longer than the byte budget
// is not cached.
func (c *LRUCache) Set(line string, result *domain.MatchResult) {
	if result == nil || int64(len(line)) > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.lines[line]; ok {
		el.Value.(*entry).result = *result
		c.order.MoveToFront(el)
		return
	}

	c.lines[line] = c.order.PushFront(&entry{line: line, result: *result})
	c.bytes += int64(len(line))

	for c.order.Len() > c.maxSize || c.bytes > c.maxBytes {
		c.removeElement(c.order.Back())
		c.evictions++
	}
}

// Invalidate drops line from the cache
func (c *LRUCache) Invalidate(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.lines[line]; ok {
		c.removeElement(el)
	}
}

// Clear drops every entry and resets the counters. The matcher calls it
// whenever the committed rules change.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.lines = make(map[string]*list.Element)
	c.bytes = 0
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Stats returns current cache statistics
func (c *LRUCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRatio float64
	if total := c.hits + c.misses; total > 0 {
		hitRatio = float64(c.hits) / float64(total)
	}

	return domain.CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		MaxSize:   c.maxSize,
		Bytes:     c.bytes,
		HitRatio:  hitRatio,
	}
}

// HealthCheck reports degraded when the cache is nearly full or most
// lookups miss
func (c *LRUCache) HealthCheck(ctx context.Context) domain.HealthStatus {
	stats := c.Stats()

	status := domain.HealthStatusHealthy
	message := "Cache is operating normally"
	details := map[string]any{
		"size":      stats.Size,
		"max_size":  stats.MaxSize,
		"bytes":     stats.Bytes,
		"max_bytes": c.maxBytes,
		"hit_ratio": stats.HitRatio,
		"evictions": stats.Evictions,
	}

	if stats.Size >= stats.MaxSize*9/10 || stats.Bytes >= c.maxBytes*9/10 {
		status = domain.HealthStatusDegraded
		message = "Cache is near capacity"
	}

	if stats.HitRatio < 0.5 && stats.Hits+stats.Misses > 100 {
		if status == domain.HealthStatusHealthy {
			status = domain.HealthStatusDegraded
			message = "Low cache hit ratio"
		}
		details["hit_ratio_warning"] = "Hit ratio below 50%"
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

func (c *LRUCache) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.lines, e.line)
	c.bytes -= int64(len(e.line))
}
