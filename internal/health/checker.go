package health

import (
	"context"
	"sync"
	"time"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

// ComponentCheck reports the health of one component
type ComponentCheck func(ctx context.Context) domain.HealthStatus

type component struct {
	name  string
	check ComponentCheck
}

// SystemHealthChecker aggregates the health of the settings store, the
// line matcher, its cache and any component registered with AddComponent.
// Results are cached for cacheTTL.
type SystemHealthChecker struct {
	provider domain.RuleProvider
	matcher  domain.LineMatcher
	cache    domain.CacheManager

	timeout   time.Duration
	cacheTTL  time.Duration
	startTime time.Time

	mu         sync.Mutex
	components []component
	lastCheck  time.Time
	lastHealth domain.SystemHealth
}

// NewSystemHealthChecker creates a new system health checker
func NewSystemHealthChecker(
	provider domain.RuleProvider,
	matcher domain.LineMatcher,
	cache domain.CacheManager,
) *SystemHealthChecker {
	h := &SystemHealthChecker{
		provider:  provider,
		matcher:   matcher,
		cache:     cache,
		timeout:   5 * time.Second,
		cacheTTL:  30 * time.Second,
		startTime: time.Now(),
	}
	h.components = []component{
		{name: "storage", check: provider.HealthCheck},
		{name: "matcher", check: matcher.HealthCheck},
		{name: "cache", check: cache.HealthCheck},
	}
	return h
}

// AddComponent registers check under name, replacing an earlier check of
// the same name, and drops the cached result
func (h *SystemHealthChecker) AddComponent(name string, check ComponentCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Time{}
	for i := range h.components {
		if h.components[i].name == name {
			h.components[i].check = check
			return
		}
	}
	h.components = append(h.components, component{name: name, check: check})
}

// CheckHealth runs every component check concurrently. The overall status
// is the worst component status.
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lastCheck.IsZero() && time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]domain.HealthStatus, len(h.components))
	var wg sync.WaitGroup
	for i, c := range h.components {
		i, c := i, c // per-iteration copies for pre-1.22 loop semantics
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.check(checkCtx)
		}()
	}
	wg.Wait()

	overall := domain.HealthStatusHealthy
	components := make(map[string]domain.HealthStatus, len(results))
	for i, c := range h.components {
		components[c.name] = results[i]
		overall = worse(overall, results[i].Status)
	}

	now := time.Now()
	h.lastHealth = domain.SystemHealth{
		Status:     overall,
		Timestamp:  now,
		Components: components,
		Metrics:    h.collectSystemMetrics(checkCtx),
		Uptime:     now.Sub(h.startTime),
	}
	h.lastCheck = now
	return h.lastHealth
}

// CheckComponent checks one component by name, bypassing the cache
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, name string) domain.HealthStatus {
	h.mu.Lock()
	var check ComponentCheck
	for _, c := range h.components {
		if c.name == name {
			check = c.check
			break
		}
	}
	h.mu.Unlock()

	if check == nil {
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Unknown component",
			Timestamp: time.Now(),
			Details: map[string]any{
				"component": name,
				"error":     "Component not found",
			},
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return check(checkCtx)
}

// IsHealthy returns true if the system is healthy
func (h *SystemHealthChecker) IsHealthy(ctx context.Context) bool {
	return h.CheckHealth(ctx).Status == domain.HealthStatusHealthy
}

func rank(status string) int {
	switch status {
	case domain.HealthStatusHealthy:
		return 0
	case domain.HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

func worse(a, b string) string {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func (h *SystemHealthChecker) collectSystemMetrics(ctx context.Context) map[string]any {
	metrics := make(map[string]any)

	if storageStats := h.provider.GetStats(ctx); storageStats != nil {
		metrics["storage"] = storageStats
	}
	if matcherStats := h.matcher.GetStats(ctx); matcherStats != nil {
		metrics["matcher"] = matcherStats
	}
	metrics["cache"] = h.cache.Stats()
	metrics["system"] = map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"components":     len(h.components),
	}

	return metrics
}
