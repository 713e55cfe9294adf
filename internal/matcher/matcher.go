package matcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

// Matcher implements the LineMatcher interface over the committed rules
type Matcher struct {
	mu       sync.RWMutex
	rules    []domain.Rule
	provider domain.RuleProvider
	cache    domain.CacheManager
}

// NewMatcher creates a new Matcher instance
func NewMatcher(provider domain.RuleProvider, cache domain.CacheManager) *Matcher {
	return &Matcher{
		provider: provider,
		cache:    cache,
		rules:    make([]domain.Rule, 0),
	}
}

// Resolve returns the style of the first rule matching line
func (m *Matcher) Resolve(ctx context.Context, line string) (*domain.MatchResult, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Resolve operation cancelled",
			408,
			ctx.Err(),
			map[string]any{"line_length": len(line)},
		).WithContext(ctx, "resolve")
	default:
	}

	if cached, found := m.cache.Get(line); found {
		return cached, nil
	}

	// Rules are compiled in LoadRules and never mutated afterwards
	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()

	for i := range rules {
		if i%256 == 0 {
			select {
			case <-ctx.Done():
				return nil, domain.NewAppErrorWithCause(
					domain.ErrTimeout,
					"Resolve operation cancelled during matching",
					408,
					ctx.Err(),
					map[string]any{"processed_rules": i},
				).WithContext(ctx, "resolve")
			default:
			}
		}

		if rules[i].Matches(line) {
			result := &domain.MatchResult{
				Matched:    true,
				Index:      i,
				Foreground: rules[i].Foreground,
				Background: rules[i].Background,
				Timestamp:  time.Now(),
			}
			m.cache.Set(line, result)
			return result, nil
		}
	}

	// Unmatched lines are not cached; most of a log is unmatched and would flush the cache
	return &domain.MatchResult{
		Matched:   false,
		Index:     -1,
		Timestamp: time.Now(),
	}, nil
}

// InvalidateCache clears the cache
func (m *Matcher) InvalidateCache(ctx context.Context) error {
	m.cache.Clear()
	return nil
}

// LoadRules replaces the rule list with the provider's committed rules
func (m *Matcher) LoadRules(ctx context.Context) error {
	rules, err := m.provider.CommittedRules(ctx)
	if err != nil {
		return err
	}

	invalid := 0
	for i := range rules {
		if err := rules[i].Compile(); err != nil {
			invalid++
			log.Warn().
				Err(err).
				Int("index", i).
				Str("pattern", rules[i].Pattern).
				Msg("Rule pattern does not compile and will never match")
		}
	}

	m.mu.Lock()
	m.rules = rules
	m.mu.Unlock()

	m.cache.Clear()

	log.Debug().Int("rule_count", len(rules)).Int("invalid_rules", invalid).Msg("Matcher rules loaded")
	return nil
}

// Rules returns a copy of the loaded rules
func (m *Matcher) Rules() []domain.Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// HealthCheck performs a health check on the matcher
func (m *Matcher) HealthCheck(ctx context.Context) domain.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	status := domain.HealthStatusHealthy
	message := "Matcher is operating normally"

	ruleCount := len(m.rules)
	cacheStats := m.cache.Stats()

	details := map[string]any{
		"rule_count":      ruleCount,
		"cache_size":      cacheStats.Size,
		"cache_hits":      cacheStats.Hits,
		"cache_misses":    cacheStats.Misses,
		"cache_hit_ratio": cacheStats.HitRatio,
	}

	if ruleCount == 0 {
		status = domain.HealthStatusDegraded
		message = "No rules loaded"
		details["warning"] = "Matcher has no rules to match against"
	}

	cacheHealth := m.cache.HealthCheck(ctx)
	if cacheHealth.Status != domain.HealthStatusHealthy {
		if status == domain.HealthStatusHealthy {
			status = domain.HealthStatusDegraded
		}
		message = "Cache issues detected"
		details["cache_status"] = cacheHealth.Status
		details["cache_message"] = cacheHealth.Message
	}

	invalidRules := 0
	for i := range m.rules {
		if m.rules[i].Pattern != "" && m.rules[i].GetCompiledRegex() == nil {
			invalidRules++
		}
	}

	if invalidRules > 0 {
		status = domain.HealthStatusDegraded
		message = "Some rules have compilation issues"
		details["invalid_rules"] = invalidRules
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}

// GetStats returns matcher statistics
func (m *Matcher) GetStats(ctx context.Context) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cacheStats := m.cache.Stats()

	ignoreCase := 0
	compiled := 0
	for i := range m.rules {
		if m.rules[i].IgnoreCase {
			ignoreCase++
		}
		if m.rules[i].GetCompiledRegex() != nil {
			compiled++
		}
	}

	return map[string]any{
		"rule_count":        len(m.rules),
		"ignore_case_rules": ignoreCase,
		"compiled_rules":    compiled,
		"cache_hits":        cacheStats.Hits,
		"cache_misses":      cacheStats.Misses,
		"cache_size":        cacheStats.Size,
		"cache_max_size":    cacheStats.MaxSize,
		"cache_hit_ratio":   cacheStats.HitRatio,
	}
}
