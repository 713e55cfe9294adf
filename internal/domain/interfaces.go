package domain

import "context"

// Monitored is implemented by components that report to the health checker
type Monitored interface {
	HealthCheck(ctx context.Context) HealthStatus
	GetStats(ctx context.Context) map[string]any
}

// RuleProvider supplies the committed working rule list
type RuleProvider interface {
	Monitored
	CommittedRules(ctx context.Context) ([]Rule, error)
}

// LineMatcher classifies log lines against the committed rules
type LineMatcher interface {
	Monitored
	Resolve(ctx context.Context, line string) (*MatchResult, error)
	InvalidateCache(ctx context.Context) error
	LoadRules(ctx context.Context) error
}

// CacheManager remembers match results per line
type CacheManager interface {
	Get(line string) (*MatchResult, bool)
	Set(line string, result *MatchResult)
	Invalidate(line string)
	Clear()
	Stats() CacheStats
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthChecker aggregates component health
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, component string) HealthStatus
}

// Validator checks request input before it reaches a session
type Validator interface {
	ValidateRule(rule *Rule) error
	ValidateLine(line string) error
	ValidatePath(path string) error
}
