package domain

import "context"

// RuleRepository defines the contract for rule storage operations.
// Reads reflect every mutation that has returned, even if its save is still queued.
type RuleRepository interface {
	GetAllRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	AddRule(ctx context.Context, input RuleInput) (*Rule, error)
	UpdateRule(ctx context.Context, id string, patch RulePatch) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error
	RecordMatch(ctx context.Context, id string, at int64) error
	FindDuplicateRule(ctx context.Context, condition string, compiled CompiledRule) (*Rule, error)

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
	GetStats(ctx context.Context) map[string]any
}

// RuleEvaluator evaluates file events against the stored rules
type RuleEvaluator interface {
	EvaluateEvent(ctx context.Context, event FileEvent) []RuleMatch
	GetStats() EngineStats
	GetRecentMatches(limit int) []RuleMatch
	ForgetRule(id string)

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
}

// RuleCompiler turns a natural-language condition into a compiled rule or a reject
type RuleCompiler interface {
	Compile(ctx context.Context, condition string) *CompileResult
}

// CompileCache memoizes successful compile results by normalized condition
type CompileCache interface {
	Get(key string) (*CompileResult, bool)
	Set(key string, result *CompileResult)
	Clear()
	Stats() CacheStats
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Size     int     `json:"size"`
	MaxSize  int     `json:"max_size"`
	HitRatio float64 `json:"hit_ratio"`
}

// HealthChecker defines the interface for system health monitoring
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, component string) HealthStatus
}
