package health

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// CheckFunc reports the health of one component
type CheckFunc func(ctx context.Context) domain.HealthStatus

// Option configures a SystemHealthChecker
type Option func(*SystemHealthChecker)

// WithComponent registers an extra component check under name
func WithComponent(name string, check CheckFunc) Option {
	return func(h *SystemHealthChecker) {
		if _, exists := h.checks[name]; !exists {
			h.order = append(h.order, name)
		}
		h.checks[name] = check
	}
}

// WithCacheTTL sets how long a system health result is reused
func WithCacheTTL(ttl time.Duration) Option {
	return func(h *SystemHealthChecker) { h.cacheTTL = ttl }
}

// WithTimeout bounds every component check
func WithTimeout(timeout time.Duration) Option {
	return func(h *SystemHealthChecker) { h.timeout = timeout }
}

// SystemHealthChecker implements comprehensive system health monitoring
type SystemHealthChecker struct {
	repository domain.RuleRepository
	engine     domain.RuleEvaluator
	checks     map[string]CheckFunc
	order      []string

	// Health check configuration
	timeout   time.Duration
	startTime time.Time

	// Cached health status to avoid expensive checks on every request
	lastCheck   time.Time
	lastHealth  domain.SystemHealth
	cacheTTL    time.Duration
	healthMutex sync.Mutex
}

// NewSystemHealthChecker creates a health checker for the store and engine.
// Further components (compiler, watcher) are added with WithComponent.
func NewSystemHealthChecker(repository domain.RuleRepository, engine domain.RuleEvaluator, opts ...Option) *SystemHealthChecker {
	h := &SystemHealthChecker{
		repository: repository,
		engine:     engine,
		checks:     make(map[string]CheckFunc),
		timeout:    5 * time.Second,
		cacheTTL:   10 * time.Second,
		startTime:  time.Now(),
	}
	WithComponent("storage", repository.HealthCheck)(h)
	WithComponent("engine", engine.HealthCheck)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CheckHealth performs a comprehensive system health check
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()

	// Return cached result if still valid
	if h.cacheTTL > 0 && !h.lastCheck.IsZero() && time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := time.Now()
	components := make(map[string]domain.HealthStatus, len(h.order))
	overallStatus := domain.HealthStatusHealthy

	for _, name := range h.order {
		status := h.checks[name](checkCtx)
		components[name] = status
		overallStatus = aggregateStatus(overallStatus, status.Status)
	}

	systemHealth := domain.SystemHealth{
		Status:     overallStatus,
		Timestamp:  now,
		Components: components,
		Metrics:    h.collectSystemMetrics(checkCtx),
		Uptime:     time.Since(h.startTime),
	}

	h.lastCheck = now
	h.lastHealth = systemHealth

	return systemHealth
}

// CheckComponent performs a health check on a specific component
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, component string) domain.HealthStatus {
	check, exists := h.checks[component]
	if !exists {
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Unknown component",
			Timestamp: time.Now(),
			Details: map[string]any{
				"component": component,
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

// aggregateStatus determines the overall status based on component statuses
func aggregateStatus(current, componentStatus string) string {
	// Priority: unhealthy > degraded > healthy
	statusPriority := map[string]int{
		domain.HealthStatusHealthy:   0,
		domain.HealthStatusDegraded:  1,
		domain.HealthStatusUnhealthy: 2,
	}

	if statusPriority[componentStatus] > statusPriority[current] {
		return componentStatus
	}
	return current
}

// collectSystemMetrics gathers store, engine and process metrics
func (h *SystemHealthChecker) collectSystemMetrics(ctx context.Context) map[string]any {
	metrics := make(map[string]any)

	if storageStats := h.repository.GetStats(ctx); storageStats != nil {
		metrics["storage"] = storageStats
	}
	metrics["engine"] = h.engine.GetStats()

	system := map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
	}
	for k, v := range processMetrics(ctx) {
		system[k] = v
	}
	metrics["system"] = system

	return metrics
}

// processMetrics reads resource usage of the current process. Fields that
// the platform cannot report are left out.
func processMetrics(ctx context.Context) map[string]any {
	out := make(map[string]any)

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return out
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		out["rss_bytes"] = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		out["cpu_percent"] = cpu
	}
	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		out["threads"] = threads
	}
	if fds, err := p.NumFDsWithContext(ctx); err == nil {
		out["open_fds"] = fds
	}
	return out
}
