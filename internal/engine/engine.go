package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// Observer receives evaluation telemetry
type Observer interface {
	ObserveEvaluation(event domain.FileEvent, matches int, elapsed time.Duration)
	ObserveMatch(match domain.RuleMatch)
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHistoryLimit bounds the recent match ring buffer
func WithHistoryLimit(limit int) Option {
	return func(e *Engine) { e.history = newHistory(limit) }
}

// WithObserver registers evaluation telemetry
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the epoch-millisecond clock used for events without a timestamp
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// Engine evaluates file events against the stored rules. It owns the
// per-rule threshold windows and the recent match history.
type Engine struct {
	mu         sync.RWMutex
	repository domain.RuleRepository
	windows    map[string][]int64
	history    *history
	stats      domain.EngineStats

	observer Observer
	logger   zerolog.Logger
	now      func() int64
}

// New creates an engine reading rules from repository
func New(repository domain.RuleRepository, opts ...Option) *Engine {
	e := &Engine{
		repository: repository,
		windows:    make(map[string][]int64),
		history:    newHistory(DefaultHistoryLimit),
		logger:     zerolog.Nop(),
		now:        domain.NowMillis,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateEvent runs event through every enabled rule in store order and
// returns the rules that fired. Evaluations are serialized.
func (e *Engine) EvaluateEvent(ctx context.Context, event domain.FileEvent) []domain.RuleMatch {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		e.logger.Debug().Err(err).Str("path", event.Path).Msg("Evaluation skipped, context done")
		return nil
	}

	rules, err := e.repository.GetAllRules(ctx)
	if err != nil {
		e.logger.Error().Err(err).Str("path", event.Path).Msg("Failed to read rules for evaluation")
		return nil
	}

	if event.Timestamp == 0 {
		event.Timestamp = e.now()
	}
	e.stats.EventsObserved++

	var matches []domain.RuleMatch
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			// Disabled rules never keep a partial burst.
			delete(e.windows, rule.ID)
			continue
		}
		e.stats.RulesEvaluated++

		if !matchesFilter(rule.Match, event) {
			continue
		}

		var match *domain.RuleMatch
		switch rule.Type {
		case domain.RuleTypePattern:
			match = e.firePattern(rule, event)
		case domain.RuleTypeThreshold:
			match = e.observeThreshold(rule, event)
		default:
			e.logger.Warn().Str("rule_id", rule.ID).Str("rule_type", string(rule.Type)).Msg("Skipping rule with unknown type")
		}
		if match == nil {
			continue
		}

		e.record(ctx, *match)
		matches = append(matches, *match)
	}

	if e.observer != nil {
		e.observer.ObserveEvaluation(event, len(matches), time.Since(start))
	}
	return matches
}

func (e *Engine) firePattern(rule *domain.Rule, event domain.FileEvent) *domain.RuleMatch {
	reason := patternReason(event)
	return &domain.RuleMatch{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		RuleType:  rule.Type,
		Timestamp: event.Timestamp,
		Summary:   summary(rule),
		Reason:    reason,
		Path:      event.Path,
		EventType: event.Type,
	}
}

// observeThreshold pushes the event into the rule's window, ages out entries
// older than the window and fires once the window holds count entries.
// The window is emptied on fire.
func (e *Engine) observeThreshold(rule *domain.Rule, event domain.FileEvent) *domain.RuleMatch {
	if rule.WindowSeconds == nil || rule.Count == nil {
		e.logger.Warn().Str("rule_id", rule.ID).Msg("Threshold rule without window or count")
		return nil
	}
	windowSeconds, count := *rule.WindowSeconds, *rule.Count

	window := append(e.windows[rule.ID], event.Timestamp)
	window = pruneBefore(window, event.Timestamp-int64(windowSeconds)*1000)

	if len(window) < count {
		e.windows[rule.ID] = window
		return nil
	}

	n := len(window)
	delete(e.windows, rule.ID)

	return &domain.RuleMatch{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		RuleType:      rule.Type,
		Timestamp:     event.Timestamp,
		Summary:       summary(rule),
		Reason:        thresholdReason(n, rule.Match, windowSeconds, count),
		Path:          event.Path,
		EventType:     event.Type,
		Count:         domain.IntPtr(n),
		WindowSeconds: domain.IntPtr(windowSeconds),
	}
}

// record counts the match, persists it through the repository and keeps it
// in the history. A persistence failure does not suppress the match.
func (e *Engine) record(ctx context.Context, match domain.RuleMatch) {
	e.stats.Matches++
	e.history.push(match)

	if err := e.repository.RecordMatch(ctx, match.RuleID, match.Timestamp); err != nil {
		e.logger.Warn().Err(err).Str("rule_id", match.RuleID).Msg("Failed to record match")
	}

	e.logger.Info().
		Str("rule_id", match.RuleID).
		Str("rule_type", string(match.RuleType)).
		Str("path", match.Path).
		Str("event_type", string(match.EventType)).
		Str("reason", match.Reason).
		Msg("Rule fired")

	if e.observer != nil {
		e.observer.ObserveMatch(match)
	}
}

// pruneBefore drops timestamps older than cutoff, keeping order
func pruneBefore(window []int64, cutoff int64) []int64 {
	kept := window[:0]
	for _, ts := range window {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

func summary(rule *domain.Rule) string {
	return fmt.Sprintf("Rule %q fired", rule.Name)
}

// ForgetRule discards any partial threshold window held for id
func (e *Engine) ForgetRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.windows, id)
}

// PruneWindows drops window entries that have aged out as of now, and whole
// windows whose rule is gone, disabled or no longer a threshold rule.
// It returns the number of windows removed.
func (e *Engine) PruneWindows(ctx context.Context, now int64) (int, error) {
	rules, err := e.repository.GetAllRules(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*domain.Rule, len(rules))
	for i := range rules {
		byID[rules[i].ID] = &rules[i]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, window := range e.windows {
		rule, ok := byID[id]
		if !ok || !rule.Enabled || rule.Type != domain.RuleTypeThreshold || rule.WindowSeconds == nil {
			delete(e.windows, id)
			removed++
			continue
		}
		window = pruneBefore(window, now-int64(*rule.WindowSeconds)*1000)
		if len(window) == 0 {
			delete(e.windows, id)
			removed++
			continue
		}
		e.windows[id] = window
	}

	if removed > 0 {
		e.logger.Debug().Int("removed", removed).Int("remaining", len(e.windows)).Msg("Pruned threshold windows")
	}
	return removed, nil
}

// GetStats returns the engine-wide counters
func (e *Engine) GetStats() domain.EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// GetRecentMatches returns up to limit recent matches, newest first
func (e *Engine) GetRecentMatches(limit int) []domain.RuleMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.recent(limit)
}

// WindowSize returns how many timestamps are pending in the window of id
func (e *Engine) WindowSize(id string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.windows[id])
}

// HealthCheck performs a health check on the engine
func (e *Engine) HealthCheck(ctx context.Context) domain.HealthStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now()
	status := domain.HealthStatusHealthy
	message := "Engine is operating normally"

	details := map[string]any{
		"events_observed":  e.stats.EventsObserved,
		"rules_evaluated":  e.stats.RulesEvaluated,
		"matches":          e.stats.Matches,
		"open_windows":     len(e.windows),
		"history_size":     e.history.len(),
		"history_capacity": e.history.capacity(),
	}

	if _, err := e.repository.GetAllRules(ctx); err != nil {
		status = domain.HealthStatusUnhealthy
		message = "Rule repository is not readable"
		details["error"] = err.Error()
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}
