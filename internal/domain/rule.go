package domain

import (
	"time"
)

// RuleType selects how a rule fires
type RuleType string

const (
	// RuleTypePattern fires once per matching file event
	RuleTypePattern RuleType = "pattern"
	// RuleTypeThreshold fires when Count matching events land inside WindowSeconds
	RuleTypeThreshold RuleType = "threshold"
)

// RuleSource represents the origin of a rule
type RuleSource string

const (
	SourceLLM    RuleSource = "llm"
	SourceManual RuleSource = "manual"
)

// ActionNotify is the only action a rule can carry
const ActionNotify = "notify"

// MatchFilter constrains which file events a rule considers.
// An empty field places no constraint on that dimension.
type MatchFilter struct {
	PathIncludes []string    `json:"pathIncludes,omitempty" yaml:"pathIncludes,omitempty" example:"src/"`
	PathExcludes []string    `json:"pathExcludes,omitempty" yaml:"pathExcludes,omitempty" example:"src/vendor/"`
	Extensions   []string    `json:"extensions,omitempty" yaml:"extensions,omitempty" example:".ts"`
	EventTypes   []EventType `json:"eventTypes,omitempty" yaml:"eventTypes,omitempty" example:"created"`
}

// IsEmpty reports whether the filter has no constraints at all
func (f MatchFilter) IsEmpty() bool {
	return len(f.PathIncludes) == 0 && len(f.PathExcludes) == 0 && len(f.Extensions) == 0 && len(f.EventTypes) == 0
}

// Clone returns a deep copy of the filter
func (f MatchFilter) Clone() MatchFilter {
	return MatchFilter{
		PathIncludes: cloneStrings(f.PathIncludes),
		PathExcludes: cloneStrings(f.PathExcludes),
		Extensions:   cloneStrings(f.Extensions),
		EventTypes:   append([]EventType(nil), f.EventTypes...),
	}
}

// Rule is a persisted alert rule.
// Threshold rules always carry WindowSeconds and Count; pattern rules carry neither.
// @Description File change alert rule
type Rule struct {
	ID                string      `json:"id" yaml:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name              string      `json:"name" yaml:"name" example:"TypeScript churn"`
	Description       string      `json:"description" yaml:"description,omitempty"`
	Enabled           bool        `json:"enabled" yaml:"enabled"`
	CreatedAt         int64       `json:"createdAt" yaml:"createdAt"`
	LastMatched       *int64      `json:"lastMatched,omitempty" yaml:"lastMatched,omitempty"`
	MatchCount        int         `json:"matchCount" yaml:"matchCount"`
	Type              RuleType    `json:"type" yaml:"type" enums:"pattern,threshold"`
	Match             MatchFilter `json:"match" yaml:"match"`
	Action            string      `json:"action" yaml:"action" example:"notify"`
	Source            RuleSource  `json:"source" yaml:"source" enums:"llm,manual"`
	OriginalCondition string      `json:"originalCondition,omitempty" yaml:"originalCondition,omitempty"`
	WindowSeconds     *int        `json:"windowSeconds,omitempty" yaml:"windowSeconds,omitempty"`
	Count             *int        `json:"count,omitempty" yaml:"count,omitempty"`
}

// Compiled returns the matching semantics of the rule
func (r *Rule) Compiled() CompiledRule {
	return CompiledRule{
		Type:          r.Type,
		Match:         r.Match.Clone(),
		WindowSeconds: cloneInt(r.WindowSeconds),
		Count:         cloneInt(r.Count),
	}
}

// Clone returns a deep copy of the rule
func (r *Rule) Clone() Rule {
	c := *r
	c.Match = r.Match.Clone()
	c.WindowSeconds = cloneInt(r.WindowSeconds)
	c.Count = cloneInt(r.Count)
	if r.LastMatched != nil {
		v := *r.LastMatched
		c.LastMatched = &v
	}
	return c
}

// CompiledRule is the structured matcher produced from a natural-language condition
type CompiledRule struct {
	Type          RuleType    `json:"type" yaml:"type"`
	Match         MatchFilter `json:"match" yaml:"match"`
	WindowSeconds *int        `json:"windowSeconds,omitempty" yaml:"windowSeconds,omitempty"`
	Count         *int        `json:"count,omitempty" yaml:"count,omitempty"`
}

// Clone returns a deep copy of the compiled rule
func (c CompiledRule) Clone() CompiledRule {
	return CompiledRule{
		Type:          c.Type,
		Match:         c.Match.Clone(),
		WindowSeconds: cloneInt(c.WindowSeconds),
		Count:         cloneInt(c.Count),
	}
}

// CompileReject is the structured refusal returned instead of a rule
type CompileReject struct {
	Reason  string `json:"reason" yaml:"reason"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`
}

// CompileResult carries either a compiled rule or a reject, plus the raw model output
type CompileResult struct {
	Rule   *CompiledRule  `json:"rule,omitempty" yaml:"rule,omitempty"`
	Reject *CompileReject `json:"reject,omitempty" yaml:"reject,omitempty"`
	Raw    string         `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// Rejected creates a result carrying only a reject
func Rejected(reason, details, raw string) *CompileResult {
	return &CompileResult{Reject: &CompileReject{Reason: reason, Details: details}, Raw: raw}
}

// Clone returns a deep copy of the result
func (r *CompileResult) Clone() *CompileResult {
	if r == nil {
		return nil
	}
	c := &CompileResult{Raw: r.Raw}
	if r.Rule != nil {
		rule := r.Rule.Clone()
		c.Rule = &rule
	}
	if r.Reject != nil {
		reject := *r.Reject
		c.Reject = &reject
	}
	return c
}

// RuleInput is the payload accepted by RuleRepository.AddRule
type RuleInput struct {
	Name        string
	Description string
	Condition   string
	Compiled    CompiledRule
	Source      RuleSource
}

// RulePatch holds the only fields that may change after a rule is stored
type RulePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// RuleIntent is the ground truth mechanically derived from a condition's wording
type RuleIntent struct {
	EventTypes    []EventType `json:"eventTypes" yaml:"eventTypes"`
	Extensions    []string    `json:"extensions" yaml:"extensions"`
	PathIncludes  []string    `json:"pathIncludes" yaml:"pathIncludes"`
	Count         *int        `json:"count,omitempty" yaml:"count,omitempty"`
	WindowSeconds *int        `json:"windowSeconds,omitempty" yaml:"windowSeconds,omitempty"`
}

// HasThreshold reports whether the intent asks for a rate threshold
func (i RuleIntent) HasThreshold() bool {
	return i.Count != nil && i.WindowSeconds != nil
}

// RuleMatch records a rule firing
type RuleMatch struct {
	RuleID        string    `json:"ruleId"`
	RuleName      string    `json:"ruleName"`
	RuleType      RuleType  `json:"ruleType"`
	Timestamp     int64     `json:"timestamp"`
	Summary       string    `json:"summary"`
	Reason        string    `json:"reason,omitempty"`
	Path          string    `json:"path,omitempty"`
	EventType     EventType `json:"eventType,omitempty"`
	Count         *int      `json:"count,omitempty"`
	WindowSeconds *int      `json:"windowSeconds,omitempty"`
}

// EngineStats are the engine-wide counters
type EngineStats struct {
	EventsObserved int64 `json:"eventsObserved"`
	RulesEvaluated int64 `json:"rulesEvaluated"`
	Matches        int64 `json:"matches"`
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusDegraded  = "degraded"
)

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthStatus `json:"components"`
	Metrics    map[string]any          `json:"metrics,omitempty"`
	Uptime     time.Duration           `json:"uptime"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// NowMillis returns the current wall clock in epoch milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
