// Package validator performs static and intent-consistency checks on
// compiled rules before they are allowed into the rule store.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/intent"
)

// Threshold bounds accepted for compiled rules
const (
	MinWindowSeconds = 10
	MaxWindowSeconds = 86400
	MinCount         = 1
	MaxCount         = 1000
)

// FieldError describes one invalid field
type FieldError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}

// ValidationResult collects every problem found, not just the first
type ValidationResult struct {
	Valid  bool         `json:"valid" yaml:"valid"`
	Errors []FieldError `json:"errors" yaml:"errors"`
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends other's errors to r
func (r ValidationResult) Merge(other ValidationResult) ValidationResult {
	merged := ValidationResult{
		Valid:  r.Valid && other.Valid,
		Errors: append(append([]FieldError{}, r.Errors...), other.Errors...),
	}
	return merged
}

// AppError converts an invalid result to a 422 domain error; valid results return nil
func (r ValidationResult) AppError(message string) *domain.AppError {
	if r.Valid {
		return nil
	}
	return domain.NewAppError(domain.ErrValidationFailed, message, 422, map[string]any{"errors": r.Errors})
}

// RuleValidator validates compiled rules
type RuleValidator struct {
	extractor *intent.Extractor
}

// NewRuleValidator creates a validator backed by the default intent extractor
func NewRuleValidator() *RuleValidator {
	return &RuleValidator{extractor: intent.NewExtractor()}
}

// ValidateCompiledRule runs the static checks. A rule constrained by neither
// path fragments nor extensions is always rejected as too broad.
func (v *RuleValidator) ValidateCompiledRule(rule domain.CompiledRule) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []FieldError{}}

	switch rule.Type {
	case "":
		result.add("type", "type is required")
	case domain.RuleTypeThreshold:
		validateRange(&result, "windowSeconds", rule.WindowSeconds, MinWindowSeconds, MaxWindowSeconds)
		validateRange(&result, "count", rule.Count, MinCount, MaxCount)
	case domain.RuleTypePattern:
		if rule.WindowSeconds != nil || rule.Count != nil {
			result.add("type", "pattern rules cannot carry windowSeconds or count")
		}
	default:
		result.add("type", "type must be one of: pattern threshold (got %q)", rule.Type)
	}

	validateStrings(&result, "match.pathIncludes", rule.Match.PathIncludes)
	validateStrings(&result, "match.pathExcludes", rule.Match.PathExcludes)
	validateStrings(&result, "match.extensions", rule.Match.Extensions)

	for _, ext := range rule.Match.Extensions {
		if !strings.HasPrefix(ext, ".") {
			result.add("match.extensions", "extension %q must start with '.'", ext)
		}
	}

	for _, et := range rule.Match.EventTypes {
		if !et.Valid() {
			result.add("match.eventTypes", "event type %q must be one of: created modified deleted", et)
		}
	}

	if len(nonEmpty(rule.Match.PathIncludes)) == 0 && len(nonEmpty(rule.Match.Extensions)) == 0 {
		result.add("match", "rule is too broad: specify at least one path fragment or file extension")
	}

	return result
}

// ValidateWithIntent re-derives the intent of condition and reports every
// field where the compiled rule disagrees with what the text asked for.
func (v *RuleValidator) ValidateWithIntent(rule domain.CompiledRule, condition string) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []FieldError{}}
	want := v.extractor.Extract(condition)

	if want.HasThreshold() {
		if rule.Type != domain.RuleTypeThreshold {
			result.add("type", "condition describes %d events within %ds but rule is %q", *want.Count, *want.WindowSeconds, rule.Type)
		} else {
			if rule.Count == nil || *rule.Count != *want.Count {
				result.add("count", "condition asks for %d events, rule has %s", *want.Count, formatOptional(rule.Count))
			}
			if rule.WindowSeconds == nil || *rule.WindowSeconds != *want.WindowSeconds {
				result.add("windowSeconds", "condition asks for a %ds window, rule has %s", *want.WindowSeconds, formatOptional(rule.WindowSeconds))
			}
		}
	} else if rule.Type == domain.RuleTypeThreshold {
		result.add("type", "condition does not describe a count within a time window but rule is a threshold")
	}

	if len(want.EventTypes) > 0 {
		wantTypes := make([]string, len(want.EventTypes))
		for i, t := range want.EventTypes {
			wantTypes[i] = string(t)
		}
		gotTypes := make([]string, len(rule.Match.EventTypes))
		for i, t := range rule.Match.EventTypes {
			gotTypes[i] = string(t)
		}
		compareSets(&result, "match.eventTypes", wantTypes, gotTypes, equalFold)
	}

	compareSets(&result, "match.extensions", want.Extensions, rule.Match.Extensions, equalFold)
	compareSets(&result, "match.pathIncludes", want.PathIncludes, rule.Match.PathIncludes, containsEitherWay)

	return result
}

// compareSets reports missing and extra entries of got relative to want as a single error
func compareSets(result *ValidationResult, field string, want, got []string, same func(a, b string) bool) {
	var missing, extra []string
	for _, w := range want {
		if !slices.ContainsFunc(got, func(g string) bool { return same(w, g) }) {
			missing = append(missing, w)
		}
	}
	for _, g := range got {
		if !slices.ContainsFunc(want, func(w string) bool { return same(w, g) }) {
			extra = append(extra, g)
		}
	}

	switch {
	case len(missing) > 0 && len(extra) > 0:
		result.add(field, "missing %v and unexpected %v relative to the condition", missing, extra)
	case len(missing) > 0:
		result.add(field, "missing %v requested by the condition", missing)
	case len(extra) > 0:
		result.add(field, "unexpected %v not mentioned in the condition", extra)
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsEitherWay(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return a == b
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func validateRange(result *ValidationResult, field string, value *int, lo, hi int) {
	if value == nil {
		result.add(field, "%s is required for threshold rules", field)
		return
	}
	if *value < lo || *value > hi {
		result.add(field, "%s must be between %d and %d (got %d)", field, lo, hi, *value)
	}
}

func validateStrings(result *ValidationResult, field string, values []string) {
	for _, s := range values {
		if strings.TrimSpace(s) == "" {
			result.add(field, "%s must contain only non-empty strings", field)
			return
		}
	}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, s := range values {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatOptional(v *int) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *v)
}
