package compiler

import (
	"regexp"
	"strings"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

var exclusionKeyword = regexp.MustCompile(`(?i)\b(exclud(?:e|es|ed|ing)|except|ignor(?:e|es|ed|ing))\b`)

// Align corrects a model-compiled rule against the intent derived from the
// condition text. Scope always comes from intent; the model only supplies
// structure. The input rule is not modified.
func Align(rule domain.CompiledRule, condition string, intent domain.RuleIntent) domain.CompiledRule {
	out := rule.Clone()

	switch {
	case intent.HasThreshold():
		out.Type = domain.RuleTypeThreshold
		out.Count = domain.IntPtr(*intent.Count)
		out.WindowSeconds = domain.IntPtr(*intent.WindowSeconds)
	case out.Type == domain.RuleTypeThreshold:
		out.Type = domain.RuleTypePattern
		out.Count = nil
		out.WindowSeconds = nil
	}

	if len(intent.EventTypes) > 0 {
		out.Match.EventTypes = append([]domain.EventType(nil), intent.EventTypes...)
	}

	if len(intent.Extensions) > 0 {
		out.Match.Extensions = append([]string(nil), intent.Extensions...)
	} else {
		out.Match.Extensions = nil
	}

	out.Match.PathIncludes = dedupeTrimmed(intent.PathIncludes)

	if !exclusionKeyword.MatchString(condition) {
		out.Match.PathExcludes = nil
	}

	return out
}

func dedupeTrimmed(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
