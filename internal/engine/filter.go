package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// matchesFilter reports whether event satisfies every constraint present in f.
// Excludes are checked first; path and extension comparisons ignore case.
func matchesFilter(f domain.MatchFilter, event domain.FileEvent) bool {
	path := strings.ToLower(event.Path)

	for _, fragment := range f.PathExcludes {
		if fragment != "" && strings.Contains(path, strings.ToLower(fragment)) {
			return false
		}
	}

	if len(f.PathIncludes) > 0 && !slices.ContainsFunc(f.PathIncludes, func(fragment string) bool {
		return strings.Contains(path, strings.ToLower(fragment))
	}) {
		return false
	}

	if len(f.Extensions) > 0 {
		ext := event.Extension()
		if ext == "" || !slices.ContainsFunc(f.Extensions, func(e string) bool {
			return strings.EqualFold(e, ext)
		}) {
			return false
		}
	}

	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type) {
		return false
	}

	return true
}

// describeFilter renders the constrained dimensions of f for threshold reasons
func describeFilter(f domain.MatchFilter) string {
	var parts []string
	if len(f.Extensions) > 0 {
		parts = append(parts, strings.Join(f.Extensions, "/")+" files")
	}
	if len(f.PathIncludes) > 0 {
		parts = append(parts, "in "+strings.Join(f.PathIncludes, ", "))
	}
	if len(f.EventTypes) > 0 {
		types := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			types[i] = string(t)
		}
		parts = append(parts, strings.Join(types, "/")+" events")
	}
	if len(parts) == 0 {
		return "events"
	}
	return strings.Join(parts, " and ")
}

func patternReason(event domain.FileEvent) string {
	return fmt.Sprintf("File %s was %s", event.Path, event.Type)
}

func thresholdReason(n int, f domain.MatchFilter, windowSeconds, count int) string {
	return fmt.Sprintf("%d %s in the last %ds (threshold: %d)", n, describeFilter(f), windowSeconds, count)
}
