package domain

import (
	"encoding/json"
	"slices"
	"strings"
)

// signatureMatch mirrors MatchFilter with a fixed key order for the canonical encoding
type signatureMatch struct {
	PathIncludes []string `json:"pathIncludes,omitempty"`
	PathExcludes []string `json:"pathExcludes,omitempty"`
	Extensions   []string `json:"extensions,omitempty"`
	EventTypes   []string `json:"eventTypes,omitempty"`
}

type signature struct {
	Type          RuleType       `json:"type"`
	Match         signatureMatch `json:"match"`
	WindowSeconds *int           `json:"windowSeconds"`
	Count         *int           `json:"count"`
}

// RuleSignature returns the canonical encoding of a rule's matching semantics.
// Array order, case, surrounding whitespace and duplicates do not affect the result.
func RuleSignature(c CompiledRule) string {
	eventTypes := make([]string, len(c.Match.EventTypes))
	for i, t := range c.Match.EventTypes {
		eventTypes[i] = string(t)
	}

	sig := signature{
		Type: RuleType(strings.ToLower(strings.TrimSpace(string(c.Type)))),
		Match: signatureMatch{
			PathIncludes: canonicalSet(c.Match.PathIncludes),
			PathExcludes: canonicalSet(c.Match.PathExcludes),
			Extensions:   canonicalSet(c.Match.Extensions),
			EventTypes:   canonicalSet(eventTypes),
		},
		WindowSeconds: c.WindowSeconds,
		Count:         c.Count,
	}

	data, err := json.Marshal(sig)
	if err != nil {
		// Only plain strings and ints are encoded.
		panic(err)
	}
	return string(data)
}

// NormalizeCondition is the comparison key for natural-language conditions
func NormalizeCondition(condition string) string {
	return strings.ToLower(strings.TrimSpace(condition))
}

// canonicalSet lowercases, trims, dedupes and sorts values; empty input yields nil
func canonicalSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
