package compiler

import (
	"regexp"
	"strings"
)

// repairStep is one best-effort transform applied to malformed model JSON
type repairStep func(string) string

// repairPipeline runs in order; single quotes must be converted before bare
// keys are quoted so that 'key': values are not double-wrapped.
var repairPipeline = []repairStep{
	normalizeSmartQuotes,
	convertSingleQuotes,
	quoteBareKeys,
	stripTrailingCommas,
}

var (
	codeFence     = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][A-Za-z0-9_$-]*)(\s*:)`)

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
	)
)

// repairJSON applies every repair step
func repairJSON(s string) string {
	for _, step := range repairPipeline {
		s = step(s)
	}
	return s
}

// extractObject strips markdown fences and returns the outermost {...} span
func extractObject(raw string) (string, bool) {
	s := raw
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func normalizeSmartQuotes(s string) string {
	return smartQuotes.Replace(s)
}

// stripTrailingCommas drops commas directly before a closing brace or bracket
func stripTrailingCommas(s string) string {
	return outsideStrings(s, func(seg string) string {
		return trailingComma.ReplaceAllString(seg, "$1")
	})
}

// quoteBareKeys turns {type: "x"} into {"type": "x"}
func quoteBareKeys(s string) string {
	return outsideStrings(s, func(seg string) string {
		return bareKey.ReplaceAllString(seg, `$1"$2"$3`)
	})
}

// convertSingleQuotes rewrites 'text' string literals as "text", escaping
// embedded double quotes and unescaping \'.
func convertSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inDouble, inSingle, escaped := false, false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
			if inSingle && r == '\'' {
				// \' is not a valid JSON escape; drop the backslash written earlier
				str := b.String()
				b.Reset()
				b.WriteString(str[:len(str)-1])
			}
			b.WriteRune(r)
		case r == '\\' && (inDouble || inSingle):
			escaped = true
			b.WriteRune(r)
		case inDouble:
			if r == '"' {
				inDouble = false
			}
			b.WriteRune(r)
		case inSingle:
			switch r {
			case '\'':
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteRune(r)
			}
		case r == '"':
			inDouble = true
			b.WriteRune(r)
		case r == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// outsideStrings applies fn to every part of s that is not inside a
// double-quoted JSON string literal.
func outsideStrings(s string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(s))

	segStart := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				b.WriteString(s[segStart : i+1])
				segStart = i + 1
			}
			continue
		}
		if c == '"' {
			b.WriteString(fn(s[segStart:i]))
			segStart = i
			inString = true
		}
	}

	if inString {
		b.WriteString(s[segStart:])
	} else {
		b.WriteString(fn(s[segStart:]))
	}
	return b.String()
}
