package compiler

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// Reject reasons surfaced to callers
const (
	ReasonUnavailable     = "LLM unavailable"
	ReasonInvalidResponse = "Invalid response"
	ReasonInvalidJSON     = "Invalid JSON"
	ReasonInvalidType     = "Invalid rule type"
	ReasonEmptyCondition  = "Empty condition"
	ReasonRejected        = "Rejected by model"
)

// eventTypeSynonyms maps model vocabulary onto canonical event types
var eventTypeSynonyms = map[string]domain.EventType{
	"add": domain.EventCreated, "added": domain.EventCreated, "adds": domain.EventCreated,
	"create": domain.EventCreated, "created": domain.EventCreated, "creates": domain.EventCreated,
	"creation": domain.EventCreated, "new": domain.EventCreated,

	"change": domain.EventModified, "changed": domain.EventModified, "changes": domain.EventModified,
	"modify": domain.EventModified, "modified": domain.EventModified, "modifies": domain.EventModified,
	"modification": domain.EventModified, "update": domain.EventModified, "updated": domain.EventModified,
	"updates": domain.EventModified, "edit": domain.EventModified, "edited": domain.EventModified,
	"write": domain.EventModified, "written": domain.EventModified,

	"delete": domain.EventDeleted, "deleted": domain.EventDeleted, "deletes": domain.EventDeleted,
	"deletion": domain.EventDeleted, "remove": domain.EventDeleted, "removed": domain.EventDeleted,
	"removes": domain.EventDeleted, "unlink": domain.EventDeleted, "unlinked": domain.EventDeleted,
}

// ParseResponse turns raw model output into a compiled rule or a reject.
// No intent alignment happens here.
func ParseResponse(raw string) *domain.CompileResult {
	body, ok := extractObject(raw)
	if !ok {
		return domain.Rejected(ReasonInvalidResponse, "no JSON object found in model output", raw)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		if err := json.Unmarshal([]byte(repairJSON(body)), &obj); err != nil {
			return domain.Rejected(ReasonInvalidJSON, err.Error(), raw)
		}
	}

	if rej, ok := obj["reject"]; ok {
		reject := coerceReject(rej)
		return &domain.CompileResult{Reject: &reject, Raw: raw}
	}

	ruleType := domain.RuleType(strings.ToLower(strings.TrimSpace(asString(obj["type"]))))
	if ruleType != domain.RuleTypePattern && ruleType != domain.RuleTypeThreshold {
		return domain.Rejected(ReasonInvalidType, fmt.Sprintf("type %q is not pattern or threshold", asString(obj["type"])), raw)
	}

	rule := &domain.CompiledRule{Type: ruleType}
	if m, ok := obj["match"].(map[string]any); ok {
		rule.Match = normalizeMatch(m)
	}

	if ruleType == domain.RuleTypeThreshold {
		rule.WindowSeconds = coerceInt(obj["windowSeconds"])
		rule.Count = coerceInt(obj["count"])
	}

	return &domain.CompileResult{Rule: rule, Raw: raw}
}

func normalizeMatch(m map[string]any) domain.MatchFilter {
	filter := domain.MatchFilter{
		PathIncludes: stringList(m["pathIncludes"]),
		PathExcludes: stringList(m["pathExcludes"]),
	}

	for _, ext := range stringList(m["extensions"]) {
		ext = strings.TrimPrefix(ext, "*")
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		filter.Extensions = append(filter.Extensions, ext)
	}

	seen := make(map[domain.EventType]bool)
	for _, raw := range stringList(m["eventTypes"]) {
		et, ok := eventTypeSynonyms[strings.ToLower(raw)]
		if !ok || seen[et] {
			continue
		}
		seen[et] = true
		filter.EventTypes = append(filter.EventTypes, et)
	}

	return filter
}

// stringList keeps string entries only, trimmed and non-empty; nil when nothing survives
func stringList(v any) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		items = []any{t}
	default:
		return nil
	}

	var out []string
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// coerceInt accepts JSON numbers and numeric strings; anything else is nil
func coerceInt(v any) *int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

func coerceReject(v any) domain.CompileReject {
	reject := domain.CompileReject{}
	switch t := v.(type) {
	case map[string]any:
		reject.Reason = asString(t["reason"])
		reject.Details = asString(t["details"])
	default:
		reject.Reason = asString(t)
	}
	if strings.TrimSpace(reject.Reason) == "" {
		reject.Reason = ReasonRejected
	}
	return reject
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
