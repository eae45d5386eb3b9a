package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// DocumentVersion is written into every saved rules file
const DocumentVersion = 1

// ruleDocument is the on-disk layout of the rules file
type ruleDocument struct {
	Version int           `json:"version"`
	Rules   []domain.Rule `json:"rules"`
}

// rawDocument defers rule decoding so bad records can be dropped one by one
type rawDocument struct {
	Version int               `json:"version"`
	Rules   []json.RawMessage `json:"rules"`
}

// loadResult describes what readDocument found
type loadResult struct {
	rules      []domain.Rule
	dropped    int
	backupPath string
	corruptErr error
}

func encodeDocument(rules []domain.Rule) ([]byte, error) {
	doc := ruleDocument{Version: DocumentVersion, Rules: rules}
	if doc.Rules == nil {
		doc.Rules = []domain.Rule{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules document: %w", err)
	}
	return append(data, '\n'), nil
}

// readDocument loads path. A missing file is an empty store. An unreadable or
// unparseable file is moved aside and also yields an empty store.
func readDocument(path string, now time.Time) (loadResult, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return loadResult{}, nil
	}

	var corrupt error
	var doc rawDocument
	switch {
	case err != nil:
		corrupt = err
	default:
		if uerr := json.Unmarshal(data, &doc); uerr != nil {
			corrupt = uerr
		}
	}

	if corrupt != nil {
		backup, berr := backupCorrupt(path, now)
		if berr != nil {
			return loadResult{}, fmt.Errorf("rules file is unreadable (%v) and could not be backed up: %w", corrupt, berr)
		}
		return loadResult{backupPath: backup, corruptErr: corrupt}, nil
	}

	result := loadResult{rules: make([]domain.Rule, 0, len(doc.Rules))}
	seen := make(map[string]bool, len(doc.Rules))
	for _, raw := range doc.Rules {
		rule, ok := decodeRule(raw)
		if !ok || seen[rule.ID] {
			result.dropped++
			continue
		}
		seen[rule.ID] = true
		result.rules = append(result.rules, rule)
	}
	return result, nil
}

func decodeRule(raw json.RawMessage) (domain.Rule, bool) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || !isRuleSafe(fields) {
		return domain.Rule{}, false
	}

	var rule domain.Rule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return domain.Rule{}, false
	}

	if rule.Action == "" {
		rule.Action = domain.ActionNotify
	}
	if rule.Source == "" {
		rule.Source = domain.SourceManual
	}
	if rule.MatchCount < 0 {
		rule.MatchCount = 0
	}
	if rule.Type == domain.RuleTypePattern {
		rule.WindowSeconds = nil
		rule.Count = nil
	}
	return rule, true
}

// isRuleSafe checks the shape of a persisted record before it is trusted
func isRuleSafe(fields map[string]any) bool {
	if fields == nil {
		return false
	}
	if id, ok := fields["id"].(string); !ok || id == "" {
		return false
	}
	if _, ok := fields["name"].(string); !ok {
		return false
	}
	if _, ok := fields["match"].(map[string]any); !ok {
		return false
	}

	switch domain.RuleType(asString(fields["type"])) {
	case domain.RuleTypePattern:
		return true
	case domain.RuleTypeThreshold:
		_, windowOK := fields["windowSeconds"].(float64)
		_, countOK := fields["count"].(float64)
		return windowOK && countOK
	default:
		return false
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// backupCorrupt moves an unreadable rules file aside with a timestamp suffix
func backupCorrupt(path string, now time.Time) (string, error) {
	backup := fmt.Sprintf("%s.corrupt-%s", path, now.Format("20060102T150405"))
	if err := os.Rename(path, backup); err == nil {
		return backup, nil
	}
	if err := copyFile(path, backup); err != nil {
		return "", err
	}
	return backup, nil
}
