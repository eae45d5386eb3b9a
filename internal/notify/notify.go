// Package notify delivers fired rule matches to the outside world.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// Notifier delivers a single rule match
type Notifier interface {
	Notify(ctx context.Context, match domain.RuleMatch) error
	Name() string
}

// LogNotifier writes every match as a structured log line
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier logging through logger
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name returns the notifier name
func (n *LogNotifier) Name() string { return "log" }

// Notify logs the match at warn level so alerts stand out from routine output
func (n *LogNotifier) Notify(ctx context.Context, match domain.RuleMatch) error {
	event := n.logger.Warn().
		Str("rule_id", match.RuleID).
		Str("rule_name", match.RuleName).
		Str("rule_type", string(match.RuleType)).
		Str("path", match.Path).
		Str("event_type", string(match.EventType)).
		Int64("timestamp", match.Timestamp)
	if match.Count != nil {
		event = event.Int("count", *match.Count)
	}
	if match.WindowSeconds != nil {
		event = event.Int("window_seconds", *match.WindowSeconds)
	}
	event.Str("reason", match.Reason).Msg(match.Summary)
	return nil
}

// Multi fans a match out to several notifiers. Every notifier is tried;
// failures are joined.
type Multi []Notifier

// Name returns the notifier name
func (m Multi) Name() string { return "multi" }

// Notify delivers match to every notifier
func (m Multi) Notify(ctx context.Context, match domain.RuleMatch) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, match); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
