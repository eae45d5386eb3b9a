package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

const (
	defaultQueueDepth = 256
	maxDerivedName    = 60
)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSaveHook is called after every save attempt with its outcome
func WithSaveHook(hook func(err error, elapsed time.Duration)) Option {
	return func(s *Store) { s.saveHook = hook }
}

// WithClock overrides the epoch-millisecond clock used for timestamps
func WithClock(now func() int64) Option {
	return func(s *Store) { s.now = now }
}

// Store implements the RuleRepository interface with dual indexing.
// Memory is the source of truth; every mutation queues a full snapshot save.
type Store struct {
	mu       sync.RWMutex
	rules    map[string]*domain.Rule
	ruleList []*domain.Rule
	path     string
	closed   bool

	queue    *saveQueue
	saveHook func(error, time.Duration)
	logger   zerolog.Logger
	now      func() int64
}

// NewStore creates a store persisting to the JSON document at path
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		rules:    make(map[string]*domain.Rule),
		ruleList: make([]*domain.Rule, 0),
		path:     path,
		logger:   zerolog.Nop(),
		now:      domain.NowMillis,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = newSaveQueue(path, defaultQueueDepth, s.onSave)
	return s
}

// Path returns the rules file location
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory rules with the contents of the rules file
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return domain.NewAppErrorWithCause(
			domain.ErrTimeout,
			"Load cancelled",
			408,
			ctx.Err(),
			map[string]any{"operation": "load"},
		)
	default:
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to create data directory",
			500,
			err,
			map[string]any{"dir": filepath.Dir(s.path)},
		).WithContext(ctx, "load")
	}

	result, err := readDocument(s.path, time.UnixMilli(s.now()))
	if err != nil {
		return domain.NewAppErrorWithCause(
			domain.ErrInternal,
			"Failed to load rules file",
			500,
			err,
			map[string]any{"path": s.path},
		).WithContext(ctx, "load")
	}

	if result.corruptErr != nil {
		s.logger.Warn().
			Err(result.corruptErr).
			Str("path", s.path).
			Str("backup", result.backupPath).
			Msg("Rules file is corrupt, backed up and starting empty")
	}
	if result.dropped > 0 {
		s.logger.Warn().Int("dropped", result.dropped).Str("path", s.path).Msg("Dropped unsafe rule records")
	}

	s.rules = make(map[string]*domain.Rule, len(result.rules))
	s.ruleList = make([]*domain.Rule, 0, len(result.rules))
	for i := range result.rules {
		rule := result.rules[i]
		s.rules[rule.ID] = &rule
		s.ruleList = append(s.ruleList, &rule)
	}

	s.logger.Info().Int("rules", len(s.ruleList)).Str("path", s.path).Msg("Rules loaded")
	return nil
}

// GetAllRules returns copies of all rules in insertion order
func (s *Store) GetAllRules(ctx context.Context) ([]domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Rule, len(s.ruleList))
	for i, rule := range s.ruleList {
		result[i] = rule.Clone()
	}
	return result, nil
}

// GetRule retrieves a rule by its ID
func (s *Store) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, notFound(id)
	}

	ruleCopy := rule.Clone()
	return &ruleCopy, nil
}

// AddRule stores a new enabled rule built from input
func (s *Store) AddRule(ctx context.Context, input domain.RuleInput) (*domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, closedError(ctx, "add_rule")
	}

	compiled := input.Compiled.Clone()
	rule := &domain.Rule{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(input.Name),
		Description:       strings.TrimSpace(input.Description),
		Enabled:           true,
		CreatedAt:         s.now(),
		Type:              compiled.Type,
		Match:             compiled.Match,
		Action:            domain.ActionNotify,
		Source:            input.Source,
		OriginalCondition: strings.TrimSpace(input.Condition),
	}
	if rule.Type == domain.RuleTypeThreshold {
		rule.WindowSeconds = compiled.WindowSeconds
		rule.Count = compiled.Count
	}
	if rule.Source == "" {
		rule.Source = domain.SourceManual
	}
	if rule.Name == "" {
		rule.Name = deriveName(rule.OriginalCondition, rule.ID)
	}

	s.rules[rule.ID] = rule
	s.ruleList = append(s.ruleList, rule)
	s.saveLocked()

	s.logger.Info().
		Str("rule_id", rule.ID).
		Str("rule_type", string(rule.Type)).
		Str("source", string(rule.Source)).
		Msg("Rule added")

	ruleCopy := rule.Clone()
	return &ruleCopy, nil
}

// UpdateRule applies a name/description/enabled patch. A patch that changes
// nothing does not trigger a save.
func (s *Store) UpdateRule(ctx context.Context, id string, patch domain.RulePatch) (*domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, notFound(id)
	}
	if s.closed {
		return nil, closedError(ctx, "update_rule")
	}

	changed := false
	if patch.Name != nil {
		if name := strings.TrimSpace(*patch.Name); name != "" && name != rule.Name {
			rule.Name = name
			changed = true
		}
	}
	if patch.Description != nil {
		if desc := strings.TrimSpace(*patch.Description); desc != rule.Description {
			rule.Description = desc
			changed = true
		}
	}
	if patch.Enabled != nil && *patch.Enabled != rule.Enabled {
		rule.Enabled = *patch.Enabled
		changed = true
	}

	if changed {
		s.saveLocked()
		s.logger.Info().Str("rule_id", id).Bool("enabled", rule.Enabled).Msg("Rule updated")
	}

	ruleCopy := rule.Clone()
	return &ruleCopy, nil
}

// DeleteRule removes a rule from the repository
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return notFound(id)
	}
	if s.closed {
		return closedError(ctx, "delete_rule")
	}

	delete(s.rules, id)
	for i, r := range s.ruleList {
		if r.ID == id {
			s.ruleList = append(s.ruleList[:i], s.ruleList[i+1:]...)
			break
		}
	}
	s.saveLocked()

	s.logger.Info().Str("rule_id", id).Msg("Rule deleted")
	return nil
}

// RecordMatch bumps the match counter and last-matched time of a rule
func (s *Store) RecordMatch(ctx context.Context, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return notFound(id)
	}
	if s.closed {
		return closedError(ctx, "record_match")
	}

	rule.MatchCount++
	rule.LastMatched = &at
	s.saveLocked()
	return nil
}

// FindDuplicateRule returns the first rule whose normalized condition or
// canonical signature equals the candidate's, or nil.
func (s *Store) FindDuplicateRule(ctx context.Context, condition string, compiled domain.CompiledRule) (*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := domain.NormalizeCondition(condition)
	signature := domain.RuleSignature(compiled)

	for _, rule := range s.ruleList {
		sameCondition := normalized != "" && domain.NormalizeCondition(rule.OriginalCondition) == normalized
		if sameCondition || domain.RuleSignature(rule.Compiled()) == signature {
			ruleCopy := rule.Clone()
			return &ruleCopy, nil
		}
	}
	return nil, nil
}

// Flush waits for every queued save and returns the last save error
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return s.persistError(ctx, s.queue.stats().LastErr)
	}
	done, err := s.queue.barrier(ctx)
	s.mu.RUnlock()

	if err == nil {
		err = s.queue.wait(ctx, done)
	}
	return s.persistError(ctx, err)
}

// Close drains pending saves and stops the save worker. Later mutations fail.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.queue.stop(ctx); err != nil {
		return err
	}
	return s.queue.stats().LastErr
}

// HealthCheck performs a health check on the storage system
func (s *Store) HealthCheck(ctx context.Context) domain.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	qs := s.queue.stats()
	status := domain.HealthStatusHealthy
	message := "Storage is operating normally"
	details := map[string]any{
		"rule_count":    len(s.ruleList),
		"path":          s.path,
		"pending_saves": qs.Pending,
	}

	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		details["error"] = err.Error()
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Data directory is not accessible",
			Details:   details,
			Timestamp: now,
		}
	}

	if len(s.rules) != len(s.ruleList) {
		status = domain.HealthStatusUnhealthy
		message = "Data structure inconsistency detected"
		details["map_size"] = len(s.rules)
		details["list_size"] = len(s.ruleList)
	} else if qs.LastErr != nil {
		status = domain.HealthStatusDegraded
		message = "Last save failed, on-disk rules may lag memory"
		details["last_save_error"] = qs.LastErr.Error()
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}

// GetStats returns storage statistics
func (s *Store) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs := s.queue.stats()
	stats := map[string]any{
		"rule_count":      len(s.ruleList),
		"path":            s.path,
		"pending_saves":   qs.Pending,
		"completed_saves": qs.Completed,
		"failed_saves":    qs.Failed,
	}

	enabled := 0
	typeCount := make(map[string]int)
	sourceCount := make(map[string]int)
	for _, rule := range s.ruleList {
		if rule.Enabled {
			enabled++
		}
		typeCount[string(rule.Type)]++
		sourceCount[string(rule.Source)]++
	}
	stats["enabled_rules"] = enabled
	stats["rule_types"] = typeCount
	stats["rule_sources"] = sourceCount

	return stats
}

// saveLocked snapshots the rule list and queues it. Must hold s.mu.
func (s *Store) saveLocked() {
	snapshot := make([]domain.Rule, len(s.ruleList))
	for i, rule := range s.ruleList {
		snapshot[i] = rule.Clone()
	}

	data, err := encodeDocument(snapshot)
	if err != nil {
		// Only plain strings, ints and bools are encoded.
		s.logger.Error().Err(err).Msg("Failed to encode rules document")
		return
	}
	s.queue.enqueue(data)
}

func (s *Store) onSave(err error, elapsed time.Duration) {
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to save rules")
	} else {
		s.logger.Debug().Dur("elapsed", elapsed).Str("path", s.path).Msg("Rules saved")
	}
	if s.saveHook != nil {
		s.saveHook(err, elapsed)
	}
}

func deriveName(condition, id string) string {
	name := strings.Join(strings.Fields(condition), " ")
	if name == "" {
		return "Rule " + id[:8]
	}
	if utf8.RuneCountInString(name) > maxDerivedName {
		name = strings.TrimSpace(string([]rune(name)[:maxDerivedName]))
	}
	return name
}

func (s *Store) persistError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewAppErrorWithCause(
		domain.ErrPersistFailed,
		"Failed to persist rules",
		500,
		err,
		map[string]any{"path": s.path},
	).WithContext(ctx, "flush")
}

func notFound(id string) *domain.AppError {
	return domain.NewAppError(
		domain.ErrNotFound,
		"Rule not found",
		404,
		map[string]any{"id": id},
	)
}

func closedError(ctx context.Context, op string) *domain.AppError {
	return domain.NewAppError(
		domain.ErrPersistFailed,
		"Rule store is closed",
		503,
		nil,
	).WithContext(ctx, op)
}
