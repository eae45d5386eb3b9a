package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

// fakeRepository is an in-memory RuleRepository for engine tests
type fakeRepository struct {
	mu        sync.Mutex
	rules     []domain.Rule
	recorded  []string
	readErr   error
	recordErr error
}

func (f *fakeRepository) GetAllRules(ctx context.Context) ([]domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]domain.Rule, len(f.rules))
	for i := range f.rules {
		out[i] = f.rules[i].Clone()
	}
	return out, nil
}

func (f *fakeRepository) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].ID == id {
			r := f.rules[i].Clone()
			return &r, nil
		}
	}
	return nil, domain.NewAppError(domain.ErrNotFound, "Rule not found", 404, nil)
}

func (f *fakeRepository) AddRule(ctx context.Context, input domain.RuleInput) (*domain.Rule, error) {
	return nil, errors.New("not supported")
}

func (f *fakeRepository) UpdateRule(ctx context.Context, id string, patch domain.RulePatch) (*domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].ID == id {
			if patch.Enabled != nil {
				f.rules[i].Enabled = *patch.Enabled
			}
			r := f.rules[i].Clone()
			return &r, nil
		}
	}
	return nil, domain.NewAppError(domain.ErrNotFound, "Rule not found", 404, nil)
}

func (f *fakeRepository) DeleteRule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return domain.NewAppError(domain.ErrNotFound, "Rule not found", 404, nil)
}

func (f *fakeRepository) RecordMatch(ctx context.Context, id string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, id)
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules[i].MatchCount++
			f.rules[i].LastMatched = &at
		}
	}
	return nil
}

func (f *fakeRepository) FindDuplicateRule(ctx context.Context, condition string, compiled domain.CompiledRule) (*domain.Rule, error) {
	return nil, nil
}

func (f *fakeRepository) HealthCheck(ctx context.Context) domain.HealthStatus {
	return domain.HealthStatus{Status: domain.HealthStatusHealthy, Timestamp: time.Now()}
}

func (f *fakeRepository) GetStats(ctx context.Context) map[string]any {
	return map[string]any{"rule_count": len(f.rules)}
}

func patternRule(id string, match domain.MatchFilter) domain.Rule {
	return domain.Rule{ID: id, Name: id, Enabled: true, Type: domain.RuleTypePattern, Match: match, Action: domain.ActionNotify}
}

func thresholdRule(id string, match domain.MatchFilter, window, count int) domain.Rule {
	r := patternRule(id, match)
	r.Type = domain.RuleTypeThreshold
	r.WindowSeconds = domain.IntPtr(window)
	r.Count = domain.IntPtr(count)
	return r
}

func event(t domain.EventType, path string, ts int64) domain.FileEvent {
	return domain.FileEvent{Type: t, Path: path, Timestamp: ts}
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter domain.MatchFilter
		event  domain.FileEvent
		want   bool
	}{
		{"empty filter matches anything", domain.MatchFilter{}, event(domain.EventDeleted, "a/b.c", 1), true},
		{"include substring", domain.MatchFilter{PathIncludes: []string{"src/"}}, event(domain.EventCreated, "pkg/src/a.go", 1), true},
		{"include case-insensitive", domain.MatchFilter{PathIncludes: []string{"SRC/"}}, event(domain.EventCreated, "src/a.go", 1), true},
		{"include miss", domain.MatchFilter{PathIncludes: []string{"src/"}}, event(domain.EventCreated, "lib/a.go", 1), false},
		{"any include suffices", domain.MatchFilter{PathIncludes: []string{"src/", "lib/"}}, event(domain.EventCreated, "lib/a.go", 1), true},
		{"exclude wins over include", domain.MatchFilter{PathIncludes: []string{"src/"}, PathExcludes: []string{"Vendor/"}}, event(domain.EventCreated, "src/vendor/a.go", 1), false},
		{"extension case-insensitive", domain.MatchFilter{Extensions: []string{".TS"}}, event(domain.EventModified, "src/App.ts", 1), true},
		{"extension miss", domain.MatchFilter{Extensions: []string{".ts"}}, event(domain.EventModified, "src/app.tsx", 1), false},
		{"no extension on path", domain.MatchFilter{Extensions: []string{".ts"}}, event(domain.EventModified, "Makefile", 1), false},
		{"event type miss", domain.MatchFilter{EventTypes: []domain.EventType{domain.EventCreated}}, event(domain.EventDeleted, "a.ts", 1), false},
		{"all constraints", domain.MatchFilter{PathIncludes: []string{"src/"}, Extensions: []string{".ts"}, EventTypes: []domain.EventType{domain.EventCreated}}, event(domain.EventCreated, "src/app.ts", 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesFilter(tt.filter, tt.event))
		})
	}
}

func TestEngine_PatternRule(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		patternRule("ts-created", domain.MatchFilter{
			PathIncludes: []string{"src/"},
			Extensions:   []string{".ts"},
			EventTypes:   []domain.EventType{domain.EventCreated},
		}),
	}}
	e := New(repo)
	ctx := context.Background()

	matches := e.EvaluateEvent(ctx, event(domain.EventCreated, "src/app.ts", 1000))
	require.Len(t, matches, 1)
	assert.Equal(t, "ts-created", matches[0].RuleID)
	assert.Equal(t, "File src/app.ts was created", matches[0].Reason)
	assert.Equal(t, domain.EventCreated, matches[0].EventType)
	assert.Equal(t, int64(1000), matches[0].Timestamp)

	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventModified, "src/app.ts", 2000)))
	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "lib/app.ts", 3000)))

	assert.Equal(t, []string{"ts-created"}, repo.recorded)
	assert.Equal(t, domain.EngineStats{EventsObserved: 3, RulesEvaluated: 3, Matches: 1}, e.GetStats())
}

func TestEngine_StoreOrderAndDisabledRules(t *testing.T) {
	disabled := patternRule("off", domain.MatchFilter{Extensions: []string{".go"}})
	disabled.Enabled = false
	repo := &fakeRepository{rules: []domain.Rule{
		patternRule("first", domain.MatchFilter{Extensions: []string{".go"}}),
		disabled,
		patternRule("second", domain.MatchFilter{PathIncludes: []string{"cmd/"}}),
	}}
	e := New(repo)

	matches := e.EvaluateEvent(context.Background(), event(domain.EventModified, "cmd/main.go", 5))
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].RuleID)
	assert.Equal(t, "second", matches[1].RuleID)
	assert.Equal(t, int64(2), e.GetStats().RulesEvaluated)
}

func TestEngine_ThresholdFiresAndResets(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		thresholdRule("burst", domain.MatchFilter{PathIncludes: []string{"logs/"}}, 60, 3),
	}}
	e := New(repo)
	ctx := context.Background()
	base := int64(1_000_000)

	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventModified, "logs/a.log", base)))
	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventModified, "logs/b.log", base+10_000)))
	assert.Equal(t, 2, e.WindowSize("burst"))

	matches := e.EvaluateEvent(ctx, event(domain.EventModified, "logs/c.log", base+20_000))
	require.Len(t, matches, 1)
	assert.Equal(t, "3 in logs/ in the last 60s (threshold: 3)", matches[0].Reason)
	assert.Equal(t, 3, *matches[0].Count)
	assert.Equal(t, 60, *matches[0].WindowSeconds)
	assert.Equal(t, 0, e.WindowSize("burst"), "window resets on fire")

	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventModified, "logs/d.log", base+21_000)))
	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventModified, "logs/e.log", base+22_000)))
	assert.Len(t, e.EvaluateEvent(ctx, event(domain.EventModified, "logs/f.log", base+23_000)), 1)
}

func TestEngine_ThresholdAgesOutOldEvents(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		thresholdRule("burst", domain.MatchFilter{Extensions: []string{".log"}}, 10, 2),
	}}
	e := New(repo)
	ctx := context.Background()
	base := int64(1_000_000)

	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "a.log", base)))
	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "b.log", base+10_001)), "first event is outside the window")
	assert.Equal(t, 1, e.WindowSize("burst"))

	matches := e.EvaluateEvent(ctx, event(domain.EventCreated, "c.log", base+20_001))
	require.Len(t, matches, 1, "an entry exactly windowSeconds old is retained")
	assert.Equal(t, "2 .log files in the last 10s (threshold: 2)", matches[0].Reason)
}

func TestEngine_ThresholdWindowWithClockStampedEvents(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		thresholdRule("burst", domain.MatchFilter{Extensions: []string{".log"}}, 10, 2),
	}}
	now := int64(5_000_000)
	e := New(repo, WithClock(func() int64 { return now }))
	ctx := context.Background()

	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "a.log", 0)))
	now += 10_001
	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "b.log", 0)), "clock-stamped entry ages out")
	assert.Equal(t, 1, e.WindowSize("burst"))

	now += 5_000
	matches := e.EvaluateEvent(ctx, event(domain.EventCreated, "c.log", 0))
	require.Len(t, matches, 1)
	assert.Equal(t, now, matches[0].Timestamp)
}

func TestDescribeFilter(t *testing.T) {
	assert.Equal(t, "events", describeFilter(domain.MatchFilter{}))
	assert.Equal(t, ".ts/.tsx files and in src/ and created/modified events", describeFilter(domain.MatchFilter{
		Extensions:   []string{".ts", ".tsx"},
		PathIncludes: []string{"src/"},
		PathExcludes: []string{"dist/"},
		EventTypes:   []domain.EventType{domain.EventCreated, domain.EventModified},
	}))
}

func TestEngine_DisableAndForgetClearWindows(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		thresholdRule("burst", domain.MatchFilter{Extensions: []string{".log"}}, 60, 3),
	}}
	e := New(repo)
	ctx := context.Background()

	e.EvaluateEvent(ctx, event(domain.EventCreated, "a.log", 1))
	e.EvaluateEvent(ctx, event(domain.EventCreated, "b.log", 2))
	require.Equal(t, 2, e.WindowSize("burst"))

	e.ForgetRule("burst")
	assert.Equal(t, 0, e.WindowSize("burst"))

	e.EvaluateEvent(ctx, event(domain.EventCreated, "c.log", 3))
	disabled := false
	_, err := repo.UpdateRule(ctx, "burst", domain.RulePatch{Enabled: &disabled})
	require.NoError(t, err)
	assert.Empty(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "d.log", 4)))
	assert.Equal(t, 0, e.WindowSize("burst"), "disabled rules drop their window")
}

func TestEngine_PruneWindows(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		thresholdRule("short", domain.MatchFilter{Extensions: []string{".log"}}, 10, 5),
		thresholdRule("long", domain.MatchFilter{Extensions: []string{".log"}}, 3600, 5),
		thresholdRule("gone", domain.MatchFilter{Extensions: []string{".log"}}, 3600, 5),
	}}
	e := New(repo)
	ctx := context.Background()

	e.EvaluateEvent(ctx, event(domain.EventCreated, "a.log", 1_000))
	require.NoError(t, repo.DeleteRule(ctx, "gone"))

	removed, err := e.PruneWindows(ctx, 60_000)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, e.WindowSize("short"))
	assert.Equal(t, 1, e.WindowSize("long"))
	assert.Equal(t, 0, e.WindowSize("gone"))

	repo.readErr = errors.New("boom")
	_, err = e.PruneWindows(ctx, 60_000)
	assert.Error(t, err)
}

func TestEngine_RecordFailureStillReturnsMatch(t *testing.T) {
	repo := &fakeRepository{
		rules:     []domain.Rule{patternRule("p", domain.MatchFilter{Extensions: []string{".go"}})},
		recordErr: errors.New("disk full"),
	}
	e := New(repo)

	matches := e.EvaluateEvent(context.Background(), event(domain.EventCreated, "main.go", 1))
	assert.Len(t, matches, 1)
	assert.Len(t, e.GetRecentMatches(0), 1)
}

func TestEngine_RepositoryErrorAndCancelledContext(t *testing.T) {
	repo := &fakeRepository{
		rules:   []domain.Rule{patternRule("p", domain.MatchFilter{})},
		readErr: errors.New("unreadable"),
	}
	e := New(repo)
	assert.Nil(t, e.EvaluateEvent(context.Background(), event(domain.EventCreated, "x", 1)))
	assert.Equal(t, domain.HealthStatusUnhealthy, e.HealthCheck(context.Background()).Status)

	repo.readErr = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, e.EvaluateEvent(ctx, event(domain.EventCreated, "x", 1)))
	assert.Zero(t, e.GetStats().EventsObserved)
	assert.Equal(t, domain.HealthStatusHealthy, e.HealthCheck(context.Background()).Status)
}

func TestEngine_MissingTimestampUsesClock(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{patternRule("p", domain.MatchFilter{})}}
	e := New(repo, WithClock(func() int64 { return 777 }))

	matches := e.EvaluateEvent(context.Background(), domain.FileEvent{Type: domain.EventDeleted, Path: "x"})
	require.Len(t, matches, 1)
	assert.Equal(t, int64(777), matches[0].Timestamp)
}

func TestEngine_RecentMatchesNewestFirst(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{patternRule("p", domain.MatchFilter{})}}
	e := New(repo, WithHistoryLimit(3))
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		e.EvaluateEvent(ctx, event(domain.EventModified, "f", i))
	}

	recent := e.GetRecentMatches(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{recent[0].Timestamp, recent[1].Timestamp, recent[2].Timestamp})
	assert.Len(t, e.GetRecentMatches(2), 2)
	assert.Len(t, e.GetRecentMatches(50), 3)
}

type recordingObserver struct {
	evaluations int
	matches     []domain.RuleMatch
}

func (o *recordingObserver) ObserveEvaluation(domain.FileEvent, int, time.Duration) { o.evaluations++ }
func (o *recordingObserver) ObserveMatch(m domain.RuleMatch)                        { o.matches = append(o.matches, m) }

func TestEngine_Observer(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{patternRule("p", domain.MatchFilter{Extensions: []string{".md"}})}}
	obs := &recordingObserver{}
	e := New(repo, WithObserver(obs))

	e.EvaluateEvent(context.Background(), event(domain.EventCreated, "README.md", 1))
	e.EvaluateEvent(context.Background(), event(domain.EventCreated, "main.go", 2))

	assert.Equal(t, 2, obs.evaluations)
	require.Len(t, obs.matches, 1)
	assert.Equal(t, "p", obs.matches[0].RuleID)
}

func TestEngine_ConcurrentEvaluation(t *testing.T) {
	repo := &fakeRepository{rules: []domain.Rule{
		thresholdRule("burst", domain.MatchFilter{Extensions: []string{".log"}}, 3600, 10),
	}}
	e := New(repo)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.EvaluateEvent(context.Background(), event(domain.EventCreated, "a.log", 1000))
			_ = e.GetRecentMatches(5)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), e.GetStats().EventsObserved)
	assert.Equal(t, int64(10), e.GetStats().Matches, "every tenth event fires")
	assert.Equal(t, 0, e.WindowSize("burst"))
}

func TestProperty_ThresholdFiresOnNthEventThenResets(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fires exactly on every count-th event inside the window", prop.ForAll(
		func(count int, events int) bool {
			repo := &fakeRepository{rules: []domain.Rule{
				thresholdRule("t", domain.MatchFilter{Extensions: []string{".ts"}}, 60, count),
			}}
			e := New(repo)
			ctx := context.Background()

			for i := 1; i <= events; i++ {
				matches := e.EvaluateEvent(ctx, event(domain.EventModified, "a.ts", int64(i)*10))
				shouldFire := i%count == 0
				if shouldFire != (len(matches) == 1) {
					return false
				}
				if shouldFire && *matches[0].Count != count {
					return false
				}
			}
			return e.GetStats().Matches == int64(events/count)
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 60),
	))

	properties.Property("non-matching events never touch the window", prop.ForAll(
		func(paths []string) bool {
			repo := &fakeRepository{rules: []domain.Rule{
				thresholdRule("t", domain.MatchFilter{Extensions: []string{".ts"}}, 60, 2),
			}}
			e := New(repo)
			for i, p := range paths {
				e.EvaluateEvent(context.Background(), event(domain.EventModified, p+".go", int64(i)))
			}
			return e.WindowSize("t") == 0 && e.GetStats().Matches == 0
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_HistoryIsBounded(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("history never exceeds its limit and keeps the newest", prop.ForAll(
		func(limit int, pushes int) bool {
			h := newHistory(limit)
			for i := 0; i < pushes; i++ {
				h.push(domain.RuleMatch{Timestamp: int64(i)})
			}

			recent := h.recent(0)
			want := min(limit, pushes)
			if len(recent) != want || h.len() != want {
				return false
			}
			for i, m := range recent {
				if m.Timestamp != int64(pushes-1-i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
