package compiler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/filesentry/internal/cache"
	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/intent"
	"github.com/freewebtopdf/filesentry/internal/provider"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveCompile(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestParseResponse(t *testing.T) {
	t.Run("pattern rule", func(t *testing.T) {
		res := ParseResponse(`{"type":"Pattern","match":{"pathIncludes":[" src/ ", 3, ""],"extensions":["ts","*.tsx"],"eventTypes":["new","UPDATED","rename"]}}`)
		require.Nil(t, res.Reject)
		require.NotNil(t, res.Rule)
		assert.Equal(t, domain.RuleTypePattern, res.Rule.Type)
		assert.Equal(t, []string{"src/"}, res.Rule.Match.PathIncludes)
		assert.Equal(t, []string{".ts", ".tsx"}, res.Rule.Match.Extensions)
		assert.Equal(t, []domain.EventType{domain.EventCreated, domain.EventModified}, res.Rule.Match.EventTypes)
		assert.Nil(t, res.Rule.Count)
	})

	t.Run("unmapped event types omit the field", func(t *testing.T) {
		res := ParseResponse(`{"type":"pattern","match":{"extensions":[".go"],"eventTypes":["renamed","chmod"]}}`)
		require.NotNil(t, res.Rule)
		assert.Nil(t, res.Rule.Match.EventTypes)
	})

	t.Run("threshold numbers are coerced", func(t *testing.T) {
		res := ParseResponse(`{"type":"threshold","match":{"extensions":[".log"]},"windowSeconds":"60","count":3.0}`)
		require.NotNil(t, res.Rule)
		assert.Equal(t, 60, *res.Rule.WindowSeconds)
		assert.Equal(t, 3, *res.Rule.Count)
	})

	t.Run("non numeric threshold values become nil", func(t *testing.T) {
		res := ParseResponse(`{"type":"threshold","match":{"extensions":[".log"]},"windowSeconds":"soon","count":null}`)
		require.NotNil(t, res.Rule)
		assert.Nil(t, res.Rule.WindowSeconds)
		assert.Nil(t, res.Rule.Count)
	})

	t.Run("repairable output", func(t *testing.T) {
		res := ParseResponse("```json\n{type: 'pattern', match: {extensions: ['.md',],},}\n```")
		require.NotNil(t, res.Rule)
		assert.Equal(t, []string{".md"}, res.Rule.Match.Extensions)
	})

	t.Run("rejects", func(t *testing.T) {
		tests := []struct {
			raw    string
			reason string
		}{
			{"no json here", ReasonInvalidResponse},
			{`{"type": pattern oops}`, ReasonInvalidJSON},
			{`{"type":"burst","match":{}}`, ReasonInvalidType},
			{`{"match":{}}`, ReasonInvalidType},
			{`{"reject":{"reason":"Not about files","details":"weather"}}`, "Not about files"},
			{`{"reject":"too vague"}`, "too vague"},
			{`{"reject":{}}`, ReasonRejected},
		}
		for _, tt := range tests {
			res := ParseResponse(tt.raw)
			require.NotNil(t, res.Reject, tt.raw)
			assert.Nil(t, res.Rule, tt.raw)
			assert.Equal(t, tt.reason, res.Reject.Reason, tt.raw)
			assert.Equal(t, tt.raw, res.Raw)
		}
	})

	t.Run("model reject keeps details", func(t *testing.T) {
		res := ParseResponse(`{"reject":{"reason":"Not about files","details":42}}`)
		assert.Equal(t, "42", res.Reject.Details)
	})
}

func TestAlign(t *testing.T) {
	t.Run("intent threshold overrides model pattern", func(t *testing.T) {
		cond := "If 3 or more files under __tests__/ are changed within 5 minutes"
		model := domain.CompiledRule{
			Type:  domain.RuleTypePattern,
			Match: domain.MatchFilter{PathIncludes: []string{"tests"}, Extensions: []string{".js"}, EventTypes: []domain.EventType{domain.EventDeleted}},
		}

		got := Align(model, cond, intent.Extract(cond))

		assert.Equal(t, domain.RuleTypeThreshold, got.Type)
		assert.Equal(t, 3, *got.Count)
		assert.Equal(t, 300, *got.WindowSeconds)
		assert.Equal(t, []string{"__tests__/"}, got.Match.PathIncludes)
		assert.Nil(t, got.Match.Extensions, "hallucinated extensions are stripped")
		assert.Equal(t, []domain.EventType{domain.EventCreated, domain.EventModified}, got.Match.EventTypes)
		assert.Equal(t, domain.RuleTypePattern, model.Type, "input is not mutated")
	})

	t.Run("model threshold downgraded without intent", func(t *testing.T) {
		cond := "Alert when TypeScript files change"
		model := domain.CompiledRule{
			Type:          domain.RuleTypeThreshold,
			Match:         domain.MatchFilter{Extensions: []string{".ts"}},
			WindowSeconds: domain.IntPtr(60),
			Count:         domain.IntPtr(2),
		}

		got := Align(model, cond, intent.Extract(cond))

		assert.Equal(t, domain.RuleTypePattern, got.Type)
		assert.Nil(t, got.Count)
		assert.Nil(t, got.WindowSeconds)
		assert.Equal(t, []string{".ts", ".tsx"}, got.Match.Extensions)
	})

	t.Run("model event types kept when intent has none", func(t *testing.T) {
		cond := "markdown files under docs/"
		model := domain.CompiledRule{
			Type:  domain.RuleTypePattern,
			Match: domain.MatchFilter{EventTypes: []domain.EventType{domain.EventModified}},
		}

		got := Align(model, cond, intent.Extract(cond))
		assert.Equal(t, []domain.EventType{domain.EventModified}, got.Match.EventTypes)
		assert.Equal(t, []string{"docs/"}, got.Match.PathIncludes)
	})

	t.Run("pathExcludes need an exclusion keyword", func(t *testing.T) {
		model := domain.CompiledRule{
			Type:  domain.RuleTypePattern,
			Match: domain.MatchFilter{PathExcludes: []string{"src/vendor/"}},
		}

		stripped := Align(model, "go files in src/ deleted", intent.Extract("go files in src/ deleted"))
		assert.Nil(t, stripped.Match.PathExcludes)

		cond := "go files in src/ deleted, ignoring vendor"
		kept := Align(model, cond, intent.Extract(cond))
		assert.Equal(t, []string{"src/vendor/"}, kept.Match.PathExcludes)
	})
}

func TestCompile(t *testing.T) {
	const cond = "Alert when TypeScript files change"

	t.Run("compiles and aligns", func(t *testing.T) {
		mock := provider.NewMockProviderSimple(`{"type":"pattern","match":{"extensions":[".ts"],"pathIncludes":["src/"],"eventTypes":["deleted"]}}`)
		obs := &recordingObserver{}
		c := New(mock, WithObserver(obs))

		res := c.Compile(context.Background(), cond)

		require.Nil(t, res.Reject)
		assert.Equal(t, []string{".ts", ".tsx"}, res.Rule.Match.Extensions)
		assert.Nil(t, res.Rule.Match.PathIncludes)
		assert.Equal(t, []domain.EventType{domain.EventCreated, domain.EventModified}, res.Rule.Match.EventTypes)
		assert.NotEmpty(t, res.Raw)
		assert.Contains(t, mock.Prompts()[0], "Condition: "+cond)
		assert.Equal(t, []string{OutcomeCompiled}, obs.outcomes)
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		mock := provider.NewMockProvider(
			[]string{"", "", `{"type":"pattern","match":{"extensions":[".ts"]}}`},
			[]error{errors.New("connection refused"), errors.New("connection refused"), nil},
		)
		c := New(mock, WithBackoff(time.Millisecond))

		res := c.Compile(context.Background(), cond)

		require.Nil(t, res.Reject)
		assert.Equal(t, 3, mock.CallCount())
	})

	t.Run("unavailable after retry budget", func(t *testing.T) {
		boom := errors.New("connection refused")
		mock := provider.NewMockProvider([]string{"", "", "", ""}, []error{boom, boom, boom, boom})
		obs := &recordingObserver{}
		c := New(mock, WithBackoff(time.Millisecond), WithObserver(obs))

		res := c.Compile(context.Background(), cond)

		require.NotNil(t, res.Reject)
		assert.Equal(t, ReasonUnavailable, res.Reject.Reason)
		assert.Equal(t, 3, mock.CallCount(), "one call plus two retries")
		assert.Equal(t, []string{OutcomeUnavailable}, obs.outcomes)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		boom := errors.New("connection refused")
		mock := provider.NewMockProvider([]string{"", "", ""}, []error{boom, boom, boom})
		c := New(mock, WithBackoff(time.Hour))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := c.Compile(ctx, cond)

		require.NotNil(t, res.Reject)
		assert.Equal(t, ReasonUnavailable, res.Reject.Reason)
		assert.Equal(t, 1, mock.CallCount())
	})

	t.Run("model reject is not retried or cached", func(t *testing.T) {
		mock := provider.NewMockProvider(
			[]string{`{"reject":{"reason":"Not a file rule"}}`, `{"reject":{"reason":"Not a file rule"}}`},
			[]error{nil, nil},
		)
		lru := cache.NewLRUCache(8)
		c := New(mock, WithCache(lru))

		first := c.Compile(context.Background(), "what's the weather")
		second := c.Compile(context.Background(), "what's the weather")

		assert.Equal(t, "Not a file rule", first.Reject.Reason)
		assert.Equal(t, "Not a file rule", second.Reject.Reason)
		assert.Equal(t, 2, mock.CallCount())
		assert.Equal(t, 0, lru.Stats().Size)
	})

	t.Run("successful results are cached by normalized condition", func(t *testing.T) {
		mock := provider.NewMockProviderSimple(`{"type":"pattern","match":{"extensions":[".ts"]}}`)
		obs := &recordingObserver{}
		c := New(mock, WithCache(cache.NewLRUCache(8)), WithObserver(obs))

		first := c.Compile(context.Background(), cond)
		second := c.Compile(context.Background(), "  alert when typescript FILES change ")

		require.NotNil(t, second.Rule)
		assert.Equal(t, first.Rule, second.Rule)
		assert.Equal(t, 1, mock.CallCount())
		assert.Equal(t, []string{OutcomeCompiled, OutcomeCached}, obs.outcomes)
	})

	t.Run("blank condition", func(t *testing.T) {
		mock := provider.NewMockProviderSimple("{}")
		res := New(mock).Compile(context.Background(), "   ")
		assert.Equal(t, ReasonEmptyCondition, res.Reject.Reason)
		assert.Zero(t, mock.CallCount())
	})
}

func TestCompiler_CheckHealth(t *testing.T) {
	mock := provider.NewMockProviderSimple("{}")
	c := New(mock, WithCache(cache.NewLRUCache(8)))

	assert.Equal(t, domain.HealthStatusHealthy, c.CheckHealth(context.Background()).Status)

	mock.SetHealthy(false)
	health := c.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusDegraded, health.Status)
	assert.Equal(t, "mock", health.Details["generator"])
}
