// Package compiler turns natural-language alert conditions into structured
// rules using a language model, then corrects the model's output against the
// intent mechanically extracted from the same text.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/intent"
	"github.com/freewebtopdf/filesentry/internal/provider"
)

// Compile outcomes reported to the Observer
const (
	OutcomeCompiled    = "compiled"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeCached      = "cached"
)

// Observer receives one call per Compile
type Observer interface {
	ObserveCompile(outcome string, elapsed time.Duration)
}

// Compiler implements domain.RuleCompiler
type Compiler struct {
	generator provider.Generator
	extractor *intent.Extractor
	cache     domain.CompileCache
	observer  Observer
	logger    zerolog.Logger

	maxRetries int
	backoff    time.Duration
}

// Option configures a Compiler
type Option func(*Compiler)

// WithLogger sets the logger used for compile diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// WithCache memoizes successful compiles by normalized condition
func WithCache(cache domain.CompileCache) Option {
	return func(c *Compiler) { c.cache = cache }
}

// WithRetries sets how many times a failed model call is retried
func WithRetries(n int) Option {
	return func(c *Compiler) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the delay before the first retry; it doubles per attempt
func WithBackoff(d time.Duration) Option {
	return func(c *Compiler) { c.backoff = d }
}

// WithObserver reports compile outcomes, typically to metrics
func WithObserver(o Observer) Option {
	return func(c *Compiler) { c.observer = o }
}

// New creates a compiler backed by generator
func New(generator provider.Generator, opts ...Option) *Compiler {
	c := &Compiler{
		generator:  generator,
		extractor:  intent.NewExtractor(),
		logger:     zerolog.Nop(),
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile never returns an error: every failure is a reject with a reason
func (c *Compiler) Compile(ctx context.Context, condition string) *domain.CompileResult {
	start := time.Now()
	key := domain.NormalizeCondition(condition)

	if key == "" {
		c.observe(OutcomeRejected, start)
		return domain.Rejected(ReasonEmptyCondition, "condition must not be blank", "")
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug().Str("condition", condition).Msg("Compile cache hit")
			c.observe(OutcomeCached, start)
			return cached
		}
	}

	raw, err := c.generateWithRetry(ctx, buildPrompt(condition))
	if err != nil {
		c.logger.Warn().Err(err).Str("generator", c.generator.Name()).Msg("Model call failed")
		c.observe(OutcomeUnavailable, start)
		return domain.Rejected(ReasonUnavailable, err.Error(), "")
	}

	result := ParseResponse(raw)
	if result.Reject != nil {
		c.logger.Info().
			Str("reason", result.Reject.Reason).
			Str("details", result.Reject.Details).
			Msg("Condition rejected")
		c.observe(OutcomeRejected, start)
		return result
	}

	aligned := Align(*result.Rule, condition, c.extractor.Extract(condition))
	if domain.RuleSignature(aligned) != domain.RuleSignature(*result.Rule) {
		c.logger.Debug().
			Str("model", domain.RuleSignature(*result.Rule)).
			Str("aligned", domain.RuleSignature(aligned)).
			Msg("Aligned model output with condition intent")
	}
	result.Rule = &aligned

	if c.cache != nil {
		c.cache.Set(key, result)
	}

	c.observe(OutcomeCompiled, start)
	return result
}

// CheckHealth reports whether the model backend is reachable
func (c *Compiler) CheckHealth(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "Model backend is reachable",
		Details:   map[string]any{"generator": c.generator.Name()},
		Timestamp: time.Now(),
	}
	if !c.generator.CheckHealth(ctx) {
		// Existing rules keep evaluating without the model, only rule creation is affected
		status.Status = domain.HealthStatusDegraded
		status.Message = "Model backend is unavailable"
	}
	if c.cache != nil {
		status.Details["cache"] = c.cache.Stats()
	}
	return status
}

func (c *Compiler) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
		}

		raw, err := c.generator.Generate(ctx, prompt)
		if err == nil {
			if strings.TrimSpace(raw) != "" {
				return raw, nil
			}
			err = errors.New("empty response")
		}
		lastErr = err

		c.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Model call attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Compiler) observe(outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveCompile(outcome, time.Since(start))
	}
}
