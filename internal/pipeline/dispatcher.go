// Package pipeline pumps file events from the watcher through the rule
// engine and out to the notifiers.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/notify"
)

// DefaultNotifyTimeout bounds delivery of one match to one notifier
const DefaultNotifyTimeout = 15 * time.Second

// Evaluator is the part of the rule engine the dispatcher drives
type Evaluator interface {
	EvaluateEvent(ctx context.Context, event domain.FileEvent) []domain.RuleMatch
}

// Observer receives dispatch failures, typically for metrics
type Observer interface {
	ObservePanic()
	ObserveNotifyFailure(notifier string)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithObserver registers a failure observer
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithNotifyTimeout bounds each notifier call
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.notifyTimeout = timeout
		}
	}
}

// Stats are the dispatcher counters
type Stats struct {
	Processed      int64 `json:"processed"`
	Panics         int64 `json:"panics"`
	NotifyFailures int64 `json:"notifyFailures"`
}

// Dispatcher evaluates events one at a time in arrival order and hands every
// match to every notifier. A panic while handling one event is recovered and
// logged; the next event proceeds normally.
type Dispatcher struct {
	evaluator     Evaluator
	notifiers     []notify.Notifier
	notifyTimeout time.Duration
	observer      Observer
	logger        zerolog.Logger

	processed      atomic.Int64
	panics         atomic.Int64
	notifyFailures atomic.Int64
}

// New creates a dispatcher
func New(evaluator Evaluator, notifiers []notify.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		evaluator:     evaluator,
		notifiers:     notifiers,
		notifyTimeout: DefaultNotifyTimeout,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dispatches events until the channel is closed or ctx is done
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.FileEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				d.logger.Info().Int64("processed", d.processed.Load()).Msg("Event stream closed, dispatcher stopping")
				return nil
			}
			_, _ = d.Dispatch(ctx, event)
		}
	}
}

// Dispatch evaluates one event and notifies its matches. A recovered panic
// is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.FileEvent) (matches []domain.RuleMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			if d.observer != nil {
				d.observer.ObservePanic()
			}
			d.logger.Error().
				Str("path", event.Path).
				Str("event_type", string(event.Type)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic while processing file event")
			matches = nil
			err = domain.NewAppError(
				domain.ErrInternal,
				"Event processing failed",
				500,
				map[string]any{"path": event.Path, "panic": fmt.Sprint(r)},
			)
		}
	}()

	d.processed.Add(1)
	d.logger.Debug().Str("path", event.Path).Str("event_type", string(event.Type)).Msg("Dispatching file event")

	matches = d.evaluator.EvaluateEvent(ctx, event)
	for _, match := range matches {
		d.deliver(ctx, match)
	}
	return matches, nil
}

func (d *Dispatcher) deliver(ctx context.Context, match domain.RuleMatch) {
	for _, n := range d.notifiers {
		nctx, cancel := context.WithTimeout(ctx, d.notifyTimeout)
		err := n.Notify(nctx, match)
		cancel()
		if err == nil {
			continue
		}

		d.notifyFailures.Add(1)
		if d.observer != nil {
			d.observer.ObserveNotifyFailure(n.Name())
		}
		d.logger.Warn().
			Err(err).
			Str("notifier", n.Name()).
			Str("rule_id", match.RuleID).
			Msg("Failed to deliver match notification")
	}
}

// Stats returns the dispatcher counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Processed:      d.processed.Load(),
		Panics:         d.panics.Load(),
		NotifyFailures: d.notifyFailures.Load(),
	}
}
