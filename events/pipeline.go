package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/planrun/planrun/types"
)

type contextKey int

const (
	configurationKey contextKey = iota
	currentTestKey
	currentCaseKey
	failureTrackerKey
)

// registered holds every configuration with an in-flight run. It exists
// only as a delivery fallback: events posted without a contextually active
// configuration are broadcast here so they are never lost.
var registered = struct {
	sync.RWMutex
	configs map[*Configuration]struct{}
}{configs: make(map[*Configuration]struct{})}

// Register adds a configuration to the fallback delivery set for the
// duration of a run. The returned function removes it again.
func Register(cfg *Configuration) (deregister func()) {
	registered.Lock()
	registered.configs[cfg] = struct{}{}
	registered.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			registered.Lock()
			delete(registered.configs, cfg)
			registered.Unlock()
		})
	}
}

// WithConfiguration marks cfg as the contextually active configuration:
// events posted with the returned context are delivered to its handler
// alone.
func WithConfiguration(ctx context.Context, cfg *Configuration) context.Context {
	return context.WithValue(ctx, configurationKey, cfg)
}

// ConfigurationFromContext returns the contextually active configuration,
// or nil when none is.
func ConfigurationFromContext(ctx context.Context) *Configuration {
	cfg, _ := ctx.Value(configurationKey).(*Configuration)
	return cfg
}

// WithCurrentTest records the test a goroutine is executing. Concurrent
// siblings each carry their own value and never observe each other's.
func WithCurrentTest(ctx context.Context, id types.TestID) context.Context {
	return context.WithValue(ctx, currentTestKey, id)
}

// CurrentTest returns the test identity carried by the context, if any.
func CurrentTest(ctx context.Context) (types.TestID, bool) {
	id, ok := ctx.Value(currentTestKey).(types.TestID)
	return id, ok
}

// WithCurrentCase records the concrete invocation a goroutine is executing.
func WithCurrentCase(ctx context.Context, c *types.Case) context.Context {
	return context.WithValue(ctx, currentCaseKey, c)
}

// CurrentCase returns the case carried by the context, if any.
func CurrentCase(ctx context.Context) *types.Case {
	c, _ := ctx.Value(currentCaseKey).(*types.Case)
	return c
}

// FailureTracker counts failing issues recorded within one case so the
// scheduler can derive the case's terminal status. Increments may come
// from concurrent goroutines spawned by the body.
type FailureTracker struct {
	failures atomic.Int64
}

// RecordFailure notes one failing (non-known) issue.
func (t *FailureTracker) RecordFailure() {
	t.failures.Add(1)
}

// Failed reports whether any failing issue was recorded.
func (t *FailureTracker) Failed() bool {
	return t.failures.Load() > 0
}

// WithFailureTracker installs a per-case failure tracker.
func WithFailureTracker(ctx context.Context, t *FailureTracker) context.Context {
	return context.WithValue(ctx, failureTrackerKey, t)
}

// FailureTrackerFromContext returns the current failure tracker, or nil.
func FailureTrackerFromContext(ctx context.Context) *FailureTracker {
	t, _ := ctx.Value(failureTrackerKey).(*FailureTracker)
	return t
}

// Post delivers an event. Delivery goes to the contextually active
// configuration's handler; if none is active the event is broadcast to
// every registered configuration rather than dropped. Expectation-checked
// events are suppressed unless a configuration opts in; everything else is
// always delivered. Missing instants and test/case references are stamped
// from the clock and the context before delivery.
func Post(ctx context.Context, e Event) {
	if e.Instant.IsZero() {
		e.Instant = Now()
	}
	if e.Test == "" {
		if id, ok := CurrentTest(ctx); ok {
			e.Test = id
		}
	}
	if e.Case == nil {
		e.Case = CurrentCase(ctx)
	}
	if e.Issue != nil {
		e.Issue.seal()
	}

	if cfg := ConfigurationFromContext(ctx); cfg != nil {
		deliver(cfg, e)
		return
	}

	// Fallback of last resort: no configuration is active on this
	// goroutine, so broadcast instead of losing the event.
	registered.RLock()
	configs := make([]*Configuration, 0, len(registered.configs))
	for cfg := range registered.configs {
		configs = append(configs, cfg)
	}
	registered.RUnlock()
	for _, cfg := range configs {
		deliver(cfg, e)
	}
}

func deliver(cfg *Configuration, e Event) {
	if cfg.Handler == nil {
		return
	}
	if e.Kind == EventExpectationChecked && !cfg.DeliverExpectationCheckedEvents {
		return
	}
	cfg.Handler(e)
}
