package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/planrun/planrun/check"
	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/plan"
	"github.com/planrun/planrun/traits"
	"github.com/planrun/planrun/types"
)

// Config holds configuration for creating a new runner.
type Config struct {
	Plan   *plan.Plan
	Events *events.Configuration
	Log    log.Logger
	// ExitSpawner handles isolated subprocess tests. Optional; plans
	// without exit-test nodes never touch it.
	ExitSpawner ExitSpawner
}

// Runner executes one plan. Create a fresh runner per run invocation; the
// plan and configuration are consumed read-only.
type Runner struct {
	plan    *plan.Plan
	cfg     *events.Configuration
	log     log.Logger
	spawner ExitSpawner
	runID   string
	tracer  trace.Tracer
}

// NewRunner creates a runner for the given plan and configuration.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event configuration is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	runID := uuid.New().String()
	return &Runner{
		plan:    cfg.Plan,
		cfg:     cfg.Events,
		log:     cfg.Log.New("component", "runner", "run_id", runID),
		spawner: cfg.ExitSpawner,
		runID:   runID,
		tracer:  otel.Tracer("test runner"),
	}, nil
}

// RunID returns the identity of this run invocation.
func (r *Runner) RunID() string { return r.runID }

// Run executes every step of the plan and reports everything through the
// event pipeline. It always brackets the run with run-started and
// run-ended events, even when the plan is empty or the context is
// cancelled mid-run. The returned error reflects only the context state;
// test failures are events, not errors.
func (r *Runner) Run(ctx context.Context) error {
	// Register for fallback delivery so events posted from goroutines
	// that lost the configuration context are not dropped.
	deregister := events.Register(r.cfg)
	defer deregister()
	ctx = events.WithConfiguration(ctx, r.cfg)

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", r.runID))
	defer span.End()

	r.log.Info("Starting test run", "steps", r.plan.Len(), "parallel", r.cfg.Parallel, "maxWorkers", r.cfg.MaxWorkers)
	events.Post(ctx, events.Event{Kind: events.EventRunStarted})

	status := r.executeScope(ctx, r.plan.Steps)

	events.Post(ctx, events.Event{Kind: events.EventRunEnded, Status: status})
	r.log.Info("Test run completed", "status", status)
	return ctx.Err()
}

// executeScope runs a set of sibling steps as one structured-concurrency
// scope and returns their combined status. It returns only after every
// child has reported its terminal event; a suite never finishes before
// its children.
//
// Eligible siblings run concurrently, bounded by MaxWorkers. A serialized
// step first waits for every in-flight sibling, runs alone, and only then
// lets later siblings start, so declaration order is preserved around it.
func (r *Runner) executeScope(ctx context.Context, steps []*plan.Step) types.TestStatus {
	agg := newStatusAggregate()

	var wg sync.WaitGroup
	var sem chan struct{}
	if r.cfg.MaxWorkers > 0 {
		sem = make(chan struct{}, r.cfg.MaxWorkers)
	}

	for _, step := range steps {
		if r.cfg.Parallel && !step.Serialized {
			wg.Add(1)
			go func(s *plan.Step) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				agg.fold(r.executeStep(ctx, s))
			}(step)
			continue
		}
		wg.Wait()
		agg.fold(r.executeStep(ctx, step))
	}
	wg.Wait()
	return agg.status()
}

// executeStep drives one plan step through its state machine and returns
// its terminal status.
func (r *Runner) executeStep(ctx context.Context, step *plan.Step) types.TestStatus {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("step %s", step.Node.ID))
	defer span.End()

	events.Post(ctx, events.Event{Kind: events.EventPlanStepStarted, Test: step.Node.ID})
	defer events.Post(ctx, events.Event{Kind: events.EventPlanStepEnded, Test: step.Node.ID})

	switch step.Action.Kind {
	case plan.ActionSkip:
		events.Post(ctx, events.Event{
			Kind:       events.EventTestSkipped,
			Test:       step.Node.ID,
			SkipReason: step.Action.SkipReason,
		})
		// Descendants carry their own skip steps with the inherited
		// reason; none of them ever starts.
		for _, child := range step.Children {
			r.executeStep(ctx, child)
		}
		return types.TestStatusSkip

	case plan.ActionRecordIssue:
		events.Post(ctx, events.Event{
			Kind:  events.EventIssueRecorded,
			Test:  step.Node.ID,
			Issue: step.Action.Issue,
		})
		for _, child := range step.Children {
			r.executeStep(ctx, child)
		}
		// The node still reports a terminal state so summaries and
		// per-test metrics count it.
		events.Post(ctx, events.Event{
			Kind:   events.EventTestEnded,
			Test:   step.Node.ID,
			Status: types.TestStatusFail,
		})
		return types.TestStatusFail

	default:
		if step.Node.IsSuite() {
			return r.executeSuite(ctx, step)
		}
		return r.executeFunction(ctx, step)
	}
}

func (r *Runner) executeSuite(ctx context.Context, step *plan.Step) types.TestStatus {
	ctx = events.WithCurrentTest(ctx, step.Node.ID)
	events.Post(ctx, events.Event{Kind: events.EventTestStarted, Test: step.Node.ID})

	status := r.executeScope(ctx, step.Children)
	if len(step.Children) == 0 {
		status = types.TestStatusPass
	}

	events.Post(ctx, events.Event{Kind: events.EventTestEnded, Test: step.Node.ID, Status: status})
	return status
}

func (r *Runner) executeFunction(ctx context.Context, step *plan.Step) types.TestStatus {
	ctx = events.WithCurrentTest(ctx, step.Node.ID)
	events.Post(ctx, events.Event{Kind: events.EventTestStarted, Test: step.Node.ID})

	agg := newStatusAggregate()

	if step.Node.Exit != nil {
		agg.fold(r.runExitCase(ctx, step))
	} else if step.Node.Params == nil {
		c := &types.Case{Test: step.Node.ID, Index: 0}
		agg.fold(r.runCase(ctx, step, c, nil))
	} else if counted, ok := step.Node.Params.(types.Counted); ok && counted.Len() == 0 {
		// Sources that know their length surface emptiness without
		// starting iteration.
		check.RecordIssue(ctx, events.APIMisuseIssue(
			fmt.Sprintf("parameterized test %q has an empty parameter source", step.Node.ID)))
		agg.fold(types.TestStatusFail)
	} else {
		// Cases are produced lazily: the source may be expensive, and
		// only as many argument sets are materialized as get executed.
		g := new(errgroup.Group)
		if r.cfg.MaxWorkers > 0 {
			g.SetLimit(r.cfg.MaxWorkers)
		}
		concurrent := r.cfg.Parallel && !step.Serialized

		index := 0
		for args := range step.Node.Params.Cases() {
			c := &types.Case{
				Test:                 step.Node.ID,
				Index:                index,
				ArgumentsDescription: args.Describe(),
			}
			index++
			if concurrent {
				argsCopy := args
				g.Go(func() error {
					agg.fold(r.runCase(ctx, step, c, argsCopy))
					return nil
				})
				continue
			}
			agg.fold(r.runCase(ctx, step, c, args))
		}
		_ = g.Wait()

		if index == 0 {
			check.RecordIssue(ctx, events.APIMisuseIssue(
				fmt.Sprintf("parameterized test %q has an empty parameter source", step.Node.ID)))
			agg.fold(types.TestStatusFail)
		}
	}

	status := agg.status()
	events.Post(ctx, events.Event{Kind: events.EventTestEnded, Test: step.Node.ID, Status: status})
	return status
}

// runCase executes one concrete invocation: wrappers nested around the
// body, the effective time limit bounding it, failures funneled through
// the issue pipeline.
func (r *Runner) runCase(ctx context.Context, step *plan.Step, c *types.Case, args types.Arguments) types.TestStatus {
	tracker := &events.FailureTracker{}
	ctx = events.WithCurrentCase(ctx, c)
	ctx = events.WithFailureTracker(ctx, tracker)

	events.Post(ctx, events.Event{Kind: events.EventTestCaseStarted, Case: c})

	bodyCtx := ctx
	if step.TimeLimit != nil {
		var cancel context.CancelFunc
		bodyCtx, cancel = context.WithTimeout(ctx, *step.TimeLimit)
		defer cancel()
	}

	wrapped := traits.WrapAll(step.Traits, func(bctx context.Context) error {
		return step.Node.Body(bctx, args)
	})
	err := invokeBody(bodyCtx, wrapped)

	// Cancellation is cooperative: the deadline only counts when the body
	// came back with an error under it. A body that returns nil just as
	// the limit lapses completed in time.
	timedOut := step.TimeLimit != nil && err != nil && errors.Is(bodyCtx.Err(), context.DeadlineExceeded)
	switch {
	case timedOut:
		issue := events.TimeLimitIssue(*step.TimeLimit)
		check.RecordIssue(ctx, issue)
	case err == nil:
	case errors.Is(err, check.ErrRequirementFailed):
		// The failed requirement already recorded its issue; it aborts
		// only this case.
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Global run cancellation; not a body failure of its own.
		tracker.RecordFailure()
	default:
		check.RecordIssue(ctx, bodyIssue(err))
	}

	status := types.TestStatusPass
	switch {
	case timedOut:
		status = types.TestStatusTimeout
	case tracker.Failed():
		status = types.TestStatusFail
	}

	events.Post(ctx, events.Event{Kind: events.EventTestCaseEnded, Case: c, Status: status})
	return status
}

// errBodyPanicked tags errors recovered from a panicking test body.
var errBodyPanicked = errors.New("test body panicked")

// invokeBody calls the wrapped body, converting a panic into an error so a
// misbehaving test never unwinds the scheduler.
func invokeBody(ctx context.Context, body func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errBodyPanicked, rec)
		}
	}()
	return body(ctx)
}

// bodyIssue classifies a body failure as an error-caught issue.
func bodyIssue(err error) *events.Issue {
	issue := events.ErrorCaughtIssue(err)
	issue.Source = events.CaptureSource(2)
	return issue
}

// statusAggregate folds sibling statuses into one, safely from concurrent
// goroutines. An empty aggregate reads as skipped.
type statusAggregate struct {
	mu     sync.Mutex
	agg    types.TestStatus
	folded bool
}

func newStatusAggregate() *statusAggregate {
	return &statusAggregate{agg: types.TestStatusSkip}
}

func (a *statusAggregate) fold(s types.TestStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.folded {
		a.agg = s
		a.folded = true
		return
	}
	a.agg = types.CombineStatus(a.agg, s)
}

func (a *statusAggregate) status() types.TestStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agg
}
