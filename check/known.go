package check

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/planrun/planrun/events"
)

// Matcher decides whether an issue is an instance of a known problem.
type Matcher func(*events.Issue) bool

// knownScope is one frame of the known-issue matcher chain. Scopes nest:
// an issue is tested against the innermost scope first, falling back
// outward, so nested known-issue blocks compose.
type knownScope struct {
	matcher      Matcher
	parent       *knownScope
	matched      atomic.Int64
	intermittent bool
}

type knownScopeKey struct{}

func scopeFromContext(ctx context.Context) *knownScope {
	s, _ := ctx.Value(knownScopeKey{}).(*knownScope)
	return s
}

// matchKnown walks the matcher chain innermost-first. The first matching
// scope marks the issue known and counts the match.
func matchKnown(ctx context.Context, issue *events.Issue) bool {
	for s := scopeFromContext(ctx); s != nil; s = s.parent {
		if s.matcher(issue) {
			if issue.MarkKnown() {
				s.matched.Add(1)
				return true
			}
			return issue.IsKnown()
		}
	}
	return false
}

// WithKnownIssue runs body with matcher pushed onto the known-issue chain.
// Issues recorded inside body that satisfy the matcher (or an enclosing
// scope's) are marked known and reported without failing the test. An
// error returned (or a panic raised) by body is matched the same way: a
// match records it as a known error-caught issue and absorbs it, anything
// else propagates untouched. If body completes without the matcher firing
// once, a known-issue-not-recorded issue is recorded: the problem was
// expected to occur and did not.
func WithKnownIssue(ctx context.Context, matcher Matcher, body func(context.Context) error) error {
	return runKnownScope(ctx, matcher, false, body)
}

// WithIntermittentKnownIssue is WithKnownIssue for problems that only
// happen sometimes: the scope completing without a match is not an issue.
func WithIntermittentKnownIssue(ctx context.Context, matcher Matcher, body func(context.Context) error) error {
	return runKnownScope(ctx, matcher, true, body)
}

func runKnownScope(ctx context.Context, matcher Matcher, intermittent bool, body func(context.Context) error) error {
	if matcher == nil {
		issue := events.APIMisuseIssue("known-issue scope requires a matcher")
		issue.Source = events.CaptureSource(2)
		RecordIssue(ctx, issue)
		return nil
	}

	scope := &knownScope{
		matcher:      matcher,
		parent:       scopeFromContext(ctx),
		intermittent: intermittent,
	}
	scopedCtx := context.WithValue(ctx, knownScopeKey{}, scope)

	err := runKnownBody(scopedCtx, scope, body)

	if scope.matched.Load() == 0 && !scope.intermittent && err == nil {
		issue := events.KnownIssueNotRecordedIssue()
		issue.Source = events.CaptureSource(2)
		// Recorded against the outer context: an enclosing scope may in
		// turn know about this miss.
		RecordIssue(ctx, issue)
	}
	return err
}

// runKnownBody invokes body, converting a returned error or panic into an
// error-caught issue when the chain matches it. Unmatched errors return to
// the caller; unmatched panics resume unwinding.
func runKnownBody(ctx context.Context, scope *knownScope, body func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			issue := events.ErrorCaughtIssue(fmt.Errorf("panic: %v", r))
			issue.Source = events.CaptureSource(2)
			if !RecordIssueIfKnown(ctx, issue) {
				panic(r)
			}
		}
	}()

	err = body(ctx)
	if err == nil {
		return nil
	}
	issue := events.ErrorCaughtIssue(err)
	issue.Source = events.CaptureSource(1)
	if RecordIssueIfKnown(ctx, issue) {
		return nil
	}
	return err
}

// RecordIssueIfKnown posts the issue only when the known-issue chain
// matches it; otherwise the issue is left unrecorded for an outer handler.
// It reports whether the issue was absorbed.
func RecordIssueIfKnown(ctx context.Context, issue *events.Issue) bool {
	if !matchKnown(ctx, issue) {
		return false
	}
	events.Post(ctx, events.Event{Kind: events.EventIssueRecorded, Issue: issue})
	return true
}
