package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/traits"
	"github.com/planrun/planrun/types"
)

func noopBody(context.Context, types.Arguments) error { return nil }

func newTestBuilder(t *testing.T, cfg *events.Configuration) *Builder {
	t.Helper()
	if cfg == nil {
		cfg = events.NewConfiguration(func(events.Event) {})
	}
	b, err := NewBuilder(cfg, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	return b
}

func suite(id, parent types.TestID, order int, ts ...traits.Trait) types.Node {
	return types.Node{ID: id, Kind: types.KindSuite, Parent: parent, Order: order, Traits: ts}
}

func function(id, parent types.TestID, order int, ts ...traits.Trait) types.Node {
	return types.Node{ID: id, Kind: types.KindFunction, Parent: parent, Order: order, Traits: ts, Body: noopBody}
}

func planIDs(p *Plan) []types.TestID {
	var ids []types.TestID
	p.Walk(func(s *Step) { ids = append(ids, s.Node.ID) })
	return ids
}

func findStep(p *Plan, id types.TestID) *Step {
	var found *Step
	p.Walk(func(s *Step) {
		if s.Node.ID == id {
			found = s
		}
	})
	return found
}

func TestBuildPreOrderDeclarationOrder(t *testing.T) {
	b := newTestBuilder(t, nil)

	// Registration order deliberately scrambled; Order fields decide.
	nodes := []types.Node{
		function("root/b", "root", 3),
		suite("root", "", 0),
		function("root/a", "root", 1),
		suite("root/mid", "root", 2),
		function("root/mid/c", "root/mid", 4),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, []types.TestID{"root", "root/a", "root/mid", "root/mid/c", "root/b"}, planIDs(p))
	assert.Equal(t, 5, p.Len())
}

func TestBuildSkipPropagation(t *testing.T) {
	b := newTestBuilder(t, nil)

	childGateRan := false
	childGate := traits.Trait{Gate: func(context.Context, traits.GateContext) (traits.Verdict, error) {
		childGateRan = true
		return traits.Enabled(), nil
	}}

	nodes := []types.Node{
		suite("root", "", 0, traits.DisabledTrait("under maintenance")),
		function("root/a", "root", 1, childGate),
		suite("root/sub", "root", 2),
		function("root/sub/b", "root/sub", 3),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	for _, id := range []types.TestID{"root", "root/a", "root/sub", "root/sub/b"} {
		step := findStep(p, id)
		require.NotNil(t, step, "step %s", id)
		assert.Equal(t, ActionSkip, step.Action.Kind, "step %s", id)
		assert.Equal(t, "under maintenance", step.Action.SkipReason, "descendants inherit the ancestor's reason")
	}
	assert.False(t, childGateRan, "gates below a disabled ancestor must not be evaluated")
}

func TestBuildGateEvaluatedOncePerBuild(t *testing.T) {
	b := newTestBuilder(t, nil)

	evaluations := 0
	gate := traits.Trait{Gate: func(context.Context, traits.GateContext) (traits.Verdict, error) {
		evaluations++
		return traits.Enabled(), nil
	}}

	nodes := []types.Node{
		suite("root", "", 0, gate),
		function("root/a", "root", 1),
		function("root/b", "root", 2),
	}

	_, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, 1, evaluations, "an inherited gate runs on the declaring step only")

	// A second build evaluates afresh; verdicts are never cached.
	_, err = b.Build(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, 2, evaluations)
}

func TestBuildGatePanicBecomesIssueStep(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		function("boom", "", 0, traits.Trait{Gate: func(context.Context, traits.GateContext) (traits.Verdict, error) {
			panic("gate exploded")
		}}),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err, "a panicking gate must not abort the build")

	step := findStep(p, "boom")
	require.NotNil(t, step)
	assert.Equal(t, ActionRecordIssue, step.Action.Kind)
	require.NotNil(t, step.Action.Issue)
	assert.Equal(t, events.IssueAPIMisused, step.Action.Issue.Kind)
}

func TestBuildGateErrorBecomesSystemIssue(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		function("flaky-env", "", 0, traits.EnabledIf(func(context.Context) (bool, error) {
			return false, errors.New("probe unavailable")
		}, "unused")),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	step := findStep(p, "flaky-env")
	require.NotNil(t, step)
	assert.Equal(t, ActionRecordIssue, step.Action.Kind)
	assert.Equal(t, events.IssueSystem, step.Action.Issue.Kind)
}

func TestBuildDuplicateIdentity(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		function("dup", "", 0),
		function("dup", "", 1),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	assert.Equal(t, ActionRun, p.Steps[0].Action.Kind, "the first declaration is planned normally")
	assert.Equal(t, ActionRecordIssue, p.Steps[1].Action.Kind)
	assert.Equal(t, events.IssueAPIMisused, p.Steps[1].Action.Issue.Kind)
}

func TestBuildDuplicateIdentitySameOrder(t *testing.T) {
	b := newTestBuilder(t, nil)

	// External discovery sources may hand over nodes without assigning
	// orders; identity collisions must be caught regardless.
	nodes := []types.Node{
		function("dup", "", 0),
		function("dup", "", 0),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	var runs, issues int
	p.Walk(func(s *Step) {
		switch s.Action.Kind {
		case ActionRun:
			runs++
		case ActionRecordIssue:
			issues++
		}
	})
	assert.Equal(t, 1, runs, "exactly one declaration may be planned to run")
	assert.Equal(t, 1, issues)
}

func TestBuildDanglingParent(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		function("orphan", "ghost", 0),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, ActionRecordIssue, p.Steps[0].Action.Kind)
	assert.Equal(t, events.IssueSystem, p.Steps[0].Action.Issue.Kind)
}

func TestBuildFunctionParentIsNotASuite(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		function("leaf", "", 0),
		function("leaf/child", "leaf", 1),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	step := findStep(p, "leaf/child")
	require.NotNil(t, step)
	assert.Equal(t, ActionRecordIssue, step.Action.Kind)
}

func TestBuildNameFilterDropsStructurally(t *testing.T) {
	cfg := events.NewConfiguration(func(events.Event) {})
	cfg.Filter = events.Filter{Names: []string{"keep"}}
	b := newTestBuilder(t, cfg)

	nodes := []types.Node{
		suite("root", "", 0),
		function("root/keep", "root", 1),
		function("root/drop", "root", 2),
		suite("empty", "", 3),
		function("empty/drop", "empty", 4),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	// The unmatched suite survives only as the matched function's path;
	// suites with no surviving descendant vanish entirely, not as skips.
	assert.Equal(t, []types.TestID{"root", "root/keep"}, planIDs(p))
}

func TestBuildMatchedSuiteKeepsSubtree(t *testing.T) {
	cfg := events.NewConfiguration(func(events.Event) {})
	cfg.Filter = events.Filter{Names: []string{"root"}}
	b := newTestBuilder(t, cfg)

	nodes := []types.Node{
		suite("root", "", 0),
		function("root/a", "root", 1),
		suite("root/sub", "root", 2),
		function("root/sub/b", "root/sub", 3),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, []types.TestID{"root", "root/a", "root/sub", "root/sub/b"}, planIDs(p))
}

func TestBuildExcludedTagVetoesSubtree(t *testing.T) {
	cfg := events.NewConfiguration(func(events.Event) {})
	cfg.Filter = events.Filter{ExcludeTags: []traits.Tag{"flaky"}}
	b := newTestBuilder(t, cfg)

	nodes := []types.Node{
		suite("root", "", 0, traits.WithTags("flaky")),
		function("root/a", "root", 1),
		function("solo", "", 2),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, []types.TestID{"solo"}, planIDs(p))
}

func TestBuildIncludeTagsInheritedFromSuite(t *testing.T) {
	cfg := events.NewConfiguration(func(events.Event) {})
	cfg.Filter = events.Filter{IncludeTags: []traits.Tag{"nightly"}}
	b := newTestBuilder(t, cfg)

	nodes := []types.Node{
		suite("root", "", 0, traits.WithTags("nightly")),
		function("root/a", "root", 1),
		function("plain", "", 2),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, []types.TestID{"root", "root/a"}, planIDs(p))
}

func TestBuildEffectiveTimeLimitMerged(t *testing.T) {
	global := 100 * time.Millisecond
	cfg := events.NewConfiguration(func(events.Event) {})
	cfg.TimeLimit = &global
	b := newTestBuilder(t, cfg)

	nodes := []types.Node{
		suite("root", "", 0, traits.WithTimeLimit(50*time.Millisecond)),
		function("root/wide", "root", 1, traits.WithTimeLimit(200*time.Millisecond)),
		function("root/narrow", "root", 2, traits.WithTimeLimit(10*time.Millisecond)),
		function("unbounded-by-traits", "", 3),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	wide := findStep(p, "root/wide")
	require.NotNil(t, wide.TimeLimit)
	assert.Equal(t, 50*time.Millisecond, *wide.TimeLimit, "the suite's tighter limit caps the child")

	narrow := findStep(p, "root/narrow")
	require.NotNil(t, narrow.TimeLimit)
	assert.Equal(t, 10*time.Millisecond, *narrow.TimeLimit)

	plain := findStep(p, "unbounded-by-traits")
	require.NotNil(t, plain.TimeLimit)
	assert.Equal(t, global, *plain.TimeLimit, "the global ceiling applies when no trait bounds the node")
}

func TestBuildSerializationInherited(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		suite("root", "", 0, traits.Serialized()),
		function("root/a", "root", 1),
		function("free", "", 2),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	assert.True(t, findStep(p, "root").Serialized)
	assert.True(t, findStep(p, "root/a").Serialized)
	assert.False(t, findStep(p, "free").Serialized)
}

func TestBuildRecordIssueSuiteSkipsDescendants(t *testing.T) {
	b := newTestBuilder(t, nil)

	nodes := []types.Node{
		suite("root", "", 0, traits.Trait{Gate: func(context.Context, traits.GateContext) (traits.Verdict, error) {
			panic("bad suite gate")
		}}),
		function("root/a", "root", 1),
	}

	p, err := b.Build(context.Background(), nodes)
	require.NoError(t, err)

	assert.Equal(t, ActionRecordIssue, findStep(p, "root").Action.Kind)
	child := findStep(p, "root/a")
	require.NotNil(t, child)
	assert.Equal(t, ActionSkip, child.Action.Kind)
	assert.NotEmpty(t, child.Action.SkipReason)
}

func TestBuildEmptyCatalog(t *testing.T) {
	b := newTestBuilder(t, nil)
	p, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, p.Len())
	assert.Empty(t, p.Steps)
}
