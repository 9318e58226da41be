package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/plan"
	"github.com/planrun/planrun/types"
)

type fakeSpawner struct {
	status types.ExitStatus
	err    error
	calls  []types.TestID
}

func (f *fakeSpawner) SpawnIsolated(_ context.Context, id types.TestID) (types.ExitStatus, error) {
	f.calls = append(f.calls, id)
	return f.status, f.err
}

func exitNode(id types.TestID, expected types.ExitStatus) types.Node {
	return types.Node{
		ID:   id,
		Kind: types.KindFunction,
		Body: func(context.Context, types.Arguments) error { return nil },
		Exit: &types.ExitCondition{Expected: expected},
	}
}

func runExitNodes(t *testing.T, spawner ExitSpawner, nodes []types.Node) *collector {
	t.Helper()
	col := &collector{}
	cfg := events.NewConfiguration(col.handle)
	cfg.Parallel = false

	logger := log.NewLogger(log.DiscardHandler())
	builder, err := plan.NewBuilder(cfg, logger)
	require.NoError(t, err)
	p, err := builder.Build(context.Background(), nodes)
	require.NoError(t, err)

	r, err := NewRunner(Config{Plan: p, Events: cfg, Log: logger, ExitSpawner: spawner})
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background()))
	return col
}

func TestExitCaseMatchingStatusPasses(t *testing.T) {
	spawner := &fakeSpawner{status: types.ExitStatus{Code: 3}}
	col := runExitNodes(t, spawner, []types.Node{exitNode("dies-with-3", types.ExitStatus{Code: 3})})

	assert.Equal(t, []types.TestID{"dies-with-3"}, spawner.calls)

	status, ok := col.testEndedStatus("dies-with-3")
	require.True(t, ok)
	assert.Equal(t, types.TestStatusPass, status)
	assert.Empty(t, col.byKind(events.EventIssueRecorded))
}

func TestExitCaseMismatchFails(t *testing.T) {
	spawner := &fakeSpawner{status: types.ExitStatus{Code: 0}}
	col := runExitNodes(t, spawner, []types.Node{exitNode("should-die", types.ExitStatus{Code: 1})})

	status, ok := col.testEndedStatus("should-die")
	require.True(t, ok)
	assert.Equal(t, types.TestStatusFail, status)

	issues := col.byKind(events.EventIssueRecorded)
	require.Len(t, issues, 1)
	require.Equal(t, events.IssueExpectationFailed, issues[0].Issue.Kind)
	assert.Contains(t, issues[0].Issue.Expectation.Expression, "exit code 1")
	assert.Contains(t, issues[0].Issue.Expectation.Mismatch, "exit code 0")
}

func TestExitCaseSpawnError(t *testing.T) {
	spawner := &fakeSpawner{err: errors.New("fork bomb shields up")}
	col := runExitNodes(t, spawner, []types.Node{exitNode("unspawnable", types.ExitStatus{})})

	status, ok := col.testEndedStatus("unspawnable")
	require.True(t, ok)
	assert.Equal(t, types.TestStatusFail, status)

	issues := col.byKind(events.EventIssueRecorded)
	require.Len(t, issues, 1)
	assert.Equal(t, events.IssueSystem, issues[0].Issue.Kind)
}

func TestExitCaseWithoutSpawner(t *testing.T) {
	col := runExitNodes(t, nil, []types.Node{exitNode("isolated", types.ExitStatus{})})

	status, ok := col.testEndedStatus("isolated")
	require.True(t, ok)
	assert.Equal(t, types.TestStatusFail, status)

	issues := col.byKind(events.EventIssueRecorded)
	require.Len(t, issues, 1)
	assert.Equal(t, events.IssueSystem, issues[0].Issue.Kind)
}

func TestRunIsolatedExecutesTargetBody(t *testing.T) {
	ran := false
	nodes := []types.Node{
		{ID: "target", Kind: types.KindFunction, Body: func(context.Context, types.Arguments) error {
			ran = true
			return nil
		}},
		{ID: "failing", Kind: types.KindFunction, Body: func(context.Context, types.Arguments) error {
			return errors.New("always fails")
		}},
	}

	assert.Equal(t, 0, RunIsolated(context.Background(), nodes, "target"))
	assert.True(t, ran)
	assert.Equal(t, 1, RunIsolated(context.Background(), nodes, "failing"))
	assert.Equal(t, 125, RunIsolated(context.Background(), nodes, "missing"))
}

func TestIsolatedTargetReadsEnvironment(t *testing.T) {
	_, ok := IsolatedTarget()
	assert.False(t, ok)

	t.Setenv(isolatedTestEnv, "suite/test")
	id, ok := IsolatedTarget()
	require.True(t, ok)
	assert.Equal(t, types.TestID("suite/test"), id)
}
