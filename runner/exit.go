package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/planrun/planrun/check"
	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/plan"
	"github.com/planrun/planrun/types"
)

// ExitSpawner runs one test in an isolated subprocess and reports how the
// process ended. How the process is spawned (argv construction, pipes) is
// the implementation's concern; the runner only consumes the exit status.
type ExitSpawner interface {
	SpawnIsolated(ctx context.Context, id types.TestID) (types.ExitStatus, error)
}

// runExitCase delegates an isolated test to the spawner and translates
// the observed exit status into the regular issue/event vocabulary.
func (r *Runner) runExitCase(ctx context.Context, step *plan.Step) types.TestStatus {
	tracker := &events.FailureTracker{}
	c := &types.Case{Test: step.Node.ID, Index: 0}
	ctx = events.WithCurrentCase(ctx, c)
	ctx = events.WithFailureTracker(ctx, tracker)

	events.Post(ctx, events.Event{Kind: events.EventTestCaseStarted, Case: c})

	spawnCtx := ctx
	if step.TimeLimit != nil {
		var cancel context.CancelFunc
		spawnCtx, cancel = context.WithTimeout(ctx, *step.TimeLimit)
		defer cancel()
	}

	expected := step.Node.Exit.Expected
	switch {
	case r.spawner == nil:
		issue := events.SystemIssue(fmt.Errorf("test %q requires isolated execution but no exit spawner is configured", step.Node.ID))
		check.RecordIssue(ctx, issue)
	default:
		observed, err := r.spawner.SpawnIsolated(spawnCtx, step.Node.ID)
		switch {
		case err != nil:
			check.RecordIssue(ctx, events.SystemIssue(fmt.Errorf("spawning isolated test %q: %w", step.Node.ID, err)))
		case observed != expected:
			exp := &events.Expectation{
				Expression: fmt.Sprintf("exit status == %s", expected),
				Mismatch:   fmt.Sprintf("observed %s", observed),
			}
			check.RecordIssue(ctx, events.ExpectationFailedIssue(exp))
		}
	}

	status := types.TestStatusPass
	if tracker.Failed() {
		status = types.TestStatusFail
	}
	events.Post(ctx, events.Event{Kind: events.EventTestCaseEnded, Case: c, Status: status})
	return status
}

// isolatedTestEnv names the test a re-executed child process must run.
const isolatedTestEnv = "PLANRUN_ISOLATED_TEST"

// ReexecSpawner runs isolated tests by re-executing the current binary
// with the target test named in the environment.
type ReexecSpawner struct {
	log log.Logger
}

// NewReexecSpawner creates a spawner that re-executes the current binary.
func NewReexecSpawner(logger log.Logger) *ReexecSpawner {
	if logger == nil {
		logger = log.Root()
	}
	return &ReexecSpawner{log: logger.New("component", "spawner")}
}

// SpawnIsolated runs the named test in a child process and reports how the
// process ended. The child's output is discarded; the exit status is the
// only channel back to the parent.
func (s *ReexecSpawner) SpawnIsolated(ctx context.Context, id types.TestID) (types.ExitStatus, error) {
	exe, err := os.Executable()
	if err != nil {
		return types.ExitStatus{}, fmt.Errorf("resolving current executable: %w", err)
	}

	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), isolatedTestEnv+"="+string(id))
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	s.log.Debug("Spawning isolated test", "test", id, "exe", exe)
	err = cmd.Run()
	if err == nil {
		return types.ExitStatus{}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return types.ExitStatus{}, fmt.Errorf("running isolated test %q: %w", id, err)
	}

	status := types.ExitStatus{Code: exitErr.ExitCode()}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status = types.ExitStatus{Signal: int(ws.Signal())}
	}
	return status, nil
}

// IsolatedTarget reports the test this process was re-executed to run,
// if any. Binaries embedding the runner check this before starting the
// regular service.
func IsolatedTarget() (types.TestID, bool) {
	v, ok := os.LookupEnv(isolatedTestEnv)
	return types.TestID(v), ok && v != ""
}

// RunIsolated executes the body of the named function node directly and
// returns the process exit code. Panics are not recovered; a crashing body
// surfaces to the parent as an abnormal exit, which is the point of
// isolated execution.
func RunIsolated(ctx context.Context, nodes []types.Node, id types.TestID) int {
	for _, node := range nodes {
		if node.ID != id || node.IsSuite() || node.Body == nil {
			continue
		}
		if err := node.Body(ctx, nil); err != nil {
			return 1
		}
		return 0
	}
	// Unknown target means the parent and child disagree about the
	// catalog, which the parent reports as a failed expectation.
	return 125
}
