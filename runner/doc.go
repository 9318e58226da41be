// Package runner executes a resolved plan with structured concurrency.
//
// The main pieces are:
//   - Runner: walks the plan tree, emitting run/step/test/case events and
//     enforcing parallelization eligibility and per-test time limits
//   - scope execution: one concurrency scope per suite, awaiting every
//     child before the suite reports its own terminal event
//   - ExitSpawner: the boundary to isolated subprocess tests; the runner
//     only translates the observed exit status into issue vocabulary
//
// Cancellation is cooperative throughout: a time limit cancels the case's
// context, and the body is expected to observe it at suspension points.
package runner
