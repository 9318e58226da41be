// Package exitcodes defines the standard exit codes used by planrun.
package exitcodes

// Exit codes the application uses when it terminates:
//
// * Success (0): every executed test passed or was skipped
// * TestFailure (1): one or more tests failed
// * RuntimeErr (2): operational faults such as bad configuration or panics
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
