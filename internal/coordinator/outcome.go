package coordinator

import "github.com/aatumaykin/playq/internal/strategy"

// Run result bits, shared with the strategy layer.
const (
	RunOK               = strategy.ResultOK
	RunError            = strategy.ResultError
	RunFailedHosts      = strategy.ResultFailedHosts
	RunUnreachableHosts = strategy.ResultUnreachableHosts
	RunFailedBreakPlay  = strategy.ResultFailedBreakPlay
	RunUnknownError     = strategy.ResultUnknownError
)

// PlayOutcome is the explicit result of one play: a combination of the Run*
// bits plus whether the play was ended early on request. Per-host failures
// are carried here as data, never as an error value.
type PlayOutcome struct {
	Code       int
	EndedEarly bool
}

// Failed reports whether the outcome carries any failure bit.
func (o PlayOutcome) Failed() bool {
	return o.Code != RunOK
}

// ExitCode converts an accumulated run code into an OS exit code. The
// break-play and unknown-error bits are internal bookkeeping and never
// escape to the operating system.
func ExitCode(code int) int {
	if code&RunUnknownError == RunUnknownError {
		return RunError
	}
	code &^= RunFailedBreakPlay
	return code
}
