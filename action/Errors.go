package action

import (
	"fmt"

	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Action error taxonomy (§7)
 *
 * Grounded on the teacher's own unexported wrapping-struct idiom for build
 * errors (buildAbortError/buildExecuteError/buildDependencyError in the
 * original action execution code): a small struct with an Error() method,
 * constructed close to the failure site rather than formatted ad hoc.
 ***************************************/

// ActionSchedulingError reports that the executor could not even launch the
// subprocess (missing executable, invalid working directory, staging
// failure) -- distinct from a non-zero exit, which is ActionExecutionError.
type ActionSchedulingError struct {
	Cause error
}

func (e ActionSchedulingError) Error() string {
	return fmt.Sprintf("action: scheduling failed: %v", e.Cause)
}
func (e ActionSchedulingError) Unwrap() error { return e.Cause }

// ActionExecutionError reports a subprocess that ran but did not succeed
// (non-zero exit, signal, or cancellation teardown). StdoutID references the
// captured combined output in CAS so a caller can inspect it without the
// child having to still be alive; OutputTreeID is the tree reimported
// despite the failure, and UnconditionalOutputs echoes the request's
// declared unconditional outputs.
type ActionExecutionError struct {
	Reason               ExitReason
	StdoutID             cas.DataID
	OutputTreeID         cas.DataID
	UnconditionalOutputs []ActionOutput
	Diagnostics          string
}

func (e ActionExecutionError) Error() string {
	if e.Diagnostics != "" {
		return fmt.Sprintf("action: execution failed with %v (%s)", e.Reason, e.Diagnostics)
	}
	return fmt.Sprintf("action: execution failed with %v", e.Reason)
}

// StandardInputWriteError wraps a failure writing the in-memory stdin
// sequence to the child's pipe (§4.4 step 4).
type StandardInputWriteError struct {
	Cause error
}

func (e StandardInputWriteError) Error() string {
	return fmt.Sprintf("action: stdin write failed: %v", e.Cause)
}
func (e StandardInputWriteError) Unwrap() error { return e.Cause }
