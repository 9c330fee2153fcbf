package action

import (
	"fmt"

	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/filetree"
)

/***************************************
 * Action execution request (§3)
 ***************************************/

// ActionInput stages one file or tree at path, relative to the working
// directory the executor materializes, before the subprocess spawns.
type ActionInput struct {
	Path   string
	DataID cas.DataID
	Type   filetree.FileType
}

// ActionOutput names one path the executor re-imports after the subprocess
// exits. Outputs listed as Unconditional in ActionExecutionRequest are
// imported whether or not the exit code is zero.
type ActionOutput struct {
	Path string
	Type filetree.FileType
}

type ActionExecutionRequest struct {
	Spec                 ActionSpec
	Inputs               []ActionInput
	Outputs              []ActionOutput
	UnconditionalOutputs []ActionOutput
	AdditionalData       [][]byte
	BaseLogsID           cas.DataID
}

/***************************************
 * Exit reason / exit code mapping (§4.4, §9)
 ***************************************/

type ExitKind int

const (
	EXIT_CODE ExitKind = iota
	EXIT_SIGNAL
)

// ExitReason is the tagged sum the spec asks for in place of exceptions:
// an action either exited with a code, or was terminated by a signal.
type ExitReason struct {
	Kind   ExitKind
	Code   int // valid when Kind==EXIT_CODE
	Signal int // valid when Kind==EXIT_SIGNAL
}

func ExitCode(code int) ExitReason   { return ExitReason{Kind: EXIT_CODE, Code: code} }
func ExitSignal(sig int) ExitReason  { return ExitReason{Kind: EXIT_SIGNAL, Signal: sig} }
func (r ExitReason) IsSuccess() bool { return r.Kind == EXIT_CODE && r.Code == 0 }

// ShellExitCode maps an ExitReason the way a POSIX shell would report it:
// shellExitCode(exit(N))=N, shellExitCode(signal(S))=128+S.
func (r ExitReason) ShellExitCode() int {
	if r.Kind == EXIT_SIGNAL {
		return 128 + r.Signal
	}
	return r.Code
}

func (r ExitReason) String() string {
	if r.Kind == EXIT_SIGNAL {
		return fmt.Sprintf("signal(%d)", r.Signal)
	}
	return fmt.Sprintf("exit(%d)", r.Code)
}

// ExecutionResult is the executor's outcome for one ActionExecutionRequest.
type ExecutionResult struct {
	ExitReason             ExitReason
	OutputTreeID           cas.DataID
	StandardInputWriteError error
}
