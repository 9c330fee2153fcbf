//go:build linux

package action

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

/***************************************
 * Teardown sequence (§4.4 step 5, §9 "Teardown sequence")
 *
 * An ordered list of {signal, grace} steps applied to a cancelled or
 * deadline-exceeded subprocess, followed by an implicit terminal SIGKILL.
 * Between steps the executor waits up to Grace for the process to exit
 * before sending the next signal. Signals target the whole process group
 * (negative pid) so a child's own children are reaped too; this follows
 * the teacher's own Setpgid-on-spawn convention for the same reason
 * (internal/io's newProcessGroupSysProcAttr), and like that file, only a
 * linux variant is provided -- the teacher never shipped darwin/windows
 * process-group handling either.
 ***************************************/

type TeardownStep struct {
	Signal syscall.Signal
	Grace  time.Duration
}

// DefaultTeardownSequence asks nicely first (SIGTERM, 5s grace), then
// escalates to SIGINT before the executor's own implicit terminal SIGKILL.
func DefaultTeardownSequence() []TeardownStep {
	return []TeardownStep{
		{Signal: unix.SIGTERM, Grace: 5 * time.Second},
		{Signal: unix.SIGINT, Grace: 2 * time.Second},
	}
}

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}
}

// signalProcessGroup sends sig to the process group headed by pid. ESRCH
// (group already gone) is not an error: that's teardown succeeding.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if err == unix.ESRCH {
		return nil
	}
	return err
}

func killProcessGroup(pid int) error {
	return signalProcessGroup(pid, syscall.SIGKILL)
}
