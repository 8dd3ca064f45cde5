// SPDX-License-Identifier: GPL-3.0-or-later

//go:build unix

package paconn

import (
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// daemonSysProcAttr detaches the spawned daemon into its own session so it
// survives the spawning process exiting (§4.3).
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// waitForChild reaps cmd's process per §4.3's procedure: retry on EINTR,
// treat ESRCH as success (the child was already reaped out from under
// us), and otherwise require exit status 0.
func waitForChild(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		switch err {
		case unix.EINTR:
			continue
		case unix.ESRCH:
			return nil
		case unix.ECHILD:
			// No such child to wait for — e.g. something else reaped it
			// out from under us despite precondition (d). Fall back to a
			// liveness probe: ESRCH there means it is in fact gone.
			if killErr := unix.Kill(pid, 0); killErr == unix.ESRCH {
				return nil
			}
			return fmt.Errorf("wait4: %w", err)
		case nil:
		default:
			return fmt.Errorf("wait4: %w", err)
		}
		break
	}
	if ws.Exited() && ws.ExitStatus() == 0 {
		return nil
	}
	return fmt.Errorf("child exited with status %d", ws.ExitStatus())
}

// sigchldReapingDisabled reports whether SIGCHLD is set to SIG_IGN or
// SA_NOCLDWAIT, §4.3 precondition (d): either setting means the kernel
// reaps children automatically, making our own waitForChild raise ECHILD
// instead of observing the real exit status.
func sigchldReapingDisabled() bool {
	var act unix.Sigaction
	if err := unix.Sigaction(unix.SIGCHLD, nil, &act); err != nil {
		return false
	}
	if act.Handler == uintptr(unix.SIG_IGN) {
		return true
	}
	return act.Flags&unix.SA_NOCLDWAIT != 0
}
