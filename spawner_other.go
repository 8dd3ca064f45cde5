// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !unix

package paconn

import (
	"os/exec"
	"syscall"
)

// daemonSysProcAttr has no detach-into-session equivalent outside unix.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// waitForChild has no waitpid/EINTR/ESRCH semantics to honor outside
// unix; it falls back to a plain Wait.
func waitForChild(cmd *exec.Cmd) error {
	return cmd.Wait()
}

// sigchldReapingDisabled: SIGCHLD disposition is a unix-only concept.
func sigchldReapingDisabled() bool {
	return false
}
