// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"os"
	"sync"
)

// forkGuard is the process-wide fork-detection singleton of §5 "Fork
// safety" / §9 "Global process state": it records the pid observed at
// installation and lets every public API entry point cheaply detect
// whether the process has forked since.
type forkGuard struct {
	pid int
}

var (
	forkGuardOnce sync.Once
	forkGuardInst *forkGuard
)

// installForkGuard idempotently installs the process-wide fork guard
// (and, on unix, blocks SIGPIPE) the first time any [Context] is
// constructed, per §9 "implement once at first context construction with
// idempotent installation".
func installForkGuard() *forkGuard {
	forkGuardOnce.Do(func() {
		forkGuardInst = &forkGuard{pid: os.Getpid()}
		blockSIGPIPE()
	})
	return forkGuardInst
}

// forked reports whether the current pid differs from the pid observed at
// installation (§5 "Fork safety"): a public API entry point must refuse
// to act with [NewError] of [ErrForked] when this is true.
func (g *forkGuard) forked() bool {
	return os.Getpid() != g.pid
}
