//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"os"
	"syscall"
)

// statOwnerIsCaller reports whether info's owning uid matches the caller's.
func statOwnerIsCaller(info os.FileInfo) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return int(st.Uid) == os.Getuid()
}
