//go:build !unix

// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "os"

// statOwnerIsCaller always returns false on non-unix platforms: legacy
// per-user socket probing is a unix-only concern (§4.1, §6.4).
func statOwnerIsCaller(info os.FileInfo) bool {
	return false
}
