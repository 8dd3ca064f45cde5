// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !unix

package paconn

// blockSIGPIPE is a no-op outside unix: SIGPIPE has no equivalent there.
func blockSIGPIPE() {}
