// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !unix

package paconn

import "net"

// PeerCredentialsOf always reports no credentials on non-unix platforms:
// SO_PEERCRED has no portable equivalent here.
func PeerCredentialsOf(conn net.Conn) (PeerCredentials, bool) {
	return PeerCredentials{}, false
}
