// SPDX-License-Identifier: GPL-3.0-or-later

//go:build unix

package paconn

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentialsOf returns the credentials of the process on the other
// end of conn, obtained via SO_PEERCRED on Linux unix domain sockets
// (§3 `do_shm` invariant conjunct (e), §4.6 "Credentials"). ok is false
// for any other transport.
func PeerCredentialsOf(conn net.Conn) (creds PeerCredentials, ok bool) {
	uc, isUnix := conn.(*net.UnixConn)
	if !isUnix {
		return PeerCredentials{}, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCredentials{}, false
	}
	var ucred *unix.Ucred
	ctrlErr := raw.Control(func(fd uintptr) {
		ucred, err = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil || err != nil || ucred == nil {
		return PeerCredentials{}, false
	}
	return PeerCredentials{UID: ucred.Uid, GID: ucred.Gid, PID: ucred.Pid}, true
}
