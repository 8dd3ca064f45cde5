// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "net"

// connLocalAddr returns the local address of conn, or "" if conn is nil.
//
// Replaces the teacher's dependency on a dedicated address-formatting
// helper package with a direct, trivially small helper.
func connLocalAddr(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.LocalAddr().String()
}

// connRemoteAddr returns the remote address of conn, or "" if conn is nil.
func connRemoteAddr(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}

// connNetwork returns the network of conn's local address, or "" if conn is nil.
func connNetwork(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.LocalAddr().Network()
}
