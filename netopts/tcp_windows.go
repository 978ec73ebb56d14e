// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package netopts

import "net"

// ListenTCP opens a TCP listener on address. Windows has no portable way to
// pass a caller-chosen listen backlog through the standard library, so
// backlog is accepted for API symmetry with the unix build and otherwise
// ignored; the runtime's own default backlog applies.
func ListenTCP(address string, backlog int) (*net.TCPListener, error) {
	_ = backlog
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	return net.ListenTCP("tcp", addr)
}

// ApplyTCPOptions enables NODELAY on conn. Non-TCP connections are left
// untouched.
func ApplyTCPOptions(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetNoDelay(true)
}
