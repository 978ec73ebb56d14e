// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package netopts

import "net"

// ListenUDP opens a UDP socket on address. Windows' net.ListenConfig.Control
// hook cannot reach SO_REUSEADDR/SO_BROADCAST through golang.org/x/sys/unix
// (that package is unix-only), so this build falls back to the standard
// library default, which already sets SO_REUSEADDR-equivalent behavior via
// its own internal socket setup.
func ListenUDP(address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}
