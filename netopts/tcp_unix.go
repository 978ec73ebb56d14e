// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package netopts

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// ListenTCP opens a TCP listener on address with the given listen backlog.
// backlog <= 0 selects DefaultBacklog.
func ListenTCP(address string, backlog int) (*net.TCPListener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}

	domain, sa := tcpSockaddr(tcpAddr)
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("netopts: socket: %w", err)
	}
	closeOnErr := func(err error) (*net.TCPListener, error) {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return closeOnErr(fmt.Errorf("netopts: SO_REUSEADDR: %w", err))
	}
	if err := unix.Bind(fd, sa); err != nil {
		return closeOnErr(fmt.Errorf("netopts: bind: %w", err))
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return closeOnErr(fmt.Errorf("netopts: listen: %w", err))
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return closeOnErr(fmt.Errorf("netopts: set nonblock: %w", err))
	}

	f := os.NewFile(uintptr(fd), "duplex-tcp-listener")
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("netopts: file listener: %w", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("netopts: unexpected listener type %T", ln)
	}
	return tcpLn, nil
}

func tcpSockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil && addr.IP.To16() != nil && len(ip4) == net.IPv4len {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		ip6 = net.IPv6zero
	}
	copy(sa.Addr[:], ip6)
	if addr.Zone != "" {
		if iface, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(iface.Index)
		}
	}
	return unix.AF_INET6, sa
}

// ApplyTCPOptions enables NODELAY on conn, matching spec.md §6's transport
// requirement. Non-TCP connections are left untouched.
func ApplyTCPOptions(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetNoDelay(true)
}
