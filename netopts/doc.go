// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package netopts applies the socket options spec.md §6 names: TCP
// NODELAY, a configurable listen backlog, and UDP SO_REUSEADDR plus
// broadcast. SO_REUSEADDR is set once, at the SOL_SOCKET level; no
// IPv4- or IPv6-level option is set.
//
// The Go standard library's net.ListenConfig lets a Control callback set
// socket options before bind, but it never exposes the listen() backlog
// argument itself — the runtime always passes its own default. Getting a
// real, caller-chosen backlog therefore means building the listening socket
// by hand with golang.org/x/sys/unix and handing the resulting file
// descriptor back to net.FileListener, the same low-level technique
// xtaci/tcpraw uses to get a raw socket past what net.Listen exposes.
package netopts

// DefaultBacklog is the listen backlog spec.md §6 specifies when the caller
// does not configure one.
const DefaultBacklog = 20

// DefaultMaxFrameSize is the maximum datagram payload spec.md §6 specifies.
const DefaultMaxFrameSize = 65535
