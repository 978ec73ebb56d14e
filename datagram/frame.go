// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datagram

import "net"

// Frame is one fully decoded inbound datagram, plus its metadata: spec.md's
// Frame type in §3.
type Frame[T any] struct {
	Payload T

	// Peer is the datagram's source address.
	Peer net.Addr

	// Flags is always 0 on frames produced by FrameChannel: its receive-loop
	// does not read the socket flags a receive completed with.
	Flags int

	// LocalIndex is this channel's receive-order sequence number, starting
	// at 0 and increasing by exactly 1 per received datagram regardless of
	// deserialize completion order.
	LocalIndex int64

	// OnDispose, if non-nil, returns payload-owned pooled resources. The
	// recipient must call it exactly once when done with Payload.
	OnDispose func()
}

// Dispose invokes f.OnDispose if set. Safe to call on a Frame whose
// OnDispose is nil.
func (f Frame[T]) Dispose() {
	if f.OnDispose != nil {
		f.OnDispose()
	}
}

// outboundFrame is one payload queued for the send-loop. Peer overrides the
// channel's default peer for this one datagram; nil uses the default.
type outboundFrame[T any] struct {
	payload T
	peer    net.Addr
	flags   int
}
