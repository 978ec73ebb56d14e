// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package datagram binds a UDP (or other packet) socket to a pair of
// bounded, message-oriented queues via a pluggable Marshaller: spec.md's
// C6 FrameChannel, C9 marshaller registry, and the Frame type.
//
// A server FrameChannel deserializes inbound datagrams concurrently, one
// goroutine per datagram, bounded by a semaphore sized to the inbound queue
// capacity (spec.md §9's resolution of the unbounded-fan-out open
// question); a client FrameChannel deserializes strictly serially to
// preserve wire order.
package datagram
