// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package duplex provides the socket-to-pipe bridge underneath a
// high-performance duplex networking stack.
//
// Semantics and design:
//   - Pipe: a single-producer/single-consumer byte conduit (Pipe) backed by
//     a refcounted, segment-based buffer (SegmentBuffer), with backpressure
//     watermarks and cooperative wakeup of whichever side is waiting.
//   - Socket binding: package stream binds a byte-stream socket to a pair of
//     Pipes via a receive-loop and a send-loop. Package datagram binds a
//     UDP socket to a pair of bounded frame queues via a pluggable
//     marshaller.
//   - Scheduling: every suspension point resumes on an injectable Scheduler
//     (inline, the shared Go runtime pool, or a dedicated workerpool.Pool),
//     so the same Pipe runs inline in tests and pooled in production
//     without touching its core logic.
//
// This package does not implement TLS, HTTP framing, reliable-over-UDP
// semantics, or stream multiplexing; those are layered on top.
package duplex
