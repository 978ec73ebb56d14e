// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stream binds a byte-stream socket (TCP, Unix stream) to a pair of
// duplex.Pipe values via a receive-loop and a send-loop: spec.md's C5
// StreamConnection and C8 ClientListener.
//
// Both loops start lazily, on first access to their corresponding Pipe, and
// run for the lifetime of the underlying net.Conn. Socket errors are
// classified into duplex's sentinel error types and recorded, first-writer-
// wins, on a shared duplex.ShutdownState so the application can read back
// why a connection direction stopped.
package stream
