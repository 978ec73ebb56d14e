// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package diag centralizes the structured log records package stream and
// package datagram emit for loop lifecycle and error-policy decisions: C10
// of the design. Every record goes through log/slog so callers configure
// verbosity and sinks the same way they do for the rest of their process.
package diag

import (
	"context"
	"log/slog"
)

// Logger is the narrow slog surface the connection loops need. *slog.Logger
// satisfies it directly; tests can substitute a recording fake.
type Logger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Default returns slog.Default(), used by every connection type whose
// caller did not supply a Logger.
func Default() Logger { return slog.Default() }

// LoopStarted logs the lazy activation of a receive or send loop.
func LoopStarted(ctx context.Context, l Logger, loop string, attrs ...any) {
	l.DebugContext(ctx, "duplex: loop started", append([]any{"loop", loop}, attrs...)...)
}

// LoopExited logs a receive or send loop's terminal shutdown classification.
func LoopExited(ctx context.Context, l Logger, loop string, kind, errAttr any) {
	l.DebugContext(ctx, "duplex: loop exited", "loop", loop, "shutdown_kind", kind, "err", errAttr)
}

// SocketError logs a socket error the error-policy table classified,
// distinguishing the ones deliberately swallowed from the ones surfaced.
func SocketError(ctx context.Context, l Logger, loop string, err error, swallowed bool) {
	if swallowed {
		l.DebugContext(ctx, "duplex: socket error swallowed", "loop", loop, "err", err)
		return
	}
	l.WarnContext(ctx, "duplex: socket error", "loop", loop, "err", err)
}

// MarshallerError logs a marshaller failure on a datagram send or receive
// path; the offending datagram is dropped and the loop keeps running.
func MarshallerError(ctx context.Context, l Logger, err error) {
	l.WarnContext(ctx, "duplex: marshaller error, dropping datagram", "err", err)
}

// ClientFaulted logs an on_client task that returned an error in
// ClientListener's accept loop.
func ClientFaulted(ctx context.Context, l Logger, remote string, err error) {
	l.ErrorContext(ctx, "duplex: client handler faulted", "remote", remote, "err", err)
}

// ServerFaulted logs an accept-loop-ending error that was not a clean
// dispose.
func ServerFaulted(ctx context.Context, l Logger, err error) {
	l.ErrorContext(ctx, "duplex: accept loop faulted", "err", err)
}
