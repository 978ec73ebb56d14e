// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import "sync/atomic"

// ShutdownKind classifies why a connection direction closed. The zero value,
// ShutdownNone, means the connection is still running.
type ShutdownKind uint32

const (
	ShutdownNone ShutdownKind = iota
	ShutdownReadEOF
	ShutdownWriteEOF
	ShutdownReadSocketError
	ShutdownWriteSocketError
	ShutdownReadFlushCompleted
	ShutdownReadFlushCanceled
	ShutdownReadDisposed
	ShutdownWriteDisposed
	ShutdownReadIOError
	ShutdownWriteIOError
	ShutdownReadOtherError
	ShutdownWriteOtherError
)

func (k ShutdownKind) String() string {
	switch k {
	case ShutdownNone:
		return "none"
	case ShutdownReadEOF:
		return "read_eof"
	case ShutdownWriteEOF:
		return "write_eof"
	case ShutdownReadSocketError:
		return "read_socket_error"
	case ShutdownWriteSocketError:
		return "write_socket_error"
	case ShutdownReadFlushCompleted:
		return "read_flush_completed"
	case ShutdownReadFlushCanceled:
		return "read_flush_canceled"
	case ShutdownReadDisposed:
		return "read_disposed"
	case ShutdownWriteDisposed:
		return "write_disposed"
	case ShutdownReadIOError:
		return "read_io_error"
	case ShutdownWriteIOError:
		return "write_io_error"
	case ShutdownReadOtherError:
		return "read_other_error"
	case ShutdownWriteOtherError:
		return "write_other_error"
	default:
		return "unknown"
	}
}

// ShutdownState tracks, first-writer-wins, why a connection direction closed
// and which socket error code (if any) it carried. All writes after the
// first are silently ignored: the state is monotonic once it leaves
// ShutdownNone.
type ShutdownState struct {
	kind      atomic.Uint32
	errorCode atomic.Int64
	hasCode   atomic.Bool
}

// Kind returns the current shutdown classification. It is safe to call
// concurrently with Set.
func (s *ShutdownState) Kind() ShutdownKind { return ShutdownKind(s.kind.Load()) }

// SocketErrorCode returns the socket error code recorded for a socket-error
// shutdown kind, and whether one was recorded at all.
func (s *ShutdownState) SocketErrorCode() (code int64, ok bool) {
	return s.errorCode.Load(), s.hasCode.Load()
}

// Set attempts to transition from ShutdownNone to kind. Only the first
// caller across all goroutines wins; subsequent calls are no-ops regardless
// of the kind argument. Set returns true iff this call won the transition.
func (s *ShutdownState) Set(kind ShutdownKind) bool {
	return s.kind.CompareAndSwap(uint32(ShutdownNone), uint32(kind))
}

// SetSocketError behaves like Set, and additionally records code as the
// socket error code iff this call won the transition. code is only
// meaningful for the {Read,Write}SocketError kinds; the field is left unset
// for every other kind, per spec.
func (s *ShutdownState) SetSocketError(kind ShutdownKind, code int64) bool {
	won := s.Set(kind)
	if won && (kind == ShutdownReadSocketError || kind == ShutdownWriteSocketError) {
		s.errorCode.Store(code)
		s.hasCode.Store(true)
	}
	return won
}
