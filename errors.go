// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation reports a misuse of the API: a second get_memory
	// without a matching advance, a second read_async without a matching
	// advance_to, or any other call made out of its documented sequence.
	ErrInvalidOperation = errors.New("duplex: invalid operation")

	// ErrArgumentOutOfRange reports an invalid constructor argument or a
	// position that does not lie within segments currently held by a pipe.
	ErrArgumentOutOfRange = errors.New("duplex: argument out of range")

	// ErrCapacityExceeded reports a get_memory size hint larger than the
	// configured block size.
	ErrCapacityExceeded = errors.New("duplex: capacity exceeded")

	// ErrIncompleteDecodingFrame reports that a marshaller was asked to
	// consume an entire buffer but left residual bytes behind.
	ErrIncompleteDecodingFrame = errors.New("duplex: incomplete decoding frame")

	// ErrConnectionReset reports that the remote peer reset the connection.
	ErrConnectionReset = errors.New("duplex: connection reset by peer")

	// ErrConnectionAborted reports a local abort: dispose, cancellation, or
	// an externally aborted operation.
	ErrConnectionAborted = errors.New("duplex: connection aborted")
)

// IOError wraps an error that could not be classified into one of the named
// sentinels above. It is returned, never a bare error, so callers can always
// errors.Unwrap to the original cause.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("duplex: io error: %v", e.Err) }

func (e *IOError) Unwrap() error { return e.Err }
