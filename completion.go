// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import "sync/atomic"

type completionState uint32

const (
	completionIdle completionState = iota
	completionPending
	completionCompleted
)

// AwaitableCompletion is a reusable single-completion primitive pairing a
// native I/O event with a cooperative continuation. Exactly one operation
// may be in flight at a time: a caller registers a continuation with
// OnCompleted (or polls with IsCompleted), a completing goroutine resolves it
// exactly once with TryComplete or Abort, and GetResult consumes the result
// and resets the primitive back to idle for reuse.
//
// This is the Go-idiomatic reading of "awaitable socket args": instead of a
// C#-style IValueTaskSource state machine, completion is a single atomic
// word plus one continuation slot, and the continuation itself is just a
// func() handed to a Scheduler — no per-operation channel allocation in the
// steady state.
type AwaitableCompletion struct {
	scheduler Scheduler

	state atomic.Uint32 // completionState

	continuation atomic.Pointer[func()]

	bytesTransferred int
	socketErr        error
}

// NewAwaitableCompletion returns an AwaitableCompletion whose continuations
// resume via scheduler. A nil scheduler defaults to Inline.
func NewAwaitableCompletion(scheduler Scheduler) *AwaitableCompletion {
	if scheduler == nil {
		scheduler = Inline
	}
	return &AwaitableCompletion{scheduler: scheduler}
}

// OnCompleted registers continuation to run once the in-flight operation
// completes. If the operation has already completed, continuation is
// handed to the configured Scheduler immediately rather than called
// directly; with Inline, that Scheduler runs it on this call's own stack.
func (c *AwaitableCompletion) OnCompleted(continuation func()) {
	if c.state.CompareAndSwap(uint32(completionIdle), uint32(completionPending)) {
		c.continuation.Store(&continuation)
		return
	}
	// Either already pending (misuse) or already completed: in the
	// completed case, schedule immediately rather than running inline.
	if completionState(c.state.Load()) == completionCompleted {
		c.scheduler.Schedule(continuation)
	}
}

// TryComplete resolves the in-flight operation with n bytes transferred and
// socketErr (nil on success). It returns false if the primitive was not idle/pending (a
// programming error by the caller owning the I/O operation).
func (c *AwaitableCompletion) TryComplete(n int, socketErr error) bool {
	return c.complete(n, socketErr)
}

// Abort resolves the in-flight operation with socketErr, used for
// cancellation and other externally forced terminations.
func (c *AwaitableCompletion) Abort(socketErr error) bool {
	return c.complete(0, socketErr)
}

func (c *AwaitableCompletion) complete(n int, socketErr error) bool {
	for {
		cur := completionState(c.state.Load())
		if cur == completionCompleted {
			return false
		}
		if !c.state.CompareAndSwap(uint32(cur), uint32(completionCompleted)) {
			continue
		}
		c.bytesTransferred = n
		c.socketErr = socketErr
		if cur == completionPending {
			cont := c.continuation.Swap(nil)
			if cont != nil {
				if c.scheduler == Inline {
					(*cont)()
				} else {
					c.scheduler.Schedule(*cont)
				}
			}
		}
		return true
	}
}

// GetResult asserts the primitive is completed, resets it to idle, and
// returns the transferred byte count or the recorded socket error.
func (c *AwaitableCompletion) GetResult() (int, error) {
	if completionState(c.state.Load()) != completionCompleted {
		return 0, ErrInvalidOperation
	}
	n, err := c.bytesTransferred, c.socketErr
	c.bytesTransferred, c.socketErr = 0, nil
	c.continuation.Store(nil)
	c.state.Store(uint32(completionIdle))
	return n, err
}

// IsCompleted reports whether the in-flight operation has already resolved,
// without consuming the result.
func (c *AwaitableCompletion) IsCompleted() bool {
	return completionState(c.state.Load()) == completionCompleted
}
