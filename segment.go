// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import "sync/atomic"

// DefaultBlockSize is the size of a memory block rented by a blockPool when
// no explicit block size is configured. It matches the watermark defaults
// documented in SPEC_FULL.md.
const DefaultBlockSize = 4096

// blockPool rents and returns fixed-size byte blocks. It is the memory-block
// layer named in spec.md §3: a pool-backed contiguous buffer whose lifetime
// is tracked by the segment that wraps it, not by the pool itself.
type blockPool struct {
	blockSize int
	free      [][]byte
}

// newBlockPool returns a blockPool renting blocks of exactly blockSize
// bytes. blockSize must be positive.
func newBlockPool(blockSize int) *blockPool {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &blockPool{blockSize: blockSize}
}

func (p *blockPool) rent() []byte {
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		return b[:cap(b)]
	}
	return make([]byte, p.blockSize)
}

func (p *blockPool) release(b []byte) {
	// No locking here: a standalone SegmentBuffer's pool is touched only by
	// the goroutine that owns it, and a Pipe rents (writer side) and releases
	// (reader side, in AdvanceTo) only while holding its own mutex.
	p.free = append(p.free, b)
}

// segment is one node of a forward-linked chain of rented memory blocks.
// Its memory is valid for reads while refcount > 0. length is the committed
// (written and, for stream segments, readable) prefix of block; it only
// grows, through SegmentBuffer.Advance, while this segment is the tail.
type segment struct {
	block        []byte
	length       int
	runningIndex int64
	refcount     atomic.Int32
	next         atomic.Pointer[segment]
	pool         *blockPool
}

func newSegment(pool *blockPool, runningIndex int64) *segment {
	s := &segment{block: pool.rent(), runningIndex: runningIndex, pool: pool}
	s.refcount.Store(1)
	return s
}

func (s *segment) addRef() { s.refcount.Add(1) }

// release drops one reference, returning the block to its pool once the
// refcount reaches zero. It never follows s.next: callers walking a chain
// are responsible for releasing each node themselves, forward-only, per
// spec.md §9 ("the reader does not hold backward pointers").
func (s *segment) release() {
	if s.refcount.Add(-1) == 0 {
		s.pool.release(s.block)
	}
}

// end returns the absolute offset one past the last committed byte.
func (s *segment) end() int64 { return s.runningIndex + int64(s.length) }

// SegmentBuffer is a writer-facing, append-only buffer that produces
// refcounted read-only Sequences. It underlies both Pipe's write side and
// standalone write buffers such as a datagram marshaller's scratch buffer.
//
// SegmentBuffer is not safe for concurrent use; it is written by exactly one
// goroutine at a time, matching spec.md's single-producer assumption.
type SegmentBuffer struct {
	pool      *blockPool
	blockSize int

	tail *segment

	// pendingHead/pendingHeadOffset mark the start of the region not yet
	// returned by Flush. Before the first GetMemory call both are nil/0.
	pendingHead   *segment
	pendingHeadOf int

	spanOutstanding bool
	spanLen         int

	closed bool
}

// NewSegmentBuffer returns a SegmentBuffer that rents blocks of blockSize
// bytes. blockSize <= 0 selects DefaultBlockSize.
func NewSegmentBuffer(blockSize int) *SegmentBuffer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &SegmentBuffer{pool: newBlockPool(blockSize), blockSize: blockSize}
}

// GetSpan returns a writable slice of at least sizeHint bytes (or the
// minimum non-empty slice when sizeHint is 0). It fails with
// ErrCapacityExceeded when sizeHint exceeds the configured block size, and
// with ErrInvalidOperation when a previous GetSpan has no matching Advance.
func (b *SegmentBuffer) GetSpan(sizeHint int) ([]byte, error) {
	if b.spanOutstanding {
		return nil, ErrInvalidOperation
	}
	if sizeHint < 0 {
		return nil, ErrArgumentOutOfRange
	}
	if sizeHint > b.blockSize {
		return nil, ErrCapacityExceeded
	}
	if sizeHint == 0 {
		sizeHint = 1
	}

	if b.tail == nil || len(b.tail.block)-b.tail.length < sizeHint {
		b.appendSegment()
	}

	b.spanOutstanding = true
	b.spanLen = len(b.tail.block) - b.tail.length
	return b.tail.block[b.tail.length:], nil
}

func (b *SegmentBuffer) appendSegment() {
	var runningIndex int64
	if b.tail != nil {
		runningIndex = b.tail.end()
	}
	s := newSegment(b.pool, runningIndex)
	if b.tail != nil {
		b.tail.next.Store(s)
	}
	b.tail = s
	if b.pendingHead == nil {
		b.pendingHead = s
		b.pendingHeadOf = 0
	}
}

// Advance commits n bytes of the slice most recently returned by GetSpan as
// written. n must be within [0, len(slice)].
func (b *SegmentBuffer) Advance(n int) error {
	if !b.spanOutstanding {
		return ErrInvalidOperation
	}
	if n < 0 || n > b.spanLen {
		return ErrArgumentOutOfRange
	}
	b.tail.length += n
	b.spanOutstanding = false
	b.spanLen = 0
	return nil
}

// Flush returns a Sequence over every committed byte written since the
// previous Flush call (or since construction, for the first call). The
// SegmentBuffer retains the right to keep appending to its current tail
// segment; Flush calls addRef on that tail before returning so the returned
// Sequence and the buffer can coexist.
func (b *SegmentBuffer) Flush() Sequence {
	if b.pendingHead == nil {
		// Nothing has ever been written.
		return Sequence{}
	}
	seq := Sequence{
		head:    b.pendingHead,
		headOff: b.pendingHeadOf,
		tail:    b.tail,
		tailLen: b.tail.length,
	}
	seq.tail.addRef()

	b.pendingHead = b.tail
	b.pendingHeadOf = b.tail.length
	return seq
}

// Dispose releases every segment the buffer still owns: the unflushed
// pending chain, if any. Segments already handed off by a prior Flush are
// no longer the buffer's concern.
func (b *SegmentBuffer) Dispose() {
	if b.closed {
		return
	}
	b.closed = true
	for s := b.pendingHead; s != nil; {
		next := s.next.Load()
		s.release()
		if s == b.tail {
			break
		}
		s = next
	}
	b.pendingHead = nil
	b.tail = nil
}
