// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"sync"
)

// FlushResult is returned by Pipe.FlushAsync. IsCompleted means the reader
// has permanently stopped consuming (via Pipe.CompleteReader); IsCanceled
// means a pending flush was woken by CancelPendingFlush rather than by the
// reader draining the buffer.
type FlushResult struct {
	IsCompleted bool
	IsCanceled  bool
}

// ReadResult is returned by Pipe.TryRead and Pipe.ReadAsync.
type ReadResult struct {
	Sequence    Sequence
	IsCanceled  bool
	IsCompleted bool
}

// PipeOptions configures a Pipe's block size, backpressure watermarks, and
// the schedulers its two sides resume on.
type PipeOptions struct {
	// BlockSize is the size of each rented memory block. Zero selects
	// DefaultBlockSize.
	BlockSize int

	// HighWatermark is the buffered-byte threshold above which FlushAsync
	// suspends the writer. Zero disables backpressure entirely.
	HighWatermark int64

	// LowWatermark is the buffered-byte threshold at or below which a
	// suspended flush resumes. Must be <= HighWatermark.
	LowWatermark int64

	// ReaderScheduler resumes the reader's suspended ReadAsync calls.
	// Nil selects Inline.
	ReaderScheduler Scheduler

	// WriterScheduler resumes the writer's suspended FlushAsync calls.
	// Nil selects Inline.
	WriterScheduler Scheduler
}

// DefaultPipeOptions is a sane starting point for a moderate-throughput
// duplex connection: 64KiB high watermark, 32KiB low watermark, 4KiB
// blocks, resuming on the shared Go runtime pool.
var DefaultPipeOptions = PipeOptions{
	BlockSize:       DefaultBlockSize,
	HighWatermark:   64 * 1024,
	LowWatermark:    32 * 1024,
	ReaderScheduler: SharedPool,
	WriterScheduler: SharedPool,
}

// Pipe is a single-producer/single-consumer byte conduit: spec.md's C2.
// One goroutine acts as the writer (GetMemory/Advance/FlushAsync/Complete),
// one acts as the reader (TryRead/ReadAsync/AdvanceTo/CompleteReader);
// concurrent calls from "the same side" are undefined, matching spec.
type Pipe struct {
	mu sync.Mutex

	buf *SegmentBuffer

	commitHead, commitTail *segment
	commitHeadOff, commitTailLen int
	bufferedBytes                int64

	consumed, examined Position

	highWatermark, lowWatermark int64

	readerScheduler, writerScheduler Scheduler

	readerWaiter func(ReadResult)
	writerWaiter func(FlushResult)

	readOutstanding  bool
	writerCompleted  bool
	writerErr        error
	readerCompleted  bool
}

// NewPipe returns a Pipe configured by opts. A zero BlockSize selects
// DefaultBlockSize and a nil scheduler selects Inline; watermarks are used
// as given, so zero watermarks leave backpressure disabled.
func NewPipe(opts PipeOptions) *Pipe {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultPipeOptions.BlockSize
	}
	if opts.ReaderScheduler == nil {
		opts.ReaderScheduler = Inline
	}
	if opts.WriterScheduler == nil {
		opts.WriterScheduler = Inline
	}
	return &Pipe{
		buf:             NewSegmentBuffer(opts.BlockSize),
		highWatermark:   opts.HighWatermark,
		lowWatermark:    opts.LowWatermark,
		readerScheduler: opts.ReaderScheduler,
		writerScheduler: opts.WriterScheduler,
	}
}

// ---- writer surface ----

// GetMemory requests a writable slice of at least hint bytes (or the
// implementation's minimum when hint is 0) from the write buffer.
func (p *Pipe) GetMemory(hint int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerCompleted {
		return nil, ErrInvalidOperation
	}
	return p.buf.GetSpan(hint)
}

// Advance commits n bytes most recently returned by GetMemory. It does not
// make them visible to the reader; call FlushAsync for that.
func (p *Pipe) Advance(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerCompleted {
		return ErrInvalidOperation
	}
	return p.buf.Advance(n)
}

// FlushAsync makes every committed-but-unflushed byte visible to the reader.
// If doing so pushes the buffered byte count above HighWatermark, FlushAsync
// blocks until the reader drains to or below LowWatermark, the reader calls
// CompleteReader, or the pending flush is canceled, or ctx is done.
func (p *Pipe) FlushAsync(ctx context.Context) (FlushResult, error) {
	p.mu.Lock()
	if p.writerCompleted {
		p.mu.Unlock()
		return FlushResult{}, ErrInvalidOperation
	}

	seq := p.buf.Flush()
	if !seq.IsEmpty() || p.commitHead == nil {
		p.mergeFlushedLocked(seq)
	}

	if p.readerCompleted {
		res := FlushResult{IsCompleted: true}
		wake := p.wakeReaderIfPendingLocked()
		p.mu.Unlock()
		wake()
		return res, nil
	}
	wake := p.wakeReaderIfPendingLocked()

	if p.highWatermark <= 0 || p.bufferedBytes <= p.highWatermark {
		p.mu.Unlock()
		wake()
		return FlushResult{}, nil
	}

	done := make(chan struct{})
	var res FlushResult
	p.writerWaiter = func(r FlushResult) { res = r; close(done) }
	p.mu.Unlock()
	wake()

	select {
	case <-done:
		return res, nil
	case <-ctx.Done():
		p.CancelPendingFlush()
		<-done
		return res, nil
	}
}

// mergeFlushedLocked absorbs a just-flushed Sequence into the committed
// chain the reader can see. Called with p.mu held.
func (p *Pipe) mergeFlushedLocked(seq Sequence) {
	if seq.head == nil {
		return
	}
	if p.commitHead == nil {
		p.commitHead = seq.head
		p.commitHeadOff = seq.headOff
		p.consumed = Position{seg: seq.head, off: seq.headOff}
		if p.examined.IsZero() {
			p.examined = p.consumed
		}
	}
	p.commitTail = seq.tail
	p.commitTailLen = seq.tailLen
	p.bufferedBytes = p.commitEndAbs() - p.absPosition(p.consumed)
}

// Complete seals the writer side. Further GetMemory/Advance/FlushAsync
// fail with ErrInvalidOperation. If the reader has a pending ReadAsync, it
// is woken with IsCompleted true and returns err as given.
func (p *Pipe) Complete(err error) {
	p.mu.Lock()
	if p.writerCompleted {
		p.mu.Unlock()
		return
	}
	p.writerCompleted = true
	p.writerErr = err
	wake := p.wakeReaderIfPendingLocked()
	p.mu.Unlock()
	wake()
}

// CancelPendingFlush wakes any blocked FlushAsync with IsCanceled true.
// Subsequent FlushAsync calls behave normally.
func (p *Pipe) CancelPendingFlush() {
	p.mu.Lock()
	waiter := p.writerWaiter
	p.writerWaiter = nil
	p.mu.Unlock()
	if waiter != nil {
		p.writerScheduler.Schedule(func() { waiter(FlushResult{IsCanceled: true}) })
	}
}

// ---- reader surface ----

// TryRead reports whether bytes are currently available, or the writer has
// completed, without blocking.
func (p *Pipe) TryRead() (ReadResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasNewDataLocked() || p.writerCompleted {
		return p.snapshotReadResultLocked(), true
	}
	return ReadResult{}, false
}

// ReadAsync returns available bytes immediately if any exist (or the
// writer is completed); otherwise it suspends until FlushAsync, Complete,
// or CancelPendingRead resolves it, or ctx is done.
func (p *Pipe) ReadAsync(ctx context.Context) (ReadResult, error) {
	p.mu.Lock()
	if p.readOutstanding {
		p.mu.Unlock()
		return ReadResult{}, ErrInvalidOperation
	}
	if p.hasNewDataLocked() || p.writerCompleted {
		res := p.snapshotReadResultLocked()
		err := p.writerErr
		p.mu.Unlock()
		return res, err
	}

	p.readOutstanding = true
	done := make(chan struct{})
	var res ReadResult
	p.readerWaiter = func(r ReadResult) { res = r; close(done) }
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		p.CancelPendingRead()
		<-done
	}

	p.mu.Lock()
	p.readOutstanding = false
	err := p.writerErr
	p.mu.Unlock()
	if res.IsCanceled {
		return res, nil
	}
	return res, err
}

// AdvanceTo releases segments strictly before consumed and records examined
// as the position the reader has looked at. examined must be >= consumed.
// Repeatedly advancing with examined at the end of the buffer and no new
// data arriving in between will make the next ReadAsync suspend.
func (p *Pipe) AdvanceTo(consumed Position, examined ...Position) error {
	exm := consumed
	if len(examined) > 0 {
		exm = examined[0]
	}
	p.mu.Lock()

	if !p.positionValidLocked(consumed) || !p.positionValidLocked(exm) {
		p.mu.Unlock()
		return ErrArgumentOutOfRange
	}
	if p.absPosition(exm) < p.absPosition(consumed) {
		p.mu.Unlock()
		return ErrArgumentOutOfRange
	}

	p.releaseThroughLocked(consumed)
	p.consumed = consumed
	p.examined = exm
	p.bufferedBytes = p.commitEndAbs() - p.absPosition(consumed)

	wake := func() {}
	if p.highWatermark > 0 && p.bufferedBytes <= p.lowWatermark {
		wake = p.wakeWriterIfPendingLocked(FlushResult{})
	}
	p.mu.Unlock()
	wake()
	return nil
}

// CompleteReader marks the reader side permanently done consuming. Any
// FlushAsync currently or subsequently pending resolves with
// FlushResult.IsCompleted true instead of waiting for the low watermark.
func (p *Pipe) CompleteReader(err error) {
	p.mu.Lock()
	p.readerCompleted = true
	wake := p.wakeWriterIfPendingLocked(FlushResult{IsCompleted: true})
	p.mu.Unlock()
	wake()
}

// CancelPendingRead wakes any blocked ReadAsync with IsCanceled true.
func (p *Pipe) CancelPendingRead() {
	p.mu.Lock()
	waiter := p.readerWaiter
	p.readerWaiter = nil
	p.mu.Unlock()
	if waiter != nil {
		p.readerScheduler.Schedule(func() { waiter(ReadResult{IsCanceled: true}) })
	}
}

// ---- internals ----

func (p *Pipe) hasNewDataLocked() bool {
	if p.commitTail == nil {
		return false
	}
	return p.commitEndAbs() > p.absPosition(p.examined)
}

func (p *Pipe) commitEndAbs() int64 {
	if p.commitTail == nil {
		return 0
	}
	return p.commitTail.runningIndex + int64(p.commitTailLen)
}

func (p *Pipe) absPosition(pos Position) int64 {
	if pos.IsZero() {
		if p.commitHead == nil {
			return 0
		}
		return p.commitHead.runningIndex + int64(p.commitHeadOff)
	}
	return pos.seg.runningIndex + int64(pos.off)
}

func (p *Pipe) positionValidLocked(pos Position) bool {
	if pos.IsZero() {
		return true
	}
	for s := p.commitHead; s != nil; {
		if s == pos.seg {
			return true
		}
		if s == p.commitTail {
			return false
		}
		s = s.next.Load()
	}
	return false
}

func (p *Pipe) snapshotReadResultLocked() ReadResult {
	var seq Sequence
	if p.commitTail != nil {
		seq = Sequence{head: p.consumed.seg, headOff: p.consumed.off, tail: p.commitTail, tailLen: p.commitTailLen}
		if seq.head == nil {
			seq.head = p.commitHead
			seq.headOff = p.commitHeadOff
		}
	}
	return ReadResult{Sequence: seq, IsCompleted: p.writerCompleted}
}

func (p *Pipe) releaseThroughLocked(consumed Position) {
	target := consumed.seg
	if target == nil {
		return
	}
	cur := p.commitHead
	if cur == nil {
		return
	}
	for cur != target {
		next := cur.next.Load()
		cur.release()
		cur = next
		if cur == nil {
			break
		}
	}
	p.commitHead = target
	p.commitHeadOff = consumed.off
}

// wakeReaderIfPendingLocked returns a closure that dispatches the pending
// reader continuation (if any) onto the reader scheduler. It must be called
// after p.mu is released: no lock is held across a scheduler dispatch.
func (p *Pipe) wakeReaderIfPendingLocked() func() {
	waiter := p.readerWaiter
	if waiter == nil {
		return func() {}
	}
	p.readerWaiter = nil
	res := p.snapshotReadResultLocked()
	return func() { p.readerScheduler.Schedule(func() { waiter(res) }) }
}

// wakeWriterIfPendingLocked mirrors wakeReaderIfPendingLocked for the
// writer side.
func (p *Pipe) wakeWriterIfPendingLocked(res FlushResult) func() {
	waiter := p.writerWaiter
	if waiter == nil {
		return func() {}
	}
	p.writerWaiter = nil
	return func() { p.writerScheduler.Schedule(func() { waiter(res) }) }
}
