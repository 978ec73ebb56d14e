// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

// Scheduler runs a continuation somewhere. Pipe, and the connection types in
// packages stream and datagram, resume every suspended caller through a
// Scheduler so the same core logic runs inline under test and pooled in
// production.
//
// Implementations must not block the caller of Schedule for longer than it
// takes to hand the work off; Schedule itself runs on whatever goroutine
// completed the wait, so a blocking Schedule would serialize unrelated
// completions behind it.
type Scheduler interface {
	Schedule(work func())
}

// Inline runs work on the calling goroutine, synchronously, before Schedule
// returns. It is the zero-overhead choice for tests and benchmarks, and
// matches spec's "inline" scheduler value: "run on the thread that completed
// the wait."
var Inline Scheduler = inlineScheduler{}

type inlineScheduler struct{}

func (inlineScheduler) Schedule(work func()) { work() }

// SharedPool defers work to the Go runtime's own goroutine scheduler. It is
// the default for production use: each piece of work gets its own goroutine,
// unbounded, the same way .NET's ThreadPool.QueueUserWorkItem defers to the
// process-wide pool rather than a dedicated one.
var SharedPool Scheduler = sharedPoolScheduler{}

type sharedPoolScheduler struct{}

func (sharedPoolScheduler) Schedule(work func()) { go work() }
