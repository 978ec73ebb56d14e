// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"code.hybscloud.com/duplex"
	"code.hybscloud.com/duplex/internal/diag"
)

// Options configures a StreamConnection.
type Options struct {
	// ReceivePipeOptions configures the pipe the receive-loop writes into
	// and the application reads from. It is passed to duplex.NewPipe as is,
	// so its zero value means default block size, Inline schedulers, and no
	// backpressure (not duplex.DefaultPipeOptions).
	ReceivePipeOptions duplex.PipeOptions

	// SendPipeOptions configures the pipe the application writes into and
	// the send-loop drains.
	SendPipeOptions duplex.PipeOptions

	// ZeroLengthReads requests that the receive-loop park on a zero-byte
	// read while idle instead of holding a buffer. Go's net.Conn has no
	// portable "complete a 0-byte receive when data arrives" semantic, so
	// on every platform this library runs on the option is a documented
	// no-op, per spec.md §9.
	ZeroLengthReads bool

	// Logger receives structured lifecycle and error-policy records.
	// Nil selects diag.Default().
	Logger diag.Logger
}

// StreamConnection binds one net.Conn to a receive duplex.Pipe and a send
// duplex.Pipe: spec.md's C5. The receive-loop copies socket reads into the
// receive pipe; the send-loop drains the send pipe onto the socket.
type StreamConnection struct {
	id   string
	conn net.Conn
	opts Options
	log  diag.Logger

	receivePipe *duplex.Pipe
	sendPipe    *duplex.Pipe

	shutdown duplex.ShutdownState

	startReceive sync.Once
	startSend    sync.Once
	wg           conc.WaitGroup

	bytesRead int64
	bytesSent int64

	// cancel stops both loops; it is invoked by Close.
	cancel context.CancelFunc
	ctx    context.Context
}

// New wraps conn in a StreamConnection. The receive-loop and send-loop do
// not start until ReceivePipe or SendPipe is first called.
func New(conn net.Conn, opts Options) *StreamConnection {
	if opts.Logger == nil {
		opts.Logger = diag.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamConnection{
		id:          uuid.NewString(),
		conn:        conn,
		opts:        opts,
		log:         opts.Logger,
		receivePipe: duplex.NewPipe(opts.ReceivePipeOptions),
		sendPipe:    duplex.NewPipe(opts.SendPipeOptions),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ReceivePipe returns the pipe the application reads incoming bytes from,
// starting the receive-loop on first call.
func (c *StreamConnection) ReceivePipe() *duplex.Pipe {
	c.startReceive.Do(func() {
		c.wg.Go(c.receiveLoop)
	})
	return c.receivePipe
}

// SendPipe returns the pipe the application writes outgoing bytes into,
// starting the send-loop on first call.
func (c *StreamConnection) SendPipe() *duplex.Pipe {
	c.startSend.Do(func() {
		c.wg.Go(c.sendLoop)
	})
	return c.sendPipe
}

// Shutdown reports why each direction of the connection stopped.
func (c *StreamConnection) Shutdown() *duplex.ShutdownState { return &c.shutdown }

// BytesRead returns the number of payload bytes the receive-loop has
// copied off the socket so far.
func (c *StreamConnection) BytesRead() int64 { return atomic.LoadInt64(&c.bytesRead) }

// BytesSent returns the number of payload bytes the send-loop has written
// to the socket so far.
func (c *StreamConnection) BytesSent() int64 { return atomic.LoadInt64(&c.bytesSent) }

// Close cancels any suspended loop wait, closes the underlying socket, and
// blocks until both loops have exited.
func (c *StreamConnection) Close() error {
	c.cancel()
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// Wait blocks until both the receive-loop and send-loop (whichever were
// started) have exited.
func (c *StreamConnection) Wait() { c.wg.Wait() }

func (c *StreamConnection) receiveLoop() {
	diag.LoopStarted(c.ctx, c.log, "receive", "conn_id", c.id, "remote", c.conn.RemoteAddr())

	var finalErr error
	for {
		mem, err := c.receivePipe.GetMemory(1)
		if err != nil {
			finalErr = err
			break
		}

		n, rerr := c.conn.Read(mem)
		if n > 0 {
			if aerr := c.receivePipe.Advance(n); aerr != nil {
				finalErr = aerr
				break
			}
			atomic.AddInt64(&c.bytesRead, int64(n))

			res, ferr := c.receivePipe.FlushAsync(c.ctx)
			if ferr != nil {
				finalErr = ferr
				break
			}
			if res.IsCompleted {
				c.shutdown.Set(duplex.ShutdownReadFlushCompleted)
				break
			}
			if res.IsCanceled {
				c.shutdown.Set(duplex.ShutdownReadFlushCanceled)
				break
			}
		}

		if rerr != nil {
			kind, reported, swallow := classifyReceiveError(c.ctx, rerr)
			diag.SocketError(c.ctx, c.log, "receive", rerr, swallow)
			setShutdownKind(&c.shutdown, kind, rerr)
			if !swallow {
				finalErr = reported
			}
			break
		}
		if n == 0 {
			c.shutdown.Set(duplex.ShutdownReadEOF)
			break
		}
	}

	_ = closeRead(c.conn)
	c.receivePipe.Complete(finalErr)
	diag.LoopExited(c.ctx, c.log, "receive", c.shutdown.Kind(), finalErr)
}

func (c *StreamConnection) sendLoop() {
	diag.LoopStarted(c.ctx, c.log, "send", "conn_id", c.id, "remote", c.conn.RemoteAddr())

	var finalErr error
loop:
	for {
		res, ok := c.sendPipe.TryRead()
		if !ok {
			var rerr error
			res, rerr = c.sendPipe.ReadAsync(c.ctx)
			if rerr != nil {
				finalErr = rerr
				break
			}
		}
		if res.IsCanceled {
			break
		}
		if res.Sequence.IsEmpty() {
			if res.IsCompleted {
				c.shutdown.Set(duplex.ShutdownWriteEOF)
				break
			}
			continue
		}

		sent, werr := writeSequence(c.conn, res.Sequence)
		atomic.AddInt64(&c.bytesSent, int64(sent))
		end := res.Sequence.End()
		if aerr := c.sendPipe.AdvanceTo(end); aerr != nil && finalErr == nil {
			finalErr = aerr
		}
		if werr != nil {
			kind, reported, swallow := classifySendError(c.ctx, werr)
			diag.SocketError(c.ctx, c.log, "send", werr, swallow)
			setShutdownKind(&c.shutdown, kind, werr)
			if !swallow {
				finalErr = reported
			}
			break loop
		}
		if res.IsCompleted {
			c.shutdown.Set(duplex.ShutdownWriteEOF)
			break
		}
	}

	_ = closeWrite(c.conn)
	c.sendPipe.Complete(finalErr)
	c.sendPipe.CompleteReader(finalErr)
	diag.LoopExited(c.ctx, c.log, "send", c.shutdown.Kind(), finalErr)
}

// writeSequence dispatches seq to conn as a single buffer write when it
// spans one segment, or a scatter-gather net.Buffers write (writev on unix)
// when it spans more than one, per spec.md §4.5's scatter/gather rule.
func writeSequence(conn net.Conn, seq duplex.Sequence) (int, error) {
	if seq.NumSegments() <= 1 {
		var sent int
		var werr error
		seq.ForEach(func(chunk []byte) bool {
			sent, werr = conn.Write(chunk)
			return false
		})
		return sent, werr
	}

	var bufs net.Buffers
	seq.ForEach(func(chunk []byte) bool {
		bufs = append(bufs, chunk)
		return true
	})
	n, err := bufs.WriteTo(conn)
	return int(n), err
}

func setShutdownKind(s *duplex.ShutdownState, kind duplex.ShutdownKind, err error) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		s.SetSocketError(kind, int64(errno))
		return
	}
	s.Set(kind)
}

// classifyReceiveError maps a socket error observed on the receive path to
// a ShutdownKind, the error to surface to the application, and whether that
// error is swallowed instead (the caller then surfaces nothing), per
// spec.md §4.5's table.
func classifyReceiveError(ctx context.Context, err error) (duplex.ShutdownKind, error, bool) {
	switch {
	case ctx.Err() != nil, errors.Is(err, net.ErrClosed):
		return duplex.ShutdownReadDisposed, duplex.ErrConnectionAborted, ctx.Err() != nil
	case errors.Is(err, syscall.ECONNRESET):
		return duplex.ShutdownReadSocketError, duplex.ErrConnectionReset, false
	case errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EINVAL):
		return duplex.ShutdownReadSocketError, duplex.ErrConnectionAborted, ctx.Err() != nil
	case errors.Is(err, io.EOF):
		return duplex.ShutdownReadEOF, nil, true
	default:
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return duplex.ShutdownReadIOError, &duplex.IOError{Err: err}, false
		}
		return duplex.ShutdownReadOtherError, &duplex.IOError{Err: err}, false
	}
}

// classifySendError mirrors classifyReceiveError for the send path.
func classifySendError(ctx context.Context, err error) (duplex.ShutdownKind, error, bool) {
	switch {
	case ctx.Err() != nil, errors.Is(err, net.ErrClosed):
		return duplex.ShutdownWriteDisposed, nil, true
	case errors.Is(err, syscall.ECONNRESET):
		return duplex.ShutdownWriteSocketError, duplex.ErrConnectionReset, false
	case errors.Is(err, syscall.ECONNABORTED):
		return duplex.ShutdownWriteSocketError, duplex.ErrConnectionAborted, false
	default:
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return duplex.ShutdownWriteIOError, &duplex.IOError{Err: err}, false
		}
		return duplex.ShutdownWriteOtherError, &duplex.IOError{Err: err}, false
	}
}

func closeRead(conn net.Conn) error {
	type readCloser interface{ CloseRead() error }
	if rc, ok := conn.(readCloser); ok {
		return rc.CloseRead()
	}
	return nil
}

func closeWrite(conn net.Conn) error {
	type writeCloser interface{ CloseWrite() error }
	if wc, ok := conn.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return nil
}
