// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datagram

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"code.hybscloud.com/duplex"
	"code.hybscloud.com/duplex/internal/diag"
)

// DefaultMaxFrameSize is the maximum datagram payload spec.md §6 specifies.
const DefaultMaxFrameSize = 65535

// DefaultQueueCapacity is the default size of each bounded inbound/outbound
// queue, per spec.md §4.6.
const DefaultQueueCapacity = 1024

// Options configures a FrameChannel.
type Options struct {
	// MaxFrameSize sizes the receive-side rented block (and the default
	// BlockSize). The send-loop does not check an encoded frame's length
	// against it. Zero selects DefaultMaxFrameSize.
	MaxFrameSize int

	// BlockSize sizes the SegmentBuffer blocks the send-loop's marshaller
	// writes into. Zero selects MaxFrameSize.
	BlockSize int

	// QueueCapacity bounds the outbound and inbound queues. Zero selects
	// DefaultQueueCapacity.
	QueueCapacity int

	// DefaultPeer is the destination used when Send is called without an
	// explicit peer override. Required for server-mode channels that only
	// ever talk to one remote at a time; optional otherwise.
	DefaultPeer net.Addr

	Logger diag.Logger
}

// FrameChannel binds a UDP socket to two bounded message queues via a
// pluggable Marshaller: spec.md's C6. A server channel fans inbound
// datagrams out to concurrent deserialize tasks (bounded to QueueCapacity
// in flight); a client channel deserializes strictly serially to preserve
// wire order.
type FrameChannel[T any] struct {
	packetConn net.PacketConn // set for server-mode channels
	id         string
	netConn    net.Conn // set for client-mode (connected) channels
	client     bool

	marshaller Marshaller[T]
	opts       Options
	log        diag.Logger

	outbound chan outboundFrame[T]
	inbound  chan Frame[T]

	bufPool sync.Pool

	localIndex atomic.Int64
	shutdown   duplex.ShutdownState

	wg     conc.WaitGroup
	cancel context.CancelFunc
}

// NewServerChannel binds a FrameChannel that can exchange datagrams with
// multiple peers, using send_to/receive_from and concurrent inbound
// deserialization.
func NewServerChannel[T any](conn net.PacketConn, marshaller Marshaller[T], opts Options) *FrameChannel[T] {
	return newChannel[T](conn, nil, false, marshaller, opts)
}

// NewClientChannel binds a FrameChannel to one connected peer, using
// send/receive and strictly serial inbound deserialization to preserve
// wire order.
func NewClientChannel[T any](conn net.Conn, marshaller Marshaller[T], opts Options) *FrameChannel[T] {
	return newChannel[T](nil, conn, true, marshaller, opts)
}

func newChannel[T any](packetConn net.PacketConn, netConn net.Conn, client bool, marshaller Marshaller[T], opts Options) *FrameChannel[T] {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = opts.MaxFrameSize
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Logger == nil {
		opts.Logger = diag.Default()
	}
	c := &FrameChannel[T]{
		id:         uuid.NewString(),
		packetConn: packetConn,
		netConn:    netConn,
		client:     client,
		marshaller: marshaller,
		opts:       opts,
		log:        opts.Logger,
		outbound:   make(chan outboundFrame[T], opts.QueueCapacity),
		inbound:    make(chan Frame[T], opts.QueueCapacity),
	}
	c.bufPool.New = func() any { return make([]byte, opts.MaxFrameSize) }
	return c
}

// Shutdown reports why this channel's loops stopped.
func (c *FrameChannel[T]) Shutdown() *duplex.ShutdownState { return &c.shutdown }

// Start launches the send-loop and receive-loop and returns immediately.
// The send-loop runs until ctx is done or a send fails fatally; the
// receive-loop runs until a read fails, as it does once Close closes the
// socket. Call Wait to block for their exit.
func (c *FrameChannel[T]) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Go(func() { c.sendLoop(ctx) })
	c.wg.Go(func() { c.receiveLoop(ctx) })
}

// Wait blocks until both loops have exited.
func (c *FrameChannel[T]) Wait() { c.wg.Wait() }

// Close stops both loops and closes the underlying socket.
func (c *FrameChannel[T]) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.client {
		err = c.netConn.Close()
	} else {
		err = c.packetConn.Close()
	}
	c.Wait()
	close(c.outbound)
	return err
}

// Send enqueues payload for transmission, blocking if the outbound queue is
// full ("wait" full-mode per spec.md §4.6). peer overrides DefaultPeer for
// this frame only; nil uses DefaultPeer.
func (c *FrameChannel[T]) Send(ctx context.Context, payload T, peer net.Addr) error {
	select {
	case c.outbound <- outboundFrame[T]{payload: payload, peer: peer}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next inbound frame, blocking until one arrives or
// ctx is done. Callers must call frame.Dispose when finished with it.
func (c *FrameChannel[T]) Receive(ctx context.Context) (Frame[T], error) {
	select {
	case f, ok := <-c.inbound:
		if !ok {
			return Frame[T]{}, duplex.ErrConnectionAborted
		}
		return f, nil
	case <-ctx.Done():
		return Frame[T]{}, ctx.Err()
	}
}

func (c *FrameChannel[T]) sendLoop(ctx context.Context) {
	diag.LoopStarted(ctx, c.log, "datagram-send", "channel_id", c.id)
	scratch := duplex.NewSegmentBuffer(c.opts.BlockSize)
	defer scratch.Dispose()

	for {
		select {
		case <-ctx.Done():
			return
		case qf, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.marshaller.Write(qf.payload, scratch); err != nil {
				diag.MarshallerError(ctx, c.log, err)
				continue
			}
			seq := scratch.Flush()
			if seq.IsEmpty() {
				seq.Release()
				continue
			}
			data := seq.Bytes()
			seq.Release()

			peer := qf.peer
			if peer == nil {
				peer = c.opts.DefaultPeer
			}
			if err := c.sendOne(data, peer); err != nil {
				if c.ignorableSendError(err) {
					diag.SocketError(ctx, c.log, "datagram-send", err, true)
					continue
				}
				diag.SocketError(ctx, c.log, "datagram-send", err, false)
				setShutdownKind(&c.shutdown, duplex.ShutdownWriteSocketError, err)
				return
			}
		}
	}
}

func (c *FrameChannel[T]) sendOne(data []byte, peer net.Addr) error {
	if c.client {
		_, err := c.netConn.Write(data)
		return err
	}
	_, err := c.packetConn.WriteTo(data, peer)
	return err
}

// ignorableSendError reports whether a send-side socket error must be
// swallowed rather than terminate the loop: spec.md §4.6's server-only
// ignore list for connection_reset/connection_aborted.
func (c *FrameChannel[T]) ignorableSendError(err error) bool {
	if c.client {
		return false
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED)
}

func (c *FrameChannel[T]) receiveLoop(ctx context.Context) {
	diag.LoopStarted(ctx, c.log, "datagram-receive", "channel_id", c.id)

	var inFlight *semaphore.Weighted
	if !c.client {
		inFlight = semaphore.NewWeighted(int64(c.opts.QueueCapacity))
	}

	for {
		buf := c.bufPool.Get().([]byte)
		n, peer, err := c.readOne(buf)
		if err != nil {
			c.bufPool.Put(buf) //nolint:staticcheck // returning full-capacity slice
			diag.SocketError(ctx, c.log, "datagram-receive", err, false)
			setShutdownKind(&c.shutdown, duplex.ShutdownReadSocketError, err)
			return
		}
		if n <= 0 {
			c.bufPool.Put(buf)
			c.shutdown.Set(duplex.ShutdownReadEOF)
			return
		}

		idx := c.localIndex.Add(1) - 1
		data := buf[:n]
		release := func() { c.bufPool.Put(buf) } //nolint:staticcheck

		task := c.deserializeTask(ctx, data, peer, idx, release)
		if c.client {
			task()
			continue
		}

		if inFlight.Acquire(ctx, 1) != nil {
			release()
			return
		}
		go func() {
			defer inFlight.Release(1)
			task()
		}()
	}
}

func (c *FrameChannel[T]) deserializeTask(ctx context.Context, data []byte, peer net.Addr, idx int64, release func()) func() {
	return func() {
		payload, err := c.marshaller.Read(data)
		if err != nil {
			diag.MarshallerError(ctx, c.log, err)
			c.shutdown.Set(duplex.ShutdownReadOtherError)
			release()
			return
		}
		frame := Frame[T]{Payload: payload, Peer: peer, LocalIndex: idx, OnDispose: release}
		select {
		case c.inbound <- frame:
		case <-ctx.Done():
			release()
		}
	}
}

func (c *FrameChannel[T]) readOne(buf []byte) (int, net.Addr, error) {
	if c.client {
		n, err := c.netConn.Read(buf)
		return n, c.netConn.RemoteAddr(), err
	}
	return c.packetConn.ReadFrom(buf)
}

func setShutdownKind(s *duplex.ShutdownState, kind duplex.ShutdownKind, err error) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		s.SetSocketError(kind, int64(errno))
		return
	}
	s.Set(kind)
}
