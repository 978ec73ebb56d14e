// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"errors"
	"net"

	"github.com/sourcegraph/conc"

	"code.hybscloud.com/duplex/internal/diag"
)

// OnClient is invoked once per accepted connection, on its own goroutine.
// Returning an error marks both of conn's pipes completed with that error
// and invokes the Listener's OnClientFaulted hook; conn is always closed
// afterwards regardless of the return value.
type OnClient func(ctx context.Context, conn *StreamConnection, remote net.Addr) error

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	// ConnectionOptions is passed through to stream.New for every accepted
	// connection.
	ConnectionOptions Options

	// OnClientFaulted is called, if non-nil, when an OnClient callback
	// returns an error.
	OnClientFaulted func(remote net.Addr, err error)

	// OnServerFaulted is called, if non-nil, when the accept loop exits
	// because of an error other than the listener being closed.
	OnServerFaulted func(err error)

	Logger diag.Logger
}

// Listener accepts client connections on a net.Listener, wraps each in a
// StreamConnection, and dispatches it to a user callback: spec.md's C8
// ClientListener.
type Listener struct {
	ln      net.Listener
	opts    ListenerOptions
	log     diag.Logger
	clients conc.WaitGroup
}

// NewListener wraps ln. The accept loop does not start until Serve is
// called.
func NewListener(ln net.Listener, opts ListenerOptions) *Listener {
	if opts.Logger == nil {
		opts.Logger = diag.Default()
	}
	return &Listener{ln: ln, opts: opts, log: opts.Logger}
}

// Serve runs the accept loop until ctx is canceled or the listener is
// closed, dispatching each accepted connection to onClient on its own
// goroutine. Serve blocks until every in-flight onClient call has
// returned and every accepted StreamConnection has closed.
func (l *Listener) Serve(ctx context.Context, onClient OnClient) error {
	defer l.clients.Wait()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			if l.opts.OnServerFaulted != nil {
				l.opts.OnServerFaulted(err)
			}
			diag.ServerFaulted(ctx, l.log, err)
			return err
		}

		l.clients.Go(func() { l.serveOne(ctx, conn, onClient) })
	}
}

func (l *Listener) serveOne(ctx context.Context, rawConn net.Conn, onClient OnClient) {
	remote := rawConn.RemoteAddr()
	sc := New(rawConn, l.opts.ConnectionOptions)
	defer sc.Close()

	if err := onClient(ctx, sc, remote); err != nil {
		sc.ReceivePipe().Complete(err)
		sc.SendPipe().Complete(err)
		diag.ClientFaulted(ctx, l.log, remoteString(remote), err)
		if l.opts.OnClientFaulted != nil {
			l.opts.OnClientFaulted(remote, err)
		}
	}
}

func remoteString(addr net.Addr) string {
	if addr == nil {
		return "<unknown>"
	}
	return addr.String()
}
