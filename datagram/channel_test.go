// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datagram

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/duplex"
)

func newLoopbackChannelPair(t *testing.T) (*FrameChannel[string], *FrameChannel[string]) {
	t.Helper()

	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	clientConn, err := net.Dial("udp", serverConn.LocalAddr().String())
	require.NoError(t, err)

	server := NewServerChannel[string](serverConn, UTF8StringMarshaller{}, Options{DefaultPeer: clientConn.LocalAddr()})
	client := NewClientChannel[string](clientConn, UTF8StringMarshaller{}, Options{})

	ctx := context.Background()
	server.Start(ctx)
	client.Start(ctx)

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestFrameChannel_ClientToServerRoundTrip(t *testing.T) {
	server, client := newLoopbackChannelPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.Send(ctx, "ping", nil))

	frame, err := server.Receive(ctx)
	require.NoError(t, err)
	defer frame.Dispose()

	assert.Equal(t, "ping", frame.Payload)
	assert.NotNil(t, frame.Peer)
	assert.Equal(t, int64(0), frame.LocalIndex)
}

func TestFrameChannel_ServerToClientRoundTrip(t *testing.T) {
	server, client := newLoopbackChannelPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The server learns the client's address from an inbound datagram
	// before it can reply via the server-mode send path.
	require.NoError(t, client.Send(ctx, "hello", nil))
	first, err := server.Receive(ctx)
	require.NoError(t, err)
	peer := first.Peer
	first.Dispose()

	require.NoError(t, server.Send(ctx, "pong", peer))

	frame, err := client.Receive(ctx)
	require.NoError(t, err)
	defer frame.Dispose()
	assert.Equal(t, "pong", frame.Payload)
}

func TestFrameChannel_LocalIndexIncrementsPerDatagram(t *testing.T) {
	server, client := newLoopbackChannelPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Send(ctx, "x", nil))
	}

	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		frame, err := server.Receive(ctx)
		require.NoError(t, err)
		seen[frame.LocalIndex] = true
		frame.Dispose()
	}
	assert.Equal(t, map[int64]bool{0: true, 1: true, 2: true}, seen)
}

// dropMarshaller encodes nothing for the sentinel value "", so sendLoop's
// empty-sequence check must drop the frame without transmitting it.
type dropMarshaller struct{}

func (dropMarshaller) Write(payload string, buf *duplex.SegmentBuffer) error {
	if payload == "" {
		return nil
	}
	return UTF8StringMarshaller{}.Write(payload, buf)
}

func (dropMarshaller) Read(data []byte) (string, error) {
	return UTF8StringMarshaller{}.Read(data)
}

func TestFrameChannel_EmptyWriteDropsFrameWithoutSending(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	clientConn, err := net.Dial("udp", serverConn.LocalAddr().String())
	require.NoError(t, err)

	server := NewServerChannel[string](serverConn, dropMarshaller{}, Options{})
	client := NewClientChannel[string](clientConn, dropMarshaller{}, Options{})
	ctx := context.Background()
	server.Start(ctx)
	client.Start(ctx)
	t.Cleanup(func() { _ = server.Close(); _ = client.Close() })

	sendCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Send(sendCtx, "", nil))
	require.NoError(t, client.Send(sendCtx, "real", nil))

	recvCtx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	frame, err := server.Receive(recvCtx)
	require.NoError(t, err)
	defer frame.Dispose()

	assert.Equal(t, "real", frame.Payload)
}

func TestFrameChannel_MarshallerErrorDropsDatagramWithoutKillingLoop(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	clientConn, err := net.Dial("udp", serverConn.LocalAddr().String())
	require.NoError(t, err)

	server := NewServerChannel[int32](serverConn, UTF8Int32Marshaller{}, Options{})
	client := NewClientChannel[string](clientConn, UTF8StringMarshaller{}, Options{})
	ctx := context.Background()
	server.Start(ctx)
	client.Start(ctx)
	t.Cleanup(func() { _ = server.Close(); _ = client.Close() })

	sendCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Send(sendCtx, "not-an-int", nil)) // fails server-side decode
	require.NoError(t, client.Send(sendCtx, "42", nil))

	recvCtx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	frame, err := server.Receive(recvCtx)
	require.NoError(t, err)
	defer frame.Dispose()

	assert.Equal(t, int32(42), frame.Payload)
	assert.Eventually(t, func() bool {
		return server.Shutdown().Kind() == duplex.ShutdownReadOtherError
	}, time.Second, 5*time.Millisecond)
}

func TestFrameChannel_SendBlocksUntilContextDoneWhenQueueFull(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	clientConn, err := net.Dial("udp", serverConn.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverConn.Close(); _ = clientConn.Close() })

	client := NewClientChannel[string](clientConn, UTF8StringMarshaller{}, Options{QueueCapacity: 1})
	// Deliberately do not Start the client: nothing drains the outbound
	// queue, so the second Send must block on the full channel.

	ctx := context.Background()
	require.NoError(t, client.Send(ctx, "fills the queue", nil))

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = client.Send(shortCtx, "blocks", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
