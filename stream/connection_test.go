// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"code.hybscloud.com/duplex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStreamConnection_ReceiveLoopCopiesSocketReadsIntoPipe(t *testing.T) {
	client, server := net.Pipe()
	sc := New(server, Options{})
	defer sc.Close()

	go func() { _, _ = client.Write([]byte("hello pipe")) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := sc.ReceivePipe().ReadAsync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello pipe", string(res.Sequence.Bytes()))
	assert.Equal(t, int64(len("hello pipe")), sc.BytesRead())
}

func TestStreamConnection_SendLoopWritesPipeDataToSocket(t *testing.T) {
	client, server := net.Pipe()
	sc := New(server, Options{})
	defer sc.Close()

	sendPipe := sc.SendPipe()
	mem, err := sendPipe.GetMemory(len("outgoing"))
	require.NoError(t, err)
	n := copy(mem, "outgoing")
	require.NoError(t, sendPipe.Advance(n))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = sendPipe.FlushAsync(ctx)
	require.NoError(t, err)

	readBuf := make([]byte, len("outgoing"))
	_, err = client.Read(readBuf)
	require.NoError(t, err)
	assert.Equal(t, "outgoing", string(readBuf))
	assert.Eventually(t, func() bool { return sc.BytesSent() == int64(len("outgoing")) }, time.Second, 5*time.Millisecond)
}

func TestStreamConnection_PeerCloseClassifiesReadEOF(t *testing.T) {
	client, server := net.Pipe()
	sc := New(server, Options{})
	defer sc.Close()

	sc.ReceivePipe() // start the receive-loop
	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool {
		return sc.Shutdown().Kind() == duplex.ShutdownReadEOF
	}, time.Second, 5*time.Millisecond)
}

func TestStreamConnection_CloseCancelsLoopsAndWaits(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sc := New(server, Options{})

	sc.ReceivePipe()
	sc.SendPipe()

	done := make(chan struct{})
	go func() {
		sc.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close never returned")
	}
}

func TestStreamConnection_CloseSwallowsReceiveErrorWhenExternallyAborted(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sc := New(server, Options{})

	receivePipe := sc.ReceivePipe() // start the receive-loop

	sc.Close()

	assert.Eventually(t, func() bool {
		return sc.Shutdown().Kind() == duplex.ShutdownReadDisposed
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := receivePipe.ReadAsync(ctx)
	assert.NoError(t, err, "a deliberate Close() must swallow ConnectionAborted, not surface it")
}

func TestStreamConnection_ScatterGatherSendSpansMultipleSegments(t *testing.T) {
	client, server := net.Pipe()
	sc := New(server, Options{SendPipeOptions: duplex.PipeOptions{BlockSize: 4}})
	defer sc.Close()

	sendPipe := sc.SendPipe()
	payload := "0123456789abcdef"
	for written := 0; written < len(payload); {
		mem, err := sendPipe.GetMemory(0)
		require.NoError(t, err)
		n := copy(mem, payload[written:])
		require.NoError(t, sendPipe.Advance(n))
		written += n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		_, _ = sendPipe.FlushAsync(ctx)
	}()

	readBuf := make([]byte, len(payload))
	total := 0
	for total < len(readBuf) {
		n, err := client.Read(readBuf[total:])
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, payload, string(readBuf))
}
