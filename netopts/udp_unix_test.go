// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package netopts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenUDP_SendsAndReceives(t *testing.T) {
	server, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.WriteTo([]byte("ping"), server.LocalAddr())
	require.NoError(t, err)

	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, _, err := server.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}
