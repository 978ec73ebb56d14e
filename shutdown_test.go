// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdownState_SetFirstWriterWins(t *testing.T) {
	var s ShutdownState

	assert.True(t, s.Set(ShutdownReadEOF))
	assert.False(t, s.Set(ShutdownWriteEOF))
	assert.Equal(t, ShutdownReadEOF, s.Kind())
}

func TestShutdownState_ConcurrentSetIsMonotonic(t *testing.T) {
	var s ShutdownState
	var wg sync.WaitGroup
	var wins int32
	var mu sync.Mutex

	kinds := []ShutdownKind{ShutdownReadEOF, ShutdownWriteEOF, ShutdownReadSocketError}
	for _, k := range kinds {
		wg.Add(1)
		go func(k ShutdownKind) {
			defer wg.Done()
			if s.Set(k) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(k)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.NotEqual(t, ShutdownNone, s.Kind())
}

func TestShutdownState_SocketErrorCodeRecordedOnlyOnWin(t *testing.T) {
	var s ShutdownState

	assert.True(t, s.SetSocketError(ShutdownReadSocketError, 104))
	code, ok := s.SocketErrorCode()
	assert.True(t, ok)
	assert.Equal(t, int64(104), code)

	assert.False(t, s.SetSocketError(ShutdownWriteSocketError, 999))
	code, ok = s.SocketErrorCode()
	assert.True(t, ok)
	assert.Equal(t, int64(104), code)
}

func TestShutdownState_NoCodeBeforeAnySet(t *testing.T) {
	var s ShutdownState
	_, ok := s.SocketErrorCode()
	assert.False(t, ok)
}

func TestShutdownKind_StringCoversKnownValues(t *testing.T) {
	for k, want := range map[ShutdownKind]string{
		ShutdownNone:               "none",
		ShutdownReadEOF:            "read_eof",
		ShutdownWriteEOF:           "write_eof",
		ShutdownReadSocketError:    "read_socket_error",
		ShutdownWriteSocketError:   "write_socket_error",
		ShutdownReadFlushCompleted: "read_flush_completed",
		ShutdownReadFlushCanceled:  "read_flush_canceled",
		ShutdownReadDisposed:       "read_disposed",
		ShutdownWriteDisposed:      "write_disposed",
		ShutdownReadIOError:        "read_io_error",
		ShutdownWriteIOError:       "write_io_error",
		ShutdownReadOtherError:     "read_other_error",
		ShutdownWriteOtherError:    "write_other_error",
	} {
		assert.Equal(t, want, k.String())
	}
	assert.Equal(t, "unknown", ShutdownKind(999).String())
}
