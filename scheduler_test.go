// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInlineScheduler_RunsSynchronously(t *testing.T) {
	ran := false
	Inline.Schedule(func() { ran = true })
	assert.True(t, ran, "Inline must run work before Schedule returns")
}

func TestSharedPoolScheduler_RunsWork(t *testing.T) {
	done := make(chan struct{})
	SharedPool.Schedule(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SharedPool never ran the scheduled work")
	}
}
