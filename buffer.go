// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"math"
	"sync"

	"code.hybscloud.com/blockserver/fifo"
)

// Buffer is memory a client attached to a session.
// Requests address it in blocks through BufferOffset.
type Buffer struct {
	id   fifo.BufferID
	data []byte
}

// ID returns the id wire records name the buffer by.
func (b *Buffer) ID() fifo.BufferID { return b.id }

// Bytes returns the attached memory.
func (b *Buffer) Bytes() []byte { return b.data }

// bufferTable retains the buffers attached to one session.
type bufferTable struct {
	mu   sync.Mutex
	last fifo.BufferID
	bufs map[fifo.BufferID]*Buffer
}

// attach retains data and returns its id. Ids skip zero and any id still in use.
func (t *bufferTable) attach(data []byte) (fifo.BufferID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bufs == nil {
		t.bufs = make(map[fifo.BufferID]*Buffer)
	}
	if len(t.bufs) >= math.MaxUint16 {
		return 0, fifo.StatusNoMemory
	}
	id := t.last
	for {
		id++
		if id == 0 {
			continue
		}
		if _, used := t.bufs[id]; !used {
			break
		}
	}
	t.last = id
	t.bufs[id] = &Buffer{id: id, data: data}
	return id, nil
}

func (t *bufferTable) lookup(id fifo.BufferID) *Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bufs[id]
}

// release drops id and reports whether it was attached.
func (t *bufferTable) release(id fifo.BufferID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.bufs[id]; !ok {
		return false
	}
	delete(t.bufs, id)
	return true
}

func (t *bufferTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bufs)
}
