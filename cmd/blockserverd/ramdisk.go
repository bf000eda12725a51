// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"sync"

	"code.hybscloud.com/blockserver"
	"code.hybscloud.com/blockserver/fifo"
	"go.uber.org/zap"
)

// ramDisk serves requests from a byte slice, completing each one before
// OnRequests returns.
type ramDisk struct {
	log       *zap.Logger
	blockSize uint64
	srv       *blockserver.BlockServer // set before the first Serve

	mu   sync.RWMutex
	data []byte

	sessions sync.WaitGroup
}

func newRAMDisk(log *zap.Logger, blockSize uint32, blocks uint64) *ramDisk {
	return &ramDisk{
		log:       log,
		blockSize: uint64(blockSize),
		data:      make([]byte, uint64(blockSize)*blocks),
	}
}

func (d *ramDisk) StartThread(t *blockserver.Thread) {
	go t.Run()
}

func (d *ramDisk) OnNewSession(s *blockserver.Session) {
	d.sessions.Add(1)
	go func() {
		defer d.sessions.Done()
		defer s.Release()
		if err := s.Run(); err != nil {
			d.log.Warn("session loop failed", zap.Uint32("session", s.Serial()), zap.Error(err))
		}
	}()
}

func (d *ramDisk) OnRequests(_ *blockserver.Session, reqs []blockserver.Request) {
	for i := range reqs {
		d.srv.CompleteRequest(reqs[i].ID, d.execute(&reqs[i]))
	}
}

func (d *ramDisk) execute(req *blockserver.Request) fifo.Status {
	op := req.Op
	switch op.Kind {
	case blockserver.OpFlush:
		return fifo.StatusOK
	case blockserver.OpTrim:
		dev := d.span(op.DeviceOffset, op.BlockCount)
		d.mu.Lock()
		clear(dev)
		d.mu.Unlock()
		return fifo.StatusOK
	case blockserver.OpRead, blockserver.OpWrite:
		dev := d.span(op.DeviceOffset, op.BlockCount)
		off := op.BufferOffset * d.blockSize
		buf := req.Buffer.Bytes()[off : off+uint64(len(dev))]
		if op.Kind == blockserver.OpRead {
			d.mu.RLock()
			copy(buf, dev)
			d.mu.RUnlock()
		} else {
			d.mu.Lock()
			copy(dev, buf)
			d.mu.Unlock()
		}
		return fifo.StatusOK
	default:
		return fifo.StatusNotSupported
	}
}

func (d *ramDisk) span(block uint64, count uint32) []byte {
	start := block * d.blockSize
	return d.data[start : start+uint64(count)*d.blockSize]
}
