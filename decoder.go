// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"
	"math/bits"

	"code.hybscloud.com/blockserver/fifo"
)

var errBlockSize = errors.New("blockserver: block size must be a nonzero power of two")

// decoder validates wire records for one session.
// Failures are fifo.Status values so they travel straight into a response.
type decoder struct {
	blockShift  uint
	maxTransfer uint32 // in blocks; zero means unlimited
	buffers     *bufferTable
}

func newDecoder(blockSize, maxTransfer uint32, buffers *bufferTable) (*decoder, error) {
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return nil, errBlockSize
	}
	return &decoder{
		blockShift:  uint(bits.TrailingZeros32(blockSize)),
		maxTransfer: maxTransfer,
		buffers:     buffers,
	}, nil
}

// decode turns rec into an operation and the buffer it addresses, if any.
// Device bounds are left to the offset map.
func (d *decoder) decode(rec fifo.Request) (Operation, *Buffer, error) {
	op := Operation{
		DeviceOffset: rec.DeviceOffset,
		BlockCount:   rec.Length,
		BufferOffset: rec.BufferOffset,
		Flags:        rec.Flags,
	}
	switch rec.Opcode {
	case fifo.OpRead:
		op.Kind = OpRead
	case fifo.OpWrite:
		op.Kind = OpWrite
	case fifo.OpFlush:
		op.Kind = OpFlush
		return op, nil, nil
	case fifo.OpTrim:
		op.Kind = OpTrim
		if err := d.checkLength(rec.Length); err != nil {
			return op, nil, err
		}
		return op, nil, nil
	case fifo.OpCloseBuffer:
		// Releasing an unknown id still succeeds.
		op.Kind = OpCloseBuffer
		return op, nil, nil
	default:
		return op, nil, fifo.StatusNotSupported
	}

	if err := d.checkLength(rec.Length); err != nil {
		return op, nil, err
	}
	buf := d.buffers.lookup(rec.Buffer)
	if buf == nil {
		return op, nil, fifo.StatusBadHandle
	}
	end, carry := bits.Add64(rec.BufferOffset, uint64(rec.Length), 0)
	if carry != 0 || end > uint64(len(buf.data))>>d.blockShift {
		return op, nil, fifo.StatusOutOfRange
	}
	return op, buf, nil
}

func (d *decoder) checkLength(n uint32) error {
	if n == 0 {
		return fifo.StatusInvalidArgs
	}
	if d.maxTransfer != 0 && n > d.maxTransfer {
		return fifo.StatusInvalidArgs
	}
	return nil
}
