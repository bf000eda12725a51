// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"
	"math/bits"
	"slices"

	"code.hybscloud.com/blockserver/fifo"
)

// OffsetMap translates an operation in a session's address space into zero
// or more operations on the device. Map either returns an error or calls
// emit once per sub-operation, in address order.
type OffsetMap interface {
	Map(op Operation, emit func(Operation)) error
}

// IdentityMap passes operations through unchanged.
// A nonzero BlockCount bounds the addressable range.
type IdentityMap struct {
	BlockCount uint64
}

func (m IdentityMap) Map(op Operation, emit func(Operation)) error {
	if op.Kind != OpFlush && m.BlockCount != 0 {
		end, carry := bits.Add64(op.DeviceOffset, uint64(op.BlockCount), 0)
		if carry != 0 || end > m.BlockCount {
			return fifo.StatusOutOfRange
		}
	}
	emit(op)
	return nil
}

// Extent maps Length blocks at Source in the session's address space to
// Target on the device.
type Extent struct {
	Source uint64
	Target uint64
	Length uint64
}

var errExtent = errors.New("blockserver: invalid extent")

// ExtentMap splits operations across a sorted set of extents.
// Flushes are not address based and pass through unchanged.
type ExtentMap struct {
	extents []Extent
}

// NewExtentMap validates extents against a device of deviceBlocks blocks.
// Extents may be given in any order but must not overlap in the source space.
func NewExtentMap(deviceBlocks uint64, extents ...Extent) (*ExtentMap, error) {
	sorted := slices.Clone(extents)
	slices.SortFunc(sorted, func(a, b Extent) int {
		switch {
		case a.Source < b.Source:
			return -1
		case a.Source > b.Source:
			return 1
		}
		return 0
	})
	for i, e := range sorted {
		srcEnd, c1 := bits.Add64(e.Source, e.Length, 0)
		dstEnd, c2 := bits.Add64(e.Target, e.Length, 0)
		if e.Length == 0 || c1 != 0 || c2 != 0 || dstEnd > deviceBlocks {
			return nil, errExtent
		}
		if i+1 < len(sorted) && srcEnd > sorted[i+1].Source {
			return nil, errExtent
		}
	}
	return &ExtentMap{extents: sorted}, nil
}

// Map emits one operation per extent op touches. Nothing is emitted unless
// the whole range is mapped.
func (m *ExtentMap) Map(op Operation, emit func(Operation)) error {
	if op.Kind == OpFlush {
		emit(op)
		return nil
	}
	var stack [4]Operation
	pieces := stack[:0]
	off, bufOff := op.DeviceOffset, op.BufferOffset
	remain := uint64(op.BlockCount)
	for remain > 0 {
		i, _ := slices.BinarySearchFunc(m.extents, off, func(e Extent, off uint64) int {
			switch {
			case e.Source+e.Length <= off:
				return -1
			case e.Source > off:
				return 1
			}
			return 0
		})
		if i == len(m.extents) || m.extents[i].Source > off {
			return fifo.StatusOutOfRange
		}
		e := m.extents[i]
		n := min(remain, e.Source+e.Length-off)
		piece := op
		piece.DeviceOffset = e.Target + (off - e.Source)
		piece.BlockCount = uint32(n)
		piece.BufferOffset = bufOff
		pieces = append(pieces, piece)
		off += n
		bufOff += n
		remain -= n
	}
	for _, p := range pieces {
		emit(p)
	}
	return nil
}
