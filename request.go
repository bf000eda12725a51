// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"strconv"

	"code.hybscloud.com/blockserver/fifo"
)

// RequestID correlates a forwarded request with its completion.
// IDs are assigned per manager and never reused.
type RequestID uint64

// OperationKind is what a decoded request asks the driver to do.
type OperationKind uint8

const (
	OpRead OperationKind = iota + 1
	OpWrite
	OpFlush
	OpTrim
	// OpCloseBuffer releases an attached buffer. It is completed by the
	// session itself and never reaches the driver.
	OpCloseBuffer
)

func (k OperationKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	case OpTrim:
		return "trim"
	case OpCloseBuffer:
		return "close_buffer"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Operation is one block operation in device coordinates.
// Offsets and counts are in blocks.
type Operation struct {
	Kind         OperationKind
	DeviceOffset uint64
	BlockCount   uint32
	BufferOffset uint64
	Flags        fifo.Flags
}

// Request is a decoded request handed to the [Driver].
//
// Buffer is not owned by the request: it stays valid until a close-buffer
// record for it is read, and the driver must not retain it past the
// completion of the request.
type Request struct {
	ID          RequestID
	Op          Operation
	TraceFlowID uint64
	Buffer      *Buffer
}
