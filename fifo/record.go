// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fifo

import "strconv"

// Opcode selects the operation a wire request asks for.
type Opcode uint8

const (
	OpRead        Opcode = 1
	OpWrite       Opcode = 2
	OpFlush       Opcode = 3
	OpTrim        Opcode = 4
	OpCloseBuffer Opcode = 5
)

func (o Opcode) String() string {
	switch o {
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
		return "opcode(" + strconv.Itoa(int(o)) + ")"
	}
}

// Flags modify how a request is carried out by the driver.
type Flags uint8

const (
	// FlagForceAccess asks the driver to bypass any volatile cache.
	FlagForceAccess Flags = 1 << iota
	// FlagPreFlush asks the driver to flush before carrying out the request.
	FlagPreFlush
)

// BufferID names a buffer attached to a session through the control plane.
// Zero is never assigned.
type BufferID uint16

// Request is the fixed-size record a client writes into the FIFO.
// Offsets and lengths are in blocks.
type Request struct {
	Opcode       Opcode
	Flags        Flags
	Buffer       BufferID
	ReqID        uint32
	Length       uint32
	BufferOffset uint64
	DeviceOffset uint64
	TraceFlowID  uint64
}

// Response is the fixed-size record the server writes back.
// Every response completes exactly one request, identified by ReqID.
type Response struct {
	Status Status
	ReqID  uint32
	Count  uint32
}
